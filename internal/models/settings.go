package models

type Settings struct {
	BlockingEnabled       bool `json:"blockingEnabled"`
	StrictMode            bool `json:"strictMode"`
	Notifications         bool `json:"notifications"`
	SoundEnabled          bool `json:"soundEnabled"`
	BlockingNotifications bool `json:"blockingNotifications"`
	AutoStartBreaks       bool `json:"autoStartBreaks"`
	AutoStartWork         bool `json:"autoStartWork"`
	ShowCompletedTasks    bool `json:"showCompletedTasks"`
	TaskReminders         bool `json:"taskReminders"`

	PomodoroWorkDuration           int `json:"pomodoroWorkDuration"`
	PomodoroBreakDuration          int `json:"pomodoroBreakDuration"`
	PomodoroLongBreakDuration      int `json:"pomodoroLongBreakDuration"`
	PomodoroSessionsUntilLongBreak int `json:"pomodoroSessionsUntilLongBreak"`

	DefaultTaskPriority Priority `json:"defaultTaskPriority"`
	DefaultTaskCategory string   `json:"defaultTaskCategory"`

	// hostname -> expiry in unix ms
	TemporaryUnblocks map[string]int64 `json:"temporaryUnblocks,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		BlockingEnabled:                false,
		StrictMode:                     false,
		Notifications:                  true,
		ShowCompletedTasks:             true,
		PomodoroWorkDuration:           25,
		PomodoroBreakDuration:          5,
		PomodoroLongBreakDuration:      15,
		PomodoroSessionsUntilLongBreak: 4,
		DefaultTaskPriority:            PriorityMedium,
		DefaultTaskCategory:            "general",
	}
}

func (s Settings) Timer() TimerSettings {
	return TimerSettings{
		WorkDuration:           s.PomodoroWorkDuration,
		BreakDuration:          s.PomodoroBreakDuration,
		LongBreakDuration:      s.PomodoroLongBreakDuration,
		SessionsUntilLongBreak: s.PomodoroSessionsUntilLongBreak,
	}
}

// Backup is the export file document.
type Backup struct {
	Settings     *Settings   `json:"settings,omitempty"`
	BlockedSites []string    `json:"blockedSites,omitempty"`
	Tasks        []Task      `json:"tasks,omitempty"`
	Statistics   *Statistics `json:"statistics,omitempty"`
	ExportDate   string      `json:"exportDate"`
	Version      string      `json:"version"`
}

const BackupVersion = "1.0.0"
