package models

type TimerState int

const (
	StateIdle TimerState = iota
	StateRunning
	StatePaused
)

func (s TimerState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	}
	return "idle"
}

type SessionType string

const (
	SessionWork      SessionType = "work"
	SessionBreak     SessionType = "break"
	SessionLongBreak SessionType = "longBreak"
)

// Label is the human-readable name shown on the page overlay.
func (t SessionType) Label() string {
	switch t {
	case SessionWork:
		return "Work Session"
	case SessionBreak:
		return "Break Time"
	case SessionLongBreak:
		return "Long Break"
	}
	return "Session"
}

func (t SessionType) IsBreak() bool {
	return t == SessionBreak || t == SessionLongBreak
}

// Session is the active or staged pomodoro session. Times are unix
// milliseconds; Duration is in minutes.
type Session struct {
	Type          SessionType `json:"type"`
	Duration      int         `json:"duration"`
	StartTime     int64       `json:"startTime,omitempty"`
	EndTime       int64       `json:"endTime,omitempty"`
	PausedAt      *int64      `json:"pausedAt,omitempty"`
	RemainingTime *int64      `json:"remainingTime,omitempty"`
	SuggestedNext bool        `json:"suggestedNext,omitempty"`
	TaskID        string      `json:"taskId,omitempty"`
}

type TimerStatus struct {
	IsRunning      bool     `json:"isRunning"`
	IsPaused       bool     `json:"isPaused"`
	CurrentSession *Session `json:"currentSession"`
	TimeRemaining  int64    `json:"timeRemaining"` // ms
	SessionCount   int      `json:"sessionCount"`
}

// TimerDisplay is the payload of showTimer/updateTimer pushes.
type TimerDisplay struct {
	SessionType   string  `json:"sessionType"`
	TimeRemaining string  `json:"timeRemaining"`
	Progress      float64 `json:"progress"`
	IsPaused      bool    `json:"isPaused"`
	IsRunning     bool    `json:"isRunning"`
}

type TimerSettings struct {
	WorkDuration           int `json:"workDuration"`
	BreakDuration          int `json:"breakDuration"`
	LongBreakDuration      int `json:"longBreakDuration"`
	SessionsUntilLongBreak int `json:"sessionsUntilLongBreak"`
}
