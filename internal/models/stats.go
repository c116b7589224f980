package models

import "time"

type StatKey string

const (
	StatSessionsCompleted StatKey = "sessionsCompleted"
	StatTotalFocusTime    StatKey = "totalFocusTime"
	StatSitesBlocked      StatKey = "sitesBlocked"
	StatTasksCompleted    StatKey = "tasksCompleted"
)

type Statistics struct {
	SessionsCompleted int `json:"sessionsCompleted"`
	TotalFocusTime    int `json:"totalFocusTime"` // minutes
	SitesBlocked      int `json:"sitesBlocked"`
	TasksCompleted    int `json:"tasksCompleted"`
}

// Field returns a pointer to the counter named by key, or nil.
func (s *Statistics) Field(key StatKey) *int {
	switch key {
	case StatSessionsCompleted:
		return &s.SessionsCompleted
	case StatTotalFocusTime:
		return &s.TotalFocusTime
	case StatSitesBlocked:
		return &s.SitesBlocked
	case StatTasksCompleted:
		return &s.TasksCompleted
	}
	return nil
}

// PomodoroRecord is one completed session in the history table.
type PomodoroRecord struct {
	ID        int64       `json:"id"`
	TaskID    string      `json:"taskId,omitempty"`
	Type      SessionType `json:"type"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime"`
	Duration  int64       `json:"duration"` // seconds
}

type PomodoroStats struct {
	TotalSessions int   `json:"totalSessions"`
	TotalDuration int64 `json:"totalDuration"` // seconds
	TodaySessions int   `json:"todaySessions"`
	TodayDuration int64 `json:"todayDuration"`
}

type BypassRequest struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}
