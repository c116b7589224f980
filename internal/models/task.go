package models

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Rank orders priorities high > medium > low; unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Timestamps are unix milliseconds, matching the persisted document.
type Task struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Priority         Priority   `json:"priority"`
	Status           TaskStatus `json:"status"`
	Category         string     `json:"category"`
	EstimatedTime    *int       `json:"estimatedTime"` // minutes
	ActualTime       int        `json:"actualTime"`    // minutes
	CreatedAt        int64      `json:"createdAt"`
	UpdatedAt        int64      `json:"updatedAt"`
	StartedAt        *int64     `json:"startedAt,omitempty"`
	CompletedAt      *int64     `json:"completedAt"`
	Tags             []string   `json:"tags"`
	PomodoroSessions int        `json:"pomodoroSessions"`
}

func (t *Task) HasTag(tag string) bool {
	for _, v := range t.Tags {
		if v == tag {
			return true
		}
	}
	return false
}

// NewTask is the caller-supplied part of a task; everything else is generated.
type NewTask struct {
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
	Category      string   `json:"category,omitempty"`
	EstimatedTime *int     `json:"estimatedTime,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// TaskUpdate carries only the fields being changed. ID and CreatedAt are
// never updatable.
type TaskUpdate struct {
	Title            *string     `json:"title,omitempty"`
	Description      *string     `json:"description,omitempty"`
	Priority         *Priority   `json:"priority,omitempty"`
	Status           *TaskStatus `json:"status,omitempty"`
	Category         *string     `json:"category,omitempty"`
	EstimatedTime    *int        `json:"estimatedTime,omitempty"`
	ActualTime       *int        `json:"actualTime,omitempty"`
	StartedAt        *int64      `json:"startedAt,omitempty"`
	Tags             []string    `json:"tags,omitempty"`
	PomodoroSessions *int        `json:"pomodoroSessions,omitempty"`
}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

type TaskFilter struct {
	Status    TaskStatus `json:"status,omitempty"`
	Priority  Priority   `json:"priority,omitempty"`
	Category  string     `json:"category,omitempty"`
	Tag       string     `json:"tag,omitempty"`
	SortBy    string     `json:"sortBy,omitempty"`
	SortOrder SortOrder  `json:"sortOrder,omitempty"`
}

type TaskStats struct {
	Total                 int              `json:"total"`
	Pending               int              `json:"pending"`
	InProgress            int              `json:"inProgress"`
	Completed             int              `json:"completed"`
	TotalEstimatedTime    int              `json:"totalEstimatedTime"`
	TotalActualTime       int              `json:"totalActualTime"`
	TotalPomodoroSessions int              `json:"totalPomodoroSessions"`
	Categories            map[string]int   `json:"categories"`
	Priorities            map[Priority]int `json:"priorities"`
}
