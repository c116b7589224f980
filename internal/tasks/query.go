package tasks

import (
	"context"
	"sort"

	"focuser/internal/models"
)

const defaultSortBy = "createdAt"

// List returns the tasks matching f, sorted by f.SortBy (default createdAt)
// in f.SortOrder (default desc). Priority sorts by rank, not lexically.
func (m *Manager) List(ctx context.Context, f models.TaskFilter) ([]models.Task, error) {
	all, err := m.store.Tasks(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]models.Task, 0, len(all))
	for _, t := range all {
		if matches(t, f) {
			list = append(list, t)
		}
	}

	sortBy := f.SortBy
	if sortBy == "" {
		sortBy = defaultSortBy
	}
	desc := f.SortOrder != models.SortAsc
	sort.SliceStable(list, func(i, j int) bool {
		c := compare(&list[i], &list[j], sortBy)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return list, nil
}

func matches(t models.Task, f models.TaskFilter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Tag != "" && !t.HasTag(f.Tag) {
		return false
	}
	return true
}

// compare orders a and b on field. Unknown fields compare equal, which
// keeps the stored order.
func compare(a, b *models.Task, field string) int {
	switch field {
	case "id":
		return compareStrings(a.ID, b.ID)
	case "title":
		return compareStrings(a.Title, b.Title)
	case "description":
		return compareStrings(a.Description, b.Description)
	case "status":
		return compareStrings(string(a.Status), string(b.Status))
	case "category":
		return compareStrings(a.Category, b.Category)
	case "priority":
		return compareInts(int64(a.Priority.Rank()), int64(b.Priority.Rank()))
	case "estimatedTime":
		return compareInts(intOrZero(a.EstimatedTime), intOrZero(b.EstimatedTime))
	case "actualTime":
		return compareInts(int64(a.ActualTime), int64(b.ActualTime))
	case "pomodoroSessions":
		return compareInts(int64(a.PomodoroSessions), int64(b.PomodoroSessions))
	case "createdAt":
		return compareInts(a.CreatedAt, b.CreatedAt)
	case "updatedAt":
		return compareInts(a.UpdatedAt, b.UpdatedAt)
	case "startedAt":
		return compareInts(int64OrZero(a.StartedAt), int64OrZero(b.StartedAt))
	case "completedAt":
		return compareInts(int64OrZero(a.CompletedAt), int64OrZero(b.CompletedAt))
	}
	return 0
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func intOrZero(p *int) int64 {
	if p == nil {
		return 0
	}
	return int64(*p)
}

func int64OrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
