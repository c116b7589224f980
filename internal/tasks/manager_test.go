package tasks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"focuser/internal/host/hosttest"
	"focuser/internal/models"
	"focuser/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Manager, *hosttest.FakeClock) {
	t.Helper()
	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "focuser.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewManager(db, zap.NewNop())
	require.NoError(t, store.SetDefaults(context.Background()))
	clock := hosttest.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewManager(store, clock, zap.NewNop()), store, clock
}

func tasksCompleted(t *testing.T, store *storage.Manager) int {
	t.Helper()
	stats, err := store.Statistics(context.Background())
	require.NoError(t, err)
	return stats.TasksCompleted
}

func TestAddAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)

	task, err := m.Add(ctx, models.NewTask{Title: "  Write report "})
	require.NoError(t, err)
	assert.Equal(t, "Write report", task.Title)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, "general", task.Category)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, []string{}, task.Tags)
	assert.Nil(t, task.CompletedAt)
	assert.Nil(t, task.EstimatedTime)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)

	_, err = store.UpdateSettings(ctx, func(s *models.Settings) {
		s.DefaultTaskPriority = models.PriorityHigh
		s.DefaultTaskCategory = "work"
	})
	require.NoError(t, err)
	task, err = m.Add(ctx, models.NewTask{Title: "Review"})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, "work", task.Category)

	_, err = m.Add(ctx, models.NewTask{Title: "   "})
	assert.ErrorIs(t, err, ErrEmptyTitle)
	_, err = m.Add(ctx, models.NewTask{Title: "x", Priority: "urgent"})
	assert.Error(t, err)
}

func TestGeneratedIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateID(1_700_000_000_000)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)

	task, err := m.Add(ctx, models.NewTask{Title: "a"})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	title := "b"
	est := 50
	updated, err := m.Update(ctx, task.ID, models.TaskUpdate{
		Title:         &title,
		EstimatedTime: &est,
		Tags:          []string{"x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Title)
	assert.Equal(t, 50, *updated.EstimatedTime)
	assert.Equal(t, []string{"x"}, updated.Tags)
	assert.Equal(t, task.ID, updated.ID)
	assert.Equal(t, task.CreatedAt, updated.CreatedAt)
	assert.Equal(t, task.CreatedAt+60_000, updated.UpdatedAt)

	_, err = m.Update(ctx, "missing", models.TaskUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	task, err := m.Add(ctx, models.NewTask{Title: "a"})
	require.NoError(t, err)

	done := models.TaskStatus("done")
	_, err = m.Update(ctx, task.ID, models.TaskUpdate{Status: &done})
	assert.Error(t, err)

	got, err := m.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestCompletionRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)
	require.NoError(t, store.SetStatistic(ctx, models.StatTasksCompleted, 7))

	task, err := m.Add(ctx, models.NewTask{Title: "a"})
	require.NoError(t, err)

	done, err := m.Complete(ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, 8, tasksCompleted(t, store))

	// Completing again does not count twice.
	_, err = m.Complete(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, tasksCompleted(t, store))

	pending := models.StatusPending
	undone, err := m.Update(ctx, task.ID, models.TaskUpdate{Status: &pending})
	require.NoError(t, err)
	assert.Nil(t, undone.CompletedAt)
	assert.Equal(t, 7, tasksCompleted(t, store))

	// Updates that leave the status alone never touch the counter.
	title := "renamed"
	_, err = m.Update(ctx, task.ID, models.TaskUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 7, tasksCompleted(t, store))
}

func TestDeleteCompletedTaskDecrements(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)

	a, err := m.Add(ctx, models.NewTask{Title: "a"})
	require.NoError(t, err)
	b, err := m.Add(ctx, models.NewTask{Title: "b"})
	require.NoError(t, err)
	_, err = m.Complete(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, tasksCompleted(t, store))

	deleted, err := m.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", deleted.Title)
	assert.Zero(t, tasksCompleted(t, store))

	_, err = m.Delete(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, tasksCompleted(t, store))

	_, err = m.Delete(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartAndPomodoroSessions(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)

	task, err := m.Add(ctx, models.NewTask{Title: "a"})
	require.NoError(t, err)
	clock.Advance(time.Second)

	started, err := m.Start(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, task.CreatedAt+1000, *started.StartedAt)

	_, err = m.AddPomodoroSession(ctx, task.ID, 25)
	require.NoError(t, err)
	credited, err := m.AddPomodoroSession(ctx, task.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, credited.PomodoroSessions)
	assert.Equal(t, 55, credited.ActualTime)

	_, err = m.AddPomodoroSession(ctx, "missing", 25)
	assert.ErrorIs(t, err, ErrNotFound)
}

func seed(t *testing.T, m *Manager, clock *hosttest.FakeClock, tasks ...models.NewTask) []*models.Task {
	t.Helper()
	var out []*models.Task
	for _, in := range tasks {
		task, err := m.Add(context.Background(), in)
		require.NoError(t, err)
		out = append(out, task)
		clock.Advance(time.Second)
	}
	return out
}

func titles(list []models.Task) []string {
	out := make([]string, len(list))
	for i, t := range list {
		out[i] = t.Title
	}
	return out
}

func TestListFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)
	seeded := seed(t, m, clock,
		models.NewTask{Title: "b", Priority: models.PriorityLow, Category: "home", Tags: []string{"x"}},
		models.NewTask{Title: "a", Priority: models.PriorityHigh, Category: "work"},
		models.NewTask{Title: "c", Priority: models.PriorityMedium, Category: "work", Tags: []string{"x", "y"}},
	)
	_, err := m.Complete(ctx, seeded[2].ID)
	require.NoError(t, err)

	list, err := m.List(ctx, models.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, titles(list), "newest first by default")

	list, err = m.List(ctx, models.TaskFilter{SortBy: "priority"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, titles(list))

	list, err = m.List(ctx, models.TaskFilter{SortBy: "priority", SortOrder: models.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, titles(list))

	list, err = m.List(ctx, models.TaskFilter{SortBy: "title", SortOrder: models.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, titles(list))

	list, err = m.List(ctx, models.TaskFilter{Category: "work", SortOrder: models.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, titles(list))

	list, err = m.List(ctx, models.TaskFilter{Tag: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, titles(list))

	list, err = m.List(ctx, models.TaskFilter{Status: models.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, titles(list))

	list, err = m.List(ctx, models.TaskFilter{Priority: models.PriorityHigh, Status: models.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, titles(list))

	list, err = m.List(ctx, models.TaskFilter{SortBy: "noSuchField"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, titles(list), "unknown field keeps stored order")
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)
	est := 30
	seeded := seed(t, m, clock,
		models.NewTask{Title: "a", Priority: models.PriorityHigh, Category: "work", EstimatedTime: &est},
		models.NewTask{Title: "b", Category: "work"},
		models.NewTask{Title: "c", Category: "home"},
	)
	_, err := m.Start(ctx, seeded[0].ID)
	require.NoError(t, err)
	_, err = m.Complete(ctx, seeded[1].ID)
	require.NoError(t, err)
	_, err = m.AddPomodoroSession(ctx, seeded[0].ID, 25)
	require.NoError(t, err)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.InProgress)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 30, stats.TotalEstimatedTime)
	assert.Equal(t, 25, stats.TotalActualTime)
	assert.Equal(t, 1, stats.TotalPomodoroSessions)
	assert.Equal(t, map[string]int{"work": 2, "home": 1}, stats.Categories)
	assert.Equal(t, map[models.Priority]int{
		models.PriorityHigh: 1, models.PriorityMedium: 2, models.PriorityLow: 0,
	}, stats.Priorities)
}

func TestExportImportIntoEmptyList(t *testing.T) {
	ctx := context.Background()
	src, _, clock := newTestManager(t)
	original := seed(t, src, clock,
		models.NewTask{Title: "one"},
		models.NewTask{Title: "two"},
		models.NewTask{Title: "three"},
	)
	data, err := src.Export(ctx)
	require.NoError(t, err)

	dst, _, _ := newTestManager(t)
	n, err := dst.Import(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	imported, err := dst.List(ctx, models.TaskFilter{SortBy: "title", SortOrder: models.SortAsc})
	require.NoError(t, err)
	require.Len(t, imported, 3)
	assert.Equal(t, []string{"one", "three", "two"}, titles(imported))

	originalIDs := make(map[string]bool)
	for _, task := range original {
		originalIDs[task.ID] = true
	}
	for _, task := range imported {
		assert.False(t, originalIDs[task.ID], "import must assign a fresh id")
	}
}

func TestImportAppends(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)
	seed(t, m, clock, models.NewTask{Title: "existing"})

	n, err := m.Import(ctx, []byte(`[{"title":"existing","status":"pending","priority":"low","tags":null}]`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := m.List(ctx, models.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2, "import does not de-duplicate")
	assert.NotEqual(t, list[0].ID, list[1].ID)
}

func TestImportRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	m, _, clock := newTestManager(t)
	seed(t, m, clock, models.NewTask{Title: "keep"})

	for _, input := range []string{`not json`, `{"title":"x"}`, `null`} {
		_, err := m.Import(ctx, []byte(input))
		assert.ErrorIs(t, err, ErrInvalidImport, input)
	}

	list, err := m.List(ctx, models.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, titles(list))
}

func TestImportCreditsCompletedTasks(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestManager(t)

	n, err := m.Import(ctx, []byte(`[
		{"title":"shipped","status":"completed","priority":"high"},
		{"title":"odd","status":"done","priority":"low","completedAt":1700000000000}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, tasksCompleted(t, store))

	list, err := m.List(ctx, models.TaskFilter{SortBy: "title", SortOrder: models.SortAsc})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.StatusPending, list[0].Status, "unknown statuses become pending")
	assert.Nil(t, list[0].CompletedAt)
	assert.Equal(t, models.StatusCompleted, list[1].Status)
	require.NotNil(t, list[1].CompletedAt)

	_, err = m.Delete(ctx, list[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, tasksCompleted(t, store))
}
