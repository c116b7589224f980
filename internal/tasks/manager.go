// Package tasks keeps the task list: CRUD, filtered and sorted views,
// aggregate statistics and JSON import/export.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"focuser/internal/host"
	"focuser/internal/models"
	"focuser/internal/storage"
)

var (
	ErrNotFound      = errors.New("task not found")
	ErrEmptyTitle    = errors.New("task title is required")
	ErrInvalidImport = errors.New("invalid task data format")
)

type Manager struct {
	store  *storage.Manager
	clock  host.Clock
	logger *zap.Logger
}

func NewManager(store *storage.Manager, clock host.Clock, logger *zap.Logger) *Manager {
	if clock == nil {
		clock = host.SystemClock{}
	}
	return &Manager{store: store, clock: clock, logger: logger}
}

// GenerateID returns the creation time in base 36 followed by a random
// suffix.
func GenerateID(millis int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strconv.FormatInt(millis, 36) + suffix[:11]
}

func (m *Manager) now() int64 {
	return host.Millis(m.clock.Now())
}

// Add appends a pending task. Unset priority and category fall back to the
// configured task defaults.
func (m *Manager) Add(ctx context.Context, in models.NewTask) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	settings, err := m.store.Settings(ctx)
	if err != nil {
		return nil, err
	}

	priority := in.Priority
	if priority == "" {
		priority = settings.DefaultTaskPriority
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", priority)
	}
	category := in.Category
	if category == "" {
		category = settings.DefaultTaskCategory
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	now := m.now()
	task := models.Task{
		ID:            GenerateID(now),
		Title:         title,
		Description:   in.Description,
		Priority:      priority,
		Status:        models.StatusPending,
		Category:      category,
		EstimatedTime: in.EstimatedTime,
		CreatedAt:     now,
		UpdatedAt:     now,
		Tags:          tags,
	}

	if err := m.store.UpdateTasks(ctx, func(list []models.Task) ([]models.Task, error) {
		return append(list, task), nil
	}); err != nil {
		return nil, err
	}
	m.logger.Info("task added", zap.String("id", task.ID), zap.String("title", task.Title))
	return &task, nil
}

// Update applies the non-nil fields of u. When the status crosses the
// completed boundary the completion time and the tasksCompleted counter
// follow it.
func (m *Manager) Update(ctx context.Context, id string, u models.TaskUpdate) (*models.Task, error) {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", *u.Priority)
	}
	if u.Status != nil && !u.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", *u.Status)
	}

	var (
		updated models.Task
		delta   int
	)
	now := m.now()
	err := m.store.UpdateTasks(ctx, func(list []models.Task) ([]models.Task, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		task := list[i]
		wasCompleted := task.Status == models.StatusCompleted
		apply(&task, u)
		task.UpdatedAt = now

		isCompleted := task.Status == models.StatusCompleted
		switch {
		case isCompleted && !wasCompleted:
			task.CompletedAt = &now
			delta = 1
		case !isCompleted && wasCompleted:
			task.CompletedAt = nil
			delta = -1
		}
		list[i] = task
		updated = task
		return list, nil
	})
	if err != nil {
		return nil, err
	}

	if delta != 0 {
		if err := m.store.IncrementStatistic(ctx, models.StatTasksCompleted, delta); err != nil {
			m.logger.Error("failed to update task statistics", zap.Error(err))
		}
	}
	m.logger.Debug("task updated", zap.String("id", id), zap.String("status", string(updated.Status)))
	return &updated, nil
}

func apply(task *models.Task, u models.TaskUpdate) {
	if u.Title != nil {
		task.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		task.Description = *u.Description
	}
	if u.Priority != nil {
		task.Priority = *u.Priority
	}
	if u.Status != nil {
		task.Status = *u.Status
	}
	if u.Category != nil {
		task.Category = *u.Category
	}
	if u.EstimatedTime != nil {
		est := *u.EstimatedTime
		task.EstimatedTime = &est
	}
	if u.ActualTime != nil {
		task.ActualTime = *u.ActualTime
	}
	if u.StartedAt != nil {
		started := *u.StartedAt
		task.StartedAt = &started
	}
	if u.Tags != nil {
		task.Tags = append([]string{}, u.Tags...)
	}
	if u.PomodoroSessions != nil {
		task.PomodoroSessions = *u.PomodoroSessions
	}
}

// Delete removes the task. Removing a completed task takes it back out of
// the tasksCompleted counter.
func (m *Manager) Delete(ctx context.Context, id string) (*models.Task, error) {
	var deleted models.Task
	err := m.store.UpdateTasks(ctx, func(list []models.Task) ([]models.Task, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		deleted = list[i]
		return append(list[:i], list[i+1:]...), nil
	})
	if err != nil {
		return nil, err
	}

	if deleted.Status == models.StatusCompleted {
		if err := m.store.IncrementStatistic(ctx, models.StatTasksCompleted, -1); err != nil {
			m.logger.Error("failed to update task statistics", zap.Error(err))
		}
	}
	m.logger.Info("task deleted", zap.String("id", id))
	return &deleted, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Task, error) {
	list, err := m.store.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return &list[i], nil
}

func (m *Manager) Start(ctx context.Context, id string) (*models.Task, error) {
	status := models.StatusInProgress
	now := m.now()
	return m.Update(ctx, id, models.TaskUpdate{Status: &status, StartedAt: &now})
}

func (m *Manager) Complete(ctx context.Context, id string) (*models.Task, error) {
	status := models.StatusCompleted
	return m.Update(ctx, id, models.TaskUpdate{Status: &status})
}

// AddPomodoroSession credits one session of the given length to the task.
func (m *Manager) AddPomodoroSession(ctx context.Context, id string, minutes int) (*models.Task, error) {
	task, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sessions := task.PomodoroSessions + 1
	actual := task.ActualTime + minutes
	return m.Update(ctx, id, models.TaskUpdate{PomodoroSessions: &sessions, ActualTime: &actual})
}

func (m *Manager) Stats(ctx context.Context) (models.TaskStats, error) {
	list, err := m.store.Tasks(ctx)
	if err != nil {
		return models.TaskStats{}, err
	}

	stats := models.TaskStats{
		Total:      len(list),
		Categories: make(map[string]int),
		Priorities: map[models.Priority]int{
			models.PriorityHigh:   0,
			models.PriorityMedium: 0,
			models.PriorityLow:    0,
		},
	}
	for _, t := range list {
		switch t.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusCompleted:
			stats.Completed++
		}
		if t.EstimatedTime != nil {
			stats.TotalEstimatedTime += *t.EstimatedTime
		}
		stats.TotalActualTime += t.ActualTime
		stats.TotalPomodoroSessions += t.PomodoroSessions
		stats.Categories[t.Category]++
		stats.Priorities[t.Priority]++
	}
	return stats, nil
}

// Export renders every task as an indented JSON array.
func (m *Manager) Export(ctx context.Context) ([]byte, error) {
	list, err := m.List(ctx, models.TaskFilter{})
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(list, "", "  ")
}

// Import appends the tasks in data under fresh ids and timestamps and
// returns how many were added. Completed tasks are credited to
// tasksCompleted and unknown statuses become pending. Malformed input
// changes nothing.
func (m *Manager) Import(ctx context.Context, data []byte) (int, error) {
	var incoming []models.Task
	if err := json.Unmarshal(data, &incoming); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if incoming == nil {
		return 0, ErrInvalidImport
	}

	now := m.now()
	completed := 0
	for i := range incoming {
		task := &incoming[i]
		task.ID = GenerateID(now)
		task.CreatedAt = now
		task.UpdatedAt = now
		if task.Tags == nil {
			task.Tags = []string{}
		}
		if !task.Status.Valid() {
			task.Status = models.StatusPending
		}
		if task.Status == models.StatusCompleted {
			if task.CompletedAt == nil {
				at := now
				task.CompletedAt = &at
			}
			completed++
		} else {
			task.CompletedAt = nil
		}
	}

	if err := m.store.UpdateTasks(ctx, func(list []models.Task) ([]models.Task, error) {
		return append(list, incoming...), nil
	}); err != nil {
		return 0, err
	}
	if completed > 0 {
		if err := m.store.IncrementStatistic(ctx, models.StatTasksCompleted, completed); err != nil {
			m.logger.Error("failed to update task statistics", zap.Error(err))
		}
	}
	m.logger.Info("tasks imported", zap.Int("count", len(incoming)))
	return len(incoming), nil
}

func indexOf(list []models.Task, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
