package background

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"focuser/internal/blocking"
	"focuser/internal/bus"
	"focuser/internal/host"
	"focuser/internal/models"
	"focuser/internal/pomodoro"
	"focuser/internal/storage"
)

var (
	errTaskRequired   = errors.New("task is required")
	errTaskIDRequired = errors.New("taskId is required")
	errURLRequired    = errors.New("url is required")
	errDataRequired   = errors.New("data is required")
)

// Status is the getStatus payload.
type Status struct {
	Blocking models.BlockingStatus `json:"blocking"`
	Pomodoro models.TimerStatus    `json:"pomodoro"`
	Tasks    []models.Task         `json:"tasks"`
}

// TimerReport is the getTimerStatus payload: the raw status plus the
// overlay fields derived from it.
type TimerReport struct {
	models.TimerStatus
	SessionType string  `json:"sessionType"`
	Progress    float64 `json:"progress"`
}

type PomodoroHistory struct {
	Records []models.PomodoroRecord `json:"records"`
	Week    *models.PomodoroStats   `json:"week"`
}

type UnblockResult struct {
	Hostname  string `json:"hostname"`
	ExpiresAt int64  `json:"expiresAt"`
}

type CheckResult struct {
	Blocked bool `json:"blocked"`
}

func (c *Controller) registerHandlers() {
	r := c.router

	r.Handle(bus.ActionGetStatus, c.getStatus)
	r.Handle(bus.ActionGetSettings, func(ctx context.Context, _ bus.Message) (any, error) {
		return c.store.Settings(ctx)
	})
	r.Handle(bus.ActionUpdateSettings, c.updateSettings)

	r.Handle(bus.ActionToggleBlocking, func(ctx context.Context, _ bus.Message) (any, error) {
		enabled, err := c.blocking.Toggle(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"enabled": enabled}, nil
	})
	r.Handle(bus.ActionUpdateBlockedSites, func(ctx context.Context, msg bus.Message) (any, error) {
		sites := msg.Sites
		if sites == nil {
			sites = []string{}
		}
		return nil, c.blocking.UpdateBlockedSites(ctx, sites)
	})
	r.Handle(bus.ActionAddBlockedSite, func(ctx context.Context, msg bus.Message) (any, error) {
		return nil, c.blocking.AddBlockedSite(ctx, msg.Site)
	})
	r.Handle(bus.ActionRemoveBlockedSite, func(ctx context.Context, msg bus.Message) (any, error) {
		return nil, c.blocking.RemoveBlockedSite(ctx, msg.Site)
	})
	r.Handle(bus.ActionCheckURL, c.checkURL)
	r.Handle(bus.ActionTabUpdated, c.checkURL)
	r.Handle(bus.ActionTemporaryUnblock, c.temporaryUnblock)
	r.Handle(bus.ActionLogBypassRequest, c.logBypassRequest)
	r.Handle(bus.ActionGetBypassRequests, func(ctx context.Context, msg bus.Message) (any, error) {
		return c.store.Database().BypassRequests(ctx, limitOrDefault(msg.Limit))
	})

	r.Handle(bus.ActionStartPomodoro, func(ctx context.Context, msg bus.Message) (any, error) {
		if msg.Duration < 0 {
			return nil, fmt.Errorf("duration must not be negative")
		}
		return c.timer.Start(ctx, int(msg.Duration), msg.TaskID)
	})
	r.Handle(bus.ActionPausePomodoro, func(ctx context.Context, _ bus.Message) (any, error) {
		return c.timer.Pause(ctx)
	})
	r.Handle(bus.ActionResumePomodoro, func(ctx context.Context, _ bus.Message) (any, error) {
		return c.timer.Resume(ctx)
	})
	r.Handle(bus.ActionStopPomodoro, func(ctx context.Context, _ bus.Message) (any, error) {
		c.timer.Stop(ctx)
		return nil, nil
	})
	r.Handle(bus.ActionSkipSession, func(ctx context.Context, _ bus.Message) (any, error) {
		return c.timer.Skip(ctx)
	})
	r.Handle(bus.ActionGetTimerStatus, func(ctx context.Context, _ bus.Message) (any, error) {
		return c.timerReport(), nil
	})

	r.Handle(bus.ActionAddTask, func(ctx context.Context, msg bus.Message) (any, error) {
		if msg.Task == nil {
			return nil, errTaskRequired
		}
		return c.tasks.Add(ctx, *msg.Task)
	})
	r.Handle(bus.ActionUpdateTask, func(ctx context.Context, msg bus.Message) (any, error) {
		if msg.TaskID == "" {
			return nil, errTaskIDRequired
		}
		if msg.Updates == nil {
			return nil, errors.New("updates are required")
		}
		return c.tasks.Update(ctx, msg.TaskID, *msg.Updates)
	})
	r.Handle(bus.ActionDeleteTask, c.withTaskID(c.tasks.Delete))
	r.Handle(bus.ActionGetTask, c.withTaskID(c.tasks.Get))
	r.Handle(bus.ActionStartTask, c.withTaskID(c.tasks.Start))
	r.Handle(bus.ActionCompleteTask, c.withTaskID(c.tasks.Complete))
	r.Handle(bus.ActionGetTasks, func(ctx context.Context, msg bus.Message) (any, error) {
		var filter models.TaskFilter
		if msg.Filter != nil {
			filter = *msg.Filter
		}
		return c.tasks.List(ctx, filter)
	})
	r.Handle(bus.ActionGetTaskStats, func(ctx context.Context, _ bus.Message) (any, error) {
		return c.tasks.Stats(ctx)
	})
	r.Handle(bus.ActionExportTasks, func(ctx context.Context, _ bus.Message) (any, error) {
		data, err := c.tasks.Export(ctx)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	})
	r.Handle(bus.ActionImportTasks, func(ctx context.Context, msg bus.Message) (any, error) {
		data, err := payload(msg.Data)
		if err != nil {
			return nil, err
		}
		n, err := c.tasks.Import(ctx, data)
		if err != nil {
			return nil, err
		}
		return map[string]int{"imported": n}, nil
	})

	r.Handle(bus.ActionGetStatistics, func(ctx context.Context, _ bus.Message) (any, error) {
		return c.store.Statistics(ctx)
	})
	r.Handle(bus.ActionResetStatistics, func(ctx context.Context, _ bus.Message) (any, error) {
		return nil, c.store.ResetStatistics(ctx)
	})
	r.Handle(bus.ActionSetStatistics, c.setStatistics)
	r.Handle(bus.ActionGetPomodoroHistory, c.pomodoroHistory)
	r.Handle(bus.ActionExportData, func(ctx context.Context, _ bus.Message) (any, error) {
		return c.store.Export(ctx, c.clock.Now())
	})
	r.Handle(bus.ActionImportData, c.importData)
	r.Handle(bus.ActionResetAllData, c.resetAllData)

	r.Handle(bus.ActionNotificationClicked, c.notificationClicked)
}

func (c *Controller) withTaskID(fn func(context.Context, string) (*models.Task, error)) bus.Handler {
	return func(ctx context.Context, msg bus.Message) (any, error) {
		if msg.TaskID == "" {
			return nil, errTaskIDRequired
		}
		return fn(ctx, msg.TaskID)
	}
}

func (c *Controller) getStatus(ctx context.Context, _ bus.Message) (any, error) {
	blockingStatus, err := c.blocking.Status(ctx)
	if err != nil {
		return nil, err
	}
	list, err := c.tasks.List(ctx, models.TaskFilter{})
	if err != nil {
		return nil, err
	}
	return Status{
		Blocking: blockingStatus,
		Pomodoro: c.timer.Status(),
		Tasks:    list,
	}, nil
}

// updateSettings merges a partial settings document. A change to
// blockingEnabled is pushed through to the rule engine.
func (c *Controller) updateSettings(ctx context.Context, msg bus.Message) (any, error) {
	if len(msg.Settings) == 0 {
		return nil, errors.New("settings are required")
	}
	settings, err := c.store.PatchSettings(ctx, msg.Settings)
	if err != nil {
		return nil, err
	}
	if settings.BlockingEnabled != c.blocking.Enabled() {
		if err := c.blocking.Init(ctx); err != nil {
			return nil, err
		}
	}
	return settings, nil
}

func (c *Controller) checkURL(ctx context.Context, msg bus.Message) (any, error) {
	if msg.URL == "" {
		return nil, errURLRequired
	}
	blocked, err := c.HandleNavigation(ctx, msg.TabID, msg.URL)
	if err != nil {
		return nil, err
	}
	return CheckResult{Blocked: blocked}, nil
}

func (c *Controller) temporaryUnblock(ctx context.Context, msg bus.Message) (any, error) {
	if msg.URL == "" {
		return nil, errURLRequired
	}
	duration := time.Duration(msg.Duration) * time.Millisecond
	if duration <= 0 {
		duration = c.bypassDuration
	}
	expires, err := c.blocking.TemporaryUnblock(ctx, msg.URL, duration, msg.TabID)
	if err != nil {
		return nil, err
	}
	hostname, _ := blocking.Hostname(msg.URL)
	return UnblockResult{Hostname: hostname, ExpiresAt: host.Millis(expires)}, nil
}

// setStatistics overwrites the named counters, e.g. {"tasksCompleted": 3}.
// Every key and value is checked before any counter changes.
func (c *Controller) setStatistics(ctx context.Context, msg bus.Message) (any, error) {
	data, err := payload(msg.Data)
	if err != nil {
		return nil, err
	}
	var values map[models.StatKey]int
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("invalid statistics: %w", err)
	}
	if len(values) == 0 {
		return nil, errDataRequired
	}
	var counters models.Statistics
	for key, value := range values {
		if counters.Field(key) == nil {
			return nil, fmt.Errorf("%w: %s", storage.ErrUnknownStatistic, key)
		}
		if value < 0 {
			return nil, fmt.Errorf("%s must not be negative", key)
		}
	}
	for key, value := range values {
		if err := c.store.SetStatistic(ctx, key, value); err != nil {
			return nil, err
		}
	}
	return c.store.Statistics(ctx)
}

func (c *Controller) logBypassRequest(ctx context.Context, msg bus.Message) (any, error) {
	if msg.URL == "" {
		return nil, errURLRequired
	}
	req := &models.BypassRequest{
		URL:       msg.URL,
		Reason:    strings.TrimSpace(msg.Reason),
		CreatedAt: c.clock.Now(),
	}
	if err := c.store.Database().SaveBypassRequest(ctx, req); err != nil {
		return nil, err
	}
	c.logger.Info("bypass requested", zap.String("url", req.URL), zap.String("reason", req.Reason))
	return req, nil
}

func (c *Controller) timerReport() TimerReport {
	status := c.timer.Status()
	report := TimerReport{
		TimerStatus: status,
		SessionType: "Session",
		Progress:    pomodoro.Progress(status),
	}
	if status.CurrentSession != nil {
		report.SessionType = status.CurrentSession.Type.Label()
	}
	return report
}

func (c *Controller) pomodoroHistory(ctx context.Context, msg bus.Message) (any, error) {
	db := c.store.Database()
	records, err := db.PomodoroRecords(ctx, limitOrDefault(msg.Limit))
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.PomodoroRecord{}
	}
	now := c.clock.Now()
	week, err := db.PomodoroStats(ctx, now.AddDate(0, 0, -7), now)
	if err != nil {
		return nil, err
	}
	return PomodoroHistory{Records: records, Week: week}, nil
}

// importData restores a backup and reloads the blocking state from it.
func (c *Controller) importData(ctx context.Context, msg bus.Message) (any, error) {
	data, err := payload(msg.Data)
	if err != nil {
		return nil, err
	}
	backup, err := c.store.Import(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := c.blocking.Init(ctx); err != nil {
		return nil, err
	}
	return backup, nil
}

func (c *Controller) resetAllData(ctx context.Context, _ bus.Message) (any, error) {
	c.Stop(ctx)
	if err := c.store.ResetAll(ctx); err != nil {
		return nil, err
	}
	return nil, c.blocking.Init(ctx)
}

// notificationClicked handles the completion notification's buttons:
// button 0 starts the staged session and button 1 skips it. Clicks on an
// older notification are ignored.
func (c *Controller) notificationClicked(ctx context.Context, msg bus.Message) (any, error) {
	if msg.ButtonIndex == nil {
		return nil, nil
	}
	if msg.NotificationID != "" && msg.NotificationID != c.timer.LastNotification() {
		c.logger.Debug("ignoring click on stale notification", zap.String("id", msg.NotificationID))
		return nil, nil
	}
	switch *msg.ButtonIndex {
	case 0:
		return c.timer.Start(ctx, 0, "")
	case 1:
		return c.timer.Skip(ctx)
	}
	return nil, fmt.Errorf("unknown notification button %d", *msg.ButtonIndex)
}

// payload accepts either a JSON document or a JSON string holding one.
func payload(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errDataRequired
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s), nil
	}
	return raw, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	return limit
}
