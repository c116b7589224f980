// Package pomodoro runs the work/break session cycle. Time passes only
// through host alarms; page overlays are kept current by a periodic
// broadcast while a session runs.
package pomodoro

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"focuser/internal/host"
	"focuser/internal/models"
	"focuser/internal/storage"
)

const AlarmName = "pomodoroTimer"

// WorkCompleteFunc is called after a work session's statistics are saved.
type WorkCompleteFunc func(ctx context.Context, session models.Session)

type Timer struct {
	mu       sync.Mutex
	store    *storage.Manager
	alarms   *host.Alarms
	tabs     host.Tabs
	notifier host.Notifier
	clock    host.Clock
	logger   *zap.Logger
	interval time.Duration

	onWorkComplete WorkCompleteFunc

	state        models.TimerState
	session      *models.Session
	alarmAt      time.Time
	sessionCount int // completed work sessions

	broadcast    host.Timer
	broadcastGen int

	lastNotification string
}

type Options struct {
	Store    *storage.Manager
	Alarms   *host.Alarms
	Tabs     host.Tabs
	Notifier host.Notifier
	Clock    host.Clock
	Logger   *zap.Logger
	// BroadcastInterval is the updateTimer period while running.
	BroadcastInterval time.Duration
}

func NewTimer(opts Options) *Timer {
	if opts.Clock == nil {
		opts.Clock = host.SystemClock{}
	}
	if opts.BroadcastInterval <= 0 {
		opts.BroadcastInterval = time.Second
	}
	t := &Timer{
		store:    opts.Store,
		alarms:   opts.Alarms,
		tabs:     opts.Tabs,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		logger:   opts.Logger,
		interval: opts.BroadcastInterval,
	}
	opts.Alarms.OnAlarm(t.HandleAlarm)
	return t
}

func (t *Timer) OnWorkComplete(fn WorkCompleteFunc) {
	t.mu.Lock()
	t.onWorkComplete = fn
	t.mu.Unlock()
}

// SetBroadcastInterval takes effect from the next scheduled broadcast.
func (t *Timer) SetBroadcastInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.interval = d
	t.mu.Unlock()
}

// Start begins a session. It does nothing while a session is running and
// resumes a paused one. Otherwise it starts the staged suggestion if there
// is one, else a work session. minutes > 0 overrides the duration.
func (t *Timer) Start(ctx context.Context, minutes int, taskID string) (*models.Session, error) {
	t.mu.Lock()
	switch t.state {
	case models.StateRunning:
		t.mu.Unlock()
		t.logger.Debug("timer is already running")
		return nil, nil
	case models.StatePaused:
		t.mu.Unlock()
		return t.Resume(ctx)
	}

	settings, err := t.store.Settings(ctx)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}

	sessionType := models.SessionWork
	duration := settings.PomodoroWorkDuration
	if staged := t.session; staged != nil && staged.SuggestedNext {
		sessionType = staged.Type
		duration = staged.Duration
		if taskID == "" {
			taskID = staged.TaskID
		}
	}
	if minutes > 0 {
		duration = minutes
	}
	if duration <= 0 {
		t.mu.Unlock()
		return nil, fmt.Errorf("session duration must be positive, got %d", duration)
	}

	now := t.clock.Now()
	length := time.Duration(duration) * time.Minute
	t.alarms.Clear(AlarmName)
	t.alarmAt = t.alarms.Create(AlarmName, length).ScheduledTime

	t.state = models.StateRunning
	t.session = &models.Session{
		Type:      sessionType,
		Duration:  duration,
		StartTime: host.Millis(now),
		EndTime:   host.Millis(now.Add(length)),
		TaskID:    taskID,
	}
	started := *t.session
	display := t.displayLocked(now)

	t.logger.Info("pomodoro timer started",
		zap.String("type", string(sessionType)),
		zap.Int("minutes", duration),
		zap.String("task", taskID))

	t.startBroadcastLocked()
	t.mu.Unlock()

	t.send(ctx, host.Push{Action: host.ActionShowTimer, Data: display})
	if settings.Notifications {
		t.notify(ctx, host.Notification{
			Title:   "Focuser",
			Message: startMessage(sessionType, duration),
		})
	}
	return &started, nil
}

func startMessage(sessionType models.SessionType, minutes int) string {
	if sessionType == models.SessionWork {
		return fmt.Sprintf("Focus session started! %d minutes of focused work ahead.", minutes)
	}
	return fmt.Sprintf("%s started! %d minutes to recharge.", sessionType.Label(), minutes)
}

// Pause freezes the remaining time. Only a running session can be paused.
func (t *Timer) Pause(ctx context.Context) (*models.Session, error) {
	t.mu.Lock()
	if t.state != models.StateRunning {
		t.mu.Unlock()
		t.logger.Debug("timer is not running or already paused")
		return nil, nil
	}

	t.alarms.Clear(AlarmName)
	t.stopBroadcastLocked()

	now := t.clock.Now()
	nowMs := host.Millis(now)
	remaining := t.session.EndTime - nowMs
	if remaining < 0 {
		remaining = 0
	}
	t.state = models.StatePaused
	t.session.PausedAt = &nowMs
	t.session.RemainingTime = &remaining

	display := t.displayLocked(now)
	paused := *t.session
	t.mu.Unlock()

	t.send(ctx, host.Push{Action: host.ActionUpdateTimer, Data: display})
	t.logger.Info("pomodoro timer paused", zap.Int64("remainingMs", remaining))
	return &paused, nil
}

// Resume reschedules a paused session for its remaining time.
func (t *Timer) Resume(ctx context.Context) (*models.Session, error) {
	t.mu.Lock()
	if t.state != models.StatePaused {
		t.mu.Unlock()
		t.logger.Debug("timer is not paused")
		return nil, nil
	}

	now := t.clock.Now()
	remaining := time.Duration(*t.session.RemainingTime) * time.Millisecond
	t.alarmAt = t.alarms.Create(AlarmName, remaining).ScheduledTime

	t.state = models.StateRunning
	t.session.EndTime = host.Millis(now.Add(remaining))
	t.session.PausedAt = nil
	t.session.RemainingTime = nil

	display := t.displayLocked(now)
	t.startBroadcastLocked()
	resumed := *t.session
	t.mu.Unlock()

	t.send(ctx, host.Push{Action: host.ActionUpdateTimer, Data: display})
	t.logger.Info("pomodoro timer resumed")
	return &resumed, nil
}

// Stop abandons the session without crediting it.
func (t *Timer) Stop(ctx context.Context) {
	t.mu.Lock()
	t.alarms.Clear(AlarmName)
	t.stopBroadcastLocked()
	t.state = models.StateIdle
	t.session = nil
	t.mu.Unlock()

	t.send(ctx, host.Push{Action: host.ActionHideTimer})
	t.logger.Info("pomodoro timer stopped")
}

// Skip replaces a staged suggestion with the other kind of session: a
// skipped break stages work and a skipped work session stages a break.
func (t *Timer) Skip(ctx context.Context) (*models.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != models.StateIdle {
		return nil, fmt.Errorf("cannot skip while a session is %s", t.state)
	}
	if t.session == nil {
		return nil, nil
	}

	settings, err := t.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	next := &models.Session{SuggestedNext: true, TaskID: t.session.TaskID}
	if t.session.Type.IsBreak() {
		next.Type, next.Duration = models.SessionWork, settings.PomodoroWorkDuration
	} else {
		next.Type, next.Duration = models.SessionBreak, settings.PomodoroBreakDuration
	}
	t.session = next
	t.logger.Info("session skipped", zap.String("next", string(next.Type)))
	staged := *next
	return &staged, nil
}

// HandleAlarm is the alarm listener.
func (t *Timer) HandleAlarm(alarm host.Alarm) {
	if alarm.Name != AlarmName {
		return
	}
	t.complete(context.Background(), alarm.ScheduledTime)
}

// CompleteSession finishes the running session: work sessions are
// credited, the next session is staged and the user is asked whether to
// start it.
func (t *Timer) CompleteSession(ctx context.Context) {
	t.complete(ctx, time.Time{})
}

// complete finishes the running session. A non-zero scheduled time must
// match the armed alarm, so an alarm left over from before a pause or
// restart does nothing.
func (t *Timer) complete(ctx context.Context, scheduled time.Time) {
	t.mu.Lock()
	if t.session == nil || t.state != models.StateRunning ||
		(!scheduled.IsZero() && !scheduled.Equal(t.alarmAt)) {
		t.mu.Unlock()
		return
	}

	completed := *t.session
	if completed.Type == models.SessionWork {
		t.sessionCount++
	}
	count := t.sessionCount

	settings, err := t.store.Settings(ctx)
	if err != nil {
		t.logger.Error("failed to read settings on session completion", zap.Error(err))
		settings = models.DefaultSettings()
	}
	next := NextSession(completed.Type, count, settings.Timer())
	next.TaskID = completed.TaskID

	t.alarms.Clear(AlarmName)
	t.stopBroadcastLocked()
	t.state = models.StateIdle
	t.session = &next
	hook := t.onWorkComplete
	t.mu.Unlock()

	t.send(ctx, host.Push{Action: host.ActionHideTimer})

	if completed.Type == models.SessionWork {
		t.creditWork(ctx, completed, hook)
	}

	t.logger.Info("session completed",
		zap.String("type", string(completed.Type)),
		zap.String("next", string(next.Type)),
		zap.Int("nextMinutes", next.Duration))

	if settings.Notifications {
		id := t.notify(ctx, host.Notification{
			Title:   "Focuser",
			Message: completionMessage(next.Type),
			Buttons: []string{startButton(next.Type), "Skip"},
			Cue:     cueFor(completed.Type),
		})
		t.mu.Lock()
		t.lastNotification = id
		t.mu.Unlock()
	}

	if (next.Type.IsBreak() && settings.AutoStartBreaks) || (next.Type == models.SessionWork && settings.AutoStartWork) {
		if _, err := t.Start(ctx, 0, ""); err != nil {
			t.logger.Error("auto-start failed", zap.Error(err))
		}
	}
}

func (t *Timer) creditWork(ctx context.Context, s models.Session, hook WorkCompleteFunc) {
	if err := t.store.IncrementStatistic(ctx, models.StatSessionsCompleted, 1); err != nil {
		t.logger.Error("failed to update statistics", zap.Error(err))
	}
	if err := t.store.IncrementStatistic(ctx, models.StatTotalFocusTime, s.Duration); err != nil {
		t.logger.Error("failed to update statistics", zap.Error(err))
	}

	record := &models.PomodoroRecord{
		TaskID:    s.TaskID,
		Type:      s.Type,
		StartTime: time.UnixMilli(s.StartTime),
		EndTime:   t.clock.Now(),
		Duration:  int64(s.Duration) * 60,
	}
	if err := t.store.Database().SavePomodoroRecord(ctx, record); err != nil {
		t.logger.Error("failed to save pomodoro record", zap.Error(err))
	}

	if hook != nil {
		hook(ctx, s)
	}
}

// NextSession applies the cycle rule: after a work session comes a long
// break when completedWork is a multiple of the threshold, otherwise a
// short break; after any break comes work.
func NextSession(completed models.SessionType, completedWork int, cfg models.TimerSettings) models.Session {
	if completed != models.SessionWork {
		return models.Session{Type: models.SessionWork, Duration: cfg.WorkDuration, SuggestedNext: true}
	}
	if cfg.SessionsUntilLongBreak > 0 && completedWork%cfg.SessionsUntilLongBreak == 0 {
		return models.Session{Type: models.SessionLongBreak, Duration: cfg.LongBreakDuration, SuggestedNext: true}
	}
	return models.Session{Type: models.SessionBreak, Duration: cfg.BreakDuration, SuggestedNext: true}
}

func completionMessage(next models.SessionType) string {
	switch next {
	case models.SessionBreak:
		return "Great work! Time for a break."
	case models.SessionLongBreak:
		return "Long break time! You've earned it."
	}
	return "Break time is over. Ready to focus?"
}

func startButton(next models.SessionType) string {
	if next == models.SessionWork {
		return "Start Work"
	}
	return "Start Break"
}

func cueFor(completed models.SessionType) host.Cue {
	switch completed {
	case models.SessionWork:
		return host.CueWorkComplete
	case models.SessionLongBreak:
		return host.CueLongBreakComplete
	}
	return host.CueBreakComplete
}

// LastNotification is the id of the most recent completion notification.
func (t *Timer) LastNotification() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastNotification
}

func (t *Timer) State() models.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Timer) Status() models.TimerStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked(t.clock.Now())
}

func (t *Timer) statusLocked(now time.Time) models.TimerStatus {
	status := models.TimerStatus{
		IsRunning:    t.state != models.StateIdle,
		IsPaused:     t.state == models.StatePaused,
		SessionCount: t.sessionCount,
	}
	if t.session != nil {
		s := *t.session
		status.CurrentSession = &s
	}
	switch t.state {
	case models.StatePaused:
		if t.session.RemainingTime != nil {
			status.TimeRemaining = *t.session.RemainingTime
		}
	case models.StateRunning:
		status.TimeRemaining = t.session.EndTime - host.Millis(now)
		if status.TimeRemaining < 0 {
			status.TimeRemaining = 0
		}
	}
	return status
}

// Display renders the current status as the overlay payload.
func (t *Timer) Display() models.TimerDisplay {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayLocked(t.clock.Now())
}

func (t *Timer) displayLocked(now time.Time) models.TimerDisplay {
	status := t.statusLocked(now)
	label := "Session"
	if status.CurrentSession != nil {
		label = status.CurrentSession.Type.Label()
	}
	return models.TimerDisplay{
		SessionType:   label,
		TimeRemaining: FormatTime(status.TimeRemaining),
		Progress:      Progress(status),
		IsPaused:      status.IsPaused,
		IsRunning:     status.IsRunning,
	}
}

func (t *Timer) Settings(ctx context.Context) (models.TimerSettings, error) {
	settings, err := t.store.Settings(ctx)
	if err != nil {
		return models.TimerSettings{}, err
	}
	return settings.Timer(), nil
}

// FormatTime renders milliseconds as mm:ss.
func FormatTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSeconds := ms / 1000
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}

// Progress is elapsed/total as a percentage clamped to [0, 100].
func Progress(status models.TimerStatus) float64 {
	if status.CurrentSession == nil || !status.IsRunning || status.CurrentSession.Duration <= 0 {
		return 0
	}
	total := float64(status.CurrentSession.Duration) * float64(time.Minute/time.Millisecond)
	elapsed := total - float64(status.TimeRemaining)
	p := elapsed / total * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
