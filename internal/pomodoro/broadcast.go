package pomodoro

import (
	"context"

	"go.uber.org/zap"

	"focuser/internal/host"
	"focuser/internal/models"
)

// startBroadcastLocked schedules the periodic updateTimer push. Each start
// bumps the generation so callbacks from a cancelled schedule exit.
func (t *Timer) startBroadcastLocked() {
	t.stopBroadcastLocked()
	t.broadcastGen++
	gen := t.broadcastGen
	t.broadcast = t.clock.AfterFunc(t.interval, func() { t.tick(gen) })
}

func (t *Timer) stopBroadcastLocked() {
	if t.broadcast != nil {
		t.broadcast.Stop()
		t.broadcast = nil
	}
	t.broadcastGen++
}

func (t *Timer) tick(gen int) {
	t.mu.Lock()
	if gen != t.broadcastGen || t.state != models.StateRunning {
		t.mu.Unlock()
		return
	}
	display := t.displayLocked(t.clock.Now())
	t.broadcast = t.clock.AfterFunc(t.interval, func() { t.tick(gen) })
	t.mu.Unlock()

	t.send(context.Background(), host.Push{Action: host.ActionUpdateTimer, Data: display})
}

// send delivers push to every tab. Per-tab failures are ignored.
func (t *Timer) send(ctx context.Context, push host.Push) {
	if t.tabs == nil {
		return
	}
	if err := host.Broadcast(ctx, t.tabs, push); err != nil {
		t.logger.Warn("error broadcasting timer update", zap.String("action", push.Action), zap.Error(err))
	}
}

func (t *Timer) notify(ctx context.Context, note host.Notification) string {
	if t.notifier == nil {
		return ""
	}
	id, err := t.notifier.Notify(ctx, note)
	if err != nil {
		t.logger.Warn("notification failed", zap.Error(err))
		return ""
	}
	return id
}
