package host

import (
	"sync"
	"time"
)

type Alarm struct {
	Name          string
	ScheduledTime time.Time
}

// Alarms is a registry of named one-shot alarms. Creating an alarm with an
// existing name replaces it.
type Alarms struct {
	mu      sync.Mutex
	clock   Clock
	pending map[string]*pendingAlarm
	handler func(Alarm)
}

type pendingAlarm struct {
	alarm Alarm
	timer Timer
}

func NewAlarms(clock Clock) *Alarms {
	return &Alarms{
		clock:   clock,
		pending: make(map[string]*pendingAlarm),
	}
}

// OnAlarm sets the listener invoked when an alarm fires. It runs on the
// clock's goroutine.
func (a *Alarms) OnAlarm(handler func(Alarm)) {
	a.mu.Lock()
	a.handler = handler
	a.mu.Unlock()
}

func (a *Alarms) Create(name string, delay time.Duration) Alarm {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.pending[name]; ok {
		p.timer.Stop()
	}
	p := &pendingAlarm{alarm: Alarm{Name: name, ScheduledTime: a.clock.Now().Add(delay)}}
	p.timer = a.clock.AfterFunc(delay, func() { a.fire(name, p) })
	a.pending[name] = p
	return p.alarm
}

// Clear cancels the named alarm and reports whether one was pending.
func (a *Alarms) Clear(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[name]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(a.pending, name)
	return true
}

func (a *Alarms) fire(name string, p *pendingAlarm) {
	a.mu.Lock()
	// A replaced or cleared alarm may still fire if Stop lost the race.
	if a.pending[name] != p {
		a.mu.Unlock()
		return
	}
	delete(a.pending, name)
	handler := a.handler
	a.mu.Unlock()

	if handler != nil {
		handler(p.alarm)
	}
}
