// Package hosttest provides in-memory host services for tests.
package hosttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"focuser/internal/host"
)

// FakeClock only moves when Advance is called. Due callbacks run on the
// goroutine calling Advance, in deadline order.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *FakeClock
	due     time.Time
	seq     int
	f       func()
	stopped bool
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) host.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, due: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every timer that comes due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.stopped = true
		if next.due.After(c.now) {
			c.now = next.due
		}
		c.mu.Unlock()
		next.f()
	}
}

// Pending counts timers that have not fired or been stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (c *FakeClock) nextDueLocked(target time.Time) *fakeTimer {
	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].due.Equal(c.timers[j].due) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].due.Before(c.timers[j].due)
	})
	if len(c.timers) == 0 || c.timers[0].due.After(target) {
		return nil
	}
	return c.timers[0]
}

var ErrTabClosed = errors.New("tab closed")

// Tabs records pushes per tab. Tabs listed in Broken fail delivery.
type Tabs struct {
	mu        sync.Mutex
	tabs      []host.Tab
	Broken    map[string]bool
	messages  map[string][]host.Push
	redirects map[string]string
}

func NewTabs(tabs ...host.Tab) *Tabs {
	return &Tabs{
		tabs:      tabs,
		Broken:    make(map[string]bool),
		messages:  make(map[string][]host.Push),
		redirects: make(map[string]string),
	}
}

func (t *Tabs) Query(ctx context.Context) ([]host.Tab, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]host.Tab(nil), t.tabs...), nil
}

func (t *Tabs) SendMessage(ctx context.Context, tabID string, push host.Push) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Broken[tabID] {
		return ErrTabClosed
	}
	t.messages[tabID] = append(t.messages[tabID], push)
	return nil
}

func (t *Tabs) Redirect(ctx context.Context, tabID, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.redirects[tabID] = url
	return nil
}

func (t *Tabs) Messages(tabID string) []host.Push {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]host.Push(nil), t.messages[tabID]...)
}

// Actions lists the push actions delivered to tabID in order.
func (t *Tabs) Actions(tabID string) []string {
	var actions []string
	for _, p := range t.Messages(tabID) {
		actions = append(actions, p.Action)
	}
	return actions
}

func (t *Tabs) RedirectedTo(tabID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.redirects[tabID]
}

func (t *Tabs) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = make(map[string][]host.Push)
}

type Notifier struct {
	mu    sync.Mutex
	Notes []host.Notification
}

func (n *Notifier) Notify(ctx context.Context, note host.Notification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notes = append(n.Notes, note)
	return fmt.Sprintf("note-%d", len(n.Notes)), nil
}

func (n *Notifier) Last() (host.Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Notes) == 0 {
		return host.Notification{}, false
	}
	return n.Notes[len(n.Notes)-1], true
}

func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Notes)
}
