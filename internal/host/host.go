// Package host models the runtime services the background controller
// depends on: scheduled alarms, declarative redirect rules, user
// notifications and the set of open page contexts (tabs).
package host

import (
	"context"
	"errors"

	"focuser/internal/models"
)

// Push actions sent from the background to page agents.
const (
	ActionShowTimer   = "showTimer"
	ActionUpdateTimer = "updateTimer"
	ActionHideTimer   = "hideTimer"
	ActionBlockSite   = "blockSite"
	ActionUnblockSite = "unblockSite"
)

var ErrNoSuchTab = errors.New("no such tab")

// Push is a one-way message to a page agent.
type Push struct {
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

type Tab struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Tabs enumerates open page contexts and delivers pushes to them.
type Tabs interface {
	Query(ctx context.Context) ([]Tab, error)
	SendMessage(ctx context.Context, tabID string, push Push) error
}

// Redirector is implemented by tab providers that can navigate a tab.
type Redirector interface {
	Redirect(ctx context.Context, tabID, url string) error
}

type RuleEngine interface {
	DynamicRules(ctx context.Context) ([]models.Rule, error)
	UpdateDynamicRules(ctx context.Context, update models.RuleUpdate) error
}

type Notification struct {
	Title   string   `json:"title"`
	Message string   `json:"message"`
	Buttons []string `json:"buttons,omitempty"`
	// Cue selects a sound for notifiers that play one.
	Cue Cue `json:"-"`
}

type Cue int

const (
	CueNone Cue = iota
	CueWorkComplete
	CueBreakComplete
	CueLongBreakComplete
)

type Notifier interface {
	Notify(ctx context.Context, n Notification) (id string, err error)
}

// Broadcast sends push to every tab. Failures for individual tabs are
// ignored; only a failure to list tabs is returned.
func Broadcast(ctx context.Context, tabs Tabs, push Push) error {
	list, err := tabs.Query(ctx)
	if err != nil {
		return err
	}
	for _, tab := range list {
		_ = tabs.SendMessage(ctx, tab.ID, push)
	}
	return nil
}
