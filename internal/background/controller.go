// Package background is the daemon's coordinator. It owns the managers,
// routes bus messages to them and reacts to tab navigations.
package background

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"focuser/internal/blocking"
	"focuser/internal/bus"
	"focuser/internal/host"
	"focuser/internal/models"
	"focuser/internal/pomodoro"
	"focuser/internal/storage"
	"focuser/internal/tasks"
)

const (
	defaultBypassDuration = 5 * time.Minute
	defaultHistoryLimit   = 50
)

// URLMatcher evaluates the registered redirect rules for a navigation.
type URLMatcher interface {
	Match(rawURL string) (models.Rule, bool)
}

type Controller struct {
	store    *storage.Manager
	blocking *blocking.Manager
	timer    *pomodoro.Timer
	tasks    *tasks.Manager
	matcher  URLMatcher
	tabs     host.Tabs
	clock    host.Clock
	logger   *zap.Logger
	router   *bus.Router

	bypassDuration time.Duration
	baseURL        string
}

type Options struct {
	Store    *storage.Manager
	Blocking *blocking.Manager
	Timer    *pomodoro.Timer
	Tasks    *tasks.Manager
	// Matcher and Tabs are optional. Without a Matcher, or when Tabs cannot
	// redirect, blocked navigations are only reported to the page agent.
	Matcher URLMatcher
	Tabs    host.Tabs
	Clock   host.Clock
	Logger  *zap.Logger

	// BypassDuration applies to temporaryUnblock requests without a duration.
	BypassDuration time.Duration
	// BaseURL prefixes the blocked page path of redirect rules.
	BaseURL string
}

func NewController(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = host.SystemClock{}
	}
	if opts.BypassDuration <= 0 {
		opts.BypassDuration = defaultBypassDuration
	}
	c := &Controller{
		store:          opts.Store,
		blocking:       opts.Blocking,
		timer:          opts.Timer,
		tasks:          opts.Tasks,
		matcher:        opts.Matcher,
		tabs:           opts.Tabs,
		clock:          opts.Clock,
		logger:         opts.Logger,
		router:         bus.NewRouter(),
		bypassDuration: opts.BypassDuration,
		baseURL:        strings.TrimSuffix(opts.BaseURL, "/"),
	}
	c.registerHandlers()
	c.timer.OnWorkComplete(c.creditTask)
	return c
}

// Install writes the default document and the default rules. It is safe to
// run on every start since defaults never overwrite existing keys.
func (c *Controller) Install(ctx context.Context) error {
	if err := c.store.SetDefaults(ctx); err != nil {
		return err
	}
	c.blocking.SetupDefaultRules(ctx)
	c.logger.Info("focuser installed")
	return nil
}

// Start loads persisted blocking state into the rule engine.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.blocking.Init(ctx); err != nil {
		return err
	}
	if err := c.blocking.CleanupExpiredUnblocks(ctx); err != nil {
		c.logger.Warn("failed to sweep expired unblocks", zap.Error(err))
	}
	c.logger.Info("background controller started")
	return nil
}

// Stop cancels the running session, if any.
func (c *Controller) Stop(ctx context.Context) {
	if c.timer.State() != models.StateIdle {
		c.timer.Stop(ctx)
	}
}

func (c *Controller) Dispatch(ctx context.Context, msg bus.Message) bus.Response {
	resp := c.router.Dispatch(ctx, msg)
	if !resp.Success {
		c.logger.Debug("message failed", zap.String("action", msg.Action), zap.String("error", resp.Error))
	}
	return resp
}

// Actions lists every action Dispatch understands.
func (c *Controller) Actions() []string {
	return c.router.Actions()
}

func (c *Controller) Timer() *pomodoro.Timer {
	return c.timer
}

// HandleNavigation is called when a tab finishes loading rawURL. A blocked
// navigation is sent to the blocked page when a rule matches and the tab
// can be redirected.
func (c *Controller) HandleNavigation(ctx context.Context, tabID, rawURL string) (bool, error) {
	if rawURL == "" || c.isBlockedPage(rawURL) {
		return false, nil
	}
	blocked, err := c.blocking.CheckAndBlockURL(ctx, rawURL, tabID)
	if err != nil || !blocked {
		return blocked, err
	}
	c.redirect(ctx, tabID, rawURL)
	return true, nil
}

func (c *Controller) redirect(ctx context.Context, tabID, rawURL string) {
	if c.matcher == nil || tabID == "" {
		return
	}
	redirector, ok := c.tabs.(host.Redirector)
	if !ok {
		return
	}
	rule, ok := c.matcher.Match(rawURL)
	if !ok || rule.Action.Redirect == nil {
		return
	}
	target := c.baseURL + rule.Action.Redirect.ExtensionPath + "?url=" + url.QueryEscape(rawURL)
	if err := redirector.Redirect(ctx, tabID, target); err != nil {
		c.logger.Warn("failed to redirect blocked tab", zap.String("tab", tabID), zap.Error(err))
	}
}

func (c *Controller) isBlockedPage(rawURL string) bool {
	return c.baseURL != "" && strings.HasPrefix(rawURL, c.baseURL+"/")
}

// creditTask adds a completed work session to its linked task.
func (c *Controller) creditTask(ctx context.Context, session models.Session) {
	if session.TaskID == "" {
		return
	}
	if _, err := c.tasks.AddPomodoroSession(ctx, session.TaskID, session.Duration); err != nil {
		c.logger.Warn("failed to credit task", zap.String("task", session.TaskID), zap.Error(err))
	}
}
