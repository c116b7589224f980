// Package browser drives a Chromium instance over the DevTools protocol.
// Its pages act as tabs: pushes are rendered by an injected overlay and
// navigations are reported back to the daemon.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"focuser/internal/host"
)

var ErrNotConnected = errors.New("browser not connected")

type Config struct {
	// ControlURL is a DevTools websocket URL or host:port. Empty launches
	// a local browser.
	ControlURL string
	Headless   bool
}

// NavigationFunc receives a page's new URL once it changes.
type NavigationFunc func(ctx context.Context, tabID, url string)

type navigation struct {
	tabID string
	url   string
}

type Driver struct {
	cfg        Config
	logger     *zap.Logger
	onNavigate NavigationFunc

	mu       sync.RWMutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	tracker  *urlTracker
}

func New(cfg Config, onNavigate NavigationFunc, logger *zap.Logger) *Driver {
	return &Driver{
		cfg:        cfg,
		logger:     logger,
		onNavigate: onNavigate,
		tracker:    newURLTracker(),
	}
}

// Connect attaches to the configured browser, launching one if no control
// URL is set.
func (d *Driver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser != nil {
		return nil
	}

	controlURL, err := d.resolveControlURL()
	if err != nil {
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		d.killLauncherLocked()
		return fmt.Errorf("connect to browser: %w", err)
	}
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		_ = browser.Close()
		d.killLauncherLocked()
		return fmt.Errorf("discover targets: %w", err)
	}

	d.browser = browser
	d.logger.Info("browser connected", zap.String("controlURL", controlURL))
	return nil
}

func (d *Driver) resolveControlURL() (string, error) {
	if u := d.cfg.ControlURL; u != "" {
		if strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://") {
			return u, nil
		}
		resolved, err := launcher.ResolveURL(u)
		if err != nil {
			return "", fmt.Errorf("resolve control url %q: %w", u, err)
		}
		return resolved, nil
	}

	l := launcher.New().Headless(d.cfg.Headless)
	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	d.launcher = l
	return u, nil
}

func (d *Driver) killLauncherLocked() {
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher = nil
	}
}

// Run connects and reports navigations until ctx is cancelled, then
// disconnects.
func (d *Driver) Run(ctx context.Context) error {
	if err := d.Connect(ctx); err != nil {
		return err
	}
	defer d.Close()

	browser, err := d.current()
	if err != nil {
		return err
	}

	navs := make(chan navigation, 64)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(navs)
		wait := browser.Context(gctx).EachEvent(
			func(ev *proto.TargetTargetInfoChanged) {
				d.observe(gctx, ev.TargetInfo, navs)
			},
			func(ev *proto.TargetTargetCreated) {
				d.observe(gctx, ev.TargetInfo, navs)
			},
			func(ev *proto.TargetTargetDestroyed) {
				d.tracker.forget(string(ev.TargetID))
			},
		)
		wait()
		return nil
	})

	g.Go(func() error {
		for nav := range navs {
			if d.onNavigate != nil {
				d.onNavigate(gctx, nav.tabID, nav.url)
			}
		}
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (d *Driver) observe(ctx context.Context, info *proto.TargetTargetInfo, navs chan<- navigation) {
	if info == nil || info.Type != proto.TargetTargetInfoTypePage {
		return
	}
	id := string(info.TargetID)
	if !d.tracker.changed(id, info.URL) || !isWebURL(info.URL) {
		return
	}
	select {
	case navs <- navigation{tabID: id, url: info.URL}:
	case <-ctx.Done():
	default:
		d.logger.Warn("dropping navigation event", zap.String("tab", id), zap.String("url", info.URL))
	}
}

func isWebURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func (d *Driver) current() (*rod.Browser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.browser == nil {
		return nil, ErrNotConnected
	}
	return d.browser, nil
}

func (d *Driver) page(tabID string) (*rod.Page, error) {
	browser, err := d.current()
	if err != nil {
		return nil, err
	}
	page, err := browser.PageFromTarget(proto.TargetTargetID(tabID))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", host.ErrNoSuchTab, tabID, err)
	}
	return page, nil
}

// Query lists the open pages.
func (d *Driver) Query(ctx context.Context) ([]host.Tab, error) {
	browser, err := d.current()
	if err != nil {
		return nil, err
	}
	pages, err := browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	tabs := make([]host.Tab, 0, len(pages))
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		tabs = append(tabs, host.Tab{ID: string(p.TargetID), URL: info.URL})
	}
	return tabs, nil
}

// SendMessage renders push in the page through the overlay script.
func (d *Driver) SendMessage(ctx context.Context, tabID string, push host.Push) error {
	page, err := d.page(tabID)
	if err != nil {
		return err
	}
	_, err = page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      overlayScript,
		JSArgs:  []interface{}{push.Action, push.Data},
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("deliver %s to %s: %w", push.Action, tabID, err)
	}
	return nil
}

func (d *Driver) Redirect(ctx context.Context, tabID, url string) error {
	page, err := d.page(tabID)
	if err != nil {
		return err
	}
	// Seed the tracker so the redirect is not reported as a navigation.
	d.tracker.changed(tabID, url)
	if err := page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("redirect %s: %w", tabID, err)
	}
	return nil
}

// Close disconnects and kills a launched browser.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.browser != nil {
		if d.launcher != nil {
			err = d.browser.Close()
		}
		d.browser = nil
	}
	d.killLauncherLocked()
	return err
}

// urlTracker remembers the last URL seen per page.
type urlTracker struct {
	mu   sync.Mutex
	urls map[string]string
}

func newURLTracker() *urlTracker {
	return &urlTracker{urls: make(map[string]string)}
}

// changed records url for id and reports whether it differs from the
// previous value.
func (t *urlTracker) changed(id, url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.urls[id] == url {
		return false
	}
	t.urls[id] = url
	return true
}

func (t *urlTracker) forget(id string) {
	t.mu.Lock()
	delete(t.urls, id)
	t.mu.Unlock()
}
