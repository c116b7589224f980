// Package blocking turns the blocked-site list into declarative redirect
// rules and decides whether a navigated URL is blocked.
package blocking

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"focuser/internal/host"
	"focuser/internal/models"
	"focuser/internal/storage"
)

// Rule ids are positional: a site at index i owns ids i+1 (subdomains)
// and i+1000 (bare domain).
const (
	subdomainRuleBase = 1
	bareRuleBase      = 1000
)

type Manager struct {
	toggleMu    sync.Mutex // serialises Toggle's read, persist and set
	mu          sync.Mutex
	store       *storage.Manager
	rules       host.RuleEngine
	tabs        host.Tabs
	notifier    host.Notifier
	clock       host.Clock
	logger      *zap.Logger
	blockedPage string
	isBlocking  bool
}

type Options struct {
	Store       *storage.Manager
	Rules       host.RuleEngine
	Tabs        host.Tabs
	Notifier    host.Notifier
	Clock       host.Clock
	Logger      *zap.Logger
	BlockedPage string
}

func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = host.SystemClock{}
	}
	return &Manager{
		store:       opts.Store,
		rules:       opts.Rules,
		tabs:        opts.Tabs,
		notifier:    opts.Notifier,
		clock:       opts.Clock,
		logger:      opts.Logger,
		blockedPage: opts.BlockedPage,
	}
}

// Init loads the enabled flag and registers the rules for it.
func (m *Manager) Init(ctx context.Context) error {
	settings, err := m.store.Settings(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.isBlocking = settings.BlockingEnabled
	m.mu.Unlock()

	m.UpdateRules(ctx)
	m.logger.Info("blocking manager initialized", zap.Bool("enabled", settings.BlockingEnabled))
	return nil
}

func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isBlocking
}

// Toggle flips the enabled flag, persists it and regenerates the rules.
func (m *Manager) Toggle(ctx context.Context) (bool, error) {
	m.toggleMu.Lock()
	defer m.toggleMu.Unlock()

	m.mu.Lock()
	enabled := !m.isBlocking
	m.mu.Unlock()

	if _, err := m.store.UpdateSettings(ctx, func(s *models.Settings) {
		s.BlockingEnabled = enabled
	}); err != nil {
		return !enabled, err
	}

	m.mu.Lock()
	m.isBlocking = enabled
	m.mu.Unlock()

	m.UpdateRules(ctx)
	m.logger.Info("blocking toggled", zap.Bool("enabled", enabled))
	return enabled, nil
}

func (m *Manager) UpdateBlockedSites(ctx context.Context, sites []string) error {
	if err := m.store.SetBlockedSites(ctx, sites); err != nil {
		return err
	}
	m.UpdateRules(ctx)
	m.logger.Info("blocked sites updated", zap.Strings("sites", sites))
	return nil
}

// AddBlockedSite appends site unless it is already listed.
func (m *Manager) AddBlockedSite(ctx context.Context, site string) error {
	site = strings.TrimSpace(site)
	if site == "" {
		return fmt.Errorf("site is required")
	}
	sites, err := m.store.BlockedSites(ctx)
	if err != nil {
		return err
	}
	for _, s := range sites {
		if s == site {
			return nil
		}
	}
	return m.UpdateBlockedSites(ctx, append(sites, site))
}

func (m *Manager) RemoveBlockedSite(ctx context.Context, site string) error {
	sites, err := m.store.BlockedSites(ctx)
	if err != nil {
		return err
	}
	for i, s := range sites {
		if s == site {
			return m.UpdateBlockedSites(ctx, append(sites[:i], sites[i+1:]...))
		}
	}
	return nil
}

// UpdateRules replaces every dynamic rule: all are removed, then the rules
// for the current list are added if blocking is enabled. Rule engine
// failures are logged, not returned.
func (m *Manager) UpdateRules(ctx context.Context) {
	existing, err := m.rules.DynamicRules(ctx)
	if err != nil {
		m.logger.Error("error updating blocking rules", zap.Error(err))
		return
	}
	if len(existing) > 0 {
		ids := make([]int, len(existing))
		for i, r := range existing {
			ids[i] = r.ID
		}
		if err := m.rules.UpdateDynamicRules(ctx, models.RuleUpdate{RemoveRuleIDs: ids}); err != nil {
			m.logger.Error("error updating blocking rules", zap.Error(err))
			return
		}
	}

	if !m.Enabled() {
		return
	}

	sites, err := m.store.BlockedSites(ctx)
	if err != nil {
		m.logger.Error("error updating blocking rules", zap.Error(err))
		return
	}
	rules := CreateRules(sites, m.blockedPage)
	if len(rules) == 0 {
		return
	}
	if err := m.rules.UpdateDynamicRules(ctx, models.RuleUpdate{AddRules: rules}); err != nil {
		m.logger.Error("error updating blocking rules", zap.Error(err))
	}
}

// SetupDefaultRules is run once on install.
func (m *Manager) SetupDefaultRules(ctx context.Context) {
	m.UpdateRules(ctx)
}

// CreateRules emits two redirect rules per site: one for any subdomain and
// one for the bare domain.
func CreateRules(sites []string, blockedPage string) []models.Rule {
	rules := make([]models.Rule, 0, 2*len(sites))
	for i, site := range sites {
		clean := CleanSite(site)
		rules = append(rules,
			redirectRule(i+subdomainRuleBase, "*://*."+clean+"/*", blockedPage),
			redirectRule(i+bareRuleBase, "*://"+clean+"/*", blockedPage),
		)
	}
	return rules
}

func redirectRule(id int, filter, blockedPage string) models.Rule {
	return models.Rule{
		ID:       id,
		Priority: 1,
		Action: models.RuleAction{
			Type:     models.RuleActionRedirect,
			Redirect: &models.RuleRedirect{ExtensionPath: blockedPage},
		},
		Condition: models.RuleCondition{
			URLFilter:     filter,
			ResourceTypes: []string{models.ResourceMainFrame},
		},
	}
}

// CleanSite strips a leading http(s):// and www. from a site pattern.
func CleanSite(site string) string {
	site = strings.TrimPrefix(site, "https://")
	site = strings.TrimPrefix(site, "http://")
	return strings.TrimPrefix(site, "www.")
}

// Hostname extracts the hostname of rawURL without a leading www.
func Hostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err == nil && u.Scheme == "" && u.Host == "" {
		// Scheme-less input such as "reddit.com/r/golang" parses as a path.
		u, err = url.Parse("http://" + rawURL)
	}
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("invalid url %q: no host", rawURL)
	}
	return strings.TrimPrefix(hostname, "www."), nil
}

// Matches reports whether hostname contains the cleaned form of any site.
// This is a substring test, so "face.com" also matches "interface.com".
func Matches(hostname string, sites []string) bool {
	for _, site := range sites {
		clean := CleanSite(site)
		if clean != "" && strings.Contains(hostname, clean) {
			return true
		}
	}
	return false
}

// CheckAndBlockURL decides whether a completed navigation to rawURL in
// tabID is blocked. A blocked navigation is counted and the tab is told to
// show its overlay.
func (m *Manager) CheckAndBlockURL(ctx context.Context, rawURL, tabID string) (bool, error) {
	if !m.Enabled() {
		return false, nil
	}

	hostname, err := Hostname(rawURL)
	if err != nil {
		return false, err
	}
	sites, err := m.store.BlockedSites(ctx)
	if err != nil {
		return false, err
	}
	if !Matches(hostname, sites) {
		return false, nil
	}

	allowed, err := m.temporarilyAllowed(ctx, hostname)
	if err != nil {
		return false, err
	}
	if allowed {
		m.logger.Info("temporarily allowed access", zap.String("url", rawURL))
		return false, nil
	}

	if err := m.store.IncrementStatistic(ctx, models.StatSitesBlocked, 1); err != nil {
		m.logger.Warn("failed to count blocked site", zap.Error(err))
	}
	m.logger.Info("blocked access", zap.String("url", rawURL))

	if tabID != "" && m.tabs != nil {
		_ = m.tabs.SendMessage(ctx, tabID, host.Push{Action: host.ActionBlockSite})
	}
	m.notifyBlocked(ctx, hostname)
	return true, nil
}

// temporarilyAllowed consults the bypass map. Expired entries found along
// the way are swept.
func (m *Manager) temporarilyAllowed(ctx context.Context, hostname string) (bool, error) {
	settings, err := m.store.Settings(ctx)
	if err != nil {
		return false, err
	}
	now := host.Millis(m.clock.Now())

	expiry, ok := settings.TemporaryUnblocks[hostname]
	if ok && expiry > now {
		return true, nil
	}
	if ok {
		if err := m.CleanupExpiredUnblocks(ctx); err != nil {
			m.logger.Warn("failed to sweep expired unblocks", zap.Error(err))
		}
	}
	return false, nil
}

// TemporaryUnblock allows rawURL's hostname for duration and tells the tab
// to drop its overlay.
func (m *Manager) TemporaryUnblock(ctx context.Context, rawURL string, duration time.Duration, tabID string) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, fmt.Errorf("unblock duration must be positive")
	}
	hostname, err := Hostname(rawURL)
	if err != nil {
		return time.Time{}, err
	}
	expires := m.clock.Now().Add(duration)

	_, err = m.store.UpdateSettings(ctx, func(s *models.Settings) {
		if s.TemporaryUnblocks == nil {
			s.TemporaryUnblocks = make(map[string]int64)
		}
		s.TemporaryUnblocks[hostname] = host.Millis(expires)
	})
	if err != nil {
		return time.Time{}, err
	}

	if err := m.CleanupExpiredUnblocks(ctx); err != nil {
		m.logger.Warn("failed to sweep expired unblocks", zap.Error(err))
	}
	m.logger.Info("temporarily unblocked",
		zap.String("hostname", hostname),
		zap.Duration("duration", duration))

	if tabID != "" && m.tabs != nil {
		_ = m.tabs.SendMessage(ctx, tabID, host.Push{Action: host.ActionUnblockSite})
	}
	return expires, nil
}

func (m *Manager) CleanupExpiredUnblocks(ctx context.Context) error {
	settings, err := m.store.Settings(ctx)
	if err != nil {
		return err
	}
	now := host.Millis(m.clock.Now())

	expired := false
	for _, expiry := range settings.TemporaryUnblocks {
		if expiry <= now {
			expired = true
			break
		}
	}
	if !expired {
		return nil
	}

	_, err = m.store.UpdateSettings(ctx, func(s *models.Settings) {
		for hostname, expiry := range s.TemporaryUnblocks {
			if expiry <= now {
				delete(s.TemporaryUnblocks, hostname)
			}
		}
	})
	return err
}

func (m *Manager) Status(ctx context.Context) (models.BlockingStatus, error) {
	sites, err := m.store.BlockedSites(ctx)
	if err != nil {
		return models.BlockingStatus{}, err
	}
	settings, err := m.store.Settings(ctx)
	if err != nil {
		return models.BlockingStatus{}, err
	}
	return models.BlockingStatus{
		Enabled:      m.Enabled(),
		BlockedSites: sites,
		StrictMode:   settings.StrictMode,
	}, nil
}

func (m *Manager) notifyBlocked(ctx context.Context, hostname string) {
	if m.notifier == nil {
		return
	}
	settings, err := m.store.Settings(ctx)
	if err != nil || !settings.BlockingNotifications {
		return
	}
	if _, err := m.notifier.Notify(ctx, host.Notification{
		Title:   "Focuser",
		Message: fmt.Sprintf("Blocked %s. Stay focused!", hostname),
	}); err != nil {
		m.logger.Warn("blocked-site notification failed", zap.Error(err))
	}
}
