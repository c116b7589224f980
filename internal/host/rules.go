package host

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"focuser/internal/models"
)

// MemoryRules is an in-process declarative rule engine. Rules are
// evaluated against main-frame navigations by Match.
type MemoryRules struct {
	mu       sync.RWMutex
	rules    map[int]models.Rule
	compiled map[int]*regexp.Regexp
}

func NewMemoryRules() *MemoryRules {
	return &MemoryRules{
		rules:    make(map[int]models.Rule),
		compiled: make(map[int]*regexp.Regexp),
	}
}

func (r *MemoryRules) DynamicRules(ctx context.Context) ([]models.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]models.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules, nil
}

// UpdateDynamicRules removes then adds, atomically. Adding a rule whose id
// is still registered fails the whole update.
func (r *MemoryRules) UpdateDynamicRules(ctx context.Context, update models.RuleUpdate) error {
	compiled := make(map[int]*regexp.Regexp, len(update.AddRules))
	for _, rule := range update.AddRules {
		re, err := compileURLFilter(rule.Condition.URLFilter)
		if err != nil {
			return fmt.Errorf("rule %d: %w", rule.ID, err)
		}
		compiled[rule.ID] = re
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removing := make(map[int]bool, len(update.RemoveRuleIDs))
	for _, id := range update.RemoveRuleIDs {
		removing[id] = true
	}
	seen := make(map[int]bool, len(update.AddRules))
	for _, rule := range update.AddRules {
		if _, exists := r.rules[rule.ID]; (exists && !removing[rule.ID]) || seen[rule.ID] {
			return fmt.Errorf("rule with id %d already exists", rule.ID)
		}
		seen[rule.ID] = true
	}

	for id := range removing {
		delete(r.rules, id)
		delete(r.compiled, id)
	}
	for _, rule := range update.AddRules {
		r.rules[rule.ID] = rule
		r.compiled[rule.ID] = compiled[rule.ID]
	}
	return nil
}

// Match returns the highest-priority rule matching a main-frame navigation
// to rawURL. Ties go to the lowest id.
func (r *MemoryRules) Match(rawURL string) (models.Rule, bool) {
	target, ok := normalizeURL(rawURL)
	if !ok {
		return models.Rule{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var best models.Rule
	found := false
	for id, rule := range r.rules {
		if !appliesToMainFrame(rule) || !r.compiled[id].MatchString(target) {
			continue
		}
		if !found || rule.Priority > best.Priority || (rule.Priority == best.Priority && rule.ID < best.ID) {
			best = rule
			found = true
		}
	}
	return best, found
}

func appliesToMainFrame(rule models.Rule) bool {
	if len(rule.Condition.ResourceTypes) == 0 {
		return true
	}
	for _, t := range rule.Condition.ResourceTypes {
		if t == models.ResourceMainFrame {
			return true
		}
	}
	return false
}

// compileURLFilter turns a '*' wildcard filter into an anchored regexp.
func compileURLFilter(filter string) (*regexp.Regexp, error) {
	if filter == "" {
		return nil, fmt.Errorf("empty url filter")
	}
	parts := strings.Split(filter, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

func normalizeURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	s := u.Scheme + "://" + strings.ToLower(u.Host) + path
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}
	return s, true
}
