package host

import (
	"context"
	"fmt"
	"strings"
)

// TabGroup merges several tab providers. Tab ids are prefixed with the
// provider name so messages can be routed back.
type TabGroup struct {
	names     []string
	providers map[string]Tabs
}

func NewTabGroup() *TabGroup {
	return &TabGroup{providers: make(map[string]Tabs)}
}

func (g *TabGroup) Add(name string, tabs Tabs) {
	if _, ok := g.providers[name]; !ok {
		g.names = append(g.names, name)
	}
	g.providers[name] = tabs
}

// Query lists tabs from every provider. A provider that fails is skipped.
func (g *TabGroup) Query(ctx context.Context) ([]Tab, error) {
	var all []Tab
	var firstErr error
	ok := 0
	for _, name := range g.names {
		tabs, err := g.providers[name].Query(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
			continue
		}
		ok++
		for _, t := range tabs {
			all = append(all, Tab{ID: name + ":" + t.ID, URL: t.URL})
		}
	}
	if ok == 0 && firstErr != nil {
		return nil, firstErr
	}
	return all, nil
}

func (g *TabGroup) SendMessage(ctx context.Context, tabID string, push Push) error {
	provider, id, err := g.route(tabID)
	if err != nil {
		return err
	}
	return provider.SendMessage(ctx, id, push)
}

func (g *TabGroup) Redirect(ctx context.Context, tabID, url string) error {
	provider, id, err := g.route(tabID)
	if err != nil {
		return err
	}
	r, ok := provider.(Redirector)
	if !ok {
		return fmt.Errorf("tab %s cannot be redirected", tabID)
	}
	return r.Redirect(ctx, id, url)
}

// TabID builds the group-level id for a provider-local tab id.
func (g *TabGroup) TabID(provider, id string) string {
	return provider + ":" + id
}

func (g *TabGroup) route(tabID string) (Tabs, string, error) {
	name, id, found := strings.Cut(tabID, ":")
	if !found {
		return nil, "", fmt.Errorf("%w: %s", ErrNoSuchTab, tabID)
	}
	provider, ok := g.providers[name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNoSuchTab, tabID)
	}
	return provider, id, nil
}
