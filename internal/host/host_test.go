package host_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focuser/internal/host"
	"focuser/internal/host/hosttest"
	"focuser/internal/models"
)

func TestAlarmsFireOnce(t *testing.T) {
	clock := hosttest.NewFakeClock(time.Unix(0, 0))
	alarms := host.NewAlarms(clock)

	var fired []string
	alarms.OnAlarm(func(a host.Alarm) { fired = append(fired, a.Name) })

	a := alarms.Create("pomodoroTimer", time.Minute)
	assert.Equal(t, time.Unix(60, 0), a.ScheduledTime)

	clock.Advance(59 * time.Second)
	assert.Empty(t, fired)
	clock.Advance(time.Second)
	assert.Equal(t, []string{"pomodoroTimer"}, fired)

	clock.Advance(time.Hour)
	assert.Len(t, fired, 1)
	assert.False(t, alarms.Clear("pomodoroTimer"), "a fired alarm is no longer pending")
}

func TestAlarmsReplaceAndClear(t *testing.T) {
	clock := hosttest.NewFakeClock(time.Unix(0, 0))
	alarms := host.NewAlarms(clock)

	count := 0
	alarms.OnAlarm(func(host.Alarm) { count++ })

	alarms.Create("a", time.Minute)
	alarms.Create("a", 2*time.Minute)
	clock.Advance(90 * time.Second)
	assert.Zero(t, count)
	clock.Advance(time.Minute)
	assert.Equal(t, 1, count)

	alarms.Create("b", time.Minute)
	assert.True(t, alarms.Clear("b"))
	assert.False(t, alarms.Clear("b"))
	clock.Advance(time.Hour)
	assert.Equal(t, 1, count)
}

func redirectRule(id int, filter string) models.Rule {
	return models.Rule{
		ID:       id,
		Priority: 1,
		Action: models.RuleAction{
			Type:     models.RuleActionRedirect,
			Redirect: &models.RuleRedirect{ExtensionPath: "/blocked/blocked.html"},
		},
		Condition: models.RuleCondition{
			URLFilter:     filter,
			ResourceTypes: []string{models.ResourceMainFrame},
		},
	}
}

func TestMemoryRulesMatch(t *testing.T) {
	ctx := context.Background()
	rules := host.NewMemoryRules()
	require.NoError(t, rules.UpdateDynamicRules(ctx, models.RuleUpdate{
		AddRules: []models.Rule{
			redirectRule(1, "*://*.reddit.com/*"),
			redirectRule(1000, "*://reddit.com/*"),
		},
	}))

	tests := []struct {
		url    string
		wantID int
		match  bool
	}{
		{"https://reddit.com", 1000, true},
		{"https://www.reddit.com/r/golang", 1, true},
		{"http://old.reddit.com/", 1, true},
		{"https://notreddit.com/", 0, false},
		{"https://example.com/?q=reddit.com/", 0, false},
		{"not a url", 0, false},
	}
	for _, tt := range tests {
		rule, ok := rules.Match(tt.url)
		assert.Equal(t, tt.match, ok, tt.url)
		if tt.match {
			assert.Equal(t, tt.wantID, rule.ID, tt.url)
		}
	}
}

func TestMemoryRulesUpdate(t *testing.T) {
	ctx := context.Background()
	rules := host.NewMemoryRules()
	require.NoError(t, rules.UpdateDynamicRules(ctx, models.RuleUpdate{
		AddRules: []models.Rule{redirectRule(1, "*://a.com/*")},
	}))

	err := rules.UpdateDynamicRules(ctx, models.RuleUpdate{
		AddRules: []models.Rule{redirectRule(1, "*://b.com/*")},
	})
	assert.Error(t, err)

	require.NoError(t, rules.UpdateDynamicRules(ctx, models.RuleUpdate{
		RemoveRuleIDs: []int{1},
		AddRules:      []models.Rule{redirectRule(1, "*://b.com/*")},
	}))
	list, err := rules.DynamicRules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "*://b.com/*", list[0].Condition.URLFilter)
}

func TestBroadcastIgnoresFailedTabs(t *testing.T) {
	tabs := hosttest.NewTabs(host.Tab{ID: "1"}, host.Tab{ID: "2"}, host.Tab{ID: "3"})
	tabs.Broken["2"] = true

	require.NoError(t, host.Broadcast(context.Background(), tabs, host.Push{Action: host.ActionHideTimer}))
	assert.Equal(t, []string{host.ActionHideTimer}, tabs.Actions("1"))
	assert.Empty(t, tabs.Actions("2"))
	assert.Equal(t, []string{host.ActionHideTimer}, tabs.Actions("3"))
}

func TestTabGroupRoutes(t *testing.T) {
	ctx := context.Background()
	agents := hosttest.NewTabs(host.Tab{ID: "7", URL: "https://a.com/"})
	browser := hosttest.NewTabs(host.Tab{ID: "T1", URL: "https://b.com/"})

	group := host.NewTabGroup()
	group.Add("agent", agents)
	group.Add("rod", browser)

	list, err := group.Query(ctx)
	require.NoError(t, err)
	assert.Equal(t, []host.Tab{
		{ID: "agent:7", URL: "https://a.com/"},
		{ID: "rod:T1", URL: "https://b.com/"},
	}, list)

	require.NoError(t, group.SendMessage(ctx, "rod:T1", host.Push{Action: host.ActionBlockSite}))
	assert.Equal(t, []string{host.ActionBlockSite}, browser.Actions("T1"))

	require.NoError(t, group.Redirect(ctx, "agent:7", "http://localhost/blocked"))
	assert.Equal(t, "http://localhost/blocked", agents.RedirectedTo("7"))

	assert.ErrorIs(t, group.SendMessage(ctx, "nope:1", host.Push{}), host.ErrNoSuchTab)
	assert.ErrorIs(t, group.SendMessage(ctx, "bare", host.Push{}), host.ErrNoSuchTab)
}
