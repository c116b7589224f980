package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"focuser/internal/bus"
	"focuser/internal/config"
	"focuser/internal/host"
	"focuser/internal/host/hosttest"
	"focuser/internal/models"
)

// startDaemon wires the full daemon on a temp database and points the
// commands at it.
func startDaemon(t *testing.T) *daemon {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "focuser.db")

	d, err := newDaemon(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	srv := httptest.NewServer(d.server.Handler())
	t.Cleanup(func() {
		d.controller.Stop(context.Background())
		srv.Close()
		d.close()
	})

	daemonAddr = srv.URL
	t.Cleanup(func() { daemonAddr = "" })
	return d
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	addr := daemonAddr
	resetFlags(rootCmd)
	daemonAddr = addr

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestStatusCommand(t *testing.T) {
	startDaemon(t)

	out := mustRun(t, "status")
	assert.Contains(t, out, "Blocking:  disabled (6 sites)")
	assert.Contains(t, out, "Timer:     idle")
	assert.Contains(t, out, "Tasks:     0 open, 0 total")
}

func TestBlockCommands(t *testing.T) {
	startDaemon(t)

	assert.Contains(t, mustRun(t, "block", "toggle"), "Blocking enabled")
	mustRun(t, "block", "add", "news.ycombinator.com")

	out := mustRun(t, "block", "list")
	assert.Contains(t, out, "news.ycombinator.com")
	assert.Contains(t, out, "blocking enabled")

	assert.Contains(t, mustRun(t, "block", "check", "https://news.ycombinator.com/item?id=1"), "is blocked")
	assert.Contains(t, mustRun(t, "block", "check", "https://golang.org/"), "is allowed")

	assert.Contains(t, mustRun(t, "block", "allow", "news.ycombinator.com", "--for", "10m"), "Allowed news.ycombinator.com")
	assert.Contains(t, mustRun(t, "block", "check", "https://news.ycombinator.com/"), "is allowed")

	mustRun(t, "block", "remove", "news.ycombinator.com")
	assert.NotContains(t, mustRun(t, "block", "list"), "news.ycombinator.com")
}

func TestTimerCommands(t *testing.T) {
	startDaemon(t)

	assert.Contains(t, mustRun(t, "timer", "start", "--minutes", "50"), "Started: Work Session (50 min)")
	assert.Contains(t, mustRun(t, "timer", "status"), "running, Work Session (50 min)")

	assert.Contains(t, mustRun(t, "timer", "pause"), "Paused")
	assert.Contains(t, mustRun(t, "timer", "status"), "paused")
	assert.Contains(t, mustRun(t, "timer", "resume"), "Resumed")

	assert.Contains(t, mustRun(t, "timer", "stop"), "Timer stopped")
	assert.Contains(t, mustRun(t, "timer", "status"), "idle")

	_, err := run(t, "timer", "resume")
	assert.Error(t, err)

	assert.Contains(t, mustRun(t, "timer", "skip"), "No session", "nothing is staged after a stop")
}

func TestTaskCommands(t *testing.T) {
	startDaemon(t)

	out := mustRun(t, "task", "add", "Write", "report", "--priority", "high", "--tags", "work, q3", "--estimate", "50")
	require.True(t, strings.HasPrefix(out, "Added "), out)
	id := strings.TrimSuffix(strings.Fields(out)[1], ":")

	mustRun(t, "task", "add", "Water plants", "--category", "home")

	out = mustRun(t, "task", "list", "--json", "--tag", "q3")
	var list []models.Task
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Write report", list[0].Title)
	assert.Equal(t, models.PriorityHigh, list[0].Priority)
	assert.Equal(t, []string{"work", "q3"}, list[0].Tags)
	require.NotNil(t, list[0].EstimatedTime)
	assert.Equal(t, 50, *list[0].EstimatedTime)

	out = mustRun(t, "task", "list", "--sort", "title", "--asc")
	assert.Less(t, strings.Index(out, "Water plants"), strings.Index(out, "Write report"))

	assert.Contains(t, mustRun(t, "task", "update", id, "--title", "Write Q3 report"), "Updated "+id+": Write Q3 report (pending)")
	_, err := run(t, "task", "update", id)
	assert.Error(t, err, "an update without flags is rejected")
	_, err = run(t, "task", "update", id, "--status", "done")
	assert.Error(t, err)

	mustRun(t, "task", "start", id)
	assert.Contains(t, mustRun(t, "task", "done", id), "Completed "+id)

	var stats models.TaskStats
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "task", "stats")), &stats))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Completed)

	file := filepath.Join(t.TempDir(), "tasks.json")
	mustRun(t, "task", "export", file)
	assert.Contains(t, mustRun(t, "task", "import", file), "Imported 2 tasks")

	mustRun(t, "task", "delete", id)
	_, err = run(t, "task", "done", id)
	assert.Error(t, err)
}

func TestSettingsCommands(t *testing.T) {
	startDaemon(t)

	mustRun(t, "settings", "set", "pomodoroWorkDuration=50", "autoStartBreaks=true", "defaultTaskCategory=work")
	assert.Equal(t, "50\n", mustRun(t, "settings", "get", "pomodoroWorkDuration"))
	assert.Equal(t, "true\n", mustRun(t, "settings", "get", "autoStartBreaks"))
	assert.Equal(t, "\"work\"\n", mustRun(t, "settings", "get", "defaultTaskCategory"))

	_, err := run(t, "settings", "get", "noSuchKey")
	assert.Error(t, err)
	_, err = run(t, "settings", "set", "novalue")
	assert.Error(t, err)

	assert.Contains(t, mustRun(t, "timer", "start"), "(50 min)")
}

func TestStatsAndDataCommands(t *testing.T) {
	startDaemon(t)

	out := mustRun(t, "stats", "show")
	assert.Contains(t, out, "Sessions completed: 0")
	assert.Contains(t, mustRun(t, "stats", "history"), "No sessions recorded.")
	out = mustRun(t, "stats", "set", "tasksCompleted=4", "totalFocusTime=75")
	assert.Contains(t, out, "Tasks completed:    4")
	assert.Contains(t, out, "Focus time:         1h 15m")
	_, err := run(t, "stats", "set", "tasksCompleted=many")
	assert.Error(t, err)
	_, err = run(t, "stats", "set", "bogus=1")
	assert.Error(t, err)
	mustRun(t, "stats", "reset")
	assert.Contains(t, mustRun(t, "stats", "show"), "Tasks completed:    0")

	mustRun(t, "task", "add", "Keep me")
	file := filepath.Join(t.TempDir(), "backup.json")
	mustRun(t, "data", "export", file)

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	var backup models.Backup
	require.NoError(t, json.Unmarshal(raw, &backup))
	assert.Equal(t, models.BackupVersion, backup.Version)
	require.Len(t, backup.Tasks, 1)

	_, err = run(t, "data", "reset")
	assert.Error(t, err, "reset requires --yes")
	mustRun(t, "data", "reset", "--yes")
	assert.Contains(t, mustRun(t, "task", "list"), "No tasks found.")

	assert.Contains(t, mustRun(t, "data", "import", file), "1 tasks")
	assert.Contains(t, mustRun(t, "task", "list"), "Keep me")
}

func TestParseAssignments(t *testing.T) {
	patch, err := parseAssignments([]string{"a=1", "b=true", "c=hello world", "d=", "e=1.5"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1, "b": true, "c": "hello world", "d": "", "e": 1.5}, patch)

	_, err = parseAssignments([]string{"=1"})
	assert.Error(t, err)
}

type recordingDispatcher struct {
	msgs []bus.Message
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, msg bus.Message) bus.Response {
	r.msgs = append(r.msgs, msg)
	return bus.OK(nil)
}

func TestTabScopePrefixesTabIDs(t *testing.T) {
	rec := &recordingDispatcher{}
	scope := tabScope{prefix: agentTabs, next: rec}
	ctx := context.Background()

	scope.Dispatch(ctx, bus.Message{Action: bus.ActionTabUpdated, TabID: "3"})
	scope.Dispatch(ctx, bus.Message{Action: bus.ActionTabUpdated, TabID: "browser:abc"})
	scope.Dispatch(ctx, bus.Message{Action: bus.ActionGetStatus})

	require.Len(t, rec.msgs, 3)
	assert.Equal(t, "agent:3", rec.msgs[0].TabID)
	assert.Equal(t, "browser:abc", rec.msgs[1].TabID)
	assert.Empty(t, rec.msgs[2].TabID)
}

func TestBrowserNavigation(t *testing.T) {
	d := startDaemon(t)
	pages := hosttest.NewTabs(host.Tab{ID: "p1"}, host.Tab{ID: "p2"})
	d.tabs.Add(browserTabs, pages)
	ctx := context.Background()

	d.browserNavigated(ctx, "p1", "https://golang.org/")
	assert.Empty(t, pages.Actions("p1"), "no overlay while the timer is idle")

	mustRun(t, "timer", "start")
	pages.Reset()
	d.browserNavigated(ctx, "p1", "https://golang.org/doc/")
	assert.Contains(t, pages.Actions("p1"), host.ActionShowTimer)

	mustRun(t, "block", "toggle")
	pages.Reset()
	d.browserNavigated(ctx, "p2", "https://www.reddit.com/r/golang")
	assert.Contains(t, pages.Actions("p2"), host.ActionBlockSite)
	assert.NotContains(t, pages.Actions("p2"), host.ActionShowTimer)
	assert.Contains(t, pages.RedirectedTo("p2"), "/blocked/blocked.html?url=https%3A%2F%2Fwww.reddit.com%2Fr%2Fgolang")
}

func TestLogLevelCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	assert.Equal(t, "info\n", mustRun(t, "log-level", "--config", path))
	assert.Contains(t, mustRun(t, "log-level", "DEBUG", "--config", path), "Log level set to debug")

	manager, err := config.NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", manager.GetConfig().Log.Level)
	assert.Equal(t, "debug\n", mustRun(t, "log-level", "--config", path))

	_, err = run(t, "log-level", "loud", "--config", path)
	assert.Error(t, err)
}
