package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestNewManagerWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Listen, m.GetConfig().Server.Listen)
	assert.FileExists(t, path)

	again, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, time.Second, again.GetConfig().Pomodoro.BroadcastInterval)
	assert.Equal(t, 5*time.Minute, again.GetConfig().Blocking.BypassDuration)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  listen: 127.0.0.1:9000\n"), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)
	cfg := m.GetConfig()
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, "/blocked/blocked.html", cfg.Blocking.BlockedPage)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestInvalidFileIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pomodoro:\n  broadcast_interval: -1s\n"), 0644))

	_, err := NewManager(path)
	assert.ErrorContains(t, err, "broadcast_interval")
}

func TestWatchConfigReloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.WatchConfig(ctx, zap.NewNop(), func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	require.Eventually(t, func() bool {
		if err := m.UpdateLogConfig(LogConfig{Level: "debug"}); err != nil {
			return false
		}
		select {
		case c := <-changes:
			return c.Log.Level == "debug"
		case <-time.After(300 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
