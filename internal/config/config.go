package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Log           LogConfig           `yaml:"log"`
	Pomodoro      PomodoroConfig      `yaml:"pomodoro"`
	Blocking      BlockingConfig      `yaml:"blocking"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Browser       BrowserConfig       `yaml:"browser"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type PomodoroConfig struct {
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

type BlockingConfig struct {
	// BlockedPage is the path blocked navigations are redirected to.
	BlockedPage    string        `yaml:"blocked_page"`
	BypassDuration time.Duration `yaml:"bypass_duration"`
}

type NotificationsConfig struct {
	// SoundDir holds work_complete.wav, break_complete.wav and
	// long_break_complete.wav. Empty disables sound.
	SoundDir string  `yaml:"sound_dir"`
	Volume   float64 `yaml:"volume"`
}

type BrowserConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ControlURL string `yaml:"control_url"`
	Headless   bool   `yaml:"headless"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: "127.0.0.1:7717",
		},
		Storage: StorageConfig{
			Path: filepath.Join(defaultDir(), "focuser.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
		Pomodoro: PomodoroConfig{
			BroadcastInterval: time.Second,
		},
		Blocking: BlockingConfig{
			BlockedPage:    "/blocked/blocked.html",
			BypassDuration: 5 * time.Minute,
		},
		Notifications: NotificationsConfig{
			Volume: 0,
		},
		Browser: BrowserConfig{
			Headless: false,
		},
	}
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Pomodoro.BroadcastInterval <= 0 {
		return fmt.Errorf("pomodoro.broadcast_interval must be positive, got %s", c.Pomodoro.BroadcastInterval)
	}
	if c.Blocking.BypassDuration <= 0 {
		return fmt.Errorf("blocking.bypass_duration must be positive, got %s", c.Blocking.BypassDuration)
	}
	return nil
}

type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
}

// NewManager loads configPath, or ~/.focuser/config.yaml when empty. A
// missing or unreadable file is replaced with the defaults.
func NewManager(configPath string) (*Manager, error) {
	if configPath == "" {
		configPath = DefaultPath()
	}
	manager := &Manager{
		configPath: configPath,
	}

	if err := manager.loadConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		manager.config = DefaultConfig()
		if err := manager.SaveConfig(); err != nil {
			return nil, err
		}
	}

	return manager, nil
}

func (m *Manager) loadConfig() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// Absent keys keep their defaults.
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parse %s: %w", m.configPath, err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
	return nil
}

func (m *Manager) SaveConfig() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}

	return os.WriteFile(m.configPath, data, 0644)
}

func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *Manager) Path() string {
	return m.configPath
}

func (m *Manager) UpdateLogConfig(config LogConfig) error {
	m.mu.Lock()
	m.config.Log = config
	m.mu.Unlock()
	return m.SaveConfig()
}

type ConfigChangeCallback func(*Config)

// WatchConfig reloads the file whenever it is written and hands the new
// config to callback. Edits that fail to parse are logged and skipped. It
// blocks until ctx is done.
func (m *Manager) WatchConfig(ctx context.Context, logger *zap.Logger, callback ConfigChangeCallback) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(m.configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(200 * time.Millisecond)
		case <-debounce:
			debounce = nil
			if err := m.loadConfig(); err != nil {
				logger.Warn("config reload failed", zap.String("path", m.configPath), zap.Error(err))
				continue
			}
			logger.Info("config reloaded", zap.String("path", m.configPath))
			if callback != nil {
				callback(m.GetConfig())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func DefaultPath() string {
	return filepath.Join(defaultDir(), "config.yaml")
}

func defaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".focuser"
	}
	return filepath.Join(homeDir, ".focuser")
}
