package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"focuser/internal/models"
)

const (
	KeySettings     = "settings"
	KeyBlockedSites = "blockedSites"
	KeyTasks        = "tasks"
	KeyStatistics   = "statistics"
)

var (
	ErrUnknownStatistic = errors.New("unknown statistic")
	ErrInvalidBackup    = errors.New("invalid backup file format")
)

func DefaultBlockedSites() []string {
	return []string{
		"facebook.com",
		"twitter.com",
		"instagram.com",
		"youtube.com",
		"reddit.com",
		"tiktok.com",
	}
}

// Defaults is the document applied to keys that are absent at install.
func Defaults() map[string]any {
	return map[string]any{
		KeySettings:     models.DefaultSettings(),
		KeyBlockedSites: DefaultBlockedSites(),
		KeyTasks:        []models.Task{},
		KeyStatistics:   models.Statistics{},
	}
}

// Manager is the typed accessor every other manager goes through. All
// read-modify-write sequences hold mu.
type Manager struct {
	mu     sync.Mutex
	db     *Database
	logger *zap.Logger
}

func NewManager(db *Database, logger *zap.Logger) *Manager {
	return &Manager{db: db, logger: logger}
}

func (m *Manager) Database() *Database {
	return m.db
}

// SetDefaults writes the default document for top-level keys that are not
// stored yet and leaves existing keys alone.
func (m *Manager) SetDefaults(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setDefaultsLocked(ctx)
}

func (m *Manager) setDefaultsLocked(ctx context.Context) error {
	existing, err := m.db.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("read storage: %w", err)
	}

	updates := make(map[string]any)
	var applied []string
	for key, value := range Defaults() {
		if _, ok := existing[key]; !ok {
			updates[key] = value
			applied = append(applied, key)
		}
	}
	if len(updates) == 0 {
		return nil
	}
	if err := m.db.Set(ctx, updates); err != nil {
		return fmt.Errorf("write defaults: %w", err)
	}
	m.logger.Info("default settings applied", zap.Strings("keys", applied))
	return nil
}

func (m *Manager) Settings(ctx context.Context) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settingsLocked(ctx)
}

func (m *Manager) settingsLocked(ctx context.Context) (models.Settings, error) {
	settings := models.DefaultSettings()
	if err := m.getDocument(ctx, KeySettings, &settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// UpdateSettings applies fn to the stored settings and persists the result.
func (m *Manager) UpdateSettings(ctx context.Context, fn func(*models.Settings)) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.settingsLocked(ctx)
	if err != nil {
		return settings, err
	}
	fn(&settings)
	if err := m.db.Set(ctx, map[string]any{KeySettings: settings}); err != nil {
		return settings, fmt.Errorf("write settings: %w", err)
	}
	return settings, nil
}

// PatchSettings merges a partial settings document over the stored one.
func (m *Manager) PatchSettings(ctx context.Context, patch json.RawMessage) (models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.settingsLocked(ctx)
	if err != nil {
		return settings, err
	}
	if err := json.Unmarshal(patch, &settings); err != nil {
		return settings, fmt.Errorf("invalid settings: %w", err)
	}
	if err := m.db.Set(ctx, map[string]any{KeySettings: settings}); err != nil {
		return settings, fmt.Errorf("write settings: %w", err)
	}
	return settings, nil
}

func (m *Manager) BlockedSites(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sites []string
	raw, err := m.db.Get(ctx, KeyBlockedSites)
	if err != nil {
		return nil, err
	}
	if doc, ok := raw[KeyBlockedSites]; ok {
		if err := json.Unmarshal(doc, &sites); err != nil {
			return nil, fmt.Errorf("decode blocked sites: %w", err)
		}
	}
	if sites == nil {
		return DefaultBlockedSites(), nil
	}
	return sites, nil
}

func (m *Manager) SetBlockedSites(ctx context.Context, sites []string) error {
	if sites == nil {
		sites = []string{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Set(ctx, map[string]any{KeyBlockedSites: sites})
}

func (m *Manager) Tasks(ctx context.Context) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := []models.Task{}
	if err := m.getDocument(ctx, KeyTasks, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (m *Manager) SetTasks(ctx context.Context, tasks []models.Task) error {
	if tasks == nil {
		tasks = []models.Task{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Set(ctx, map[string]any{KeyTasks: tasks})
}

// UpdateTasks runs fn over the stored list under the lock and persists
// whatever it returns unless fn fails.
func (m *Manager) UpdateTasks(ctx context.Context, fn func([]models.Task) ([]models.Task, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := []models.Task{}
	if err := m.getDocument(ctx, KeyTasks, &tasks); err != nil {
		return err
	}
	updated, err := fn(tasks)
	if err != nil {
		return err
	}
	if updated == nil {
		updated = []models.Task{}
	}
	return m.db.Set(ctx, map[string]any{KeyTasks: updated})
}

func (m *Manager) Statistics(ctx context.Context) (models.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statisticsLocked(ctx)
}

func (m *Manager) statisticsLocked(ctx context.Context) (models.Statistics, error) {
	var stats models.Statistics
	err := m.getDocument(ctx, KeyStatistics, &stats)
	return stats, err
}

func (m *Manager) SetStatistic(ctx context.Context, key models.StatKey, value int) error {
	return m.modifyStatistic(ctx, key, func(int) int { return value })
}

// IncrementStatistic adds delta, which may be negative, to the counter.
func (m *Manager) IncrementStatistic(ctx context.Context, key models.StatKey, delta int) error {
	return m.modifyStatistic(ctx, key, func(v int) int { return v + delta })
}

func (m *Manager) modifyStatistic(ctx context.Context, key models.StatKey, fn func(int) int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, err := m.statisticsLocked(ctx)
	if err != nil {
		return err
	}
	field := stats.Field(key)
	if field == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStatistic, key)
	}
	*field = fn(*field)
	return m.db.Set(ctx, map[string]any{KeyStatistics: stats})
}

func (m *Manager) ResetStatistics(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Set(ctx, map[string]any{KeyStatistics: models.Statistics{}})
}

// Export snapshots every top-level document.
func (m *Manager) Export(ctx context.Context, now time.Time) (*models.Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	sites := []string{}
	if err := m.getDocument(ctx, KeyBlockedSites, &sites); err != nil {
		return nil, err
	}
	tasks := []models.Task{}
	if err := m.getDocument(ctx, KeyTasks, &tasks); err != nil {
		return nil, err
	}
	stats, err := m.statisticsLocked(ctx)
	if err != nil {
		return nil, err
	}

	return &models.Backup{
		Settings:     &settings,
		BlockedSites: sites,
		Tasks:        tasks,
		Statistics:   &stats,
		ExportDate:   now.UTC().Format(time.RFC3339Nano),
		Version:      models.BackupVersion,
	}, nil
}

// Import decodes a backup file and overwrites only the keys it carries.
// Nothing is written unless the whole document is valid.
func (m *Manager) Import(ctx context.Context, data []byte) (*models.Backup, error) {
	// Pre-seeding Settings makes keys missing from the file keep their defaults.
	defaults := models.DefaultSettings()
	backup := models.Backup{Settings: &defaults}
	if err := json.Unmarshal(data, &backup); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if backup.Version == "" {
		return nil, ErrInvalidBackup
	}

	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	updates := make(map[string]any)
	if doc, ok := present[KeySettings]; ok && string(doc) != "null" {
		updates[KeySettings] = *backup.Settings
	} else {
		backup.Settings = nil
	}
	if backup.BlockedSites != nil {
		updates[KeyBlockedSites] = backup.BlockedSites
	}
	if backup.Tasks != nil {
		updates[KeyTasks] = backup.Tasks
	}
	if backup.Statistics != nil {
		updates[KeyStatistics] = *backup.Statistics
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Set(ctx, updates); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}
	return &backup, nil
}

// ResetAll clears every key and re-applies the defaults.
func (m *Manager) ResetAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.Clear(ctx); err != nil {
		return err
	}
	return m.setDefaultsLocked(ctx)
}

func (m *Manager) getDocument(ctx context.Context, key string, into any) error {
	raw, err := m.db.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	doc, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(doc, into); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
