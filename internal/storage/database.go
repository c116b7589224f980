package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"focuser/internal/models"
)

// Database is the local extension storage: a flat key -> JSON document
// table plus the session and bypass history.
type Database struct {
	db *sql.DB
}

func NewDatabase(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// One writer keeps read-modify-write sequences from tripping SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db}
	if err := database.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tables: %w", err)
	}
	return database, nil
}

func (d *Database) initTables() error {
	_, err := d.db.Exec(`
        CREATE TABLE IF NOT EXISTS kv (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            updated_at DATETIME NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
        CREATE TABLE IF NOT EXISTS pomodoro_records (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_id TEXT NOT NULL DEFAULT '',
            type TEXT NOT NULL,
            start_time DATETIME NOT NULL,
            end_time DATETIME NOT NULL,
            duration INTEGER NOT NULL
        )
    `)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
        CREATE TABLE IF NOT EXISTS bypass_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            url TEXT NOT NULL,
            reason TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )
    `)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Get returns the raw documents for the requested keys. Absent keys are
// missing from the result rather than mapped to null.
func (d *Database) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	result := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := d.db.QueryContext(ctx, "SELECT key, value FROM kv WHERE key IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows, result)
}

func (d *Database) GetAll(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT key, value FROM kv")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows, make(map[string]json.RawMessage))
}

func scanDocuments(rows *sql.Rows, into map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		into[key] = json.RawMessage(value)
	}
	return into, rows.Err()
}

// Set writes every entry of data in one transaction.
func (d *Database) Set(ctx context.Context, data map[string]any) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range data {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		_, err = tx.ExecContext(ctx, `
            INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
        `, key, string(encoded), now)
		if err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Clear empties the key-value store. History tables are kept.
func (d *Database) Clear(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM kv")
	return err
}

func (d *Database) SavePomodoroRecord(ctx context.Context, record *models.PomodoroRecord) error {
	result, err := d.db.ExecContext(ctx, `
        INSERT INTO pomodoro_records (task_id, type, start_time, end_time, duration)
        VALUES (?, ?, ?, ?, ?)
    `, record.TaskID, record.Type, record.StartTime, record.EndTime, record.Duration)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	record.ID = id
	return nil
}

func (d *Database) PomodoroRecords(ctx context.Context, limit int) ([]models.PomodoroRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, task_id, type, start_time, end_time, duration
        FROM pomodoro_records
        ORDER BY start_time DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.PomodoroRecord
	for rows.Next() {
		var r models.PomodoroRecord
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Type, &r.StartTime, &r.EndTime, &r.Duration); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// PomodoroStats sums sessions started in [startDate, endDate] plus those
// started since the beginning of today's date.
func (d *Database) PomodoroStats(ctx context.Context, startDate, endDate time.Time) (*models.PomodoroStats, error) {
	stats := &models.PomodoroStats{}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	err := d.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*) as sessions,
            COALESCE(SUM(duration), 0) as total_duration
        FROM pomodoro_records
        WHERE start_time BETWEEN ? AND ?
    `, startDate, endDate).Scan(&stats.TotalSessions, &stats.TotalDuration)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*) as today_sessions,
            COALESCE(SUM(duration), 0) as today_duration
        FROM pomodoro_records
        WHERE start_time >= ?
    `, today).Scan(&stats.TodaySessions, &stats.TodayDuration)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (d *Database) SaveBypassRequest(ctx context.Context, req *models.BypassRequest) error {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	result, err := d.db.ExecContext(ctx, `
        INSERT INTO bypass_requests (url, reason, created_at) VALUES (?, ?, ?)
    `, req.URL, req.Reason, req.CreatedAt)
	if err != nil {
		return err
	}
	req.ID, err = result.LastInsertId()
	return err
}

func (d *Database) BypassRequests(ctx context.Context, limit int) ([]models.BypassRequest, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT id, url, reason, created_at FROM bypass_requests
        ORDER BY created_at DESC, id DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.BypassRequest
	for rows.Next() {
		var r models.BypassRequest
		if err := rows.Scan(&r.ID, &r.URL, &r.Reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}
