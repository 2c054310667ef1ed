// Package sqlite persists the task list in a single-row SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
)

const schema = `CREATE TABLE IF NOT EXISTS records (
	name  TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`

// Config locates the database file.
type Config struct {
	Path string `mapstructure:"path"`
}

// TaskStore keeps the task list as one row of the records table.
type TaskStore struct {
	db *sql.DB
}

// Open opens the database, applies pragmas, and creates the schema.
func Open(ctx context.Context, cfg Config) (*TaskStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &TaskStore{db: db}, nil
}

// Load reads the task list row.
func (s *TaskStore) Load(ctx context.Context) ([]archive.Task, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE name = ?`, archive.TaskListKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read task list: %w", err)
	}
	var tasks []archive.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, false, fmt.Errorf("decode task list: %w", err)
	}
	return tasks, true, nil
}

// Save upserts the task list row.
func (s *TaskStore) Save(ctx context.Context, tasks []archive.Task) error {
	if tasks == nil {
		tasks = []archive.Task{}
	}
	raw, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode task list: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		archive.TaskListKey, raw,
	)
	if err != nil {
		return fmt.Errorf("write task list: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *TaskStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
