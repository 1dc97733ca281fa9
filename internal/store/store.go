package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const currentVersion = 3

const timeLayout = time.RFC3339Nano

type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	// Configure pragmas.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory creates an in-memory store for testing.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := s.migrateV2(); err != nil {
			return err
		}
	}
	if version < 3 {
		if err := s.migrateV3(); err != nil {
			return err
		}
	}

	_, err = s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	return err
}

func (s *Store) migrateV1() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS tasks (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		priority         TEXT NOT NULL DEFAULT 'medium',
		planned_seconds  INTEGER NOT NULL,
		status           TEXT NOT NULL DEFAULT 'pending',
		time_spent       INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		completed_at     TEXT,
		updated_at       TEXT
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id                    TEXT PRIMARY KEY,
		name                  TEXT NOT NULL,
		status                TEXT NOT NULL DEFAULT 'pending',
		current_task_index    INTEGER NOT NULL DEFAULT 0,
		completed_task_count  INTEGER NOT NULL DEFAULT 0,
		total_planned         INTEGER NOT NULL DEFAULT 0,
		actual_time           INTEGER NOT NULL DEFAULT 0,
		cancel_reason         TEXT NOT NULL DEFAULT '',
		created_at            TEXT NOT NULL,
		started_at            TEXT,
		completed_at          TEXT,
		updated_at            TEXT
	);

	CREATE TABLE IF NOT EXISTS session_tasks (
		session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		position         INTEGER NOT NULL,
		name             TEXT NOT NULL,
		priority         TEXT NOT NULL DEFAULT 'medium',
		planned_minutes  INTEGER NOT NULL,
		PRIMARY KEY (session_id, position)
	);

	CREATE TABLE IF NOT EXISTS executions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_kind  TEXT NOT NULL,
		owner_id    TEXT NOT NULL,
		task_index  INTEGER NOT NULL DEFAULT -1,
		started_at  TEXT NOT NULL,
		ended_at    TEXT NOT NULL,
		duration    INTEGER NOT NULL DEFAULT 0,
		completed   INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_executions_owner ON executions(owner_kind, owner_id);

	CREATE TABLE IF NOT EXISTS reports (
		id                     TEXT PRIMARY KEY,
		task_id                TEXT NOT NULL,
		task_name              TEXT NOT NULL,
		session_id             TEXT NOT NULL DEFAULT '',
		task_index             INTEGER NOT NULL DEFAULT -1,
		status                 TEXT NOT NULL,
		skipped                INTEGER NOT NULL DEFAULT 0,
		completion_percentage  INTEGER NOT NULL DEFAULT 0,
		planned_minutes        INTEGER NOT NULL DEFAULT 0,
		actual_minutes         INTEGER NOT NULL DEFAULT 0,
		delay_reason           TEXT NOT NULL DEFAULT '',
		difficulty             TEXT NOT NULL DEFAULT 'as-expected',
		quality                INTEGER NOT NULL DEFAULT 3,
		notes                  TEXT NOT NULL DEFAULT '',
		next_actions           TEXT NOT NULL DEFAULT '',
		reported_at            TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_session  ON reports(session_id);
	CREATE INDEX IF NOT EXISTS idx_reports_reported ON reports(reported_at);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO settings (key, value) VALUES
		('default_task_minutes', '25'),
		('default_priority',     'medium'),
		('daily_goal',           '14400'),
		('confirm_cancel',       'true');
	`
	_, err := s.db.Exec(ddl)
	return err
}

// migrateV2 adds the single-row snapshot of the active context.
func (s *Store) migrateV2() error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS app_state (
		id                  INTEGER PRIMARY KEY CHECK (id = 1),
		active_task         TEXT NOT NULL DEFAULT '',
		active_session_id   TEXT NOT NULL DEFAULT '',
		current_task_index  INTEGER NOT NULL DEFAULT 0,
		timer_remaining     INTEGER NOT NULL DEFAULT 0,
		timer_total         INTEGER NOT NULL DEFAULT 0,
		last_saved_at       TEXT
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// migrateV3 records which sessions still owe the remote an update.
func (s *Store) migrateV3() error {
	_, err := s.db.Exec(`ALTER TABLE sessions ADD COLUMN sync_pending_since TEXT`)
	return err
}

// WithTx runs fn inside a SQL transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t.UTC()
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
