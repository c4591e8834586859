// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, enables WAL, creates the dashboard schema and applies migrations

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: opens a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_key TEXT NOT NULL DEFAULT 'main',
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			timestamp TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_chat_session_ts
			ON chat_messages(session_key, timestamp);

		CREATE TABLE IF NOT EXISTS activity_log (
			id TEXT PRIMARY KEY,
			activity_type TEXT NOT NULL,
			description TEXT NOT NULL,
			related_id TEXT,
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_activity_ts ON activity_log(timestamp DESC);

		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			priority TEXT NOT NULL DEFAULT 'medium',
			due_date TEXT,
			completed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,

			CHECK (priority IN ('low', 'medium', 'high'))
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date, completed);

		CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL DEFAULT 'backlog',
			priority TEXT NOT NULL DEFAULT 'medium',
			assignee TEXT,
			tags TEXT,
			position INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status, position);

		CREATE TABLE IF NOT EXISTS calendar_events (
			id TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			starts_at TEXT NOT NULL,
			ends_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_calendar_starts ON calendar_events(starts_at);

		CREATE TABLE IF NOT EXISTS user_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "calendar_events",
			column: "location",
			apply:  `ALTER TABLE calendar_events ADD COLUMN location TEXT`,
		},
		{
			table:  "chat_messages",
			column: "metadata",
			apply:  `ALTER TABLE chat_messages ADD COLUMN metadata TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// nullString maps "" to NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
