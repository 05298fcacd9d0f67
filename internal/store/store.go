// Package store persists calls, analysis artifacts, task ledger rows and
// coaching records in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrCoachingExists is returned when a coaching row already exists for
	// the (agent, date) pair. Coaching creation is never an upsert.
	ErrCoachingExists = errors.New("store: coaching already exists for agent and date")
	// ErrPipelineInFlight is returned when a pipeline run is requested while
	// a task for the same call is still processing.
	ErrPipelineInFlight = errors.New("store: a task for this call is still processing")
)

// Store manages persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS agents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    employee_id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    department TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS calls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id INTEGER NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
    audio_path TEXT NOT NULL,
    call_date TEXT NOT NULL,
    duration_sec INTEGER,
    caller_number TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_agent_date ON calls(agent_id, call_date);
CREATE INDEX IF NOT EXISTS idx_calls_status ON calls(status);

CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    call_id INTEGER NOT NULL UNIQUE REFERENCES calls(id) ON DELETE CASCADE,
    full_text TEXT NOT NULL,
    utterances_json TEXT NOT NULL DEFAULT '[]',
    silence_ratio REAL NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    call_id INTEGER NOT NULL UNIQUE REFERENCES calls(id) ON DELETE CASCADE,
    satisfaction_score REAL NOT NULL,
    satisfaction_category TEXT NOT NULL,
    evaluation TEXT NOT NULL DEFAULT '',
    evaluation_score REAL NOT NULL DEFAULT 0,
    key_topics_json TEXT NOT NULL DEFAULT '[]',
    emotions_json TEXT NOT NULL DEFAULT '{}',
    summary TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    call_id INTEGER REFERENCES calls(id) ON DELETE CASCADE,
    agent_id INTEGER REFERENCES agents(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    job_ref TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_call ON tasks(call_id);
CREATE INDEX IF NOT EXISTS idx_tasks_agent_kind ON tasks(agent_id, kind);

CREATE TABLE IF NOT EXISTS coaching (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_id INTEGER NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
    date TEXT NOT NULL,
    daily_summary TEXT NOT NULL,
    coaching_points TEXT NOT NULL,
    strengths TEXT NOT NULL DEFAULT '',
    areas_to_improve TEXT NOT NULL DEFAULT '',
    call_count INTEGER NOT NULL DEFAULT 0,
    avg_satisfaction REAL,
    created_at TEXT NOT NULL,
    UNIQUE(agent_id, date)
);
`

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// timestamps are stored as UTC strings. Call dates use second precision so
// lexicographic range comparisons stay valid.
func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func stampTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseStamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, value)
	return t
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}
