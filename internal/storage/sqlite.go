// Package storage opens the SQLite database shared by the document store,
// the schedule store and the run ledger, and owns its schema.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the SQLite database at path and applies the
// schema. SQLite allows a single writer, so the pool is capped at one
// connection.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Migrate creates tables and indexes if they don't exist.
func Migrate(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS scheduled_tasks (
  name TEXT PRIMARY KEY,
  display_name TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  schedule_expression TEXT NOT NULL,
  enabled INTEGER NOT NULL DEFAULT 1,
  task_kind TEXT NOT NULL,
  config TEXT NOT NULL DEFAULT '{}',
  last_run INTEGER,
  next_run INTEGER,
  run_count INTEGER NOT NULL DEFAULT 0,
  fail_count INTEGER NOT NULL DEFAULT 0 CHECK(fail_count <= run_count),
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_logs (
  id TEXT PRIMARY KEY,
  agent_kind TEXT NOT NULL CHECK(agent_kind IN ('scheduler','query')),
  name TEXT NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('running','completed','failed')) DEFAULT 'running',
  start_time INTEGER NOT NULL,
  end_time INTEGER,
  duration_ms INTEGER,
  result TEXT,
  error TEXT,
  metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_run_logs_start_time ON run_logs(start_time DESC);
CREATE INDEX IF NOT EXISTS idx_run_logs_name ON run_logs(name);
`
	_, err := db.Exec(schema)
	return err
}

// Snapshot writes a consistent copy of the database to dest using VACUUM INTO.
// dest must not exist.
func Snapshot(ctx context.Context, db *sql.DB, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}
