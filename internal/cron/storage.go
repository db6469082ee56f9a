package cron

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/stockpilot/internal/tasks"
)

// Store persists ScheduledTask rows in the scheduled_tasks table.
// Rows are seeded once and never deleted.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a Store over an already migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// UpsertDefaults inserts a row for every definition that carries a default
// schedule and has no row yet. Existing rows keep user changes. It returns
// the number of inserted rows.
func (s *Store) UpsertDefaults(ctx context.Context, defs []tasks.Definition) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	inserted := 0
	for _, d := range defs {
		if d.Meta.DefaultSchedule == "" {
			continue
		}
		cfg := d.Meta.DefaultConfig
		if cfg == nil {
			cfg = tasks.Config{}
		}
		data, err := json.Marshal(cfg)
		if err != nil {
			return 0, fmt.Errorf("marshal default config for %s: %w", d.Name, err)
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO scheduled_tasks (name, display_name, description, schedule_expression, enabled, task_kind, config, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO NOTHING`,
			d.Name, d.Meta.DisplayName, d.Meta.Description, d.Meta.DefaultSchedule,
			d.Meta.DefaultEnabled, string(d.Kind), string(data), now, now)
		if err != nil {
			return 0, fmt.Errorf("seed task %s: %w", d.Name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return inserted, nil
}

const taskColumns = `name, display_name, description, schedule_expression, enabled, task_kind, config,
last_run, next_run, run_count, fail_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (ScheduledTask, error) {
	var (
		t                ScheduledTask
		cfg              string
		lastRun, nextRun sql.NullInt64
		created, updated int64
	)
	err := row.Scan(&t.Name, &t.DisplayName, &t.Description, &t.ScheduleExpression, &t.Enabled, &t.TaskKind, &cfg,
		&lastRun, &nextRun, &t.RunCount, &t.FailCount, &created, &updated)
	if err != nil {
		return ScheduledTask{}, err
	}
	t.Config = map[string]any{}
	if cfg != "" {
		if err := json.Unmarshal([]byte(cfg), &t.Config); err != nil {
			return ScheduledTask{}, fmt.Errorf("decode config for %s: %w", t.Name, err)
		}
	}
	t.LastRun = nullTime(lastRun)
	t.NextRun = nullTime(nextRun)
	t.CreatedAt = time.UnixMilli(created)
	t.UpdatedAt = time.UnixMilli(updated)
	return t, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func notFound(name string) error {
	return fmt.Errorf("%w: %s", tasks.ErrTaskNotFound, name)
}

// Get returns the row for name or tasks.ErrTaskNotFound.
func (s *Store) Get(ctx context.Context, name string) (ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE name = ?`, name)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledTask{}, notFound(name)
	}
	if err != nil {
		return ScheduledTask{}, fmt.Errorf("get scheduled task %s: %w", name, err)
	}
	return t, nil
}

// ListAll returns every row ordered by name.
func (s *Store) ListAll(ctx context.Context) ([]ScheduledTask, error) {
	return s.list(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY name`)
}

// ListEnabled returns enabled rows ordered by name.
func (s *Store) ListEnabled(ctx context.Context) ([]ScheduledTask, error) {
	return s.list(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE enabled = 1 ORDER BY name`)
}

func (s *Store) list(ctx context.Context, query string) ([]ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	defer rows.Close()

	out := []ScheduledTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) update(ctx context.Context, name, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update scheduled task %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(name)
	}
	return nil
}

// SetEnabled flips the enabled flag.
func (s *Store) SetEnabled(ctx context.Context, name string, enabled bool) error {
	return s.update(ctx, name, `UPDATE scheduled_tasks SET enabled = ?, updated_at = ? WHERE name = ?`,
		enabled, s.now().UnixMilli(), name)
}

// SetSchedule replaces the schedule expression. The caller validates it.
func (s *Store) SetSchedule(ctx context.Context, name, expr string) error {
	return s.update(ctx, name, `UPDATE scheduled_tasks SET schedule_expression = ?, updated_at = ? WHERE name = ?`,
		expr, s.now().UnixMilli(), name)
}

// SetNextRun stores the next activation; nil clears it.
func (s *Store) SetNextRun(ctx context.Context, name string, next *time.Time) error {
	var v sql.NullInt64
	if next != nil {
		v = sql.NullInt64{Int64: next.UnixMilli(), Valid: true}
	}
	return s.update(ctx, name, `UPDATE scheduled_tasks SET next_run = ? WHERE name = ?`, v, name)
}

// MergeConfig shallow-merges partial into the stored config inside one
// transaction and returns the result. Keys absent from partial survive.
func (s *Store) MergeConfig(ctx context.Context, name string, partial map[string]any) (map[string]any, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin config merge: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT config FROM scheduled_tasks WHERE name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("read config for %s: %w", name, err)
	}

	current := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return nil, fmt.Errorf("decode config for %s: %w", name, err)
		}
	}
	merged := tasks.MergeConfig(current, partial)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal config for %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE scheduled_tasks SET config = ?, updated_at = ? WHERE name = ?`,
		string(data), s.now().UnixMilli(), name); err != nil {
		return nil, fmt.Errorf("write config for %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit config merge: %w", err)
	}
	return merged, nil
}

// RecordRun counts one run in a single statement, so concurrent runs of the
// same task never lose an increment. A nil next keeps the stored next_run.
func (s *Store) RecordRun(ctx context.Context, name string, success bool, next *time.Time) error {
	var v sql.NullInt64
	if next != nil {
		v = sql.NullInt64{Int64: next.UnixMilli(), Valid: true}
	}
	now := s.now().UnixMilli()
	return s.update(ctx, name, `
UPDATE scheduled_tasks
SET last_run = ?,
    next_run = COALESCE(?, next_run),
    run_count = run_count + 1,
    fail_count = fail_count + CASE WHEN ? THEN 0 ELSE 1 END,
    updated_at = ?
WHERE name = ?`, now, v, success, now, name)
}
