// Package ledger records every scheduled-task and query execution in the
// run_logs table.
//
// An entry is created in the running state and reaches exactly one terminal
// state (completed or failed). The terminal UPDATE is guarded by
// status='running', so repeated Complete/Fail calls are no-ops, and the
// duration is always derived from the stored timestamps.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no entry has the given id.
var ErrNotFound = errors.New("run log entry not found")

// Status is the lifecycle state of an entry.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Entry is one execution record.
type Entry struct {
	ID         string          `json:"id"`
	AgentKind  string          `json:"agentKind"`
	Name       string          `json:"name"`
	Status     Status          `json:"status"`
	StartTime  time.Time       `json:"startTime"`
	EndTime    *time.Time      `json:"endTime,omitempty"`
	DurationMs *int64          `json:"durationMs,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Metadata   map[string]any  `json:"metadata"`
}

// Filter narrows List. Zero values match everything; Limit defaults to 50.
type Filter struct {
	AgentKind string
	Name      string
	Limit     int
}

// Stats aggregates the whole ledger.
type Stats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"byStatus"`
	ByKind        map[string]int `json:"byKind"`
	ByName        map[string]int `json:"byName"`
	AvgDurationMs float64        `json:"avgDurationMs"`
}

// Ledger is the run log repository.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a Ledger over an already migrated database.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Create inserts a running entry and returns its id.
func (l *Ledger) Create(ctx context.Context, agentKind, name string, metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	id := uuid.NewString()
	_, err = l.db.ExecContext(ctx, `
INSERT INTO run_logs (id, agent_kind, name, status, start_time, metadata)
VALUES (?, ?, ?, 'running', ?, ?)`, id, agentKind, name, l.now().UnixMilli(), string(meta))
	if err != nil {
		return "", fmt.Errorf("create run log: %w", err)
	}
	return id, nil
}

// Complete marks a running entry completed with result. It returns false when
// the entry was not running (already terminal or unknown).
func (l *Ledger) Complete(ctx context.Context, id string, result any) (bool, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}
	return l.finish(ctx, id, StatusCompleted, sql.NullString{String: string(data), Valid: result != nil}, sql.NullString{})
}

// Fail marks a running entry failed with errMsg. It returns false when the
// entry was not running.
func (l *Ledger) Fail(ctx context.Context, id string, errMsg string) (bool, error) {
	return l.finish(ctx, id, StatusFailed, sql.NullString{}, sql.NullString{String: errMsg, Valid: true})
}

func (l *Ledger) finish(ctx context.Context, id string, status Status, result, errMsg sql.NullString) (bool, error) {
	end := l.now().UnixMilli()
	res, err := l.db.ExecContext(ctx, `
UPDATE run_logs
SET status = ?, end_time = ?, duration_ms = MAX(? - start_time, 0), result = ?, error = ?
WHERE id = ? AND status = 'running'`, string(status), end, end, result, errMsg, id)
	if err != nil {
		return false, fmt.Errorf("finish run log %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const selectColumns = `id, agent_kind, name, status, start_time, end_time, duration_ms, result, error, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e        Entry
		status   string
		start    int64
		end      sql.NullInt64
		duration sql.NullInt64
		result   sql.NullString
		errMsg   sql.NullString
		meta     string
	)
	if err := row.Scan(&e.ID, &e.AgentKind, &e.Name, &status, &start, &end, &duration, &result, &errMsg, &meta); err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	e.StartTime = time.UnixMilli(start)
	if end.Valid {
		t := time.UnixMilli(end.Int64)
		e.EndTime = &t
	}
	if duration.Valid {
		d := duration.Int64
		e.DurationMs = &d
	}
	if result.Valid {
		e.Result = json.RawMessage(result.String)
	}
	e.Error = errMsg.String
	e.Metadata = map[string]any{}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
			return Entry{}, fmt.Errorf("decode metadata for %s: %w", e.ID, err)
		}
	}
	return e, nil
}

// Get returns the entry with id.
func (l *Ledger) Get(ctx context.Context, id string) (Entry, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM run_logs WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get run log %s: %w", id, err)
	}
	return e, nil
}

// List returns entries newest first.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.AgentKind != "" {
		where = append(where, "agent_kind = ?")
		args = append(args, f.AgentKind)
	}
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + selectColumns + ` FROM run_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	return l.query(ctx, query, args...)
}

// Recent returns entries started within the last days, newest first.
func (l *Ledger) Recent(ctx context.Context, days, limit int) ([]Entry, error) {
	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 100
	}
	cutoff := l.now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
	return l.query(ctx, `SELECT `+selectColumns+` FROM run_logs WHERE start_time >= ? ORDER BY start_time DESC, rowid DESC LIMIT ?`, cutoff, limit)
}

func (l *Ledger) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run logs: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats computes totals per status, agent kind and name, plus the mean
// duration over entries that have one.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByStatus: map[string]int{},
		ByKind:   map[string]int{},
		ByName:   map[string]int{},
	}

	var avg sql.NullFloat64
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*), AVG(duration_ms) FROM run_logs`).Scan(&stats.Total, &avg)
	if err != nil {
		return Stats{}, fmt.Errorf("run log totals: %w", err)
	}
	stats.AvgDurationMs = avg.Float64

	groups := []struct {
		column string
		into   map[string]int
	}{
		{"status", stats.ByStatus},
		{"agent_kind", stats.ByKind},
		{"name", stats.ByName},
	}
	for _, g := range groups {
		if err := l.countBy(ctx, g.column, g.into); err != nil {
			return Stats{}, err
		}
	}
	return stats, nil
}

func (l *Ledger) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := l.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM run_logs GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("run log counts by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

// PurgeOlderThan deletes entries started before now-days and returns the
// number removed.
func (l *Ledger) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, fmt.Errorf("days must be >= 0, got %d", days)
	}
	cutoff := l.now().Add(-time.Duration(days) * 24 * time.Hour).UnixMilli()
	res, err := l.db.ExecContext(ctx, `DELETE FROM run_logs WHERE start_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge run logs: %w", err)
	}
	return res.RowsAffected()
}
