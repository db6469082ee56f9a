package ledger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/stockpilot/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLedger(t *testing.T) (*Ledger, *fakeClock) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return New(db).WithClock(clock.Now), clock
}

func TestLedger_CompleteOnce(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Create(ctx, "scheduler", "stockCheck", map[string]any{"trigger": "manual", "actorId": "u1"})
	require.NoError(t, err)

	e, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, e.Status)
	assert.Nil(t, e.EndTime)
	assert.Nil(t, e.DurationMs)
	assert.Equal(t, "manual", e.Metadata["trigger"])

	clock.Advance(1500 * time.Millisecond)
	ok, err := l.Complete(ctx, id, map[string]any{"lowStock": 3})
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Second)
	ok, err = l.Complete(ctx, id, map[string]any{"lowStock": 99})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Fail(ctx, id, "late failure")
	require.NoError(t, err)
	assert.False(t, ok)

	e, err = l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, e.Status)
	require.NotNil(t, e.EndTime)
	require.NotNil(t, e.DurationMs)
	assert.Equal(t, int64(1500), *e.DurationMs)
	assert.Empty(t, e.Error)

	var result map[string]any
	require.NoError(t, json.Unmarshal(e.Result, &result))
	assert.Equal(t, 3.0, result["lowStock"])
}

func TestLedger_Fail(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Create(ctx, "query", "low stock under 5", nil)
	require.NoError(t, err)

	clock.Advance(250 * time.Millisecond)
	ok, err := l.Fail(ctx, id, "boom")
	require.NoError(t, err)
	assert.True(t, ok)

	e, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, e.Status)
	assert.Equal(t, "boom", e.Error)
	assert.Equal(t, int64(250), *e.DurationMs)
	assert.Nil(t, e.Result)
}

func TestLedger_ConcurrentTerminalTransition(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	id, err := l.Create(ctx, "scheduler", "backup", nil)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var ok bool
			var err error
			if i%2 == 0 {
				ok, err = l.Complete(ctx, id, i)
			} else {
				ok, err = l.Fail(ctx, id, "x")
			}
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLedger_GetUnknown(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := l.Complete(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_ListAndStats(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	runs := []struct {
		kind, name string
		fail       bool
		took       time.Duration
	}{
		{"scheduler", "stockCheck", false, 100 * time.Millisecond},
		{"scheduler", "stockCheck", true, 300 * time.Millisecond},
		{"scheduler", "dailyReport", false, 200 * time.Millisecond},
		{"query", "top products", false, 400 * time.Millisecond},
	}
	for _, r := range runs {
		id, err := l.Create(ctx, r.kind, r.name, nil)
		require.NoError(t, err)
		clock.Advance(r.took)
		if r.fail {
			_, err = l.Fail(ctx, id, "failed")
		} else {
			_, err = l.Complete(ctx, id, "ok")
		}
		require.NoError(t, err)
	}
	// still running, no duration
	_, err := l.Create(ctx, "query", "pending", nil)
	require.NoError(t, err)

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "pending", all[0].Name)

	byName, err := l.List(ctx, Filter{Name: "stockCheck"})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	byKind, err := l.List(ctx, Filter{AgentKind: "query", Limit: 1})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Equal(t, "pending", byKind[0].Name)

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.ByStatus["completed"])
	assert.Equal(t, 1, stats.ByStatus["failed"])
	assert.Equal(t, 1, stats.ByStatus["running"])
	assert.Equal(t, 3, stats.ByKind["scheduler"])
	assert.Equal(t, 2, stats.ByName["stockCheck"])
	assert.InDelta(t, 250.0, stats.AvgDurationMs, 0.001)
}

func TestLedger_RecentAndPurge(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Create(ctx, "scheduler", "old", nil)
	require.NoError(t, err)
	clock.Advance(40 * 24 * time.Hour)
	_, err = l.Create(ctx, "scheduler", "new", nil)
	require.NoError(t, err)

	recent, err := l.Recent(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "new", recent[0].Name)

	removed, err := l.PurgeOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].Name)

	_, err = l.PurgeOlderThan(ctx, -1)
	assert.Error(t, err)
}
