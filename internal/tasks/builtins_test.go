package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/stockpilot/internal/analytics"
	"github.com/aatumaykin/stockpilot/internal/docstore"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/storage"
)

var builtinNow = time.Date(2026, 5, 15, 22, 0, 0, 0, time.UTC)

type builtinEnv struct {
	db     *sql.DB
	reg    *Registry
	hub    *notify.Hub
	ledger *ledger.Ledger
	dir    string
}

func newBuiltinEnv(t *testing.T) *builtinEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs := docstore.New(db)
	seed := func(collection, raw string) {
		var items []docstore.Document
		require.NoError(t, json.Unmarshal([]byte(raw), &items))
		_, err := docs.InsertMany(context.Background(), collection, items)
		require.NoError(t, err)
	}
	seed("inventory", `[
		{"id": "i1", "name": "Aspirin", "quantity": 3},
		{"id": "i2", "name": "Bandage", "quantity": 0},
		{"id": "i3", "name": "Gloves", "quantity": 40}
	]`)
	seed("drugs", `[
		{"id": "d1", "name": "Amoxicillin", "expiryDate": "2026-05-01"},
		{"id": "d2", "name": "Insulin", "expiryDate": "2026-06-01"}
	]`)
	seed("transactions", `[
		{"id": "t1", "date": "2026-05-15T08:00:00Z", "total": 1250.5, "items": [{"name": "Aspirin", "quantity": 3, "price": 2.5}]},
		{"id": "t2", "date": "2026-05-10T08:00:00Z", "total": 10, "items": [{"name": "Gloves", "quantity": 1, "price": 10}]}
	]`)

	env := &builtinEnv{
		db:     db,
		reg:    NewRegistry(),
		hub:    notify.NewHub(50, nil),
		ledger: ledger.New(db).WithClock(func() time.Time { return builtinNow }),
		dir:    filepath.Join(dir, "backups"),
	}
	require.NoError(t, RegisterBuiltins(env.reg, Deps{
		Analytics: analytics.New(docs).WithClock(func() time.Time { return builtinNow }),
		Ledger:    env.ledger,
		Hub:       env.hub,
		DB:        db,
		BackupDir: env.dir,
	}))
	return env
}

func TestRegisterBuiltins_AllDefaults(t *testing.T) {
	env := newBuiltinEnv(t)
	defaults, err := LoadDefaults()
	require.NoError(t, err)
	for _, d := range defaults {
		def, err := env.reg.Get(d.Name)
		require.NoError(t, err)
		assert.Equal(t, d.Kind, def.Kind)
		assert.NotNil(t, def.Validate)
	}
}

func TestStockCheck(t *testing.T) {
	env := newBuiltinEnv(t)

	res, err := env.reg.Execute(context.Background(), "stockCheck", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res["lowStockCount"])
	assert.Equal(t, 1, res["outOfStock"])

	history := env.hub.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, notify.PriorityCritical, history[0].Priority)
	assert.Equal(t, "stockCheck", history[0].TaskName)
}

func TestStockCheck_Threshold(t *testing.T) {
	env := newBuiltinEnv(t)

	res, err := env.reg.Execute(context.Background(), "stockCheck", Config{"threshold": -1})
	require.Error(t, err)
	assert.Nil(t, res)

	res, err = env.reg.Execute(context.Background(), "stockCheck", Config{"threshold": 0})
	require.NoError(t, err)
	assert.Equal(t, 1, res["lowStockCount"])
}

func TestExpiryCheck(t *testing.T) {
	env := newBuiltinEnv(t)

	res, err := env.reg.Execute(context.Background(), "expiryCheck", Config{"days": 30})
	require.NoError(t, err)
	assert.Equal(t, 1, res["expired"])
	assert.Equal(t, 1, res["expiring"])
	assert.Equal(t, 1, env.hub.Len())

	_, err = env.reg.Execute(context.Background(), "expiryCheck", Config{"days": 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDailyReport(t *testing.T) {
	env := newBuiltinEnv(t)

	res, err := env.reg.Execute(context.Background(), "dailyReport", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res["transactions"])
	assert.Equal(t, 1250.5, res["revenue"])

	summary, ok := res["summary"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(summary, "1 transactions, revenue 1,250.50"), summary)
	assert.Contains(t, summary, "Aspirin (3)")

	history := env.hub.History(1)
	require.Len(t, history, 1)
	assert.Equal(t, "dailyReport", history[0].TaskName)
}

func TestBackup_SnapshotAndPrune(t *testing.T) {
	env := newBuiltinEnv(t)
	require.NoError(t, os.MkdirAll(env.dir, 0755))
	for _, name := range []string{
		"stockpilot-20260101-020000.000.db",
		"stockpilot-20260102-020000.000.db",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(env.dir, name), []byte("x"), 0644))
	}

	res, err := env.reg.Execute(context.Background(), "backup", Config{"retain": 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res["pruned"])

	path, ok := res["path"].(string)
	require.True(t, ok)
	assert.Equal(t, "stockpilot-20260515-220000.000.db", filepath.Base(path))
	assert.Greater(t, res["sizeBytes"], int64(0))

	entries, err := os.ReadDir(env.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"stockpilot-20260102-020000.000.db",
		"stockpilot-20260515-220000.000.db",
		"notes.txt",
	}, names)
}

func TestBackup_NotConfigured(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, Deps{Hub: notify.NewHub(10, nil)}))

	_, err := r.Execute(context.Background(), "backup", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup is not configured")
}

func TestLedgerCleanup(t *testing.T) {
	env := newBuiltinEnv(t)
	ctx := context.Background()

	past := ledger.New(env.db).WithClock(func() time.Time { return builtinNow.AddDate(0, 0, -10) })
	_, err := past.Create(ctx, "scheduler", "stockCheck", nil)
	require.NoError(t, err)
	_, err = env.ledger.Create(ctx, "scheduler", "stockCheck", nil)
	require.NoError(t, err)

	res, err := env.reg.Execute(ctx, "ledgerCleanup", Config{"days": 7})
	require.NoError(t, err)
	assert.Equal(t, 7, res["days"])
	assert.Equal(t, int64(1), res["removed"])

	entries, err := env.ledger.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
