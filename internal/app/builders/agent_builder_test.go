package builders

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/stockpilot/internal/agent"
	"github.com/aatumaykin/stockpilot/internal/analytics"
	"github.com/aatumaykin/stockpilot/internal/docstore"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/storage"
)

func TestAgentBuilder_WithoutModel(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs := docstore.New(db)
	ctx := context.Background()
	_, err = docs.InsertMany(ctx, "customers", []docstore.Document{{"name": "Ann"}, {"name": "Bob"}})
	require.NoError(t, err)

	cfg := testConfig(t)
	b := NewAgentBuilder(cfg, logger.Nop(), nil, docs, analytics.New(docs))

	runner, err := b.BuildRunner()
	require.NoError(t, err)
	assert.Nil(t, runner)

	o, err := b.BuildOrchestrator(ledger.New(db), notify.NewHub(10, logger.Nop()), nil)
	require.NoError(t, err)
	assert.False(t, o.ModelConfigured())

	res, err := o.Process(ctx, agent.Request{Query: "how many customers"})
	require.NoError(t, err)
	assert.Equal(t, agent.TypeQuickQuery, res.Type)
	assert.Contains(t, res.Message, "2 customers")

	res, err = o.Process(ctx, agent.Request{Query: "which supplier is cheapest"})
	require.NoError(t, err)
	assert.Equal(t, agent.TypeConfigError, res.Type)
}

func TestAgentBuilder_WithModel(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig(t)
	cfg.LLM.Provider = "mock"
	client, err := NewLLMBuilder(cfg, logger.Nop(), nil).Build()
	require.NoError(t, err)

	docs := docstore.New(db)
	b := NewAgentBuilder(cfg, logger.Nop(), client, docs, analytics.New(docs))
	o, err := b.BuildOrchestrator(ledger.New(db), nil, nil)
	require.NoError(t, err)
	assert.True(t, o.ModelConfigured())

	res, err := o.Process(context.Background(), agent.Request{Query: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, agent.TypeAIResponse, res.Type)
	assert.Equal(t, "Echo: hello there", res.Message)
}
