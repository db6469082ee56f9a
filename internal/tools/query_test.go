package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/stockpilot/internal/docstore"
	"github.com/aatumaykin/stockpilot/internal/storage"
)

func newQueryTool(t *testing.T) (*QueryTool, *docstore.Store) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "query.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := docstore.New(db)
	var docs []docstore.Document
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id": "p1", "name": "Aspirin", "quantity": 3, "price": 4.5, "category": "analgesic"},
		{"id": "p2", "name": "Ibuprofen", "quantity": 12, "price": 6, "category": "analgesic"},
		{"id": "p3", "name": "Amoxicillin", "quantity": 0, "price": 11.25, "category": "antibiotic"},
		{"id": "p4", "name": "Vitamin C", "quantity": 40, "price": 2, "category": "supplement"}
	]`), &docs))
	_, err = store.InsertMany(context.Background(), "inventory", docs)
	require.NoError(t, err)

	return NewQueryTool(store), store
}

func runQuery(t *testing.T, tool *QueryTool, input string) (string, error) {
	t.Helper()
	return tool.Execute(context.Background(), json.RawMessage(input))
}

func TestQueryTool_Find(t *testing.T) {
	tool, _ := newQueryTool(t)

	out, err := runQuery(t, tool, `{
		"collection": "inventory",
		"operation": "find",
		"filter": {"quantity": {"$lte": 12}},
		"sort": [{"field": "quantity", "order": "desc"}],
		"projection": ["name"]
	}`)
	require.NoError(t, err)

	var res FindResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, DefaultFindLimit, res.Limit)
	require.Len(t, res.Documents, 3)
	assert.Equal(t, "Ibuprofen", res.Documents[0]["name"])
	assert.Equal(t, "Amoxicillin", res.Documents[2]["name"])
	_, hasPrice := res.Documents[0]["price"]
	assert.False(t, hasPrice)
}

func TestQueryTool_FindLimitClamped(t *testing.T) {
	tool, store := newQueryTool(t)
	ctx := context.Background()
	for i := 0; i < 70; i++ {
		_, err := store.Insert(ctx, "customers", docstore.Document{"name": fmt.Sprintf("customer-%02d", i)})
		require.NoError(t, err)
	}

	res, err := tool.Run(ctx, QueryInput{Collection: "customers", Operation: OpFind, Limit: 1000})
	require.NoError(t, err)
	find := res.(*FindResult)
	assert.Equal(t, MaxFindLimit, find.Limit)
	assert.Len(t, find.Documents, MaxFindLimit)

	res, err = tool.Run(ctx, QueryInput{Collection: "customers", Operation: OpFind})
	require.NoError(t, err)
	assert.Len(t, res.(*FindResult).Documents, DefaultFindLimit)

	res, err = tool.Run(ctx, QueryInput{Collection: "customers", Operation: OpFind, Limit: 7})
	require.NoError(t, err)
	assert.Len(t, res.(*FindResult).Documents, 7)
}

func TestQueryTool_Count(t *testing.T) {
	tool, _ := newQueryTool(t)

	res, err := tool.Run(context.Background(), QueryInput{
		Collection: "inventory",
		Operation:  OpCount,
		Filter:     map[string]any{"category": "analgesic"},
	})
	require.NoError(t, err)
	assert.Equal(t, &CountResult{Collection: "inventory", Count: 2}, res)
}

func TestQueryTool_Aggregate(t *testing.T) {
	tool, _ := newQueryTool(t)

	res, err := tool.Run(context.Background(), QueryInput{
		Collection: "inventory",
		Operation:  OpAggregate,
		Fields:     []string{"quantity", "missing"},
		GroupBy:    "category",
	})
	require.NoError(t, err)
	agg := res.(*AggregateResult)

	assert.Equal(t, 4, agg.Count)
	q := agg.Fields["quantity"]
	assert.Equal(t, 4, q.Count)
	assert.Equal(t, 55.0, q.Sum)
	assert.Equal(t, 13.75, q.Avg)
	assert.Equal(t, 0.0, q.Min)
	assert.Equal(t, 40.0, q.Max)
	assert.Equal(t, FieldStats{}, agg.Fields["missing"])

	require.Len(t, agg.Groups, 3)
	assert.Equal(t, "analgesic", agg.Groups[0].Key)
	assert.Equal(t, 2, agg.Groups[0].Count)
	assert.Equal(t, 15.0, agg.Groups[0].Sums["quantity"])
	assert.Equal(t, []string{"Aspirin", "Ibuprofen"}, agg.Groups[0].Samples)
}

func TestQueryTool_GroupSamplesCapped(t *testing.T) {
	tool, store := newQueryTool(t)
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		_, err := store.Insert(ctx, "drugs", docstore.Document{"name": fmt.Sprintf("drug-%d", i), "form": "tablet"})
		require.NoError(t, err)
	}

	res, err := tool.Run(ctx, QueryInput{Collection: "drugs", Operation: OpAggregate, GroupBy: "form"})
	require.NoError(t, err)
	agg := res.(*AggregateResult)
	require.Len(t, agg.Groups, 1)
	assert.Equal(t, 9, agg.Groups[0].Count)
	assert.Len(t, agg.Groups[0].Samples, GroupSampleSize)
}

func TestQueryTool_Forbidden(t *testing.T) {
	tool, _ := newQueryTool(t)

	tests := []struct {
		name  string
		input QueryInput
	}{
		{"collection", QueryInput{Collection: "users", Operation: OpFind}},
		{"operation", QueryInput{Collection: "inventory", Operation: "delete"}},
		{"empty collection", QueryInput{Operation: OpCount}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Run(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}
}

func TestQueryTool_InvalidQuery(t *testing.T) {
	tool, _ := newQueryTool(t)

	tests := []struct {
		name  string
		input string
	}{
		{"unknown operator", `{"collection":"inventory","operation":"find","filter":{"quantity":{"$near":1}}}`},
		{"bad regex", `{"collection":"inventory","operation":"count","filter":{"name":{"$regex":"("}}}`},
		{"unknown field", `{"collection":"inventory","operation":"find","where":{}}`},
		{"not json", `find everything`},
		{"bad sort order", `{"collection":"inventory","operation":"find","sort":[{"field":"name","order":"up"}]}`},
		{"empty aggregate", `{"collection":"inventory","operation":"aggregate"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runQuery(t, tool, tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidQuery), "got %v", err)
		})
	}
}

func TestQueryTool_Definition(t *testing.T) {
	tool, _ := newQueryTool(t)
	r := NewRegistry(nil)
	require.NoError(t, r.Register(tool))

	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, QueryToolName, defs[0].Name)
	assert.Contains(t, defs[0].Description, "inventory")
	assert.Equal(t, []string{"collection", "operation"}, defs[0].InputSchema["required"])
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultFindLimit, ClampLimit(0))
	assert.Equal(t, DefaultFindLimit, ClampLimit(-3))
	assert.Equal(t, 1, ClampLimit(1))
	assert.Equal(t, MaxFindLimit, ClampLimit(MaxFindLimit))
	assert.Equal(t, MaxFindLimit, ClampLimit(MaxFindLimit+1))
}
