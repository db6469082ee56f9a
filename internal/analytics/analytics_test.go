package analytics

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/stockpilot/internal/docstore"
	"github.com/aatumaykin/stockpilot/internal/storage"
)

var testNow = time.Date(2026, 5, 15, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, docs *docstore.Store, collection, raw string) {
	t.Helper()
	var items []docstore.Document
	require.NoError(t, json.Unmarshal([]byte(raw), &items))
	_, err := docs.InsertMany(context.Background(), collection, items)
	require.NoError(t, err)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "analytics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	docs := docstore.New(db)

	seed(t, docs, "inventory", `[
		{"id": "i1", "name": "Aspirin", "quantity": 3, "price": 2.5},
		{"id": "i2", "name": "Bandage", "quantity": 0, "price": 1},
		{"id": "i3", "name": "Cough syrup", "quantity": 25, "price": 4, "expiryDate": "2026-05-20"},
		{"id": "i4", "name": "Gloves", "quantity": 8, "price": 0.5}
	]`)
	seed(t, docs, "drugs", `[
		{"id": "d1", "name": "Amoxicillin", "expiryDate": "2026-05-01"},
		{"id": "d2", "name": "Insulin", "expiryDate": "2026-06-10T00:00:00Z"},
		{"id": "d3", "name": "Saline", "expiryDate": "2027-01-01"},
		{"id": "d4", "name": "Unknown", "expiryDate": "soon"}
	]`)
	seed(t, docs, "transactions", `[
		{"id": "t1", "date": "2026-05-15T08:00:00Z", "total": 12.5, "items": [{"name": "Aspirin", "quantity": 3, "price": 2.5}, {"name": "Gloves", "quantity": 10, "price": 0.5}]},
		{"id": "t2", "date": "2026-05-14T20:00:00Z", "items": [{"name": "Gloves", "quantity": 4, "price": 0.5}]},
		{"id": "t3", "date": "2026-05-01T09:00:00Z", "total": 100, "items": [{"name": "Insulin", "quantity": 50, "price": 2}]}
	]`)
	seed(t, docs, "customers", `[{"name": "A"}, {"name": "B"}, {"name": "C"}]`)

	return New(docs).WithClock(func() time.Time { return testNow })
}

func TestLowStock(t *testing.T) {
	s := newTestService(t)

	lines, err := s.LowStock(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, StockLine{ID: "i2", Name: "Bandage", Quantity: 0}, lines[0])
	assert.Equal(t, "Aspirin", lines[1].Name)

	lines, err = s.LowStock(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Len(t, lines, 1)
}

func TestStockBelowIsStrict(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	inclusive, err := s.LowStock(ctx, 3, 0)
	require.NoError(t, err)
	assert.Len(t, inclusive, 2, "Aspirin with exactly 3 units is at the threshold")

	strict, err := s.StockBelow(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, strict, 1)
	assert.Equal(t, "Bandage", strict[0].Name)

	strict, err = s.StockBelow(ctx, 8, 0)
	require.NoError(t, err)
	assert.Len(t, strict, 2, "Gloves with 8 units is not below 8")
}

func TestExpiring(t *testing.T) {
	s := newTestService(t)

	expired, expiring, err := s.Expiring(context.Background(), 30)
	require.NoError(t, err)

	require.Len(t, expired, 1)
	assert.Equal(t, "Amoxicillin", expired[0].Name)
	assert.Equal(t, -14, expired[0].DaysLeft)

	require.Len(t, expiring, 2)
	assert.Equal(t, "Cough syrup", expiring[0].Name)
	assert.Equal(t, 5, expiring[0].DaysLeft)
	assert.Equal(t, "inventory", expiring[0].Collection)
	assert.Equal(t, "Insulin", expiring[1].Name)
	assert.Equal(t, 26, expiring[1].DaysLeft)
}

func TestSales(t *testing.T) {
	s := newTestService(t)

	summary, err := s.Sales(context.Background(), testNow.Add(-24*time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Transactions)
	assert.InDelta(t, 14.5, summary.Revenue, 0.0001)
	assert.Equal(t, 17.0, summary.UnitsSold)
	require.Len(t, summary.TopProducts, 2)
	assert.Equal(t, ProductSales{Name: "Gloves", Quantity: 14, Revenue: 7}, summary.TopProducts[0])

	top, err := s.TopSelling(context.Background(), 1, time.Time{})
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Insulin", top[0].Name)
}

func TestValueAndCustomers(t *testing.T) {
	s := newTestService(t)

	v, err := s.Value(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, v.Items)
	assert.Equal(t, 36.0, v.Units)
	assert.InDelta(t, 3*2.5+0+25*4+8*0.5, v.Total, 0.0001)

	n, err := s.CustomerCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestParseDate(t *testing.T) {
	for _, in := range []any{"2026-05-15", "2026-05-15T10:00:00Z", "2026-05-15 10:00:00", float64(1778839200000)} {
		_, ok := ParseDate(in)
		assert.True(t, ok, "%v", in)
	}
	_, ok := ParseDate("yesterday")
	assert.False(t, ok)
	_, ok = ParseDate(nil)
	assert.False(t, ok)
}
