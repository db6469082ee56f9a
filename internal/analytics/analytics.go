// Package analytics implements the canned inventory and sales queries shared
// by the scheduled task handlers and the query fast path.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aatumaykin/stockpilot/internal/constants"
	"github.com/aatumaykin/stockpilot/internal/docstore"
)

// Service runs analytics queries against the document store.
type Service struct {
	docs *docstore.Store
	now  func() time.Time
}

// New creates a Service.
func New(docs *docstore.Store) *Service {
	return &Service{docs: docs, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Now returns the service clock time.
func (s *Service) Now() time.Time { return s.now() }

// StockLine is an inventory item with its current quantity.
type StockLine struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// LowStock returns inventory items with quantity <= threshold, lowest first.
// limit <= 0 returns all.
func (s *Service) LowStock(ctx context.Context, threshold float64, limit int) ([]StockLine, error) {
	return s.stock(ctx, "$lte", threshold, limit)
}

// StockBelow is LowStock with a strict bound: quantity < threshold.
func (s *Service) StockBelow(ctx context.Context, threshold float64, limit int) ([]StockLine, error) {
	return s.stock(ctx, "$lt", threshold, limit)
}

func (s *Service) stock(ctx context.Context, op string, threshold float64, limit int) ([]StockLine, error) {
	docs, err := s.docs.Find(ctx, constants.CollectionInventory, docstore.FindOptions{
		Filter: map[string]any{"quantity": map[string]any{op: threshold}},
		Sort:   []docstore.SortField{{Field: "quantity"}, {Field: "name"}},
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("low stock query: %w", err)
	}

	lines := make([]StockLine, 0, len(docs))
	for _, d := range docs {
		q, _ := docstore.ToFloat(d["quantity"])
		lines = append(lines, StockLine{ID: str(d["id"]), Name: displayName(d), Quantity: q})
	}
	return lines, nil
}

// ExpiryLine is a product with an expiry date.
type ExpiryLine struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Collection string    `json:"collection"`
	ExpiryDate time.Time `json:"expiryDate"`
	DaysLeft   int       `json:"daysLeft"`
}

// Expiring splits products of the drugs and inventory collections into
// already expired and expiring within days, each ordered by expiry date.
// Documents without a parseable expiryDate are skipped.
func (s *Service) Expiring(ctx context.Context, days int) (expired, expiring []ExpiryLine, err error) {
	today := truncateDay(s.now())
	for _, collection := range []string{constants.CollectionDrugs, constants.CollectionInventory} {
		docs, err := s.docs.Find(ctx, collection, docstore.FindOptions{
			Filter: map[string]any{"expiryDate": map[string]any{"$exists": true}},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("expiry query on %s: %w", collection, err)
		}
		for _, d := range docs {
			date, ok := ParseDate(d["expiryDate"])
			if !ok {
				continue
			}
			y, m, dd := date.Date()
			expiryDay := time.Date(y, m, dd, 0, 0, 0, 0, today.Location())
			left := int(math.Round(expiryDay.Sub(today).Hours() / 24))
			line := ExpiryLine{
				ID:         str(d["id"]),
				Name:       displayName(d),
				Collection: collection,
				ExpiryDate: date,
				DaysLeft:   left,
			}
			switch {
			case left < 0:
				expired = append(expired, line)
			case left <= days:
				expiring = append(expiring, line)
			}
		}
	}

	byDate := func(lines []ExpiryLine) {
		sort.SliceStable(lines, func(i, j int) bool { return lines[i].ExpiryDate.Before(lines[j].ExpiryDate) })
	}
	byDate(expired)
	byDate(expiring)
	return expired, expiring, nil
}

// ProductSales aggregates sold units and revenue for one product.
type ProductSales struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

// SalesSummary aggregates transactions since a point in time.
type SalesSummary struct {
	Since        time.Time      `json:"since"`
	Transactions int            `json:"transactions"`
	Revenue      float64        `json:"revenue"`
	UnitsSold    float64        `json:"unitsSold"`
	TopProducts  []ProductSales `json:"topProducts"`
}

// Sales aggregates transactions dated at or after since. Transactions carry
// a "date" (or "createdAt"), a "total" and an "items" array of
// {name, quantity, price}; total is derived from items when absent.
func (s *Service) Sales(ctx context.Context, since time.Time, topN int) (SalesSummary, error) {
	docs, err := s.docs.Find(ctx, constants.CollectionTransactions, docstore.FindOptions{})
	if err != nil {
		return SalesSummary{}, fmt.Errorf("sales query: %w", err)
	}

	summary := SalesSummary{Since: since}
	products := map[string]*ProductSales{}
	for _, d := range docs {
		date, ok := ParseDate(firstOf(d, "date", "createdAt"))
		if !ok || date.Before(since) {
			continue
		}
		summary.Transactions++

		var itemsTotal float64
		items, _ := d["items"].([]any)
		for _, raw := range items {
			item, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			qty, _ := docstore.ToFloat(item["quantity"])
			price, _ := docstore.ToFloat(item["price"])
			name := displayName(item)
			p, ok := products[name]
			if !ok {
				p = &ProductSales{Name: name}
				products[name] = p
			}
			p.Quantity += qty
			p.Revenue += qty * price
			summary.UnitsSold += qty
			itemsTotal += qty * price
		}

		if total, ok := docstore.ToFloat(d["total"]); ok {
			summary.Revenue += total
		} else {
			summary.Revenue += itemsTotal
		}
	}

	summary.TopProducts = topProducts(products, topN)
	return summary, nil
}

// TopSelling returns the n best-selling products by units since the given time.
func (s *Service) TopSelling(ctx context.Context, n int, since time.Time) ([]ProductSales, error) {
	summary, err := s.Sales(ctx, since, n)
	if err != nil {
		return nil, err
	}
	return summary.TopProducts, nil
}

func topProducts(products map[string]*ProductSales, n int) []ProductSales {
	out := make([]ProductSales, 0, len(products))
	for _, p := range products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// InventoryValue is the stock valuation at current prices.
type InventoryValue struct {
	Items int     `json:"items"`
	Units float64 `json:"units"`
	Total float64 `json:"total"`
}

// Value sums quantity*price over the inventory collection.
func (s *Service) Value(ctx context.Context) (InventoryValue, error) {
	docs, err := s.docs.Find(ctx, constants.CollectionInventory, docstore.FindOptions{})
	if err != nil {
		return InventoryValue{}, fmt.Errorf("inventory value query: %w", err)
	}
	var v InventoryValue
	for _, d := range docs {
		qty, _ := docstore.ToFloat(d["quantity"])
		price, _ := docstore.ToFloat(d["price"])
		v.Items++
		v.Units += qty
		v.Total += qty * price
	}
	return v, nil
}

// CustomerCount returns the number of customer documents.
func (s *Service) CustomerCount(ctx context.Context) (int, error) {
	n, err := s.docs.Count(ctx, constants.CollectionCustomers, nil)
	if err != nil {
		return 0, fmt.Errorf("customer count query: %w", err)
	}
	return n, nil
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// ParseDate accepts RFC 3339 timestamps, plain dates and unix milliseconds.
func ParseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		x = strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t, true
			}
		}
	case float64:
		return time.UnixMilli(int64(x)), true
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func firstOf(d map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := d[k]; ok {
			return v
		}
	}
	return nil
}

func displayName(d map[string]any) string {
	for _, k := range []string{"name", "productName", "title"} {
		if s, ok := d[k].(string); ok && s != "" {
			return s
		}
	}
	return str(d["id"])
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
