package quick

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wasilibs/go-re2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/aatumaykin/stockpilot/internal/analytics"
)

// Defaults used when the query names no number.
const (
	DefaultTopN          = 5
	DefaultLowStock      = 10
	DefaultExpiryDays    = 30
	MaxListedItems       = 20
	maxRequestedQuantity = 100
)

// Built-in rule names.
const (
	RuleTopSelling     = "top_selling"
	RuleLowStock       = "low_stock"
	RuleExpiring       = "expiring"
	RuleInventoryValue = "inventory_value"
	RuleCustomerCount  = "customer_count"
)

var (
	topSellingPatterns = []*re2.Regexp{
		re2.MustCompile(`\b(?:top|best)\s+(\d{1,3})\s+(?:best[- ]?)?(?:selling|sold|sellers?)\b`),
		re2.MustCompile(`\b(?:top|best)[- ]?(?:selling|sellers?)(?:\s+(?:products|items|drugs))?\b`),
	}
	lowStockPatterns = []*re2.Regexp{
		re2.MustCompile(`\blow[- ]?stock\b(?:.*?\b(?:under|below|less than|<)\s*(\d{1,6}))?`),
		re2.MustCompile(`\b(?:items|products|drugs)\s+(?:with\s+)?(?:stock|quantity)?\s*(?:under|below|less than)\s+(\d{1,6})\b`),
		re2.MustCompile(`\b(?:running|run)\s+low\b`),
	}
	expiringPatterns = []*re2.Regexp{
		re2.MustCompile(`\bexpir(?:ing|e|es|y|ation)\b.*?\b(?:within|in|next)\s+(\d{1,3})\s+days?\b`),
		re2.MustCompile(`\bexpir(?:ing|ed|e)\s+(?:soon|products|items|drugs|medicines)\b`),
		re2.MustCompile(`\bwhat(?:'s| is)?\s+expiring\b`),
	}
	inventoryValuePatterns = []*re2.Regexp{
		re2.MustCompile(`\b(?:inventory|stock)\s+(?:total\s+)?value\b`),
		re2.MustCompile(`\bvalue\s+of\s+(?:the\s+|our\s+)?(?:inventory|stock)\b`),
		re2.MustCompile(`\bhow\s+much\s+is\s+(?:the\s+|our\s+)?(?:inventory|stock)\s+worth\b`),
	}
	customerCountPatterns = []*re2.Regexp{
		re2.MustCompile(`\bhow\s+many\s+customers\b`),
		re2.MustCompile(`\b(?:number|count|total)\s+of\s+customers\b`),
		re2.MustCompile(`\bcustomer\s+count\b`),
	}
)

// BuiltinRules returns the canned data queries in priority order.
func BuiltinRules(svc *analytics.Service) []Rule {
	p := message.NewPrinter(language.English)
	return []Rule{
		{Name: RuleTopSelling, Patterns: topSellingPatterns, Handler: topSelling(svc, p)},
		{Name: RuleLowStock, Patterns: lowStockPatterns, Handler: lowStock(svc, p)},
		{Name: RuleExpiring, Patterns: expiringPatterns, Handler: expiring(svc, p)},
		{Name: RuleInventoryValue, Patterns: inventoryValuePatterns, Handler: inventoryValue(svc, p)},
		{Name: RuleCustomerCount, Patterns: customerCountPatterns, Handler: customerCount(svc, p)},
	}
}

// numberGroup parses submatch 1, falling back to def when absent.
func numberGroup(m Match, def, max int) (int, error) {
	raw := m.Group(1)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	if n <= 0 || n > max {
		return 0, fmt.Errorf("value %d out of range 1..%d", n, max)
	}
	return n, nil
}

func topSelling(svc *analytics.Service, p *message.Printer) Handler {
	return func(ctx context.Context, m Match) (Answer, error) {
		n, err := numberGroup(m, DefaultTopN, maxRequestedQuantity)
		if err != nil {
			return Answer{}, err
		}
		top, err := svc.TopSelling(ctx, n, time.Time{})
		if err != nil {
			return Answer{}, err
		}
		if len(top) == 0 {
			return Answer{Message: "No sales recorded yet.", Data: top}, nil
		}

		var b strings.Builder
		b.WriteString(p.Sprintf("Top %d selling products:", len(top)))
		for i, s := range top {
			b.WriteString(p.Sprintf("\n%d. %s: %.0f units, revenue %.2f", i+1, s.Name, s.Quantity, s.Revenue))
		}
		return Answer{Message: b.String(), Data: top}, nil
	}
}

func lowStock(svc *analytics.Service, p *message.Printer) Handler {
	return func(ctx context.Context, m Match) (Answer, error) {
		threshold, err := numberGroup(m, DefaultLowStock, 1_000_000)
		if err != nil {
			return Answer{}, err
		}
		lines, err := svc.StockBelow(ctx, float64(threshold), 0)
		if err != nil {
			return Answer{}, err
		}
		data := map[string]any{"threshold": threshold, "count": len(lines), "items": lines}
		if len(lines) == 0 {
			return Answer{Message: p.Sprintf("No items below %d units.", threshold), Data: data}, nil
		}

		var b strings.Builder
		b.WriteString(p.Sprintf("%d items below %d units:", len(lines), threshold))
		for i, l := range lines {
			if i == MaxListedItems {
				b.WriteString(p.Sprintf("\n...and %d more", len(lines)-MaxListedItems))
				break
			}
			b.WriteString(p.Sprintf("\n- %s: %.0f", l.Name, l.Quantity))
		}
		return Answer{Message: b.String(), Data: data}, nil
	}
}

func expiring(svc *analytics.Service, p *message.Printer) Handler {
	return func(ctx context.Context, m Match) (Answer, error) {
		days, err := numberGroup(m, DefaultExpiryDays, 365)
		if err != nil {
			return Answer{}, err
		}
		expired, soon, err := svc.Expiring(ctx, days)
		if err != nil {
			return Answer{}, err
		}
		data := map[string]any{"days": days, "expired": expired, "expiring": soon}
		if len(expired) == 0 && len(soon) == 0 {
			return Answer{Message: p.Sprintf("Nothing expires within %d days.", days), Data: data}, nil
		}

		var b strings.Builder
		b.WriteString(p.Sprintf("%d items expire within %d days, %d already expired.", len(soon), days, len(expired)))
		for i, l := range soon {
			if i == MaxListedItems {
				b.WriteString(p.Sprintf("\n...and %d more", len(soon)-MaxListedItems))
				break
			}
			b.WriteString(p.Sprintf("\n- %s: %s (%d days)", l.Name, l.ExpiryDate.Format("2006-01-02"), l.DaysLeft))
		}
		return Answer{Message: b.String(), Data: data}, nil
	}
}

func inventoryValue(svc *analytics.Service, p *message.Printer) Handler {
	return func(ctx context.Context, _ Match) (Answer, error) {
		v, err := svc.Value(ctx)
		if err != nil {
			return Answer{}, err
		}
		return Answer{
			Message: p.Sprintf("Inventory value: %.2f across %d items (%.0f units).", v.Total, v.Items, v.Units),
			Data:    v,
		}, nil
	}
}

func customerCount(svc *analytics.Service, p *message.Printer) Handler {
	return func(ctx context.Context, _ Match) (Answer, error) {
		n, err := svc.CustomerCount(ctx)
		if err != nil {
			return Answer{}, err
		}
		return Answer{Message: p.Sprintf("%d customers on record.", n), Data: map[string]int{"customers": n}}, nil
	}
}
