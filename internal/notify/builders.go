package notify

import (
	"fmt"
	"strings"
	"time"
)

const (
	sourceScheduler = "scheduler"
	sourceQuery     = "query"
)

// StockItem is an inventory line at or below the stock threshold.
type StockItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// StockAlert reports low stock. Any item with zero quantity makes the alert
// critical.
func (h *Hub) StockAlert(taskName string, threshold float64, items []StockItem) Notification {
	out := 0
	for _, it := range items {
		if it.Quantity <= 0 {
			out++
		}
	}

	n := Notification{
		Type:     TypeWarning,
		Priority: PriorityHigh,
		Title:    "Low stock",
		Source:   sourceScheduler,
		TaskName: taskName,
		Data: map[string]any{
			"threshold":  threshold,
			"count":      len(items),
			"outOfStock": out,
			"items":      items,
		},
	}
	n.Message = fmt.Sprintf("%d item(s) at or below %g units", len(items), threshold)
	if out > 0 {
		n.Type = TypeError
		n.Priority = PriorityCritical
		n.Message += fmt.Sprintf(", %d out of stock", out)
	}
	if names := itemNames(items, 5); names != "" {
		n.Message += ": " + names
	}
	return h.Emit(n)
}

func itemNames(items []StockItem, max int) string {
	names := make([]string, 0, max)
	for i, it := range items {
		if i == max {
			names = append(names, fmt.Sprintf("and %d more", len(items)-max))
			break
		}
		names = append(names, it.Name)
	}
	return strings.Join(names, ", ")
}

// ExpiryItem is a product whose expiry date is past or near.
type ExpiryItem struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ExpiryDate time.Time `json:"expiryDate"`
	DaysLeft   int       `json:"daysLeft"`
}

// ExpiryAlert reports expired and soon-to-expire products.
func (h *Hub) ExpiryAlert(taskName string, days int, expired, expiring []ExpiryItem) Notification {
	n := Notification{
		Type:     TypeWarning,
		Priority: PriorityNormal,
		Title:    "Expiring products",
		Source:   sourceScheduler,
		TaskName: taskName,
		Data: map[string]any{
			"days":     days,
			"expired":  expired,
			"expiring": expiring,
		},
	}

	for _, it := range expiring {
		if it.DaysLeft <= 7 {
			n.Priority = PriorityHigh
			break
		}
	}

	switch {
	case len(expired) > 0 && len(expiring) > 0:
		n.Message = fmt.Sprintf("%d product(s) expired, %d expiring within %d days", len(expired), len(expiring), days)
	case len(expired) > 0:
		n.Message = fmt.Sprintf("%d product(s) expired", len(expired))
	default:
		n.Message = fmt.Sprintf("%d product(s) expiring within %d days", len(expiring), days)
	}
	if len(expired) > 0 {
		n.Type = TypeError
		n.Priority = PriorityCritical
		n.Title = "Expired products"
	}
	return h.Emit(n)
}

// ReportReady announces a generated report.
func (h *Hub) ReportReady(taskName, title, summary string, data any) Notification {
	return h.Emit(Notification{
		Type:     TypeSuccess,
		Priority: PriorityNormal,
		Title:    title,
		Message:  summary,
		Source:   sourceScheduler,
		TaskName: taskName,
		Data:     data,
	})
}

// BackupResult announces the outcome of a database snapshot.
func (h *Hub) BackupResult(taskName, path string, sizeBytes int64, err error) Notification {
	if err != nil {
		return h.Emit(Notification{
			Type:     TypeError,
			Priority: PriorityHigh,
			Title:    "Backup failed",
			Message:  err.Error(),
			Source:   sourceScheduler,
			TaskName: taskName,
		})
	}
	return h.Emit(Notification{
		Type:     TypeSuccess,
		Priority: PriorityLow,
		Title:    "Backup completed",
		Message:  fmt.Sprintf("Snapshot written to %s (%d bytes)", path, sizeBytes),
		Source:   sourceScheduler,
		TaskName: taskName,
		Data:     map[string]any{"path": path, "sizeBytes": sizeBytes},
	})
}

// TaskResult announces the generic outcome of a scheduled or manual run.
func (h *Hub) TaskResult(taskName, trigger string, err error) Notification {
	if err != nil {
		return h.Emit(Notification{
			Type:     TypeError,
			Priority: PriorityHigh,
			Title:    "Task failed: " + taskName,
			Message:  err.Error(),
			Source:   sourceScheduler,
			TaskName: taskName,
			Data:     map[string]any{"trigger": trigger},
		})
	}
	return h.Emit(Notification{
		Type:     TypeSuccess,
		Priority: PriorityLow,
		Title:    "Task completed: " + taskName,
		Message:  fmt.Sprintf("%s finished (%s)", taskName, trigger),
		Source:   sourceScheduler,
		TaskName: taskName,
		Data:     map[string]any{"trigger": trigger},
	})
}

// QueryResult announces the terminal state of a natural-language query.
func (h *Hub) QueryResult(query, resultType string, err error) Notification {
	short := query
	if r := []rune(short); len(r) > 80 {
		short = string(r[:77]) + "..."
	}
	if err != nil {
		return h.Emit(Notification{
			Type:     TypeError,
			Priority: PriorityNormal,
			Title:    "Query failed",
			Message:  fmt.Sprintf("%q: %v", short, err),
			Source:   sourceQuery,
			Data:     map[string]any{"type": resultType},
		})
	}
	return h.Emit(Notification{
		Type:     TypeSuccess,
		Priority: PriorityLow,
		Title:    "Query answered",
		Message:  short,
		Source:   sourceQuery,
		Data:     map[string]any{"type": resultType},
	})
}
