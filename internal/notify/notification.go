// Package notify keeps a bounded in-memory notification history and fans
// every new notification out to registered observers (SSE clients, the
// Telegram forwarder, metrics).
package notify

import (
	"time"
)

// Type classifies a notification for display.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Priority orders notifications by urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns a comparable weight; unknown priorities rank as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 1
	}
}

// ParsePriority converts a config value; ok is false for unknown names.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return p, true
	}
	return PriorityNormal, false
}

// Notification is a user-facing message.
type Notification struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Priority  Priority  `json:"priority"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	TaskName  string    `json:"taskName,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Observer receives every emitted notification.
type Observer interface {
	Notify(n Notification) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(n Notification) error

func (f ObserverFunc) Notify(n Notification) error { return f(n) }
