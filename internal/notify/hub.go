package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/stockpilot/internal/logger"
)

// DefaultCapacity is the history size used when none is configured.
const DefaultCapacity = 100

// Hub owns the notification history and the observer set.
type Hub struct {
	mu        sync.Mutex
	items     []Notification // newest first
	capacity  int
	observers map[int]Observer
	nextObs   int

	logger *logger.Logger
	now    func() time.Time
}

// NewHub creates a hub keeping at most capacity notifications.
func NewHub(capacity int, log *logger.Logger) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		items:     make([]Notification, 0, capacity),
		capacity:  capacity,
		observers: make(map[int]Observer),
		logger:    log,
		now:       time.Now,
	}
}

// Emit stores n and delivers it to every observer. ID, Timestamp and Read are
// assigned by the hub. Observer failures are logged and swallowed.
func (h *Hub) Emit(n Notification) Notification {
	n.ID = uuid.NewString()
	n.Timestamp = h.now()
	n.Read = false
	if n.Type == "" {
		n.Type = TypeInfo
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}

	h.mu.Lock()
	if len(h.items) < h.capacity {
		h.items = append(h.items, Notification{})
	}
	copy(h.items[1:], h.items[:len(h.items)-1])
	h.items[0] = n

	observers := make([]Observer, 0, len(h.observers))
	for _, o := range h.observers {
		observers = append(observers, o)
	}
	h.mu.Unlock()

	for _, o := range observers {
		h.deliver(o, n)
	}
	return n
}

func (h *Hub) deliver(o Observer, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("notification observer panicked", fmt.Errorf("%v", r),
				logger.Field{Key: "notification_id", Value: n.ID})
		}
	}()
	if err := o.Notify(n); err != nil {
		h.logger.Warn("notification observer failed",
			logger.Field{Key: "notification_id", Value: n.ID},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

// Subscribe registers o and returns a function that removes it.
func (h *Hub) Subscribe(o Observer) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextObs
	h.nextObs++
	h.observers[id] = o
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.observers, id)
			h.mu.Unlock()
		})
	}
}

// MarkRead flags the notification with id as read.
func (h *Hub) MarkRead(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.items {
		if h.items[i].ID == id {
			h.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags every notification as read and returns how many changed.
func (h *Hub) MarkAllRead() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for i := range h.items {
		if !h.items[i].Read {
			h.items[i].Read = true
			n++
		}
	}
	return n
}

// History returns up to limit notifications, newest first. limit <= 0
// returns all.
func (h *Hub) History(limit int) []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.items) {
		limit = len(h.items)
	}
	out := make([]Notification, limit)
	copy(out, h.items[:limit])
	return out
}

// Unread returns unread notifications, newest first.
func (h *Hub) Unread() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []Notification{}
	for _, n := range h.items {
		if !n.Read {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of stored notifications.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}
