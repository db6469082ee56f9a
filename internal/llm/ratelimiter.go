package llm

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the lifetime of one rate limit window.
const DefaultWindow = time.Minute

// Window is a snapshot of the limiter state.
type Window struct {
	RequestCount int       `json:"requestCount"`
	WindowStart  time.Time `json:"windowStart"`
	LastRequest  time.Time `json:"lastRequest"`
}

// RateLimiter is a fixed 60-second window counter with a minimum gap
// between accepted requests.
//
// A caller that has to wait reserves its slot under the mutex and sleeps
// outside it, so the next caller computes its own slot right away instead of
// queueing behind the sleeper.
type RateLimiter struct {
	mu          sync.Mutex
	max         int
	window      time.Duration
	minInterval time.Duration
	count       int
	windowStart time.Time
	lastRequest time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter создает лимитер: не более maxPerMinute запросов в окне и
// не чаще одного запроса в minInterval. Неположительный max отключает лимит.
func NewRateLimiter(maxPerMinute int, minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		max:         maxPerMinute,
		window:      DefaultWindow,
		minInterval: minInterval,
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// WithClock replaces the time source and sleeper; used by tests.
func (r *RateLimiter) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *RateLimiter {
	r.now = now
	r.sleep = sleep
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire admits one request. It fails fast with *RateLimitedError when the
// window is full; otherwise it waits out the remaining minimum interval.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	wait, err := r.reserve()
	if err != nil {
		return err
	}
	if wait > 0 {
		return r.sleep(ctx, wait)
	}
	return nil
}

func (r *RateLimiter) reserve() (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	// Окно истекло - начинаем новое
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= r.window {
		r.windowStart = now
		r.count = 0
	}

	if r.max > 0 && r.count >= r.max {
		return 0, &RateLimitedError{RetryAfter: r.windowStart.Add(r.window).Sub(now)}
	}

	slot := now
	if !r.lastRequest.IsZero() {
		if earliest := r.lastRequest.Add(r.minInterval); earliest.After(slot) {
			slot = earliest
		}
	}
	r.count++
	r.lastRequest = slot
	return slot.Sub(now), nil
}

// Snapshot returns the current window.
func (r *RateLimiter) Snapshot() Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Window{RequestCount: r.count, WindowStart: r.windowStart, LastRequest: r.lastRequest}
}

// Reset clears the window.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count = 0
	r.windowStart = time.Time{}
	r.lastRequest = time.Time{}
}
