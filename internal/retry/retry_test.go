package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type statusErr struct {
	status    int
	retryable bool
}

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e *statusErr) Retryable() bool { return e.retryable }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), true},
		{"context canceled", context.Canceled, false},
		{"timeout text", errors.New("Connection Timeout"), true},
		{"429 status code", errors.New("HTTP 429 Too Many Requests"), true},
		{"rate limit text", errors.New("rate limit reached"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"eof", errors.New("unexpected EOF"), true},
		{"500 server error", errors.New("HTTP 500 Internal Server Error"), true},
		{"503 service unavailable", errors.New("HTTP 503 Service Unavailable"), true},
		{"401 unauthorized", errors.New("HTTP 401 Unauthorized"), false},
		{"403 forbidden", errors.New("Forbidden: bot was blocked by the user"), false},
		{"400 bad request", errors.New("HTTP 400 Bad Request"), false},
		{"unknown", errors.New("something odd"), false},
		{"typed retryable", &statusErr{status: 418, retryable: true}, true},
		{"typed permanent", fmt.Errorf("wrap: %w", &statusErr{status: 503, retryable: false}), false},
		{"permanent wrapper", Permanent(errors.New("HTTP 503")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("Do() = %v, %v; want 42, nil", got, err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset by peer")
		}
		return "sent", nil
	})
	if err != nil || got != "sent" {
		t.Fatalf("Do() = %q, %v; want sent, nil", got, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_AllFailures(t *testing.T) {
	calls := 0
	base := errors.New("timeout")
	_, err := Do(context.Background(), fastConfig(4), func() (int, error) {
		calls++
		return 0, base
	})
	if !errors.Is(err, base) {
		t.Fatalf("error = %v, want wrapped %v", err, base)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestDoWithRetry_NonRetryableError(t *testing.T) {
	calls := 0
	err := DoWithRetry(context.Background(), fastConfig(5), func() error {
		calls++
		return errors.New("HTTP 401 Unauthorized")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := DoWithRetry(ctx, Config{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCalculateBackoff_Values(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{70, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			if got := calculateBackoff(tt.attempt, time.Second, 10*time.Second); got != tt.expected {
				t.Errorf("calculateBackoff() = %v, want %v", got, tt.expected)
			}
		})
	}
}
