package llm

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError is returned by the local limiter when the window ceiling
// is reached. No request was sent.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitedError) Retryable() bool { return false }

// AuthError is returned for rejected credentials (401/403).
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Message)
}

func (e *AuthError) Retryable() bool { return false }

// UpstreamRateLimitError is returned when the backend itself answers 429.
type UpstreamRateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *UpstreamRateLimitError) Error() string {
	return fmt.Sprintf("upstream rate limit: %s", e.Message)
}

func (e *UpstreamRateLimitError) Retryable() bool { return false }

// UpstreamError is returned for backend 5xx responses.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Retryable() bool { return true }

// APIError covers every other non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Retryable() bool { return false }

// ErrorKind classifies err for metrics and API responses: "rate_limited",
// "auth", "upstream_rate_limited", "upstream", "api" or "" for errors that
// did not come from this package.
func ErrorKind(err error) string {
	var (
		rl   *RateLimitedError
		auth *AuthError
		url  *UpstreamRateLimitError
		up   *UpstreamError
		api  *APIError
	)
	switch {
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &auth):
		return "auth"
	case errors.As(err, &url):
		return "upstream_rate_limited"
	case errors.As(err, &up):
		return "upstream"
	case errors.As(err, &api):
		return "api"
	}
	return ""
}
