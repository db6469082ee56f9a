package llm

import (
	"context"
	"time"

	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
	"github.com/aatumaykin/stockpilot/internal/retry"
)

// ClientConfig holds request defaults applied by Client.Send.
type ClientConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
	// Retry applies to upstream 5xx responses only. Zero MaxAttempts means a
	// single attempt.
	Retry retry.Config
}

// Client is the rate-limited entry point to a Provider.
type Client struct {
	provider Provider
	limiter  *RateLimiter
	config   ClientConfig
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewClient wraps provider. A nil limiter admits every request.
func NewClient(provider Provider, limiter *RateLimiter, cfg ClientConfig, m *metrics.Metrics, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = log
	}
	return &Client{provider: provider, limiter: limiter, config: cfg, metrics: m, logger: log.Component("llm")}
}

// Send admits the request through the limiter and forwards it to the
// provider. Limiter rejections come back as *RateLimitedError without any
// network call; provider failures keep their typed errors.
func (c *Client) Send(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.config.Model
	}
	if req.Model == "" {
		req.Model = c.provider.GetDefaultModel()
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.config.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = c.config.Temperature
	}
	if !c.provider.SupportsToolCalling() {
		req.Tools = nil
	}

	attempt := func() (*ChatResponse, error) {
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx); err != nil {
				c.metrics.RecordLLMRequest("rate_limited", 0)
				return nil, err
			}
		}

		start := time.Now()
		resp, err := c.provider.Chat(ctx, req)
		if err != nil {
			kind := ErrorKind(err)
			if kind == "" {
				kind = "error"
			}
			c.metrics.RecordLLMRequest(kind, time.Since(start))
			return nil, err
		}
		c.metrics.RecordLLMRequest("ok", time.Since(start))
		return resp, nil
	}

	var (
		resp *ChatResponse
		err  error
	)
	if c.config.Retry.MaxAttempts == 1 {
		resp, err = attempt()
	} else {
		resp, err = retry.Do(ctx, c.config.Retry, attempt)
	}
	if err != nil {
		c.logger.WarnCtx(ctx, "model request failed",
			logger.Field{Key: "model", Value: req.Model},
			logger.Field{Key: "error", Value: err.Error()})
		return nil, err
	}

	c.metrics.RecordTokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}

// Limiter returns the rate limiter, possibly nil.
func (c *Client) Limiter() *RateLimiter {
	return c.limiter
}
