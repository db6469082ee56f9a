package builders

import (
	"fmt"
	"time"

	"github.com/aatumaykin/stockpilot/internal/config"
	"github.com/aatumaykin/stockpilot/internal/llm"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
	"github.com/aatumaykin/stockpilot/internal/retry"
)

type LLMBuilder struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewLLMBuilder(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *LLMBuilder {
	return &LLMBuilder{
		config:  cfg,
		logger:  log,
		metrics: m,
	}
}

// BuildProvider returns nil for provider "none".
func (b *LLMBuilder) BuildProvider() (llm.Provider, error) {
	switch b.config.LLM.Provider {
	case "anthropic":
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:         b.config.LLM.APIKey,
			BaseURL:        b.config.LLM.BaseURL,
			Model:          b.config.LLM.Model,
			TimeoutSeconds: b.config.LLM.TimeoutSeconds,
		}, b.logger), nil
	case "mock":
		return llm.NewEchoProvider(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", b.config.LLM.Provider)
	}
}

// Build wraps the provider in the rate-limited client. A nil client means
// no model is configured.
func (b *LLMBuilder) Build() (*llm.Client, error) {
	provider, err := b.BuildProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		b.logger.Warn("LLM provider disabled, model queries will report config_error")
		return nil, nil
	}

	rl := b.config.LLM.RateLimit
	limiter := llm.NewRateLimiter(rl.MaxRequestsPerMinute, time.Duration(rl.MinIntervalMillis)*time.Millisecond)

	client := llm.NewClient(provider, limiter, llm.ClientConfig{
		Model:       b.config.LLM.Model,
		MaxTokens:   b.config.LLM.MaxTokens,
		Temperature: b.config.LLM.Temperature,
		Retry: retry.Config{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
			Logger:         b.logger,
		},
	}, b.metrics, b.logger)

	b.logger.Info("LLM provider initialized",
		logger.Field{Key: "provider", Value: b.config.LLM.Provider},
		logger.Field{Key: "model", Value: b.config.LLM.Model},
		logger.Field{Key: "max_requests_per_minute", Value: rl.MaxRequestsPerMinute})
	return client, nil
}
