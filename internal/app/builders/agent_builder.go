package builders

import (
	"fmt"

	"github.com/aatumaykin/stockpilot/internal/agent"
	"github.com/aatumaykin/stockpilot/internal/agent/loop"
	"github.com/aatumaykin/stockpilot/internal/agent/quick"
	"github.com/aatumaykin/stockpilot/internal/agent/session"
	"github.com/aatumaykin/stockpilot/internal/analytics"
	"github.com/aatumaykin/stockpilot/internal/config"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/llm"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
	"github.com/aatumaykin/stockpilot/internal/notify"
	"github.com/aatumaykin/stockpilot/internal/tools"
)

type AgentBuilder struct {
	config    *config.Config
	logger    *logger.Logger
	client    *llm.Client
	docs      tools.DocumentReader
	analytics *analytics.Service
	sessions  *session.Store
}

// NewAgentBuilder prepares the orchestrator wiring. client may be nil.
func NewAgentBuilder(cfg *config.Config, log *logger.Logger, client *llm.Client, docs tools.DocumentReader, svc *analytics.Service) *AgentBuilder {
	return &AgentBuilder{
		config:    cfg,
		logger:    log,
		client:    client,
		docs:      docs,
		analytics: svc,
		sessions:  session.NewStore(cfg.Agent.MaxHistoryLength),
	}
}

// Sessions returns the conversation store shared with the orchestrator.
func (b *AgentBuilder) Sessions() *session.Store { return b.sessions }

// BuildRunner returns nil when no model client is configured.
func (b *AgentBuilder) BuildRunner() (*loop.Runner, error) {
	if b.client == nil {
		return nil, nil
	}
	runner, err := agent.NewRunner(b.client, b.docs, agent.RunnerConfig{
		Model:         b.config.LLM.Model,
		MaxTokens:     b.config.LLM.MaxTokens,
		Temperature:   b.config.LLM.Temperature,
		MaxIterations: b.config.Agent.MaxToolIterations,
	}, b.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent runner: %w", err)
	}
	return runner, nil
}

func (b *AgentBuilder) BuildOrchestrator(l *ledger.Ledger, hub *notify.Hub, m *metrics.Metrics) (*agent.Orchestrator, error) {
	runner, err := b.BuildRunner()
	if err != nil {
		return nil, err
	}
	matcher := quick.NewMatcher(b.logger, quick.BuiltinRules(b.analytics)...)

	o := agent.New(agent.Options{
		Quick:    matcher,
		Runner:   runner,
		Sessions: b.sessions,
		Ledger:   l,
		Hub:      hub,
		Metrics:  m,
		Logger:   b.logger,
	})
	b.logger.Info("query orchestrator initialized",
		logger.Field{Key: "quick_rules", Value: len(matcher.Rules())},
		logger.Field{Key: "model_configured", Value: runner != nil})
	return o, nil
}
