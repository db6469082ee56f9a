// Package agent answers natural-language back-office queries: canned data
// queries first, then the model with the read-only query tool.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/stockpilot/internal/agent/loop"
	"github.com/aatumaykin/stockpilot/internal/agent/quick"
	"github.com/aatumaykin/stockpilot/internal/agent/session"
	"github.com/aatumaykin/stockpilot/internal/constants"
	"github.com/aatumaykin/stockpilot/internal/ledger"
	"github.com/aatumaykin/stockpilot/internal/llm"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/metrics"
	"github.com/aatumaykin/stockpilot/internal/notify"
)

// ResultType classifies a query outcome.
type ResultType string

const (
	TypeQuickQuery  ResultType = "quick_query"
	TypeAIResponse  ResultType = "ai_response"
	TypeConfigError ResultType = "config_error"
	TypeAPIError    ResultType = "api_error"
	TypeError       ResultType = "error"
)

// RunName is the ledger name of query runs.
const RunName = "query"

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query cannot be empty")

// ErrNotConfigured is returned when a query needs the model but no provider
// is configured.
var ErrNotConfigured = errors.New("AI model is not configured")

// Request is one query.
type Request struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

// Result is the outcome of Process.
type Result struct {
	Success    bool       `json:"success"`
	Type       ResultType `json:"type"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
	Usage      *llm.Usage `json:"usage,omitempty"`
	Data       any        `json:"data,omitempty"`
	Iterations int        `json:"iterations,omitempty"`
	RunID      string     `json:"runId,omitempty"`
}

// Options wires the orchestrator. Runner may be nil when no model provider
// is configured; every other query then yields a config_error result.
type Options struct {
	Quick    *quick.Matcher
	Runner   *loop.Runner
	Sessions *session.Store
	Ledger   *ledger.Ledger
	Hub      *notify.Hub
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// Orchestrator processes queries. It is safe for concurrent use.
type Orchestrator struct {
	quick    *quick.Matcher
	runner   *loop.Runner
	sessions *session.Store
	ledger   *ledger.Ledger
	hub      *notify.Hub
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.DefaultMaxHistoryLength)
	}
	return &Orchestrator{
		quick:    opts.Quick,
		runner:   opts.Runner,
		sessions: sessions,
		ledger:   opts.Ledger,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		logger:   log.Component("orchestrator"),
	}
}

// ModelConfigured reports whether queries can fall back to the model.
func (o *Orchestrator) ModelConfigured() bool { return o.runner != nil }

// Sessions exposes the conversation store.
func (o *Orchestrator) Sessions() *session.Store { return o.sessions }

// ClearConversation drops the history of conversationID.
func (o *Orchestrator) ClearConversation(conversationID string) error {
	return o.sessions.Clear(conversationID)
}

// Process answers req. Failures are reported in the Result rather than as
// an error; the only error is ErrEmptyQuery for blank input.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Result{Success: false, Type: TypeError, Error: ErrEmptyQuery.Error()}, ErrEmptyQuery
	}

	start := time.Now()
	runID := o.startRun(ctx, query, req)
	log := o.logger.With(
		logger.Field{Key: "run_id", Value: runID},
		logger.Field{Key: "conversation_id", Value: req.ConversationID},
	)

	res := o.answer(ctx, query, req.ConversationID)
	res.RunID = runID

	// Bookkeeping must land even if the caller went away.
	bg := context.WithoutCancel(ctx)
	if res.Success {
		if req.ConversationID != "" {
			o.sessions.AppendExchange(req.ConversationID, query, res.Message)
		}
		o.finishRun(bg, runID, res, nil)
		log.InfoCtx(ctx, "query answered",
			logger.Field{Key: "type", Value: res.Type},
			logger.Field{Key: "iterations", Value: res.Iterations},
			logger.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})
	} else {
		o.finishRun(bg, runID, res, errors.New(res.Error))
		log.WarnCtx(ctx, "query failed",
			logger.Field{Key: "type", Value: res.Type},
			logger.Field{Key: "error", Value: res.Error})
	}

	if o.hub != nil {
		var notifyErr error
		if !res.Success {
			notifyErr = errors.New(res.Error)
		}
		o.hub.QueryResult(query, string(res.Type), notifyErr)
	}
	o.metrics.RecordQuery(string(res.Type), res.Iterations)
	return res, nil
}

func (o *Orchestrator) answer(ctx context.Context, query, conversationID string) Result {
	if o.quick != nil {
		if ans, ok := o.quick.Answer(ctx, query); ok {
			return Result{Success: true, Type: TypeQuickQuery, Message: ans.Message, Data: ans.Data}
		}
	}

	if o.runner == nil {
		return Result{Success: false, Type: TypeConfigError, Error: ErrNotConfigured.Error()}
	}

	var history []llm.Message
	if conversationID != "" {
		history = o.sessions.Messages(conversationID)
	}

	out, err := o.runner.Run(ctx, history, query)
	usage := out.Usage
	if err != nil {
		return Result{
			Success:    false,
			Type:       classify(err),
			Error:      err.Error(),
			Usage:      &usage,
			Iterations: out.Iterations,
		}
	}
	return Result{
		Success:    true,
		Type:       TypeAIResponse,
		Message:    out.Answer,
		Usage:      &usage,
		Iterations: out.Iterations,
	}
}

// classify maps model client failures to api_error and everything else,
// including the iteration cap, to error.
func classify(err error) ResultType {
	if llm.ErrorKind(err) != "" {
		return TypeAPIError
	}
	return TypeError
}

func (o *Orchestrator) startRun(ctx context.Context, query string, req Request) string {
	if o.ledger == nil {
		return ""
	}
	meta := map[string]any{constants.MetaQuery: query}
	if req.ConversationID != "" {
		meta[constants.MetaConversationID] = req.ConversationID
	}
	if req.UserID != "" {
		meta[constants.MetaUserID] = req.UserID
	}
	id, err := o.ledger.Create(ctx, constants.AgentKindQuery, RunName, meta)
	if err != nil {
		o.logger.ErrorCtx(ctx, "failed to create run log entry", err)
		return ""
	}
	return id
}

func (o *Orchestrator) finishRun(ctx context.Context, id string, res Result, runErr error) {
	if o.ledger == nil || id == "" {
		return
	}
	var err error
	if runErr != nil {
		_, err = o.ledger.Fail(ctx, id, fmt.Sprintf("%s: %v", res.Type, runErr))
	} else {
		_, err = o.ledger.Complete(ctx, id, map[string]any{
			"type":       res.Type,
			"message":    res.Message,
			"iterations": res.Iterations,
			"usage":      res.Usage,
		})
	}
	if err != nil {
		o.logger.ErrorCtx(ctx, "failed to finish run log entry", err, logger.Field{Key: "run_id", Value: id})
	}
}
