// Package loop drives the bounded tool-calling conversation with the model.
package loop

import (
	"context"
	"errors"
	"fmt"

	"github.com/aatumaykin/stockpilot/internal/llm"
	"github.com/aatumaykin/stockpilot/internal/logger"
	"github.com/aatumaykin/stockpilot/internal/tools"
)

// DefaultMaxIterations caps the model round trips of one query.
const DefaultMaxIterations = 10

// ErrMaxIterations is returned when the model keeps requesting tools until
// the iteration cap.
var ErrMaxIterations = errors.New("reached maximum tool call iterations")

// State is the position of a run in the loop state machine.
type State int

const (
	StateRunning State = iota
	StateAnswered
	StateExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateAnswered:
		return "answered"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sender sends one request to the model. *llm.Client implements it.
type Sender interface {
	Send(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// ToolSet declares and executes tools. *tools.Registry implements it.
type ToolSet interface {
	Definitions() []llm.ToolDefinition
	Execute(ctx context.Context, call llm.ToolCall) tools.Result
}

// OutputFilter rewrites successful tool output before the model sees it.
type OutputFilter func(string) string

// Config holds configuration for the runner.
type Config struct {
	SystemPrompt  string
	MaxIterations int
	Model         string
	MaxTokens     int
	Temperature   float64
	// Filter is applied to non-error tool results; nil passes them through.
	Filter OutputFilter
}

// Runner executes the tool-calling loop. It holds no per-run state and is
// safe for concurrent use.
type Runner struct {
	sender Sender
	tools  ToolSet
	config Config
	logger *logger.Logger
}

// Outcome describes a finished run.
type Outcome struct {
	State      State
	Answer     string
	Iterations int
	ToolCalls  int
	Usage      llm.Usage
	Messages   []llm.Message
}

// NewRunner creates a runner.
func NewRunner(sender Sender, toolSet ToolSet, cfg Config, log *logger.Logger) (*Runner, error) {
	if sender == nil {
		return nil, fmt.Errorf("model sender cannot be nil")
	}
	if toolSet == nil {
		return nil, fmt.Errorf("tool set cannot be nil")
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Runner{sender: sender, tools: toolSet, config: cfg, logger: log.Component("loop")}, nil
}

// Run answers query given the prior conversation history. Each iteration is
// one model request; a response with tool calls appends the assistant turn
// and a single user turn carrying every tool result. The returned Outcome is
// never nil, including on error.
func (r *Runner) Run(ctx context.Context, history []llm.Message, query string) (*Outcome, error) {
	out := &Outcome{State: StateRunning}
	out.Messages = make([]llm.Message, 0, len(history)+1+2*r.config.MaxIterations)
	out.Messages = append(out.Messages, history...)
	out.Messages = append(out.Messages, llm.TextMessage(llm.RoleUser, query))

	defs := r.tools.Definitions()

	for out.State == StateRunning {
		if out.Iterations >= r.config.MaxIterations {
			out.State = StateExhausted
			break
		}
		out.Iterations++

		resp, err := r.sender.Send(ctx, llm.ChatRequest{
			System:      r.config.SystemPrompt,
			Messages:    out.Messages,
			Model:       r.config.Model,
			MaxTokens:   r.config.MaxTokens,
			Temperature: r.config.Temperature,
			Tools:       defs,
		})
		if err != nil {
			out.State = StateFailed
			r.logger.WarnCtx(ctx, "model request failed",
				logger.Field{Key: "iteration", Value: out.Iterations},
				logger.Field{Key: "error", Value: err.Error()})
			return out, fmt.Errorf("model request failed: %w", err)
		}
		out.Usage.Add(resp.Usage)

		calls := resp.ToolCalls()
		r.logger.DebugCtx(ctx, "model response received",
			logger.Field{Key: "iteration", Value: out.Iterations},
			logger.Field{Key: "stop_reason", Value: resp.StopReason},
			logger.Field{Key: "tool_calls", Value: len(calls)})

		if len(calls) == 0 {
			out.Answer = resp.Text()
			out.Messages = append(out.Messages, resp.AssistantMessage())
			out.State = StateAnswered
			continue
		}

		out.ToolCalls += len(calls)
		out.Messages = append(out.Messages,
			resp.AssistantMessage(),
			llm.Message{Role: llm.RoleUser, Content: r.executeTools(ctx, calls)},
		)
	}

	if out.State == StateExhausted {
		r.logger.WarnCtx(ctx, "maximum tool call iterations reached",
			logger.Field{Key: "iterations", Value: out.Iterations},
			logger.Field{Key: "tool_calls", Value: out.ToolCalls})
		return out, fmt.Errorf("%w (%d)", ErrMaxIterations, r.config.MaxIterations)
	}
	return out, nil
}
