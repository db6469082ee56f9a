// Package tools holds the tools exposed to the model during the
// tool-calling loop and the registry that dispatches tool calls.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aatumaykin/stockpilot/internal/llm"
	"github.com/aatumaykin/stockpilot/internal/logger"
)

// Tool defines the interface that all tools must implement.
type Tool interface {
	// Name returns the unique name used in tool_use blocks.
	Name() string

	// Description tells the model when and how to use the tool.
	Description() string

	// Parameters returns the JSON Schema of the tool input.
	Parameters() map[string]any

	// Execute runs the tool with the JSON-encoded input.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry manages the collection of available tools.
// It provides thread-safe operations for registering and retrieving tools.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	timeout time.Duration
	logger  *logger.Logger
}

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 30 * time.Second

// NewRegistry creates a new empty tool registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: DefaultTimeout,
		logger:  log.Component("tools"),
	}
}

// WithTimeout overrides the per-call timeout. Non-positive disables it.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a tool to the registry.
// If a tool with the same name already exists, it will be replaced.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by its name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools ordered by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Definitions converts the registered tools to model tool declarations.
func (r *Registry) Definitions() []llm.ToolDefinition {
	tools := r.List()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.Parameters(),
		})
	}
	return defs
}

// Result is the outcome of one tool call, ready to be sent back as a
// tool_result block.
type Result struct {
	ToolCallID string `json:"toolCallId"`
	Content    string `json:"content"`
	IsError    bool   `json:"isError,omitempty"`
	TimedOut   bool   `json:"timedOut,omitempty"`
}

// Block converts r into a tool_result content block.
func (r Result) Block() llm.ContentBlock {
	return llm.ToolResult(r.ToolCallID, r.Content, r.IsError)
}

// Execute dispatches call to the named tool. Tool failures never escape as
// Go errors: they are reported to the model as an error result so it can
// correct itself.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) Result {
	tool, ok := r.Get(call.Name)
	if !ok {
		r.logger.WarnCtx(ctx, "unknown tool requested", logger.Field{Key: "tool", Value: call.Name})
		return Result{ToolCallID: call.ID, Content: fmt.Sprintf("tool not found: %s", call.Name), IsError: true}
	}

	execCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := tool.Execute(execCtx, call.Input)
	fields := []logger.Field{
		{Key: "tool", Value: call.Name},
		{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
	}

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			r.logger.WarnCtx(ctx, "tool execution timed out", fields...)
			return Result{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("tool execution timed out after %v", r.timeout),
				IsError:    true,
				TimedOut:   true,
			}
		}
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			r.logger.WarnCtx(ctx, "tool returned error", append(fields, toolErr.LogFields()...)...)
			return Result{ToolCallID: call.ID, Content: toolErr.ToLLMContext(), IsError: true}
		}
		r.logger.ErrorCtx(ctx, "tool execution failed", err, fields...)
		return Result{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}

	r.logger.DebugCtx(ctx, "tool executed", fields...)
	return Result{ToolCallID: call.ID, Content: out}
}
