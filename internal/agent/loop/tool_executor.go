package loop

import (
	"context"

	"github.com/aatumaykin/stockpilot/internal/llm"
	"github.com/aatumaykin/stockpilot/internal/logger"
)

// executeTools runs calls in order and returns one tool_result block per
// call. Tool failures are reported to the model, not to the caller.
func (r *Runner) executeTools(ctx context.Context, calls []llm.ToolCall) []llm.ContentBlock {
	blocks := make([]llm.ContentBlock, 0, len(calls))
	for _, call := range calls {
		r.logger.DebugCtx(ctx, "executing tool",
			logger.Field{Key: "tool_name", Value: call.Name},
			logger.Field{Key: "tool_call_id", Value: call.ID})

		res := r.tools.Execute(ctx, call)
		if !res.IsError && r.config.Filter != nil {
			res.Content = r.config.Filter(res.Content)
		}
		blocks = append(blocks, res.Block())
	}
	return blocks
}
