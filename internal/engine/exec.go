package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/haasonsaas/loom/internal/diagnostics"
	"github.com/haasonsaas/loom/internal/hooks"
	"github.com/haasonsaas/loom/pkg/models"
)

// fileMutatingTools names the builtin tools whose results trigger a
// diagnostics check on the touched file.
var fileMutatingTools = map[string]bool{
	"write": true,
	"edit":  true,
}

// executeToolCalls runs the calls from one model response, concurrently up
// to the configured limit. Results are returned in call order regardless of
// completion order.
func (e *Engine) executeToolCalls(ctx context.Context, sessionID string, calls []*models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	sem := make(chan struct{}, e.maxTools)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(i int, call *models.ToolCall) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = models.ErrorResult(call.ID, "tool execution cancelled")
				return
			}
			results[i] = e.executeToolCall(ctx, sessionID, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// executeToolCall runs one call through the full pipeline: before-hook
// interception, registry execution, diagnostics, then the after-hook chain.
// A blocked call never reaches the handler and skips the after-hooks; every
// executed call reaches the after-hooks, including failures.
func (e *Engine) executeToolCall(ctx context.Context, sessionID string, call *models.ToolCall) models.ToolResult {
	decision := e.hooks.EmitBeforeTool(ctx, &hooks.BeforeToolEvent{
		SessionID:  sessionID,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Input:      call.Input,
	})

	if decision != nil && decision.Block {
		reason := decision.Reason
		if reason == "" {
			reason = "blocked by hook"
		}
		e.logger.Info("tool call blocked", "tool", call.Name, "reason", reason)
		return models.ErrorResult(call.ID, "tool call blocked: "+reason)
	}

	input := call.Input
	if decision != nil && decision.Input != nil {
		input = decision.Input
	}

	var result models.ToolResult
	res, err := e.registry.Invoke(ctx, call.Name, input, nil)
	if err != nil {
		result = models.ErrorResult(call.ID, err.Error())
	} else {
		result = models.ToolResult{
			ToolCallID: call.ID,
			Content:    res.Content,
			Details:    res.Details,
			IsError:    res.IsError,
		}
	}

	if !result.IsError {
		if text := e.checkDiagnostics(ctx, call.Name, input); text != "" {
			result.Content = append(result.Content, models.TextPart(text))
		}
	}

	return e.hooks.EmitAfterTool(ctx, &hooks.AfterToolEvent{
		SessionID:  sessionID,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Input:      input,
		Result:     result,
	})
}

// checkDiagnostics runs the checker on the file a write or edit touched.
// Reads and shell executions are never checked.
func (e *Engine) checkDiagnostics(ctx context.Context, toolName string, input json.RawMessage) string {
	if e.checker == nil || !fileMutatingTools[toolName] {
		return ""
	}
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &args); err != nil || args.Path == "" {
		return ""
	}
	cwd := e.registry.DefaultContext().Cwd
	return diagnostics.Format(e.checker.Check(ctx, args.Path, cwd))
}
