package engine

import (
	"context"
	"strings"
	"time"

	"github.com/haasonsaas/loom/internal/hooks"
	"github.com/haasonsaas/loom/internal/transport"
	"github.com/haasonsaas/loom/pkg/models"
)

// runTurn drives one turn from submitted prompt to terminal status. It runs
// on its own goroutine; all suspension points observe ctx, which the abort
// path cancels.
func (e *Engine) runTurn(ctx context.Context, userMsg *models.Message) {
	sessionID := e.log.SessionID()

	// chat.message: hooks may rewrite the input parts before dispatch.
	mutated := e.hooks.EmitMutating(ctx, &hooks.MutationEvent{
		Type:      hooks.EventChatMessage,
		SessionID: sessionID,
		Input:     userMsg.Parts,
		Output:    userMsg.Parts,
	})
	if parts, ok := mutated.([]models.ContentPart); ok {
		userMsg.Parts = parts
	}

	// agent.before_start: hooks may inject a synthetic message ahead of
	// the user's.
	injected := e.hooks.EmitMutating(ctx, &hooks.MutationEvent{
		Type:      hooks.EventAgentBeforeStart,
		SessionID: sessionID,
		Input:     userMsg,
	})
	if msg, ok := injected.(*models.Message); ok && msg != nil {
		e.appendHistory(msg)
	}
	e.appendHistory(userMsg)

	e.mu.Lock()
	e.turn.Status = models.TurnStreaming
	e.setStateLocked(StateStreaming, 0, nil)
	e.mu.Unlock()

	attempt := 0
	for {
		if ctx.Err() != nil {
			e.finishTurn(ctx, models.TurnAborted, nil)
			return
		}

		assistant, toolCalls, err := e.streamRound(ctx, sessionID)
		if err != nil {
			if ctx.Err() != nil {
				e.finishTurn(ctx, models.TurnAborted, nil)
				return
			}
			if transport.Retryable(err) && attempt < e.maxRetries {
				if e.metrics != nil {
					e.metrics.TransportRetries.Inc()
				}
				e.logger.Warn("transport error, retrying",
					"attempt", attempt+1, "max_retries", e.maxRetries, "error", err)
				e.setState(StateStreaming, attempt+1, err)
				if sleepErr := e.retry.Sleep(ctx, attempt); sleepErr != nil {
					e.finishTurn(ctx, models.TurnAborted, nil)
					return
				}
				attempt++
				continue
			}
			e.finishTurn(ctx, models.TurnErrored, err)
			return
		}
		attempt = 0

		// A cancelled stream can end cleanly without a terminal chunk;
		// treat it as an abort, not a completed turn.
		if ctx.Err() != nil {
			e.finishTurn(ctx, models.TurnAborted, nil)
			return
		}

		if assistant != nil {
			e.appendHistory(assistant)
		}
		if len(toolCalls) == 0 {
			e.finishTurn(ctx, models.TurnDone, nil)
			return
		}

		e.mu.Lock()
		e.turn.Status = models.TurnAwaitingTool
		e.setStateLocked(StateAwaitingTool, 0, nil)
		e.mu.Unlock()

		results := e.executeToolCalls(ctx, sessionID, toolCalls)
		if ctx.Err() != nil {
			e.finishTurn(ctx, models.TurnAborted, nil)
			return
		}
		e.appendHistory(&models.Message{
			Role:        models.RoleToolResult,
			Timestamp:   time.Now(),
			ToolResults: results,
		})

		e.mu.Lock()
		e.turn.Status = models.TurnStreaming
		e.setStateLocked(StateStreaming, 0, nil)
		e.mu.Unlock()
	}
}

// streamRound performs one completion request and consumes its stream. It
// returns the assembled assistant message (nil when the round produced
// nothing) and any tool calls the model requested. A partial message from a
// failed stream is discarded; the retry re-sends the same history.
func (e *Engine) streamRound(ctx context.Context, sessionID string) (*models.Message, []*models.ToolCall, error) {
	system := e.systemPrompt
	if out, ok := e.hooks.EmitMutating(ctx, &hooks.MutationEvent{
		Type:      hooks.EventChatSystemTransform,
		SessionID: sessionID,
		Input:     e.systemPrompt,
		Output:    e.systemPrompt,
	}).(string); ok {
		system = out
	}

	messages := e.History()
	if out, ok := e.hooks.EmitMutating(ctx, &hooks.MutationEvent{
		Type:      hooks.EventChatMessagesTransform,
		SessionID: sessionID,
		Input:     messages,
		Output:    messages,
	}).([]*models.Message); ok {
		messages = out
	}

	chunks, err := e.transport.Stream(ctx, &transport.Request{
		System:   system,
		Messages: messages,
		Tools:    e.toolSpecs(),
	})
	if err != nil {
		return nil, nil, err
	}

	var text strings.Builder
	var toolCalls []*models.ToolCall
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			return nil, nil, chunk.Err
		case chunk.Text != "":
			text.WriteString(chunk.Text)
			e.emitText(chunk.Text)
		case chunk.ToolCall != nil:
			toolCalls = append(toolCalls, chunk.ToolCall)
		case chunk.Usage != nil:
			e.mu.Lock()
			e.turn.Tokens.Add(*chunk.Usage)
			e.mu.Unlock()
		}
	}

	assistant := &models.Message{
		Role:      models.RoleAssistant,
		Timestamp: time.Now(),
		ToolCalls: toolCalls,
	}
	if text.Len() > 0 {
		assistant.Parts = []models.ContentPart{models.TextPart(text.String())}
	}
	if len(assistant.Parts) == 0 && len(toolCalls) == 0 {
		assistant = nil
	}
	return assistant, toolCalls, nil
}

// finishTurn archives the turn, fires turn.end, and either dispatches the
// next queued prompt or returns to idle. An errored turn surfaces its error
// as the final assistant-visible content.
func (e *Engine) finishTurn(ctx context.Context, status models.TurnStatus, turnErr error) {
	if status == models.TurnDone {
		e.setState(StateFinalizing, 0, nil)
	}
	if turnErr != nil {
		e.appendHistory(&models.Message{
			Role:      models.RoleAssistant,
			Timestamp: time.Now(),
			Parts:     []models.ContentPart{models.TextPart(turnErr.Error())},
		})
	}

	e.mu.Lock()
	turn := e.turn
	turn.Status = status
	e.mu.Unlock()

	// turn.end fires for every terminal status, on a context that survives
	// abort so handlers still observe cancelled turns.
	event := hooks.NewEvent(hooks.EventTurnEnd, e.log.SessionID()).
		WithData("status", string(status)).
		WithData("turn_index", turn.Index).
		WithData("tokens", turn.Tokens).
		WithData("context_limit", turn.ContextLimit)
	e.hooks.Emit(context.WithoutCancel(ctx), event)

	if e.metrics != nil {
		e.metrics.TurnsCompleted.WithLabelValues(string(status)).Inc()
	}
	e.logger.Info("turn finished",
		"turn_index", turn.Index, "status", status, "tokens", turn.Tokens.Total)

	e.mu.Lock()
	e.turnIndex++
	e.turn = nil
	e.cancel = nil
	aborted := status == models.TurnAborted || e.aborting
	e.aborting = false

	if status == models.TurnErrored {
		e.setStateLocked(StateErrored, 0, turnErr)
	}

	// Each queued prompt becomes its own turn, in FIFO order. An abort
	// skips the drain even when it raced a completing turn; Abort already
	// returned the queue to the caller.
	if !aborted {
		if next, ok := e.queue.Pop(); ok {
			e.setQueueDepth()
			e.startTurnLocked(models.UserMessage(next))
			e.mu.Unlock()
			return
		}
	}
	e.setStateLocked(StateIdle, 0, nil)
	e.mu.Unlock()
}
