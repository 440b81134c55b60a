// Package hooks provides the event bus that lets externally loaded plugins
// observe, mutate, or block agent behavior at fixed lifecycle points.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

// EventType identifies a hook lifecycle point.
type EventType string

const (
	// EventChatMessage fires when user input enters a turn. Mutating:
	// handlers may rewrite the message parts before dispatch.
	EventChatMessage EventType = "chat.message"

	// EventChatSystemTransform fires before the system prompt is sent.
	// Mutating: handlers may rewrite the prompt string.
	EventChatSystemTransform EventType = "chat.system.transform"

	// EventChatMessagesTransform fires before history is sent to the
	// transport. Mutating: handlers may rewrite the message slice.
	EventChatMessagesTransform EventType = "chat.messages.transform"

	// EventAgentBeforeStart fires after chat.message, before streaming.
	// Handlers may inject a synthetic message via the event data.
	EventAgentBeforeStart EventType = "agent.before_start"

	// EventToolExecuteBefore fires before a tool handler runs. Handlers may
	// block the call or rewrite its input.
	EventToolExecuteBefore EventType = "tool.execute.before"

	// EventToolExecuteAfter fires after a tool handler completes, including
	// on error. Handlers may rewrite the result.
	EventToolExecuteAfter EventType = "tool.execute.after"

	// EventTurnEnd fires when a turn reaches a terminal status, carrying
	// token usage and the context limit.
	EventTurnEnd EventType = "turn.end"

	// EventSessionStart fires once when the session log is opened.
	EventSessionStart EventType = "session.start"
)

// Event is an observational hook event. SessionID is empty before a session
// starts.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the timestamp set.
func NewEvent(eventType EventType, sessionID string) *Event {
	return &Event{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      make(map[string]any),
	}
}

// WithData adds a data field to the event.
func (e *Event) WithData(key string, value any) *Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// Handler processes an observational event. Errors are caught at the bus
// boundary and reported to the error listener, never into the turn.
type Handler func(ctx context.Context, event *Event) error

// MutationEvent carries an input/output pair for mutating emissions. Input is
// the original payload; Output is the value threaded through the handler
// chain. Payload types per event: chat.message carries []models.ContentPart,
// chat.system.transform carries string, chat.messages.transform carries
// []*models.Message.
type MutationEvent struct {
	Type      EventType
	SessionID string
	Input     any
	Output    any
}

// MutatingHandler receives the current output and may replace it by returning
// a non-nil value. A failing handler's mutation is discarded.
type MutatingHandler func(ctx context.Context, event *MutationEvent) (any, error)

// BeforeToolEvent is dispatched before a tool handler runs.
type BeforeToolEvent struct {
	SessionID  string
	ToolCallID string
	ToolName   string
	Input      json.RawMessage
}

// BeforeToolDecision is a before-hook's verdict. Block rejects the call with
// Reason and stops the chain. A non-nil Input rewrites the tool input for the
// rest of the chain and for execution.
type BeforeToolDecision struct {
	Block  bool
	Reason string
	Input  json.RawMessage
}

// BeforeToolHandler inspects a pending tool call. Returning nil approves it
// unchanged.
type BeforeToolHandler func(ctx context.Context, event *BeforeToolEvent) (*BeforeToolDecision, error)

// AfterToolEvent is dispatched after a tool handler completes. Result is the
// current value in the rewrite chain; IsError is true when the handler failed
// and Result carries the error text.
type AfterToolEvent struct {
	SessionID  string
	ToolCallID string
	ToolName   string
	Input      json.RawMessage
	Result     models.ToolResult
}

// AfterToolHandler may rewrite the tool result by returning a non-nil value;
// the last non-nil rewrite wins.
type AfterToolHandler func(ctx context.Context, event *AfterToolEvent) (*models.ToolResult, error)

// HandlerError wraps a hook handler failure. It is always caught at the bus
// boundary and reported via the error listener.
type HandlerError struct {
	Event EventType
	Hook  string
	Err   error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.Hook != "" {
		return fmt.Sprintf("hook %q failed on %s: %v", e.Hook, e.Event, e.Err)
	}
	return fmt.Sprintf("hook handler failed on %s: %v", e.Event, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}
