// Package transport abstracts the streaming model providers. A Transport
// turns an assistant request into an ordered stream of chunks: text deltas,
// tool call requests, token usage, and a terminal done or error.
package transport

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/loom/pkg/models"
)

// ToolSpec describes one tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Request is one assistant completion request covering the full
// conversation so far.
type Request struct {
	// System is the system prompt, sent out of band from the messages.
	System string

	// Messages is the conversation history in order, including tool
	// results from earlier rounds of the same turn.
	Messages []*models.Message

	// Tools lists the tool definitions the model may call.
	Tools []ToolSpec

	// MaxTokens caps the assistant output. Zero uses the provider default.
	MaxTokens int
}

// Chunk is one event on a completion stream. Exactly one of the content
// fields is meaningful per chunk; the final chunk has Done or Err set and
// the channel is closed after it.
type Chunk struct {
	// Text is an incremental piece of assistant text.
	Text string

	// ToolCall is a fully assembled tool call request. Providers that
	// stream partial tool input emit the call only once it is complete.
	ToolCall *models.ToolCall

	// Usage carries token counts, reported once near the end of a stream.
	Usage *models.TokenUsage

	// Done marks successful stream completion.
	Done bool

	// Err marks stream failure. Classify it with Retryable to decide
	// whether the request should be retried.
	Err error
}

// Transport streams assistant completions from one provider and model.
// Implementations are safe for concurrent use; each Stream call owns an
// independent connection and goroutine.
type Transport interface {
	// Name identifies the provider, lowercase and stable.
	Name() string

	// Model returns the model id requests are sent to.
	Model() string

	// ContextLimit returns the model's context window in tokens, or zero
	// when unknown.
	ContextLimit() int

	// Stream starts a completion and returns its chunk channel. A non-nil
	// error means the request never started; stream-time failures arrive
	// as a Chunk with Err set. The channel closes after the terminal
	// chunk, and cancelling ctx tears the stream down.
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}
