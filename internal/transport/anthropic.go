package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/loom/pkg/models"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 8192
	anthropicContextLimit     = 200000
)

// AnthropicConfig configures an Anthropic transport. APIKey is required.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Anthropic streams completions from the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropic creates an Anthropic transport, applying defaults for the
// optional fields.
func NewAnthropic(config AnthropicConfig) (*Anthropic, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.Model == "" {
		config.Model = defaultAnthropicModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultAnthropicMaxTokens
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &Anthropic{
		client:    anthropic.NewClient(options...),
		model:     config.Model,
		maxTokens: config.MaxTokens,
	}, nil
}

func (t *Anthropic) Name() string { return "anthropic" }

func (t *Anthropic) Model() string { return t.model }

func (t *Anthropic) ContextLimit() int { return anthropicContextLimit }

// Stream starts a Messages API stream and converts its SSE events into
// chunks. Tool input JSON is accumulated across deltas and the tool call
// is emitted once its content block closes.
func (t *Anthropic) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return nil, WrapError(t.Name(), t.model, err)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = t.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(t.model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, WrapError(t.Name(), t.model, err)
		}
		params.Tools = tools
	}

	stream := t.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, WrapError(t.Name(), t.model, err)
	}

	chunks := make(chan Chunk)
	go t.processStream(stream, chunks)
	return chunks, nil
}

func (t *Anthropic) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- Chunk) {
	defer close(chunks)
	defer stream.Close()

	var currentToolCall *models.ToolCall
	var currentToolInput strings.Builder
	usage := &models.TokenUsage{}

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			usage.Input = int(start.Message.Usage.InputTokens)
			usage.CacheRead = int(start.Message.Usage.CacheReadInputTokens)
			usage.CacheWrite = int(start.Message.Usage.CacheCreationInputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &models.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- Chunk{Text: delta.Text}
				}
			case "input_json_delta":
				currentToolInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if currentToolCall != nil {
				input := currentToolInput.String()
				if input == "" {
					input = "{}"
				}
				currentToolCall.Input = json.RawMessage(input)
				chunks <- Chunk{ToolCall: currentToolCall}
				currentToolCall = nil
			}

		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				usage.Output = int(delta.Usage.OutputTokens)
			}

		case "message_stop":
			chunks <- Chunk{Usage: usage}
			chunks <- Chunk{Done: true}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- Chunk{Err: WrapError(t.Name(), t.model, err)}
		return
	}
	// The stream ended without message_stop; treat it as complete anyway.
	chunks <- Chunk{Usage: usage}
	chunks <- Chunk{Done: true}
}

// convertAnthropicMessages maps conversation messages onto the Messages
// API shape, where tool calls and tool results are content blocks.
func convertAnthropicMessages(messages []*models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam

	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		for _, part := range msg.Parts {
			switch part.Type {
			case models.PartText:
				if part.Text != "" {
					content = append(content, anthropic.NewTextBlock(part.Text))
				}
			case models.PartImage:
				content = append(content, anthropic.NewImageBlockBase64(part.MimeType, part.Data))
			}
		}

		for _, toolResult := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(
				toolResult.ToolCallID,
				toolResult.Text(),
				toolResult.IsError,
			))
		}

		for _, toolCall := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(toolCall.Input, &input); err != nil {
				return nil, fmt.Errorf("invalid tool call input for %s: %w", toolCall.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(toolCall.ID, input, toolCall.Name))
		}

		if len(content) == 0 {
			continue
		}
		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

func convertAnthropicTools(specs []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam

	for _, spec := range specs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(spec.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", spec.Name, err)
		}

		param := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", spec.Name)
		}
		param.OfTool.Description = anthropic.String(spec.Description)
		result = append(result, param)
	}

	return result, nil
}
