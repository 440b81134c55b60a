package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/loom/pkg/models"
)

const (
	defaultOpenAIModel        = "gpt-4o"
	defaultOpenAIContextLimit = 128000
)

// OpenAIConfig configures an OpenAI transport. APIKey is required. BaseURL
// allows pointing at OpenAI-compatible servers.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	ContextLimit int
}

// OpenAI streams completions from the Chat Completions API. It also serves
// OpenAI-compatible endpoints via BaseURL.
type OpenAI struct {
	client       *openai.Client
	model        string
	maxTokens    int
	contextLimit int
}

// NewOpenAI creates an OpenAI transport, applying defaults for the
// optional fields.
func NewOpenAI(config OpenAIConfig) (*OpenAI, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.Model == "" {
		config.Model = defaultOpenAIModel
	}
	if config.ContextLimit <= 0 {
		config.ContextLimit = defaultOpenAIContextLimit
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAI{
		client:       openai.NewClientWithConfig(clientConfig),
		model:        config.Model,
		maxTokens:    config.MaxTokens,
		contextLimit: config.ContextLimit,
	}, nil
}

func (t *OpenAI) Name() string { return "openai" }

func (t *OpenAI) Model() string { return t.model }

func (t *OpenAI) ContextLimit() int { return t.contextLimit }

// Stream starts a chat completion stream and converts its deltas into
// chunks. Tool call argument fragments are accumulated per index and
// emitted once the finish reason reports the calls complete.
func (t *OpenAI) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	messages, err := convertOpenAIMessages(req.Messages, req.System)
	if err != nil {
		return nil, WrapError(t.Name(), t.model, err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    t.model,
		Messages: messages,
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	} else if t.maxTokens > 0 {
		chatReq.MaxTokens = t.maxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	stream, err := t.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, WrapError(t.Name(), t.model, err)
	}

	chunks := make(chan Chunk)
	go t.processStream(stream, chunks)
	return chunks, nil
}

func (t *OpenAI) processStream(stream *openai.ChatCompletionStream, chunks chan<- Chunk) {
	defer close(chunks)
	defer stream.Close()

	// Tool calls stream as fragments keyed by index.
	toolCalls := make(map[int]*models.ToolCall)
	var order []int
	usage := &models.TokenUsage{}

	flushToolCalls := func() {
		for _, index := range order {
			tc := toolCalls[index]
			if tc.ID == "" || tc.Name == "" {
				continue
			}
			if len(tc.Input) == 0 {
				tc.Input = json.RawMessage("{}")
			}
			chunks <- Chunk{ToolCall: tc}
		}
		toolCalls = make(map[int]*models.ToolCall)
		order = nil
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				flushToolCalls()
				chunks <- Chunk{Usage: usage}
				chunks <- Chunk{Done: true}
				return
			}
			chunks <- Chunk{Err: WrapError(t.Name(), t.model, err)}
			return
		}

		if response.Usage != nil {
			usage.Input = response.Usage.PromptTokens
			usage.Output = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			chunks <- Chunk{Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
				order = append(order, index)
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].Input = append(toolCalls[index].Input, tc.Function.Arguments...)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			flushToolCalls()
		}
	}
}

// convertOpenAIMessages maps conversation messages onto the chat
// completion shape, where the system prompt leads the message list and
// tool results are standalone tool-role messages.
func convertOpenAIMessages(messages []*models.Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		if msg.Role == models.RoleToolResult {
			for _, toolResult := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    toolResult.Text(),
					ToolCallID: toolResult.ToolCallID,
				})
			}
			continue
		}

		role := openai.ChatMessageRoleUser
		if msg.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		oaiMsg := openai.ChatCompletionMessage{Role: role}

		if hasImages(msg) {
			for _, part := range msg.Parts {
				switch part.Type {
				case models.PartText:
					oaiMsg.MultiContent = append(oaiMsg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeText,
						Text: part.Text,
					})
				case models.PartImage:
					oaiMsg.MultiContent = append(oaiMsg.MultiContent, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", part.MimeType, part.Data),
							Detail: openai.ImageURLDetailAuto,
						},
					})
				}
			}
		} else {
			oaiMsg.Content = msg.Text()
		}

		for _, toolCall := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   toolCall.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      toolCall.Name,
					Arguments: string(toolCall.Input),
				},
			})
		}

		if oaiMsg.Content == "" && len(oaiMsg.MultiContent) == 0 && len(oaiMsg.ToolCalls) == 0 {
			continue
		}
		result = append(result, oaiMsg)
	}

	return result, nil
}

func hasImages(msg *models.Message) bool {
	for _, part := range msg.Parts {
		if part.Type == models.PartImage {
			return true
		}
	}
	return false
}

func convertOpenAITools(specs []ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(specs))
	for i, spec := range specs {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema,
			},
		}
	}
	return result
}
