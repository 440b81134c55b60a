// Package models defines the shared data model for the Loom agent core:
// turns, messages, tool calls, token accounting, and session log entries.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool-result"
	RoleHook       Role = "hook-generated"
)

// PartType identifies a content part variant.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one element of a message body. Text parts carry Text;
// image parts carry base64 Data and a MimeType.
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	Data     string   `json:"data,omitempty"`
	MimeType string   `json:"mime_type,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart builds an image content part from base64 data.
func ImagePart(data, mimeType string) ContentPart {
	return ContentPart{Type: PartImage, Data: data, MimeType: mimeType}
}

// Message is one entry in a turn's transcript. Messages are immutable once
// appended to a turn.
type Message struct {
	Role      Role          `json:"role"`
	Parts     []ContentPart `json:"parts"`
	Timestamp time.Time     `json:"timestamp"`

	// ToolCalls carries tool execution requests on assistant messages.
	ToolCalls []*ToolCall `json:"tool_calls,omitempty"`

	// ToolResults carries results on tool-result messages.
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	// CustomType tags hook-generated messages for renderer lookup.
	CustomType string `json:"custom_type,omitempty"`
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// UserMessage builds a user message from text and optional images.
func UserMessage(text string, images ...ContentPart) *Message {
	parts := make([]ContentPart, 0, len(images)+1)
	parts = append(parts, TextPart(text))
	parts = append(parts, images...)
	return &Message{Role: RoleUser, Parts: parts, Timestamp: time.Now()}
}

// ToolCall is an LLM request to execute a tool. Input has been streamed in
// full by the time the call is dispatched.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the output of one tool execution. Errors are communicated
// via IsError rather than thrown across the pipeline boundary, so the model
// can see the error text and recover.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Content    []ContentPart   `json:"content"`
	Details    json.RawMessage `json:"details,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// ErrorResult builds an error tool result with the given text.
func ErrorResult(toolCallID, text string) ToolResult {
	return ToolResult{
		ToolCallID: toolCallID,
		Content:    []ContentPart{TextPart(text)},
		IsError:    true,
	}
}

// Text concatenates the result's text parts.
func (r *ToolResult) Text() string {
	var out string
	for _, p := range r.Content {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}
