package models

import (
	"encoding/json"
	"time"
)

// EntryType identifies a session log record variant.
type EntryType string

const (
	EntrySession EntryType = "session"
	EntryMessage EntryType = "message"
	EntryCustom  EntryType = "custom"
)

// SessionEntry is the on-disk JSONL record unit. Entries are append-only;
// the first entry of a session file is always the session metadata.
type SessionEntry struct {
	Type      EntryType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Session metadata fields (Type == EntrySession).
	ID            string `json:"id,omitempty"`
	Cwd           string `json:"cwd,omitempty"`
	Provider      string `json:"provider,omitempty"`
	ModelID       string `json:"model_id,omitempty"`
	ThinkingLevel string `json:"thinking_level,omitempty"`

	// Message payload (Type == EntryMessage).
	Message *Message `json:"message,omitempty"`

	// Custom payload (Type == EntryCustom), written by hooks.
	CustomType string          `json:"custom_type,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}
