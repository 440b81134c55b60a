// Package tools implements the tool-execution pipeline: registration with
// schema validation, execution-context defaults, deterministic output
// truncation, and atomic file mutation.
package tools

import (
	"fmt"
)

// DuplicateToolError is a configuration error raised at registration time
// when a tool name is already taken.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q already registered", e.Name)
}

// UnknownToolError is raised when invoking a tool that was never registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// InvalidInputError is raised when tool input fails schema validation. It is
// surfaced to the model as a tool error, not fatal to the turn.
type InvalidInputError struct {
	Tool   string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for tool %q: %s", e.Tool, e.Reason)
}

// SnippetNotFoundError is raised by edit operations when the requested
// occurrence of a snippet does not exist. The target file is left untouched.
type SnippetNotFoundError struct {
	Snippet    string
	Occurrence int
}

func (e *SnippetNotFoundError) Error() string {
	snippet := e.Snippet
	if len(snippet) > 120 {
		snippet = snippet[:120] + "..."
	}
	if e.Occurrence > 1 {
		return fmt.Sprintf("occurrence %d of snippet not found: %q", e.Occurrence, snippet)
	}
	return fmt.Sprintf("snippet not found: %q", snippet)
}
