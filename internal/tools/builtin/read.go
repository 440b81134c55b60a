package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/loom/internal/tools"
)

const readSchema = `{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "File to read, relative to the working directory."},
    "offset": {"type": "integer", "minimum": 0, "description": "First line to return (0-based)."},
    "limit": {"type": "integer", "minimum": 1, "description": "Maximum number of lines to return."},
    "tail": {"type": "boolean", "description": "Keep the end of the file when output is truncated."}
  },
  "required": ["path"]
}`

// NewReadTool returns the file read tool. Output is capped by the context's
// text limits; truncation details are reported so callers can fetch the rest.
func NewReadTool() tools.Definition {
	return tools.Definition{
		Name:        "read",
		Description: "Read a text file from the working directory, optionally from a line offset.",
		InputSchema: json.RawMessage(readSchema),
		Handler:     readHandler,
	}
}

func readHandler(ctx context.Context, input json.RawMessage, ec tools.ExecContext) (*tools.Result, error) {
	var args struct {
		Path   string `json:"path"`
		Offset int    `json:"offset"`
		Limit  int    `json:"limit"`
		Tail   bool   `json:"tail"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	resolved, err := resolve(ec.Cwd, args.Path)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("read file: %v", err)), nil
	}

	content := string(data)
	if args.Offset > 0 || args.Limit > 0 {
		lines := strings.SplitAfter(content, "\n")
		if args.Offset >= len(lines) {
			return tools.ErrorResult(fmt.Sprintf("offset %d past end of file (%d lines)", args.Offset, len(lines))), nil
		}
		lines = lines[args.Offset:]
		if args.Limit > 0 && args.Limit < len(lines) {
			lines = lines[:args.Limit]
		}
		content = strings.Join(lines, "")
	}

	trunc := tools.TruncateText(content, ec.Text, args.Tail)

	details, err := json.Marshal(map[string]any{
		"path":          args.Path,
		"bytes":         len(data),
		"truncated":     trunc.Truncated,
		"omitted_bytes": trunc.OmittedBytes,
		"omitted_lines": trunc.OmittedLines,
	})
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("encode details: %v", err)), nil
	}

	res := tools.TextResult(trunc.Value)
	res.Details = details
	return res, nil
}
