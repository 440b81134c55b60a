package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/loom/internal/tools"
)

const writeSchema = `{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "File to write, relative to the working directory."},
    "content": {"type": "string", "description": "Full file contents to write."}
  },
  "required": ["path", "content"]
}`

// NewWriteTool returns the file write tool. Writes go through a temp file
// and rename so a failure mid-write never leaves a partial target.
func NewWriteTool() tools.Definition {
	return tools.Definition{
		Name:        "write",
		Description: "Write content to a file in the working directory (overwrites).",
		InputSchema: json.RawMessage(writeSchema),
		Handler:     writeHandler,
	}
}

func writeHandler(ctx context.Context, input json.RawMessage, ec tools.ExecContext) (*tools.Result, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	resolved, err := resolve(ec.Cwd, args.Path)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return tools.ErrorResult(fmt.Sprintf("create directory: %v", err)), nil
	}

	if err := tools.WriteFileAtomic(resolved, []byte(args.Content), 0o644); err != nil {
		return tools.ErrorResult(fmt.Sprintf("write file: %v", err)), nil
	}

	details, err := json.Marshal(map[string]any{
		"path":          args.Path,
		"bytes_written": len(args.Content),
	})
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("encode details: %v", err)), nil
	}

	res := tools.TextResult(fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path))
	res.Details = details
	return res, nil
}
