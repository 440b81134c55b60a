package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/loom/internal/tools"
)

const editSchema = `{
  "type": "object",
  "properties": {
    "path": {"type": "string", "description": "File to edit, relative to the working directory."},
    "edits": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "old_text": {"type": "string", "description": "Exact text to replace."},
          "new_text": {"type": "string", "description": "Replacement text."},
          "occurrence": {"type": "integer", "minimum": 1, "description": "Which occurrence to replace (default: 1)."}
        },
        "required": ["old_text", "new_text"]
      }
    }
  },
  "required": ["path", "edits"]
}`

// NewEditTool returns the file edit tool. Edits are an ordered list of
// exact-match replacements applied all-or-nothing: if any snippet is
// missing, the file is not written at all.
func NewEditTool() tools.Definition {
	return tools.Definition{
		Name:        "edit",
		Description: "Apply ordered exact-match find/replace edits to a file.",
		InputSchema: json.RawMessage(editSchema),
		Handler:     editHandler,
	}
}

type editOp struct {
	OldText    string `json:"old_text"`
	NewText    string `json:"new_text"`
	Occurrence int    `json:"occurrence"`
}

func editHandler(ctx context.Context, input json.RawMessage, ec tools.ExecContext) (*tools.Result, error) {
	var args struct {
		Path  string   `json:"path"`
		Edits []editOp `json:"edits"`
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

	content, err := applyEdits(string(data), args.Edits)
	if err != nil {
		return tools.ErrorResult(err.Error()), nil
	}

	if err := tools.WriteFileAtomic(resolved, []byte(content), 0o644); err != nil {
		return tools.ErrorResult(fmt.Sprintf("write file: %v", err)), nil
	}

	details, err := json.Marshal(map[string]any{
		"path":         args.Path,
		"replacements": len(args.Edits),
	})
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("encode details: %v", err)), nil
	}

	res := tools.TextResult(fmt.Sprintf("applied %d edits to %s", len(args.Edits), args.Path))
	res.Details = details
	return res, nil
}

// applyEdits applies every operation in order against the in-memory content.
// Nothing is committed until all operations succeed.
func applyEdits(content string, edits []editOp) (string, error) {
	for _, edit := range edits {
		if edit.OldText == "" {
			return "", fmt.Errorf("old_text is required")
		}
		occurrence := edit.Occurrence
		if occurrence < 1 {
			occurrence = 1
		}
		idx := nthIndex(content, edit.OldText, occurrence)
		if idx < 0 {
			return "", &tools.SnippetNotFoundError{Snippet: edit.OldText, Occurrence: occurrence}
		}
		content = content[:idx] + edit.NewText + content[idx+len(edit.OldText):]
	}
	return content, nil
}

// nthIndex returns the byte offset of the nth occurrence of sub in s, or -1.
func nthIndex(s, sub string, n int) int {
	offset := 0
	for i := 0; i < n; i++ {
		idx := strings.Index(s[offset:], sub)
		if idx < 0 {
			return -1
		}
		if i == n-1 {
			return offset + idx
		}
		offset += idx + len(sub)
	}
	return -1
}
