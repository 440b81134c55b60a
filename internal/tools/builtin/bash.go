package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/haasonsaas/loom/internal/tools"
)

const bashSchema = `{
  "type": "object",
  "properties": {
    "command": {"type": "string", "description": "Shell command to run in the working directory."}
  },
  "required": ["command"]
}`

// NewBashTool returns the shell execution tool. Output is capped by the
// context's command limits; when truncated, the full output is persisted to
// a temp file referenced in the details.
func NewBashTool() tools.Definition {
	return tools.Definition{
		Name:        "bash",
		Description: "Run a shell command in the working directory and return its output.",
		InputSchema: json.RawMessage(bashSchema),
		Handler:     bashHandler,
	}
}

func bashHandler(ctx context.Context, input json.RawMessage, ec tools.ExecContext) (*tools.Result, error) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if args.Command == "" {
		return tools.ErrorResult("command is required"), nil
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", args.Command)
	cmd.Dir = ec.Cwd
	cmd.Env = ec.Env

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()
	output := buf.String()

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return tools.ErrorResult(fmt.Sprintf("run command: %v", runErr)), nil
		}
	}

	trunc := tools.TruncateCommand(output, ec.Command)

	detailFields := map[string]any{
		"exit_code":     exitCode,
		"truncated":     trunc.Truncated,
		"omitted_bytes": trunc.OmittedBytes,
	}
	if trunc.Truncated {
		fullPath := filepath.Join(ec.TmpDir, "loom-bash-"+uuid.NewString()+".log")
		if err := os.WriteFile(fullPath, []byte(output), 0o600); err == nil {
			detailFields["full_output_path"] = fullPath
		}
	}
	details, err := json.Marshal(detailFields)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("encode details: %v", err)), nil
	}

	res := tools.TextResult(trunc.Value)
	res.Details = details
	res.IsError = exitCode != 0
	return res, nil
}
