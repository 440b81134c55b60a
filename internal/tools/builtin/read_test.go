package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/loom/internal/tools"
)

func invokeRead(t *testing.T, ec tools.ExecContext, input string) *tools.Result {
	t.Helper()
	def := NewReadTool()
	res, err := def.Handler(context.Background(), json.RawMessage(input), ec)
	if err != nil {
		t.Fatalf("read handler returned error: %v", err)
	}
	return res
}

func TestReadWholeFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := invokeRead(t, tools.DefaultExecContext(dir), `{"path": "notes.txt"}`)
	if res.IsError {
		t.Fatalf("read failed: %s", res.Content[0].Text)
	}
	if res.Content[0].Text != "line one\nline two\n" {
		t.Errorf("content = %q", res.Content[0].Text)
	}
}

func TestReadOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("a\nb\nc\nd\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ec := tools.DefaultExecContext(dir)

	res := invokeRead(t, ec, `{"path": "f.txt", "offset": 1, "limit": 2}`)
	if res.Content[0].Text != "b\nc\n" {
		t.Errorf("offset/limit slice = %q", res.Content[0].Text)
	}

	res = invokeRead(t, ec, `{"path": "f.txt", "offset": 99}`)
	if !res.IsError {
		t.Error("offset past end of file accepted")
	}
}

func TestReadTruncatesWithDetails(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("data line\n", 100)
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ec := tools.DefaultExecContext(dir)
	ec.Text = tools.TextLimits{MaxLines: 5}

	res := invokeRead(t, ec, `{"path": "big.txt"}`)
	if res.IsError {
		t.Fatalf("read failed: %s", res.Content[0].Text)
	}

	var details struct {
		Truncated    bool `json:"truncated"`
		OmittedLines int  `json:"omitted_lines"`
	}
	if err := json.Unmarshal(res.Details, &details); err != nil {
		t.Fatalf("parse details: %v", err)
	}
	if !details.Truncated {
		t.Error("details did not report truncation")
	}
	if details.OmittedLines == 0 {
		t.Error("details did not report omitted lines")
	}
}

func TestReadMissingFile(t *testing.T) {
	res := invokeRead(t, tools.DefaultExecContext(t.TempDir()), `{"path": "absent.txt"}`)
	if !res.IsError {
		t.Error("missing file did not produce an error result")
	}
}

func TestWriteCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	def := NewWriteTool()

	res, err := def.Handler(context.Background(),
		json.RawMessage(`{"path": "nested/deep/out.txt", "content": "payload"}`),
		tools.DefaultExecContext(dir))
	if err != nil {
		t.Fatalf("write handler returned error: %v", err)
	}
	if res.IsError {
		t.Fatalf("write failed: %s", res.Content[0].Text)
	}

	data, err := os.ReadFile(filepath.Join(dir, "nested", "deep", "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "payload" {
		t.Errorf("content = %q", data)
	}
}

func TestBashRunsCommand(t *testing.T) {
	def := NewBashTool()
	res, err := def.Handler(context.Background(),
		json.RawMessage(`{"command": "echo hello"}`),
		tools.DefaultExecContext(t.TempDir()))
	if err != nil {
		t.Fatalf("bash handler returned error: %v", err)
	}
	if res.IsError {
		t.Fatalf("command failed: %s", res.Content[0].Text)
	}
	if res.Content[0].Text != "hello\n" {
		t.Errorf("output = %q", res.Content[0].Text)
	}
}

func TestBashNonZeroExit(t *testing.T) {
	def := NewBashTool()
	res, err := def.Handler(context.Background(),
		json.RawMessage(`{"command": "exit 3"}`),
		tools.DefaultExecContext(t.TempDir()))
	if err != nil {
		t.Fatalf("bash handler returned error: %v", err)
	}
	if !res.IsError {
		t.Error("non-zero exit not reported as error result")
	}

	var details struct {
		ExitCode int `json:"exit_code"`
	}
	if err := json.Unmarshal(res.Details, &details); err != nil {
		t.Fatal(err)
	}
	if details.ExitCode != 3 {
		t.Errorf("exit_code = %d, want 3", details.ExitCode)
	}
}

func TestBashTruncationWritesSideArtifact(t *testing.T) {
	dir := t.TempDir()
	ec := tools.DefaultExecContext(dir)
	ec.Command = tools.CommandLimits{MaxBytes: 16}
	ec.TmpDir = dir

	def := NewBashTool()
	res, err := def.Handler(context.Background(),
		json.RawMessage(`{"command": "seq 1 1000"}`),
		ec)
	if err != nil {
		t.Fatalf("bash handler returned error: %v", err)
	}

	var details struct {
		Truncated      bool   `json:"truncated"`
		FullOutputPath string `json:"full_output_path"`
	}
	if err := json.Unmarshal(res.Details, &details); err != nil {
		t.Fatal(err)
	}
	if !details.Truncated {
		t.Fatal("expected truncated output")
	}
	if details.FullOutputPath == "" {
		t.Fatal("no side artifact recorded")
	}
	full, err := os.ReadFile(details.FullOutputPath)
	if err != nil {
		t.Fatalf("read side artifact: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(string(full)), "1000") {
		t.Error("side artifact does not hold the full output")
	}
}
