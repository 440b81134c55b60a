package sessionlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/haasonsaas/loom/pkg/models"
)

func TestStartWritesMetadataFirst(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "/work/project", nil)

	id, err := l.Start("anthropic", "claude-sonnet-4-20250514", "medium")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Close()

	if id == "" {
		t.Fatal("empty session id")
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("new session file has %d lines, want 1", len(lines))
	}

	var meta models.SessionEntry
	if err := json.Unmarshal([]byte(lines[0]), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Type != models.EntrySession {
		t.Errorf("first entry type = %q, want session metadata", meta.Type)
	}
	if meta.ID != id || meta.Provider != "anthropic" || meta.ThinkingLevel != "medium" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestStartTwiceFails(t *testing.T) {
	l := New(t.TempDir(), "/work", nil)
	if _, err := l.Start("anthropic", "m", ""); err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, err := l.Start("anthropic", "m", ""); err == nil {
		t.Fatal("second Start succeeded")
	}
}

func TestCloseDuringConcurrentAppends(t *testing.T) {
	l := New(t.TempDir(), "/work", nil)
	if _, err := l.Start("anthropic", "m", ""); err != nil {
		t.Fatal(err)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					l.AppendEntry("note", json.RawMessage(`{"n":1}`))
				}
			}
		}()
	}

	l.Close()
	close(stop)
	wg.Wait()

	// Appends after Close are dropped, not panics.
	l.AppendEntry("late", json.RawMessage(`{}`))
}

func TestAppendsPreserveOrder(t *testing.T) {
	l := New(t.TempDir(), "/work", nil)
	if _, err := l.Start("openai", "gpt-4o", ""); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 50; i++ {
		l.AppendMessage(models.UserMessage(fmt.Sprintf("message %d", i)))
	}
	l.Close()

	entries := l.Entries()
	if len(entries) != 51 {
		t.Fatalf("got %d entries, want metadata + 50 messages", len(entries))
	}
	for i, entry := range entries[1:] {
		want := fmt.Sprintf("message %d", i)
		if entry.Message == nil || entry.Message.Text() != want {
			t.Fatalf("entry %d out of order: %+v", i, entry)
		}
	}
}

func TestAppendEntryCustomType(t *testing.T) {
	l := New(t.TempDir(), "/work", nil)
	if _, err := l.Start("openai", "gpt-4o", ""); err != nil {
		t.Fatal(err)
	}
	l.AppendEntry("bookmark", json.RawMessage(`{"note":"here"}`))
	l.Close()

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[1].Type != models.EntryCustom || entries[1].CustomType != "bookmark" {
		t.Errorf("custom entry = %+v", entries[1])
	}
}

func TestAppendBeforeStartIsDropped(t *testing.T) {
	l := New(t.TempDir(), "/work", nil)
	// Must not panic or block.
	l.AppendMessage(models.UserMessage("too early"))
	l.Close()
}

func TestEntriesSkipsMalformedLines(t *testing.T) {
	l := New(t.TempDir(), "/work", nil)
	if _, err := l.Start("anthropic", "m", ""); err != nil {
		t.Fatal(err)
	}
	l.AppendMessage(models.UserMessage("good"))
	l.Close()

	// Simulate a partially-written trailing line from a crashed append.
	f, err := os.OpenFile(l.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"type":"message","mess`)
	f.Close()

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 with the torn line skipped", len(entries))
	}
}

func TestCwdKey(t *testing.T) {
	tests := []struct {
		cwd  string
		want string
	}{
		{"/home/user/project", "home-user-project"},
		{"/", "root"},
		{"", "root"},
		{"/trailing/slash/", "trailing-slash"},
	}
	for _, tt := range tests {
		if got := cwdKey(tt.cwd); got != tt.want {
			t.Errorf("cwdKey(%q) = %q, want %q", tt.cwd, got, tt.want)
		}
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	cwd := "/work/app"

	scope := filepath.Join(dir, cwdKey(cwd))
	if err := os.MkdirAll(scope, 0o755); err != nil {
		t.Fatal(err)
	}
	writeSession := func(name, id string) {
		meta := models.SessionEntry{Type: models.EntrySession, ID: id, Cwd: cwd, Provider: "anthropic", ModelID: "m"}
		line, _ := json.Marshal(meta)
		if err := os.WriteFile(filepath.Join(scope, name), append(line, '\n'), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeSession("20250101T090000-aaa.jsonl", "aaa")
	writeSession("20250102T090000-bbb.jsonl", "bbb")
	writeSession("20250103T090000-ccc.jsonl", "ccc")

	sessions := ListSessions(dir, cwd)
	if len(sessions) != 3 {
		t.Fatalf("got %d sessions", len(sessions))
	}
	want := []string{"ccc", "bbb", "aaa"}
	for i, s := range sessions {
		if s.ID != want[i] {
			t.Errorf("sessions[%d].ID = %q, want %q", i, s.ID, want[i])
		}
	}
}

func TestListSessionsMissingDir(t *testing.T) {
	if sessions := ListSessions(t.TempDir(), "/nowhere"); sessions != nil {
		t.Errorf("got %v, want nil for missing scope", sessions)
	}
}

func TestLoadSessionCorruptMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jsonl")
	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if entries := LoadSession(path); entries != nil {
		t.Errorf("corrupt session loaded: %v", entries)
	}
}

func TestLoadLatest(t *testing.T) {
	dir := t.TempDir()
	cwd := "/work/latest"

	l := New(dir, cwd, nil)
	if _, err := l.Start("openai", "gpt-4o", ""); err != nil {
		t.Fatal(err)
	}
	l.AppendMessage(models.UserMessage("hello"))
	l.Close()

	entries := LoadLatest(dir, cwd)
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[1].Message.Text() != "hello" {
		t.Errorf("message = %q", entries[1].Message.Text())
	}
}
