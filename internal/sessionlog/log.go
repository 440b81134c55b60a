// Package sessionlog maintains the durable, append-only record of a
// session: turns, messages, and hook-defined custom entries, stored as
// newline-delimited JSON scoped by working directory.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/loom/pkg/models"
)

// writeBuffer bounds in-flight appends. Appends block (briefly) rather than
// drop once the buffer fills, preserving on-disk ordering.
const writeBuffer = 256

// Log is the single writer for one session's on-disk entry sequence.
// AppendMessage and AppendEntry are fire-and-forget; a dedicated writer
// goroutine serializes them in call order, and write failures are logged
// rather than returned so a dropped history line never crashes a turn.
type Log struct {
	dir    string
	cwd    string
	logger *slog.Logger

	mu        sync.Mutex
	sessionID string
	path      string

	entries chan models.SessionEntry
	done    chan struct{}
}

// New creates a session log rooted at dir for the given working directory.
func New(dir, cwd string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		dir:    dir,
		cwd:    cwd,
		logger: logger.With("component", "sessionlog"),
	}
}

// cwdKey normalizes a working directory into a filesystem-safe scope name.
func cwdKey(cwd string) string {
	key := strings.Trim(filepath.ToSlash(filepath.Clean(cwd)), "/")
	key = strings.ReplaceAll(key, "/", "-")
	if key == "" || key == "." {
		key = "root"
	}
	return key
}

// Start opens a new session file and writes the metadata entry as its first
// line. It returns the session id.
func (l *Log) Start(provider, modelID, thinkingLevel string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sessionID != "" {
		return "", fmt.Errorf("session already started: %s", l.sessionID)
	}

	id := uuid.NewString()
	now := time.Now()

	scope := filepath.Join(l.dir, cwdKey(l.cwd))
	if err := os.MkdirAll(scope, 0o755); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}
	path := filepath.Join(scope, fmt.Sprintf("%s-%s.jsonl", now.Format("20060102T150405"), id))

	meta := models.SessionEntry{
		Type:          models.EntrySession,
		Timestamp:     now,
		ID:            id,
		Cwd:           l.cwd,
		Provider:      provider,
		ModelID:       modelID,
		ThinkingLevel: thinkingLevel,
	}
	line, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode session metadata: %w", err)
	}
	if err := os.WriteFile(path, append(line, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write session metadata: %w", err)
	}

	l.sessionID = id
	l.path = path
	l.entries = make(chan models.SessionEntry, writeBuffer)
	l.done = make(chan struct{})
	go l.writeLoop(path, l.entries, l.done)

	return id, nil
}

// SessionID returns the current session id, empty before Start.
func (l *Log) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// Path returns the session file path, empty before Start.
func (l *Log) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// AppendMessage records a message entry. Best-effort and ordered.
func (l *Log) AppendMessage(msg *models.Message) {
	if msg == nil {
		return
	}
	l.enqueue(models.SessionEntry{
		Type:      models.EntryMessage,
		Timestamp: time.Now(),
		Message:   msg,
	})
}

// AppendEntry records a hook-defined custom entry. Best-effort and ordered.
func (l *Log) AppendEntry(customType string, data json.RawMessage) {
	l.enqueue(models.SessionEntry{
		Type:       models.EntryCustom,
		Timestamp:  time.Now(),
		CustomType: customType,
		Data:       data,
	})
}

// enqueue sends under the mutex so Close cannot retire the channel between
// the nil check and the send. A full buffer blocks briefly; the writer
// goroutine drains without taking the mutex.
func (l *Log) enqueue(entry models.SessionEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries == nil {
		l.logger.Warn("append with no active session", "type", entry.Type)
		return
	}
	l.entries <- entry
}

// Close flushes pending appends and stops the writer. The log cannot be
// reused afterward.
func (l *Log) Close() {
	l.mu.Lock()
	ch := l.entries
	done := l.done
	l.entries = nil
	l.mu.Unlock()
	if ch == nil {
		return
	}
	close(ch)
	<-done
}

// writeLoop is the single writer goroutine: it appends entries in arrival
// order, logging and swallowing failures.
func (l *Log) writeLoop(path string, entries <-chan models.SessionEntry, done chan<- struct{}) {
	defer close(done)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.logger.Error("open session file", "path", path, "error", err)
		for range entries {
			// Drain so producers never block on a dead writer.
		}
		return
	}
	defer f.Close()

	for entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			l.logger.Warn("encode session entry", "type", entry.Type, "error", err)
			continue
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			l.logger.Warn("append session entry", "type", entry.Type, "error", err)
		}
	}
}

// Entries reads back the full on-disk entry sequence. Malformed or
// partially-written lines are skipped rather than failing the read, since
// the file may be read while an append is mid-flight.
func (l *Log) Entries() []models.SessionEntry {
	l.mu.Lock()
	path := l.path
	l.mu.Unlock()
	if path == "" {
		return nil
	}
	return parseFile(path)
}
