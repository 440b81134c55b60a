package sessionlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/loom/pkg/models"
)

// maxLineBytes bounds a single JSONL line during read-back. Lines beyond it
// are treated as malformed and skipped.
const maxLineBytes = 16 << 20

// SessionInfo summarizes one discovered session file.
type SessionInfo struct {
	ID       string
	Path     string
	Cwd      string
	Provider string
	ModelID  string
}

// ListSessions scans the log directory for session files scoped to cwd and
// returns them newest-first. Missing directories yield an empty slice.
func ListSessions(dir, cwd string) []SessionInfo {
	scope := filepath.Join(dir, cwdKey(cwd))
	names, err := os.ReadDir(scope)
	if err != nil {
		return nil
	}

	var sessions []SessionInfo
	for _, entry := range names {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(scope, entry.Name())
		meta, ok := readMetadata(path)
		if !ok {
			continue
		}
		sessions = append(sessions, SessionInfo{
			ID:       meta.ID,
			Path:     path,
			Cwd:      meta.Cwd,
			Provider: meta.Provider,
			ModelID:  meta.ModelID,
		})
	}

	// Filenames embed the start timestamp, so name order is time order.
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Path > sessions[j].Path
	})
	return sessions
}

// LoadSession parses a session file into its entries. Returns nil when the
// file is missing or its metadata line is corrupt.
func LoadSession(path string) []models.SessionEntry {
	if _, ok := readMetadata(path); !ok {
		return nil
	}
	return parseFile(path)
}

// LoadLatest returns the entries of the most recent session for cwd, or nil.
func LoadLatest(dir, cwd string) []models.SessionEntry {
	sessions := ListSessions(dir, cwd)
	if len(sessions) == 0 {
		return nil
	}
	return LoadSession(sessions[0].Path)
}

// readMetadata parses the first line of a session file, which is always the
// session metadata entry.
func readMetadata(path string) (models.SessionEntry, bool) {
	f, err := os.Open(path)
	if err != nil {
		return models.SessionEntry{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	if !scanner.Scan() {
		return models.SessionEntry{}, false
	}

	var meta models.SessionEntry
	if err := json.Unmarshal(scanner.Bytes(), &meta); err != nil || meta.Type != models.EntrySession || meta.ID == "" {
		return models.SessionEntry{}, false
	}
	return meta, true
}

// parseFile reads every well-formed entry line, skipping malformed ones.
func parseFile(path string) []models.SessionEntry {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var entries []models.SessionEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry models.SessionEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry.Type == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
