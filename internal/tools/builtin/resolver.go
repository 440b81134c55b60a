// Package builtin provides the file and shell tools shipped with the agent
// core. All file access is scoped to the execution context's working
// directory.
package builtin

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolve joins path against root and rejects escapes above it.
func resolve(root, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	rootClean := filepath.Clean(root)
	rel, err := filepath.Rel(rootClean, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes working directory: %s", path)
	}
	return candidate, nil
}
