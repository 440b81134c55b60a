package tools

import (
	"fmt"
	"strings"
)

// TextLimits caps text-tier tool output by bytes and lines.
type TextLimits struct {
	MaxBytes int
	MaxLines int
}

// CommandLimits caps command-tier output by bytes only, tail-truncated.
type CommandLimits struct {
	MaxBytes int
}

// DefaultTextLimits mirrors what fits comfortably in a model context window
// for file reads.
func DefaultTextLimits() TextLimits {
	return TextLimits{MaxBytes: 256 << 10, MaxLines: 2000}
}

// DefaultCommandLimits bounds shell output.
func DefaultCommandLimits() CommandLimits {
	return CommandLimits{MaxBytes: 64 << 10}
}

// Truncation is the deterministic result of capping oversized output.
// Callers use the omission counts to decide whether to persist a side
// artifact with the full content.
type Truncation struct {
	Value        string
	Truncated    bool
	OmittedBytes int
	OmittedLines int
}

// lineCount counts lines the way an editor does: a trailing newline
// terminates the last line rather than opening an empty one.
func lineCount(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// TruncateText caps s to the text-tier limits. Truncation is tail-biased by
// default: the beginning is kept and an indicator marks where content was
// cut. With headBias set, the end is kept instead (for showing the tail of a
// long log).
func TruncateText(s string, limits TextLimits, headBias bool) Truncation {
	if limits.MaxBytes <= 0 && limits.MaxLines <= 0 {
		return Truncation{Value: s}
	}

	totalLines := lineCount(s)

	withinBytes := limits.MaxBytes <= 0 || len(s) <= limits.MaxBytes
	withinLines := limits.MaxLines <= 0 || totalLines <= limits.MaxLines
	if withinBytes && withinLines {
		return Truncation{Value: s}
	}

	kept := s
	if limits.MaxLines > 0 && totalLines > limits.MaxLines {
		lines := strings.SplitAfter(s, "\n")
		if lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		if headBias {
			kept = strings.Join(lines[len(lines)-limits.MaxLines:], "")
		} else {
			kept = strings.Join(lines[:limits.MaxLines], "")
		}
	}
	if limits.MaxBytes > 0 && len(kept) > limits.MaxBytes {
		if headBias {
			kept = kept[len(kept)-limits.MaxBytes:]
		} else {
			kept = kept[:limits.MaxBytes]
		}
	}

	omittedBytes := len(s) - len(kept)
	omittedLines := totalLines - lineCount(kept)

	var indicator string
	if headBias {
		indicator = fmt.Sprintf("[... %d bytes (%d lines) omitted from start ...]\n", omittedBytes, omittedLines)
		kept = indicator + kept
	} else {
		indicator = fmt.Sprintf("\n[... %d bytes (%d lines) omitted ...]", omittedBytes, omittedLines)
		kept = kept + indicator
	}

	return Truncation{
		Value:        kept,
		Truncated:    true,
		OmittedBytes: omittedBytes,
		OmittedLines: omittedLines,
	}
}

// TruncateCommand caps command output to the byte limit, keeping the head.
func TruncateCommand(s string, limits CommandLimits) Truncation {
	if limits.MaxBytes <= 0 || len(s) <= limits.MaxBytes {
		return Truncation{Value: s}
	}
	kept := s[:limits.MaxBytes]
	omitted := len(s) - len(kept)
	return Truncation{
		Value:        kept + fmt.Sprintf("\n[... %d bytes omitted ...]", omitted),
		Truncated:    true,
		OmittedBytes: omitted,
	}
}
