// Package diagnostics surfaces post-edit feedback on changed files, such
// as compiler or linter findings, so the model sees problems introduced by
// a write in the same round that produced it.
package diagnostics

import (
	"context"
	"fmt"
	"strings"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one finding against a file.
type Diagnostic struct {
	Path     string
	Line     int
	Column   int
	Severity Severity
	Message  string
}

// Checker inspects a file after it was written or edited. Implementations
// must tolerate missing files and return nil when there is nothing to
// report.
type Checker interface {
	Check(ctx context.Context, path, cwd string) []Diagnostic
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, path, cwd string) []Diagnostic

func (f CheckerFunc) Check(ctx context.Context, path, cwd string) []Diagnostic {
	return f(ctx, path, cwd)
}

// Noop is the default checker; it reports nothing.
type Noop struct{}

func (Noop) Check(context.Context, string, string) []Diagnostic { return nil }

// Multi runs several checkers in order and concatenates their findings.
type Multi []Checker

func (m Multi) Check(ctx context.Context, path, cwd string) []Diagnostic {
	var all []Diagnostic
	for _, checker := range m {
		all = append(all, checker.Check(ctx, path, cwd)...)
	}
	return all
}

// Format renders findings as one block suitable for appending to a tool
// result. Returns empty for no findings.
func Format(diags []Diagnostic) string {
	if len(diags) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Diagnostics:\n")
	for _, d := range diags {
		if d.Line > 0 {
			fmt.Fprintf(&b, "%s:%d:%d: %s: %s\n", d.Path, d.Line, d.Column, d.Severity, d.Message)
		} else {
			fmt.Fprintf(&b, "%s: %s: %s\n", d.Path, d.Severity, d.Message)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
