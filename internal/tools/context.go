package tools

import "os"

// ExecContext is the execution context a tool handler runs with. The
// registry holds one default context shared read-only across calls; per-call
// overrides are copy-merged, never mutating the default.
type ExecContext struct {
	// Cwd is the working directory for file resolution and shell commands.
	Cwd string

	// Env is the environment for spawned processes, in os.Environ form.
	Env []string

	// TmpDir receives side artifacts such as full copies of truncated output.
	TmpDir string

	// Text caps text-tier tool output.
	Text TextLimits

	// Command caps command-tier output.
	Command CommandLimits
}

// DefaultExecContext builds a context rooted at cwd with process environment
// and default truncation limits.
func DefaultExecContext(cwd string) ExecContext {
	return ExecContext{
		Cwd:     cwd,
		Env:     os.Environ(),
		TmpDir:  os.TempDir(),
		Text:    DefaultTextLimits(),
		Command: DefaultCommandLimits(),
	}
}

// ContextOverrides selectively replaces fields of the default context.
// Zero-valued fields keep the default.
type ContextOverrides struct {
	Cwd     string
	Env     []string
	TmpDir  string
	Text    *TextLimits
	Command *CommandLimits
}

// merge builds a fresh context from the default and the overrides.
func (o *ContextOverrides) merge(base ExecContext) ExecContext {
	out := base
	if o == nil {
		return out
	}
	if o.Cwd != "" {
		out.Cwd = o.Cwd
	}
	if o.Env != nil {
		out.Env = append([]string(nil), o.Env...)
	}
	if o.TmpDir != "" {
		out.TmpDir = o.TmpDir
	}
	if o.Text != nil {
		out.Text = *o.Text
	}
	if o.Command != nil {
		out.Command = *o.Command
	}
	return out
}
