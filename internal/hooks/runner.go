package hooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haasonsaas/loom/internal/tools"
	"github.com/haasonsaas/loom/pkg/models"
)

// ErrorListener receives hook handler failures. It must not block.
type ErrorListener func(err *HandlerError)

// Command is a hook-registered slash command exposed to the user-facing layer.
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args string) (string, error)
}

// Renderer formats a custom session entry for display.
type Renderer func(entry models.SessionEntry) string

// Deps are the callbacks the runner needs to service the hook API surface.
// They are injected once via Initialize; hooks loaded before initialization
// can still register handlers, but Send/SendMessage/AppendEntry calls fail
// until the engine is wired.
type Deps struct {
	// Send injects text as if the user submitted it.
	Send func(text string) error

	// SendMessage injects a hook-authored message, optionally starting a turn.
	SendMessage func(msg *models.Message, triggerTurn bool) error

	// AppendEntry writes a custom entry to the session log.
	AppendEntry func(customType string, data []byte)
}

// Runner is the central event bus. Handlers for a given event type run
// synchronously in registration order; a failing handler is isolated and
// reported, never propagated into the turn.
type Runner struct {
	mu          sync.RWMutex
	handlers    map[EventType][]registration[Handler]
	mutating    map[EventType][]registration[MutatingHandler]
	beforeTool  []registration[BeforeToolHandler]
	afterTool   []registration[AfterToolHandler]
	tools       map[string]tools.Definition
	toolOrder   []string
	commands    map[string]Command
	renderers   map[string]Renderer
	listener    ErrorListener
	logger      *slog.Logger
	deps        Deps
	initialized bool
}

type registration[H any] struct {
	hook    string
	handler H
}

// NewRunner creates an empty runner. The error listener may be nil, in which
// case failures are only logged.
func NewRunner(logger *slog.Logger, listener ErrorListener) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		handlers:  make(map[EventType][]registration[Handler]),
		mutating:  make(map[EventType][]registration[MutatingHandler]),
		tools:     make(map[string]tools.Definition),
		commands:  make(map[string]Command),
		renderers: make(map[string]Renderer),
		listener:  listener,
		logger:    logger.With("component", "hooks"),
	}
}

// Initialize wires the runner's engine-facing callbacks. It may be called
// exactly once; a second call is an invariant violation.
func (r *Runner) Initialize(deps Deps) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return errors.New("hook runner already initialized")
	}
	r.deps = deps
	r.initialized = true
	return nil
}

// On registers an observational handler for an event type.
func (r *Runner) On(eventType EventType, handler Handler) {
	r.on(eventType, "", handler)
}

func (r *Runner) on(eventType EventType, hook string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], registration[Handler]{hook: hook, handler: handler})
}

// OnMutating registers a mutating handler for an event type.
func (r *Runner) OnMutating(eventType EventType, handler MutatingHandler) {
	r.onMutating(eventType, "", handler)
}

func (r *Runner) onMutating(eventType EventType, hook string, handler MutatingHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutating[eventType] = append(r.mutating[eventType], registration[MutatingHandler]{hook: hook, handler: handler})
}

// OnBeforeTool registers a tool interception handler.
func (r *Runner) OnBeforeTool(handler BeforeToolHandler) {
	r.onBeforeTool("", handler)
}

func (r *Runner) onBeforeTool(hook string, handler BeforeToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeTool = append(r.beforeTool, registration[BeforeToolHandler]{hook: hook, handler: handler})
}

// OnAfterTool registers a tool result rewrite handler.
func (r *Runner) OnAfterTool(handler AfterToolHandler) {
	r.onAfterTool("", handler)
}

func (r *Runner) onAfterTool(hook string, handler AfterToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterTool = append(r.afterTool, registration[AfterToolHandler]{hook: hook, handler: handler})
}

// Emit dispatches an observational event to all handlers in registration
// order. Fire-and-forget: every handler runs regardless of earlier failures.
func (r *Runner) Emit(ctx context.Context, event *Event) {
	r.mu.RLock()
	regs := r.handlers[event.Type]
	r.mu.RUnlock()

	for _, reg := range regs {
		if err := r.call(func() error {
			return reg.handler(ctx, event)
		}); err != nil {
			r.report(event.Type, reg.hook, err)
		}
	}
}

// EmitMutating threads the event's output through the handler chain and
// returns the final value. A failing handler's mutation is discarded and the
// previous value retained.
func (r *Runner) EmitMutating(ctx context.Context, event *MutationEvent) any {
	r.mu.RLock()
	regs := r.mutating[event.Type]
	r.mu.RUnlock()

	for _, reg := range regs {
		prev := event.Output
		var out any
		err := r.call(func() error {
			var herr error
			out, herr = reg.handler(ctx, event)
			return herr
		})
		if err != nil {
			r.report(event.Type, reg.hook, err)
			event.Output = prev
			continue
		}
		if out != nil {
			event.Output = out
		}
	}
	return event.Output
}

// EmitBeforeTool runs the before-tool chain. The first handler that blocks
// short-circuits the chain; the returned decision carries the final input
// after any rewrites. A nil decision means the call proceeds unchanged.
func (r *Runner) EmitBeforeTool(ctx context.Context, event *BeforeToolEvent) *BeforeToolDecision {
	r.mu.RLock()
	regs := r.beforeTool
	r.mu.RUnlock()

	final := &BeforeToolDecision{Input: event.Input}
	for _, reg := range regs {
		var decision *BeforeToolDecision
		err := r.call(func() error {
			var herr error
			decision, herr = reg.handler(ctx, event)
			return herr
		})
		if err != nil {
			r.report(EventToolExecuteBefore, reg.hook, err)
			continue
		}
		if decision == nil {
			continue
		}
		if decision.Block {
			return &BeforeToolDecision{Block: true, Reason: decision.Reason, Input: final.Input}
		}
		if decision.Input != nil {
			event.Input = decision.Input
			final.Input = decision.Input
		}
	}
	return final
}

// EmitAfterTool runs the after-tool rewrite chain and returns the final
// result. Every handler sees the current result; the last non-nil rewrite
// wins. This fires even when the tool call errored.
func (r *Runner) EmitAfterTool(ctx context.Context, event *AfterToolEvent) models.ToolResult {
	r.mu.RLock()
	regs := r.afterTool
	r.mu.RUnlock()

	for _, reg := range regs {
		var rewrite *models.ToolResult
		err := r.call(func() error {
			var herr error
			rewrite, herr = reg.handler(ctx, event)
			return herr
		})
		if err != nil {
			r.report(EventToolExecuteAfter, reg.hook, err)
			continue
		}
		if rewrite != nil {
			event.Result = *rewrite
		}
	}
	return event.Result
}

// call invokes fn with panic recovery so a misbehaving hook degrades
// gracefully instead of wedging the turn.
func (r *Runner) call(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

func (r *Runner) report(eventType EventType, hook string, err error) {
	herr := &HandlerError{Event: eventType, Hook: hook, Err: err}
	r.logger.Warn("hook handler error", "event", eventType, "hook", hook, "error", err)
	if r.listener != nil {
		r.listener(herr)
	}
}

// RegisterTool records a hook-defined tool. Duplicate names are rejected so
// a hook cannot shadow a builtin.
func (r *Runner) RegisterTool(def tools.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("hook tool %q already registered", def.Name)
	}
	r.tools[def.Name] = def
	r.toolOrder = append(r.toolOrder, def.Name)
	return nil
}

// RegisteredTools returns hook-defined tools in registration order.
func (r *Runner) RegisteredTools() []tools.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]tools.Definition, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		defs = append(defs, r.tools[name])
	}
	return defs
}

// RegisterCommand records a slash command.
func (r *Runner) RegisterCommand(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		return fmt.Errorf("command %q already registered", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	return nil
}

// Command looks up a registered slash command.
func (r *Runner) Command(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// RegisterMessageRenderer records a renderer for a custom entry type.
func (r *Runner) RegisterMessageRenderer(customType string, renderer Renderer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.renderers[customType]; exists {
		return fmt.Errorf("renderer for %q already registered", customType)
	}
	r.renderers[customType] = renderer
	return nil
}

// MessageRenderer looks up a renderer for a custom entry type.
func (r *Runner) MessageRenderer(customType string) (Renderer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	renderer, ok := r.renderers[customType]
	return renderer, ok
}
