package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/pkg/models"
)

// Result is the output of one tool handler invocation.
type Result struct {
	Content []models.ContentPart
	Details json.RawMessage
	IsError bool
}

// TextResult builds a plain text result.
func TextResult(text string) *Result {
	return &Result{Content: []models.ContentPart{models.TextPart(text)}}
}

// ErrorResult builds an error result with the given text.
func ErrorResult(text string) *Result {
	return &Result{Content: []models.ContentPart{models.TextPart(text)}, IsError: true}
}

// Handler executes a tool with validated input. The context is cancelled on
// abort; handlers are expected to honor it. Expected failures go into the
// Result; a returned error is converted to an error result at the pipeline
// boundary rather than thrown across it.
type Handler func(ctx context.Context, input json.RawMessage, ec ExecContext) (*Result, error)

// Definition is the tool contract: a unique name, a description for the
// model, a JSON schema for input validation, and the handler.
type Definition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Options configure per-tool execution behavior at registration time.
type Options struct {
	// Timeout bounds one handler invocation. Advisory: the registry signals
	// via context and abandons non-cooperating handlers without killing them.
	Timeout time.Duration

	// CacheTTL caches results keyed by input for the given duration.
	CacheTTL time.Duration
}

type entry struct {
	def     Definition
	schema  *jsonschema.Schema
	opts    Options
	cacheMu sync.Mutex
	cache   map[string]cachedResult
}

type cachedResult struct {
	result  *Result
	expires time.Time
}

// Registry holds tool definitions and runs the execution pipeline:
// validation, context merge, invocation, and panic recovery.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	base    ExecContext
	metrics *observability.Metrics
}

// NewRegistry creates a registry with the given default execution context.
// Metrics may be nil.
func NewRegistry(base ExecContext, metrics *observability.Metrics) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		base:    base,
		metrics: metrics,
	}
}

// Register adds a tool definition. Registering a duplicate name is a
// configuration error, fatal at startup.
func (r *Registry) Register(def Definition, opts Options) error {
	if def.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %q has no handler", def.Name)
	}

	var schema *jsonschema.Schema
	if len(def.InputSchema) > 0 {
		compiled, err := jsonschema.CompileString(def.Name+".json", string(def.InputSchema))
		if err != nil {
			return fmt.Errorf("tool %q schema: %w", def.Name, err)
		}
		schema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Name]; exists {
		return &DuplicateToolError{Name: def.Name}
	}
	e := &entry{def: def, schema: schema, opts: opts}
	if opts.CacheTTL > 0 {
		e.cache = make(map[string]cachedResult)
	}
	r.entries[def.Name] = e
	r.order = append(r.order, def.Name)
	return nil
}

// Definitions returns registered tools in registration order, for passing to
// a transport.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].def)
	}
	return defs
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// DefaultContext returns a copy of the registry-wide default context.
func (r *Registry) DefaultContext() ExecContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.base
}

// Invoke validates rawArgs against the tool's schema, merges overrides onto
// the default execution context, and runs the handler. UnknownToolError and
// InvalidInputError are returned as errors; handler failures are returned as
// error results so a failing tool never aborts the turn.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs json.RawMessage, overrides *ContextOverrides) (*Result, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	base := r.base
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}

	if e.schema != nil {
		var v any
		if err := json.Unmarshal(rawArgs, &v); err != nil {
			return nil, &InvalidInputError{Tool: name, Reason: err.Error()}
		}
		if err := e.schema.Validate(v); err != nil {
			return nil, &InvalidInputError{Tool: name, Reason: err.Error()}
		}
	}

	if e.cache != nil {
		if res, ok := e.cachedFor(rawArgs); ok {
			return res, nil
		}
	}

	ec := overrides.merge(base)

	execCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := r.run(execCtx, e, rawArgs, ec)
	if r.metrics != nil {
		r.metrics.ToolExecutions.WithLabelValues(name, outcomeLabel(result, err)).Inc()
		r.metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	if result == nil {
		result = TextResult("")
	}

	if e.cache != nil && !result.IsError {
		e.store(rawArgs, result)
	}
	return result, nil
}

// run invokes the handler with panic recovery. Waiting happens on a result
// channel so a non-cooperating handler is abandoned at timeout rather than
// blocking the turn.
func (r *Registry) run(ctx context.Context, e *entry, rawArgs json.RawMessage, ec ExecContext) (*Result, error) {
	type outcome struct {
		result *Result
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- outcome{err: fmt.Errorf("tool %s panic: %v\n%s", e.def.Name, p, debug.Stack())}
			}
		}()
		res, err := e.def.Handler(ctx, rawArgs, ec)
		ch <- outcome{result: res, err: err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("tool %s: %w", e.def.Name, ctx.Err())
	}
}

func outcomeLabel(result *Result, err error) string {
	if err != nil || (result != nil && result.IsError) {
		return "error"
	}
	return "ok"
}

func (e *entry) cachedFor(rawArgs json.RawMessage) (*Result, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	c, ok := e.cache[string(rawArgs)]
	if !ok || time.Now().After(c.expires) {
		delete(e.cache, string(rawArgs))
		return nil, false
	}
	return c.result, true
}

func (e *entry) store(rawArgs json.RawMessage, result *Result) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache[string(rawArgs)] = cachedResult{result: result, expires: time.Now().Add(e.opts.CacheTTL)}
}
