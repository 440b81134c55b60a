// Package engine implements the turn orchestrator: it owns the turn state
// machine, coordinates transport streaming, dispatches tool calls through
// the registry with hook interception, and records everything to the
// session log. At most one turn is active at a time; input submitted while
// busy is buffered in the prompt queue.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/haasonsaas/loom/internal/backoff"
	"github.com/haasonsaas/loom/internal/diagnostics"
	"github.com/haasonsaas/loom/internal/hooks"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/queue"
	"github.com/haasonsaas/loom/internal/sessionlog"
	"github.com/haasonsaas/loom/internal/tools"
	"github.com/haasonsaas/loom/internal/transport"
	"github.com/haasonsaas/loom/pkg/models"
)

// State is the engine's position in the turn lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateSubmitting   State = "submitting"
	StateStreaming    State = "streaming"
	StateAwaitingTool State = "awaiting-tool"
	StateFinalizing   State = "finalizing"
	StateAborting     State = "aborting"
	StateErrored      State = "errored"
)

// StateChange notifies observers of a lifecycle transition. RetryAttempt is
// non-zero while a transport retry is pending; it clears on the next change.
type StateChange struct {
	State        State
	TurnIndex    int
	RetryAttempt int
	Err          error
}

// Observer receives state changes. Called synchronously; keep it fast.
type Observer func(StateChange)

// TextFunc receives streamed assistant text deltas for live display.
type TextFunc func(delta string)

// Config tunes the engine.
type Config struct {
	// SystemPrompt is sent with every completion request, after the
	// chat.system.transform hook has run.
	SystemPrompt string

	// MaxRetries bounds transport retry attempts per streaming round.
	// Default 3.
	MaxRetries int

	// MaxConcurrentTools caps parallel tool executions within one turn.
	// Default 4.
	MaxConcurrentTools int

	// Retry is the backoff policy between transport retries. Zero value
	// uses backoff.DefaultPolicy.
	Retry backoff.Policy
}

// Options wires the engine's collaborators. Transport, Registry, Hooks, and
// Log are required.
type Options struct {
	Transport   transport.Transport
	Registry    *tools.Registry
	Hooks       *hooks.Runner
	Log         *sessionlog.Log
	Queue       *queue.PromptQueue
	Diagnostics diagnostics.Checker
	Metrics     *observability.Metrics
	Logger      *slog.Logger
	Config      Config
}

// Engine is the orchestrator. Safe for concurrent use; Submit and Abort may
// be called from any goroutine.
type Engine struct {
	transport transport.Transport
	registry  *tools.Registry
	hooks     *hooks.Runner
	log       *sessionlog.Log
	queue     *queue.PromptQueue
	checker   diagnostics.Checker
	metrics   *observability.Metrics
	logger    *slog.Logger

	systemPrompt string
	maxRetries   int
	maxTools     int
	retry        backoff.Policy

	mu        sync.Mutex
	state     State
	turnIndex int
	history   []*models.Message
	turn      *models.Turn
	cancel    context.CancelFunc
	aborting  bool
	observers []Observer
	onText    TextFunc
}

// New creates an engine and initializes the hook runner with the callbacks
// backing the hook API surface. It fails if a required collaborator is
// missing or the runner was already initialized.
func New(opts Options) (*Engine, error) {
	if opts.Transport == nil {
		return nil, errors.New("engine: transport is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("engine: tool registry is required")
	}
	if opts.Hooks == nil {
		return nil, errors.New("engine: hook runner is required")
	}
	if opts.Log == nil {
		return nil, errors.New("engine: session log is required")
	}
	if opts.Queue == nil {
		opts.Queue = queue.New(0)
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = diagnostics.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := opts.Config
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxConcurrentTools <= 0 {
		cfg.MaxConcurrentTools = 4
	}
	if cfg.Retry == (backoff.Policy{}) {
		cfg.Retry = backoff.DefaultPolicy()
	}

	e := &Engine{
		transport:    opts.Transport,
		registry:     opts.Registry,
		hooks:        opts.Hooks,
		log:          opts.Log,
		queue:        opts.Queue,
		checker:      opts.Diagnostics,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "engine"),
		systemPrompt: cfg.SystemPrompt,
		maxRetries:   cfg.MaxRetries,
		maxTools:     cfg.MaxConcurrentTools,
		retry:        cfg.Retry,
		state:        StateIdle,
	}

	err := opts.Hooks.Initialize(hooks.Deps{
		Send: func(text string) error {
			_, err := e.Submit(text)
			return err
		},
		SendMessage: e.injectMessage,
		AppendEntry: func(customType string, data []byte) {
			e.log.AppendEntry(customType, data)
		},
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// StartSession opens the session log and fires session.start.
func (e *Engine) StartSession(thinkingLevel string) (string, error) {
	id, err := e.log.Start(e.transport.Name(), e.transport.Model(), thinkingLevel)
	if err != nil {
		return "", err
	}
	e.hooks.Emit(context.Background(), hooks.NewEvent(hooks.EventSessionStart, id))
	return id, nil
}

// Submit dispatches text as a new turn, or queues it when a turn is already
// active. The returned depth is zero when the turn started immediately and
// the queue position otherwise. A full queue rejects the submission with
// queue.FullError, reporting the current depth. The queue holds text only;
// a submission carrying images while busy is rejected rather than stripped.
func (e *Engine) Submit(text string, images ...models.ContentPart) (int, error) {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		if len(images) > 0 {
			return 0, errors.New("engine: cannot queue images while a turn is active")
		}
		depth, err := e.queue.Push(text)
		e.setQueueDepth()
		return depth, err
	}
	e.startTurnLocked(models.UserMessage(text, images...))
	e.mu.Unlock()
	return 0, nil
}

// Abort cancels the active turn: the in-flight transport stream, in-flight
// tool executions, and any pending retry timer all observe the same
// cancellation. Queued prompts are drained and returned newline-joined so
// the caller can repopulate an editor. Aborting an idle engine is a no-op.
func (e *Engine) Abort() string {
	e.mu.Lock()
	if e.state == StateIdle {
		e.mu.Unlock()
		text, _ := e.queue.DrainToText()
		e.setQueueDepth()
		return text
	}
	cancel := e.cancel
	// The flag survives until finishTurn so an abort racing a completing
	// turn still suppresses the queue drain.
	e.aborting = true
	e.setStateLocked(StateAborting, 0, nil)
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	text, _ := e.queue.DrainToText()
	e.setQueueDepth()
	return text
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// TurnIndex returns the index the next turn will be assigned.
func (e *Engine) TurnIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnIndex
}

// QueueDepth returns the number of buffered prompts.
func (e *Engine) QueueDepth() int {
	return e.queue.Depth()
}

// History returns a snapshot of the conversation so far.
func (e *Engine) History() []*models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.Message, len(e.history))
	copy(out, e.history)
	return out
}

// OnStateChange registers a lifecycle observer.
func (e *Engine) OnStateChange(fn Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// OnText registers the streamed-text sink used for live display.
func (e *Engine) OnText(fn TextFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onText = fn
}

// injectMessage services the hook SendMessage callback. With triggerTurn the
// message starts a turn (or is queued by its text when busy); otherwise it
// is recorded in history and the session log without involving the model.
func (e *Engine) injectMessage(msg *models.Message, triggerTurn bool) error {
	if msg == nil {
		return errors.New("engine: nil message")
	}
	if !triggerTurn {
		e.appendHistory(msg)
		return nil
	}
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		_, err := e.queue.Push(msg.Text())
		e.setQueueDepth()
		return err
	}
	e.startTurnLocked(msg)
	e.mu.Unlock()
	return nil
}

// startTurnLocked creates the turn and spawns its goroutine. Caller holds mu.
func (e *Engine) startTurnLocked(msg *models.Message) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.turn = &models.Turn{
		Index:        e.turnIndex,
		Status:       models.TurnPending,
		ContextLimit: e.transport.ContextLimit(),
	}
	e.setStateLocked(StateSubmitting, 0, nil)
	go e.runTurn(ctx, msg)
}

func (e *Engine) setState(s State, retryAttempt int, err error) {
	e.mu.Lock()
	e.setStateLocked(s, retryAttempt, err)
	e.mu.Unlock()
}

// setStateLocked updates the state and notifies observers. Caller holds mu.
// Observers run synchronously under the lock and must not call back into
// the engine.
func (e *Engine) setStateLocked(s State, retryAttempt int, err error) {
	e.state = s
	change := StateChange{State: s, TurnIndex: e.turnIndex, RetryAttempt: retryAttempt, Err: err}
	observers := make([]Observer, len(e.observers))
	copy(observers, e.observers)
	for _, fn := range observers {
		fn(change)
	}
}

// appendHistory records a message in memory and in the session log.
func (e *Engine) appendHistory(msg *models.Message) {
	e.mu.Lock()
	e.history = append(e.history, msg)
	if e.turn != nil {
		e.turn.Messages = append(e.turn.Messages, msg)
	}
	e.mu.Unlock()
	e.log.AppendMessage(msg)
}

func (e *Engine) emitText(delta string) {
	e.mu.Lock()
	fn := e.onText
	e.mu.Unlock()
	if fn != nil {
		fn(delta)
	}
}

func (e *Engine) setQueueDepth() {
	if e.metrics != nil {
		e.metrics.QueueDepth.Set(float64(e.queue.Depth()))
	}
}

// toolSpecs exposes the registry's definitions to the transport.
func (e *Engine) toolSpecs() []transport.ToolSpec {
	defs := e.registry.Definitions()
	specs := make([]transport.ToolSpec, len(defs))
	for i, def := range defs {
		specs[i] = transport.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}
	}
	return specs
}
