package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/loom/internal/tools"
	"github.com/haasonsaas/loom/pkg/models"
)

// Hook is the fixed capability set produced by loading a plugin. The loader
// validates the shape once at load time; registries are read-only afterward.
type Hook struct {
	// Name identifies the hook in error reports and logs.
	Name string

	// Setup registers the hook's handlers and capabilities against the API.
	Setup func(api *API) error
}

// API is the surface a hook sees during setup. All registrations are tagged
// with the hook's name for error attribution.
type API struct {
	runner *Runner
	hook   string
}

// On registers an observational handler.
func (a *API) On(eventType EventType, handler Handler) {
	a.runner.on(eventType, a.hook, handler)
}

// OnMutating registers a mutating handler.
func (a *API) OnMutating(eventType EventType, handler MutatingHandler) {
	a.runner.onMutating(eventType, a.hook, handler)
}

// OnBeforeTool registers a tool interception handler.
func (a *API) OnBeforeTool(handler BeforeToolHandler) {
	a.runner.onBeforeTool(a.hook, handler)
}

// OnAfterTool registers a tool result rewrite handler.
func (a *API) OnAfterTool(handler AfterToolHandler) {
	a.runner.onAfterTool(a.hook, handler)
}

// Send injects text as if the user had submitted it.
func (a *API) Send(text string) error {
	a.runner.mu.RLock()
	send := a.runner.deps.Send
	a.runner.mu.RUnlock()
	if send == nil {
		return errors.New("hook runner not initialized")
	}
	return send(text)
}

// SendMessage injects a hook-authored message, optionally starting a turn.
func (a *API) SendMessage(msg *models.Message, triggerTurn bool) error {
	a.runner.mu.RLock()
	sendMessage := a.runner.deps.SendMessage
	a.runner.mu.RUnlock()
	if sendMessage == nil {
		return errors.New("hook runner not initialized")
	}
	if msg.Role == "" {
		msg.Role = models.RoleHook
	}
	return sendMessage(msg, triggerTurn)
}

// AppendEntry writes a custom entry to the session log. Best-effort: a
// dropped history line never fails the caller.
func (a *API) AppendEntry(customType string, data json.RawMessage) {
	a.runner.mu.RLock()
	appendEntry := a.runner.deps.AppendEntry
	a.runner.mu.RUnlock()
	if appendEntry == nil {
		return
	}
	appendEntry(customType, data)
}

// RegisterTool adds a hook-defined tool to the runner's registry.
func (a *API) RegisterTool(def tools.Definition) error {
	return a.runner.RegisterTool(def)
}

// RegisterCommand adds a slash command.
func (a *API) RegisterCommand(name string, cmd Command) error {
	cmd.Name = name
	return a.runner.RegisterCommand(cmd)
}

// RegisterMessageRenderer adds a renderer for a custom entry type.
func (a *API) RegisterMessageRenderer(customType string, renderer Renderer) error {
	return a.runner.RegisterMessageRenderer(customType, renderer)
}

// Load validates and registers each hook against the runner. A hook whose
// setup fails is skipped and reported; it does not prevent later hooks from
// loading.
func Load(runner *Runner, logger *slog.Logger, hooks ...Hook) error {
	if logger == nil {
		logger = slog.Default()
	}
	var firstErr error
	for _, h := range hooks {
		if err := validate(h); err != nil {
			logger.Warn("rejecting malformed hook", "hook", h.Name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		api := &API{runner: runner, hook: h.Name}
		if err := safeSetup(h, api); err != nil {
			logger.Warn("hook setup failed", "hook", h.Name, "error", err)
			runner.report(EventType("hook.load"), h.Name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		logger.Debug("loaded hook", "hook", h.Name)
	}
	return firstErr
}

func validate(h Hook) error {
	if h.Name == "" {
		return errors.New("hook has no name")
	}
	if h.Setup == nil {
		return fmt.Errorf("hook %q has no setup function", h.Name)
	}
	return nil
}

func safeSetup(h Hook, api *API) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook setup panic: %v", p)
		}
	}()
	return h.Setup(api)
}

