package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/loom/internal/backoff"
	"github.com/haasonsaas/loom/internal/config"
	"github.com/haasonsaas/loom/internal/diagnostics"
	"github.com/haasonsaas/loom/internal/engine"
	"github.com/haasonsaas/loom/internal/hooks"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/queue"
	"github.com/haasonsaas/loom/internal/sessionlog"
	"github.com/haasonsaas/loom/internal/tools"
	"github.com/haasonsaas/loom/internal/tools/builtin"
	"github.com/haasonsaas/loom/internal/transport"
)

func buildChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat()
		},
	}
}

func runChat() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		AddSource: cfg.Logging.AddSource,
	})

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				logger.Error("metrics server", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	trans, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	cwd := cfg.Tools.Cwd
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return err
		}
	}

	base := tools.DefaultExecContext(cwd)
	if cfg.Tools.TextMaxBytes > 0 {
		base.Text.MaxBytes = cfg.Tools.TextMaxBytes
	}
	if cfg.Tools.TextMaxLines > 0 {
		base.Text.MaxLines = cfg.Tools.TextMaxLines
	}
	if cfg.Tools.CommandMaxBytes > 0 {
		base.Command.MaxBytes = cfg.Tools.CommandMaxBytes
	}

	registry := tools.NewRegistry(base, metrics)
	for _, def := range []tools.Definition{
		builtin.NewReadTool(),
		builtin.NewWriteTool(),
		builtin.NewEditTool(),
		builtin.NewBashTool(),
	} {
		if err := registry.Register(def, tools.Options{}); err != nil {
			return err
		}
	}

	runner := hooks.NewRunner(logger, func(err *hooks.HandlerError) {
		metrics.HookHandlerErrors.Inc()
		fmt.Fprintln(os.Stderr, "hook error:", err)
	})

	// Hook-registered tools join the registry so the model can call them.
	for _, def := range runner.RegisteredTools() {
		if err := registry.Register(def, tools.Options{}); err != nil {
			return err
		}
	}

	log := sessionlog.New(cfg.SessionDir(), cwd, logger)
	defer log.Close()

	eng, err := engine.New(engine.Options{
		Transport:   trans,
		Registry:    registry,
		Hooks:       runner,
		Log:         log,
		Queue:       queue.New(cfg.Turn.QueueMaxDepth),
		Diagnostics: diagnostics.Noop{},
		Metrics:     metrics,
		Logger:      logger,
		Config: engine.Config{
			SystemPrompt:       cfg.Turn.SystemPrompt,
			MaxRetries:         cfg.Turn.MaxRetries,
			MaxConcurrentTools: cfg.Turn.MaxConcurrentTools,
			Retry: backoff.Policy{
				Initial: cfg.Turn.RetryBaseDelay,
				Max:     cfg.Turn.RetryMaxDelay,
				Factor:  2,
				Jitter:  0.1,
			},
		},
	})
	if err != nil {
		return err
	}

	sessionID, err := eng.StartSession(cfg.Provider.ThinkingLevel)
	if err != nil {
		return err
	}
	fmt.Printf("session %s (%s/%s) in %s\n", sessionID, trans.Name(), trans.Model(), cwd)

	return interact(eng, runner)
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Provider.Name {
	case "anthropic":
		apiKey := cfg.Provider.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return transport.NewAnthropic(transport.AnthropicConfig{
			APIKey:    apiKey,
			BaseURL:   cfg.Provider.BaseURL,
			Model:     cfg.Provider.Model,
			MaxTokens: cfg.Provider.MaxTokens,
		})
	case "openai":
		apiKey := cfg.Provider.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return transport.NewOpenAI(transport.OpenAIConfig{
			APIKey:    apiKey,
			BaseURL:   cfg.Provider.BaseURL,
			Model:     cfg.Provider.Model,
			MaxTokens: cfg.Provider.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

// interact runs the read-submit loop until EOF or /quit. SIGINT aborts the
// active turn and returns queued text to the prompt.
func interact(eng *engine.Engine, runner *hooks.Runner) error {
	idle := make(chan struct{}, 1)
	eng.OnText(func(delta string) {
		fmt.Print(delta)
	})
	eng.OnStateChange(func(change engine.StateChange) {
		switch {
		case change.RetryAttempt > 0:
			fmt.Fprintf(os.Stderr, "\n[retrying, attempt %d: %v]\n", change.RetryAttempt, change.Err)
		case change.State == engine.StateErrored:
			fmt.Fprintf(os.Stderr, "\n[turn failed: %v]\n", change.Err)
		case change.State == engine.StateIdle:
			select {
			case idle <- struct{}{}:
			default:
			}
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if recovered := eng.Abort(); recovered != "" {
				fmt.Fprintf(os.Stderr, "\n[aborted; queued input returned]\n%s\n", recovered)
			} else {
				fmt.Fprintln(os.Stderr, "\n[aborted]")
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := runSlashCommand(eng, runner, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			if done {
				return nil
			}
			continue
		}

		depth, err := eng.Submit(line)
		if err != nil {
			var full *queue.FullError
			if errors.As(err, &full) {
				fmt.Fprintf(os.Stderr, "queue full (depth %d), input rejected\n", depth)
				continue
			}
			return err
		}
		if depth > 0 {
			fmt.Printf("[queued at position %d]\n", depth)
			continue
		}

		// Block until the turn (and any drained queue turns) settle.
		select {
		case <-idle:
		case <-time.After(30 * time.Minute):
			fmt.Fprintln(os.Stderr, "[turn timed out]")
			eng.Abort()
		}
		fmt.Println()
	}
}

// runSlashCommand dispatches builtin and hook-registered commands. Returns
// true when the session should end.
func runSlashCommand(eng *engine.Engine, runner *hooks.Runner, line string) (bool, error) {
	name, args, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	switch name {
	case "quit", "exit":
		eng.Abort()
		return true, nil
	case "abort":
		if recovered := eng.Abort(); recovered != "" {
			fmt.Println(recovered)
		}
		return false, nil
	}

	cmd, ok := runner.Command(name)
	if !ok {
		return false, fmt.Errorf("unknown command /%s", name)
	}
	out, err := cmd.Run(context.Background(), strings.TrimSpace(args))
	if err != nil {
		return false, err
	}
	if out != "" {
		fmt.Println(out)
	}
	return false, nil
}
