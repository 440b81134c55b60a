// Package main provides the loom CLI: an interactive coding agent that
// streams model output to the terminal, executes tools in the working
// directory, and keeps an append-only session log.
//
// # Basic Usage
//
// Start an interactive session:
//
//	loom chat --config loom.yaml
//
// List recorded sessions for the current directory:
//
//	loom sessions list
//
// # Environment Variables
//
//   - LOOM_CONFIG: Path to configuration file
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "loom",
		Short:         "Interactive AI coding agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("LOOM_CONFIG"), "path to configuration file")

	rootCmd.AddCommand(buildChatCmd())
	rootCmd.AddCommand(buildSessionsCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("loom %s (commit %s, built %s)\n", version, commit, date)
		},
	})
	return rootCmd
}
