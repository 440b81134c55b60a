package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/loom/internal/config"
	"github.com/haasonsaas/loom/internal/sessionlog"
	"github.com/haasonsaas/loom/pkg/models"
)

func buildSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect recorded sessions for the current directory",
	}

	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			sessions := sessionlog.ListSessions(cfg.SessionDir(), cwd)
			if len(sessions) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			for _, s := range sessions {
				fmt.Printf("%s  %s/%s  %s\n", s.ID, s.Provider, s.ModelID, filepath.Base(s.Path))
			}
			return nil
		},
	})

	sessionsCmd.AddCommand(&cobra.Command{
		Use:   "show <path|latest>",
		Short: "Print the entries of a session file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			var entries []models.SessionEntry
			if args[0] == "latest" {
				cwd, err := os.Getwd()
				if err != nil {
					return err
				}
				entries = sessionlog.LoadLatest(cfg.SessionDir(), cwd)
			} else {
				entries = sessionlog.LoadSession(args[0])
			}
			if entries == nil {
				return fmt.Errorf("no session found")
			}
			for _, entry := range entries {
				printEntry(entry)
			}
			return nil
		},
	})

	return sessionsCmd
}

func printEntry(entry models.SessionEntry) {
	ts := entry.Timestamp.Format("15:04:05")
	switch entry.Type {
	case models.EntrySession:
		fmt.Printf("[%s] session %s (%s/%s) in %s\n", ts, entry.ID, entry.Provider, entry.ModelID, entry.Cwd)
	case models.EntryMessage:
		if entry.Message == nil {
			return
		}
		text := entry.Message.Text()
		for _, result := range entry.Message.ToolResults {
			if text != "" {
				text += "\n"
			}
			text += result.Text()
		}
		fmt.Printf("[%s] %s: %s\n", ts, entry.Message.Role, text)
	case models.EntryCustom:
		fmt.Printf("[%s] %s: %s\n", ts, entry.CustomType, string(entry.Data))
	}
}
