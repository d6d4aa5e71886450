package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cogent-run/cogent/internal/sessions"
)

func buildSessionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved sessions",
	}
	cmd.AddCommand(buildSessionsListCmd(configPath))
	cmd.AddCommand(buildSessionsShowCmd(configPath))
	cmd.AddCommand(buildSessionsDeleteCmd(configPath))
	return cmd
}

func buildSessionsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			list, err := a.sessions.List(cmd.Context(), "cogent", sessions.ListOptions{Limit: 100})
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No sessions yet.")
				return nil
			}
			for _, s := range list {
				title := s.Title
				if title == "" {
					title = s.Key
				}
				fmt.Fprintf(out, "%s\t%s\t%s\n", s.ID, title, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func buildSessionsShowCmd(configPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's recent message history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			history, err := a.sessions.GetHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("get history: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, m := range history {
				fmt.Fprintf(out, "[%s] %s\n", m.Role, strings.TrimSpace(m.Content))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of messages to show")
	return cmd
}

func buildSessionsDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			if err := a.sessions.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
