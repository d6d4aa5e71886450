package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildApproveCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Review and decide tool calls that are pending confirmation",
	}
	cmd.AddCommand(buildApproveListCmd(configPath))
	cmd.AddCommand(buildApproveGrantCmd(configPath))
	cmd.AddCommand(buildApproveDenyCmd(configPath))
	return cmd
}

func buildApproveListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending approval requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			pending, err := a.approval.GetPendingRequests(cmd.Context(), "cogent")
			if err != nil {
				return fmt.Errorf("list pending approvals: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(out, "No pending approvals.")
				return nil
			}
			for _, r := range pending {
				fmt.Fprintf(out, "%s\t%s\t%s\n", r.ID, r.ToolName, string(r.Input))
			}
			return nil
		},
	}
}

func buildApproveGrantCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <request-id>",
		Short: "Allow a pending tool call to run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			if err := a.approval.Approve(cmd.Context(), args[0], "cli"); err != nil {
				return fmt.Errorf("approve %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "approved %s; resend your message to continue\n", args[0])
			return nil
		},
	}
}

func buildApproveDenyCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "deny <request-id>",
		Short: "Refuse a pending tool call",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			if err := a.approval.Deny(cmd.Context(), args[0], "cli"); err != nil {
				return fmt.Errorf("deny %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "denied %s\n", args[0])
			return nil
		},
	}
}
