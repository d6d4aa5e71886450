package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cogent-run/cogent/pkg/models"
)

func buildMemoryCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and edit the long-term fact memory",
	}
	cmd.AddCommand(buildMemoryListCmd(configPath))
	cmd.AddCommand(buildMemoryAddCmd(configPath))
	cmd.AddCommand(buildMemoryRemoveCmd(configPath))
	cmd.AddCommand(buildMemoryClearCmd(configPath))
	return cmd
}

func buildMemoryListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List remembered facts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			facts := a.memory.List()
			if len(facts) == 0 {
				fmt.Fprintln(out, "No memories yet.")
				return nil
			}
			for _, f := range facts {
				fmt.Fprintf(out, "%s [%s/%s, confidence %.2f] %s\n", f.ID, f.Category, f.Temporal, f.Confidence, f.Content)
			}
			return nil
		},
	}
}

func buildMemoryAddCmd(configPath *string) *cobra.Command {
	var category, temporal string
	cmd := &cobra.Command{
		Use:   "add <fact>",
		Short: "Add a fact to long-term memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			m, err := a.memory.Add(args[0], models.MemoryCategory(category), models.MemoryTemporal(temporal))
			if err != nil {
				return fmt.Errorf("add memory: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remembered %s\n", m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", string(models.MemoryCategoryFact), "fact, preference, routine, or relationship")
	cmd.Flags().StringVar(&temporal, "temporal", string(models.MemoryTemporalPermanent), "permanent, recurring, or one-time")
	return cmd
}

func buildMemoryRemoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <memory-id>",
		Short: "Remove a remembered fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			if err := a.memory.Remove(args[0]); err != nil {
				return fmt.Errorf("remove memory: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	}
}

func buildMemoryClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all remembered facts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			if err := a.memory.Clear(); err != nil {
				return fmt.Errorf("clear memory: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "memory cleared")
			return nil
		},
	}
}
