package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cogent-run/cogent/internal/config"
)

func buildConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize the configuration file",
	}
	cmd.AddCommand(buildConfigPathCmd(configPath))
	cmd.AddCommand(buildConfigShowCmd(configPath))
	cmd.AddCommand(buildConfigInitCmd(configPath))
	return cmd
}

func buildConfigPathCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resolved config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath(*configPath))
			return nil
		},
	}
}

func buildConfigShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return wrapConfigError(err)
			}
			payload, err := configToJSON(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return nil
		},
	}
}

func buildConfigInitCmd(configPath *string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.json if one doesn't already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(*configPath)
			if _, err := os.Stat(path); err == nil && !force {
				return wrapConfigError(fmt.Errorf("%s already exists (use --force to overwrite)", path))
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return wrapConfigError(fmt.Errorf("create config directory: %w", err))
			}
			payload, err := configToJSON(config.Default())
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if err := os.WriteFile(path, payload, 0o644); err != nil {
				return wrapConfigError(fmt.Errorf("write config: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

// configToJSON round-trips through yaml (Config's struct tags) to get the
// snake_case field names, then re-encodes as indented JSON for config.json.
func configToJSON(cfg *config.Config) ([]byte, error) {
	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(yamlBytes, &raw); err != nil {
		return nil, err
	}
	return json.MarshalIndent(raw, "", "  ")
}
