// Package main provides the CLI entry point for Cogent, a single-user
// terminal AI agent: a ReAct loop over pluggable LLM providers with
// confirmation-gated tool execution, durable sessions, and a small
// long-term fact memory.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// logLevel is the level of the default logger; --debug and the config's
// debug setting raise it after startup.
var logLevel = new(slog.LevelVar)

func main() {
	logLevel.Set(slog.LevelInfo)
	if v, err := parseDebugEnv(); err == nil && v {
		logLevel.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func parseDebugEnv() (bool, error) {
	v := os.Getenv("COGENT_DEBUG")
	if v == "" {
		return false, nil
	}
	return v == "1" || v == "true", nil
}

func buildRootCmd() *cobra.Command {
	var configPath string
	var debug bool

	root := &cobra.Command{
		Use:     "cogent",
		Short:   "Cogent - a terminal AI agent with tools, memory, and sessions",
		Version: version + " (" + commit + ", " + date + ")",
		Args:    cobra.ArbitraryArgs,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logLevel.Set(slog.LevelDebug)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runOneShot(cmd, configPath, args)
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.json (default: ~/.cogent/config.json)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		buildRunCmd(&configPath),
		buildChatCmd(&configPath),
		buildSessionsCmd(&configPath),
		buildMemoryCmd(&configPath),
		buildApproveCmd(&configPath),
		buildConfigCmd(&configPath),
	)
	return root
}

// exitCodeFor maps an error to the process exit codes defined in SPEC_FULL.md §6:
// 0 success, 1 provider/network error, 2 configuration error, 130 cancelled.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case isConfigError(err):
		return 2
	case isCancelledError(err):
		return 130
	default:
		return 1
	}
}
