package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cogent-run/cogent/pkg/models"
)

func buildRunCmd(configPath *string) *cobra.Command {
	var sessionKey string

	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Send a single prompt and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneShotWithSession(cmd, *configPath, sessionKey, args)
		},
	}
	cmd.Flags().StringVar(&sessionKey, "session", "default", "Session key to continue (created if it doesn't exist)")
	return cmd
}

// runOneShot handles invocations where the root command is given bare
// arguments, e.g. "cogent what changed in this repo?".
func runOneShot(cmd *cobra.Command, configPath string, args []string) error {
	return runOneShotWithSession(cmd, configPath, "default", args)
}

func runOneShotWithSession(cmd *cobra.Command, configPath, sessionKey string, args []string) error {
	a, err := loadApp(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	session, err := a.sessions.GetOrCreate(ctx, sessionKey, "cogent", models.ChannelCLI, "local")
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	prompt := strings.Join(args, " ")
	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Channel:   models.ChannelCLI,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   prompt,
		CreatedAt: time.Now(),
	}

	chunks, err := a.runtime.Process(ctx, session, msg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for chunk := range chunks {
		if chunk.Error != nil {
			return chunk.Error
		}
		if chunk.Text != "" {
			fmt.Fprint(out, chunk.Text)
		}
		if chunk.ToolEvent != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[tool] %s %s\n", chunk.ToolEvent.ToolName, chunk.ToolEvent.Stage)
		}
	}
	fmt.Fprintln(out)

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
