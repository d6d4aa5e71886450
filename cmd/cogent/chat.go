package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cogent-run/cogent/internal/sessions"
	"github.com/cogent-run/cogent/pkg/models"
)

func buildChatCmd(configPath *string) *cobra.Command {
	var sessionKey string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, *configPath, sessionKey)
		},
	}
	cmd.Flags().StringVar(&sessionKey, "session", "default", "Session key to continue (created if it doesn't exist)")
	return cmd
}

// runChat drives a simple read-eval-print loop over stdin. It supports a
// handful of "/"-prefixed commands alongside free-form prompts; everything
// else is sent straight to the agent loop against the active session.
func runChat(cmd *cobra.Command, configPath, sessionKey string) error {
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

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cogent chat - session %q. Type /help for commands, /exit to quit.\n", sessionKey)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := handleChatCommand(cmd, a, &session, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		if err := sendChatMessage(ctx, cmd, a, session, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func sendChatMessage(ctx context.Context, cmd *cobra.Command, a *app, session *models.Session, text string) error {
	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Channel:   models.ChannelCLI,
		Direction: models.DirectionInbound,
		Role:      models.RoleUser,
		Content:   text,
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
		if chunk.ToolEvent != nil {
			fmt.Fprintf(out, "\n[tool %s: %s]", chunk.ToolEvent.ToolName, chunk.ToolEvent.Stage)
		}
		if chunk.Text != "" {
			fmt.Fprint(out, chunk.Text)
		}
	}
	fmt.Fprintln(out)
	return nil
}

// handleChatCommand handles a "/"-prefixed line. The returned bool reports
// whether the REPL should exit.
func handleChatCommand(cmd *cobra.Command, a *app, session **models.Session, line string) (bool, error) {
	out := cmd.OutOrStdout()
	fields := strings.Fields(line)
	name := fields[0]
	rest := fields[1:]

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Fprintln(out, `Commands:
  /help                 show this message
  /new [key]            start a new session
  /sessions             list saved sessions
  /memory               list remembered facts
  /remember <fact>      add a fact to long-term memory
  /model <name>         switch the default model for this run
  /exit                 quit`)
		return false, nil

	case "/new":
		key := "default"
		if len(rest) > 0 {
			key = rest[0]
		} else {
			key = uuid.NewString()
		}
		s, err := a.sessions.GetOrCreate(cmd.Context(), key, "cogent", models.ChannelCLI, "local")
		if err != nil {
			return false, err
		}
		*session = s
		fmt.Fprintf(out, "started session %q (%s)\n", key, s.ID)
		return false, nil

	case "/sessions":
		list, err := a.sessions.List(cmd.Context(), "cogent", sessions.ListOptions{Limit: 50})
		if err != nil {
			return false, err
		}
		for _, s := range list {
			fmt.Fprintf(out, "%s\t%s\n", s.ID, s.Key)
		}
		return false, nil

	case "/memory":
		for _, m := range a.memory.List() {
			fmt.Fprintf(out, "%s\t%s\n", m.ID, m.Content)
		}
		return false, nil

	case "/remember":
		if len(rest) == 0 {
			return false, fmt.Errorf("usage: /remember <fact>")
		}
		fact := strings.Join(rest, " ")
		m, err := a.memory.Add(fact, models.MemoryCategoryFact, models.MemoryTemporalPermanent)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "remembered %s\n", m.ID)
		return false, nil

	case "/model":
		if len(rest) == 0 {
			return false, fmt.Errorf("usage: /model <name>")
		}
		a.runtime.SetDefaultModel(rest[0])
		fmt.Fprintf(out, "default model set to %s\n", rest[0])
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q (try /help)", name)
	}
}
