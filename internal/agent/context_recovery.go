package agent

import (
	"context"
	"errors"
	"strconv"
	"strings"

	agentctx "github.com/cogent-run/cogent/internal/agent/context"
	"github.com/cogent-run/cogent/pkg/models"
)

// loopSummaryProvider generates summaries by asking the loop's own LLM
// provider to condense a batch of messages, reusing the same completion
// path ordinary turns go through rather than standing up a second client.
type loopSummaryProvider struct {
	provider LLMProvider
}

// Summarize implements agentctx.SummaryProvider.
func (p *loopSummaryProvider) Summarize(ctx context.Context, messages []*models.Message, maxLength int) (string, error) {
	if p.provider == nil {
		return "", errors.New("no provider configured for summarization")
	}

	prompt := agentctx.BuildSummarizationPrompt(messages, maxLength)
	req := &CompletionRequest{
		Messages:  []CompletionMessage{{Role: string(models.RoleUser), Content: prompt}},
		MaxTokens: 1024,
	}

	stream, err := p.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range stream {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		sb.WriteString(chunk.Text)
	}
	return sb.String(), nil
}

// completionMessagesToModels adapts the loop's wire-format messages to the
// context package's summarizer input. IDs are synthesized positionally
// since CompletionMessage doesn't carry one; the summarizer only uses the
// last message's ID to record how far the summary covers.
func completionMessagesToModels(msgs []CompletionMessage) []*models.Message {
	out := make([]*models.Message, len(msgs))
	for i, m := range msgs {
		out[i] = &models.Message{
			ID:          "turn-" + strconv.Itoa(i),
			Role:        models.Role(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
		}
	}
	return out
}

// recoverFromContextOverflow compresses the older portion of the in-flight
// message list into a single synthesized system summary so a retried
// completion request fits the model's context window. It runs at most once
// per streamPhase call: the caller is responsible for not looping.
func (l *AgenticLoop) recoverFromContextOverflow(ctx context.Context, state *LoopState) error {
	if l.summarizer == nil {
		return errors.New("no summarizer configured for context recovery")
	}

	keep := l.config.Summarization.KeepRecentMessages
	if keep <= 0 {
		keep = 10
	}
	if len(state.Messages) <= keep {
		return errors.New("conversation too short to compress further")
	}

	sessionID := ""
	if session := SessionFromContext(ctx); session != nil {
		sessionID = session.ID
	}

	asModels := completionMessagesToModels(state.Messages)
	older := asModels[:len(asModels)-keep]
	recent := state.Messages[len(state.Messages)-keep:]

	summaryMsg, err := l.summarizer.SummarizeMessages(ctx, sessionID, older)
	if err != nil {
		return err
	}
	if summaryMsg == nil {
		return errors.New("summarizer produced no summary")
	}

	rebuilt := make([]CompletionMessage, 0, len(recent)+1)
	rebuilt = append(rebuilt, CompletionMessage{
		Role:    string(summaryMsg.Role),
		Content: summaryMsg.Content,
	})
	rebuilt = append(rebuilt, recent...)
	state.Messages = rebuilt

	return nil
}
