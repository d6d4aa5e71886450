// Package observability carries request-scoped correlation IDs through a
// run's context so that logs emitted from deep call stacks (tool execution,
// provider retries) can be tied back to the run and session that produced
// them.
package observability

import "context"

// ContextKey is the type for context keys used by this package, keeping
// them distinct from keys defined by other packages.
type ContextKey string

const (
	// RunIDKey is the context key for a single agent run/turn.
	RunIDKey ContextKey = "run_id"

	// SessionIDKey is the context key for the owning session.
	SessionIDKey ContextKey = "session_id"

	// ToolCallIDKey is the context key for an in-flight tool call.
	ToolCallIDKey ContextKey = "tool_call_id"
)

// AddRunID adds a run ID to the context.
func AddRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// GetRunID retrieves the run ID from the context, or "" if absent.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(RunIDKey).(string); ok {
		return id
	}
	return ""
}

// AddSessionID adds a session ID to the context.
func AddSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetSessionID retrieves the session ID from the context, or "" if absent.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

// AddToolCallID adds a tool call ID to the context.
func AddToolCallID(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, toolCallID)
}

// GetToolCallID retrieves the tool call ID from the context, or "" if absent.
func GetToolCallID(ctx context.Context) string {
	if id, ok := ctx.Value(ToolCallIDKey).(string); ok {
		return id
	}
	return ""
}
