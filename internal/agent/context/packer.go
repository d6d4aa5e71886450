// Package context provides context management for agent conversations.
//
// This package handles:
//   - Context packing: selecting which messages to include in LLM requests
//   - Rolling summaries: compressing old history into summaries
//   - Budget management: staying within token/char limits
package context

import (
	"crypto/sha256"
	"encoding/hex"

	ctxwindow "github.com/cogent-run/cogent/internal/context"
	"github.com/cogent-run/cogent/pkg/models"
)

// charsPerToken converts the per-model token window (internal/context) into
// a character budget so it can be compared against the packer's cheap
// char-based accounting.
const charsPerToken = 4

// PackOptions configures how messages are packed into context.
type PackOptions struct {
	// MaxMessages is the hard cap on number of messages to include (e.g. 60).
	MaxMessages int

	// MaxChars is the approximate character budget (cheap proxy for tokens).
	// Default: 30000 (~7500 tokens at 4 chars/token).
	MaxChars int

	// MaxToolResultChars is the max chars per tool result content.
	// Longer results are truncated. Default: 6000.
	MaxToolResultChars int

	// IncludeSummary controls whether to include the rolling summary.
	IncludeSummary bool

	// SummaryMetadataKey is the metadata key marking summary messages.
	// Default: "cogent_summary".
	SummaryMetadataKey string

	// ModelID, when set, resolves the active model's context window from
	// internal/context's per-model table (longest-prefix match) and uses it
	// as the char budget instead of MaxChars, reserving headroom for the
	// completion's own output tokens.
	ModelID string
}

// effectiveMaxChars returns the char budget to pack against: the per-model
// token window when ModelID is set, otherwise the flat MaxChars setting.
func (o PackOptions) effectiveMaxChars() int {
	if o.ModelID == "" {
		return o.MaxChars
	}
	window := ctxwindow.NewWindowForModel(o.ModelID)
	budget := window.Remaining() * charsPerToken
	if budget <= 0 {
		return o.MaxChars
	}
	return budget
}

// DefaultPackOptions returns sensible defaults for context packing.
func DefaultPackOptions() PackOptions {
	return PackOptions{
		MaxMessages:        60,
		MaxChars:           30000,
		MaxToolResultChars: 6000,
		IncludeSummary:     true,
		SummaryMetadataKey: SummaryMetadataKey,
	}
}

// Packer selects and prepares messages for LLM context.
type Packer struct {
	opts PackOptions
}

// NewPacker creates a new context packer with the given options.
func NewPacker(opts PackOptions) *Packer {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 60
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = 30000
	}
	if opts.MaxToolResultChars <= 0 {
		opts.MaxToolResultChars = 6000
	}
	if opts.SummaryMetadataKey == "" {
		opts.SummaryMetadataKey = SummaryMetadataKey
	}
	return &Packer{opts: opts}
}

// WithModelID returns a copy of the packer whose budget is resolved from the
// given model's context window instead of the flat MaxChars setting.
func (p *Packer) WithModelID(modelID string) *Packer {
	opts := p.opts
	opts.ModelID = modelID
	return &Packer{opts: opts}
}

// Pack selects messages from history to fit within budget.
//
// The packed result includes (in order):
//  1. Summary message (if IncludeSummary and summary exists)
//  2. Recent messages from history (chosen newest first up to budget,
//     returned in chronological order)
//  3. The incoming user message
//
// Tool result content is truncated to MaxToolResultChars.
// Messages are selected from the end (most recent) backwards until
// either MaxMessages or MaxChars is reached.
func (p *Packer) Pack(history []*models.Message, incoming *models.Message, summary *models.Message) ([]*models.Message, error) {
	var result []*models.Message

	maxChars := p.opts.effectiveMaxChars()

	// Track budget
	totalChars := 0
	totalMsgs := 0

	// Reserve space for incoming message (only if present)
	if incoming != nil {
		incomingChars := p.messageChars(incoming)
		totalChars += incomingChars
		totalMsgs++
	}

	// Reserve space for summary if present and enabled
	if p.opts.IncludeSummary && summary != nil {
		summaryChars := p.messageChars(summary)
		totalChars += summaryChars
		totalMsgs++
	}

	// Filter out summary messages from history (they're handled separately)
	filtered := make([]*models.Message, 0, len(history))
	for _, m := range history {
		if m == nil {
			continue
		}
		if p.isSummaryMessage(m) {
			continue
		}
		filtered = append(filtered, m)
	}

	// Select messages from the end (most recent) backwards
	// Build in reverse order, then reverse once (O(n) instead of O(n²))
	selectedReverse := make([]*models.Message, 0)
	for i := len(filtered) - 1; i >= 0; i-- {
		m := filtered[i]
		msgChars := p.messageChars(m)

		// Check if we'd exceed budget
		if totalMsgs+1 > p.opts.MaxMessages {
			break
		}
		if totalChars+msgChars > maxChars {
			break
		}

		selectedReverse = append(selectedReverse, m)
		totalMsgs++
		totalChars += msgChars
	}

	// Reverse selectedReverse to get chronological order
	selected := make([]*models.Message, len(selectedReverse))
	for i, m := range selectedReverse {
		selected[len(selectedReverse)-1-i] = m
	}

	// Build final result in order
	// 1. Summary (if present and enabled)
	if p.opts.IncludeSummary && summary != nil {
		result = append(result, summary)
	}

	// 2. Selected history messages (now in chronological order)
	for _, m := range selected {
		// Truncate tool results if needed
		packed := p.truncateToolResults(m)
		result = append(result, packed)
	}

	// 3. Incoming message
	if incoming != nil {
		result = append(result, incoming)
	}

	return result, nil
}

// messageChars estimates the character count for a message.
func (p *Packer) messageChars(m *models.Message) int {
	if m == nil {
		return 0
	}
	chars := len(m.Content)
	for _, tc := range m.ToolCalls {
		chars += len(tc.Name) + len(tc.Input)
	}
	for _, tr := range m.ToolResults {
		chars += len(tr.Content)
	}
	return chars
}

// isSummaryMessage checks if a message is a summary marker.
func (p *Packer) isSummaryMessage(m *models.Message) bool {
	if m.Metadata == nil {
		return false
	}
	val, ok := m.Metadata[p.opts.SummaryMetadataKey]
	if !ok {
		return false
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return false
}

// truncateToolResults returns a copy with truncated tool result content.
func (p *Packer) truncateToolResults(m *models.Message) *models.Message {
	if len(m.ToolResults) == 0 {
		return m
	}

	// Check if any truncation needed
	needsTruncation := false
	for _, tr := range m.ToolResults {
		if len(tr.Content) > p.opts.MaxToolResultChars {
			needsTruncation = true
			break
		}
	}
	if !needsTruncation {
		return m
	}

	// Create copy with truncated results
	copy := *m
	copy.ToolResults = make([]models.ToolResult, len(m.ToolResults))
	for i, tr := range m.ToolResults {
		if len(tr.Content) > p.opts.MaxToolResultChars {
			truncated := tr
			truncated.Content = tr.Content[:p.opts.MaxToolResultChars] + "\n...[truncated]"
			copy.ToolResults[i] = truncated
		} else {
			copy.ToolResults[i] = tr
		}
	}
	return &copy
}

// PackResult is the output of PackWithDiagnostics: the packed messages plus
// the accounting that explains which candidates were kept or dropped.
type PackResult struct {
	Messages    []*models.Message
	Diagnostics *models.ContextEventPayload
}

// PackWithDiagnostics behaves like Pack but also records, per candidate
// history message, whether it was included and why. This is the data
// CompactionManager.Check uses to decide when a session is nearing its
// budget and the agent_event stream surfaces to callers that want to see
// the packing decision.
func (p *Packer) PackWithDiagnostics(history []*models.Message, incoming *models.Message, summary *models.Message) PackResult {
	maxChars := p.opts.effectiveMaxChars()

	// itemID is an item's diagnostic ID: the first 12 hex chars of a SHA-256
	// over the message's ID, role and content.
	itemID := func(m *models.Message) string {
		sum := sha256.Sum256([]byte(m.ID + "\x00" + string(m.Role) + "\x00" + m.Content))
		return hex.EncodeToString(sum[:])[:12]
	}

	diag := &models.ContextEventPayload{
		BudgetChars:    maxChars,
		BudgetMessages: p.opts.MaxMessages,
	}

	var result []*models.Message
	totalChars := 0
	totalMsgs := 0

	// Reserve space for the incoming message and summary up front, same as
	// Pack, so the history walk below budgets around them rather than
	// potentially overshooting.
	if incoming != nil {
		totalChars += p.messageChars(incoming)
		totalMsgs++
	}
	if p.opts.IncludeSummary && summary != nil {
		summaryChars := p.messageChars(summary)
		totalChars += summaryChars
		totalMsgs++
		diag.SummaryUsed = true
		diag.SummaryChars = summaryChars
		diag.Items = append(diag.Items, models.ContextPackItem{
			ID:       itemID(summary),
			Kind:     models.ContextItemSummary,
			Chars:    summaryChars,
			Included: true,
			Reason:   models.ContextReasonReserved,
		})
		result = append(result, summary)
	}

	filtered := make([]*models.Message, 0, len(history))
	for _, m := range history {
		if m == nil || p.isSummaryMessage(m) {
			continue
		}
		filtered = append(filtered, m)
	}
	diag.Candidates = len(filtered)

	// Walk from newest to oldest so the most recent messages win the
	// budget, same selection order as Pack.
	type candidate struct {
		msg      *models.Message
		item     models.ContextPackItem
		selected bool
	}
	candidates := make([]candidate, len(filtered))
	budgetExhausted := false
	for i := len(filtered) - 1; i >= 0; i-- {
		m := filtered[i]
		msgChars := p.messageChars(m)
		item := models.ContextPackItem{
			ID:    itemID(m),
			Kind:  classifyItemKind(m),
			Chars: msgChars,
		}

		if !budgetExhausted && totalMsgs+1 <= p.opts.MaxMessages && totalChars+msgChars <= maxChars {
			item.Included = true
			item.Reason = models.ContextReasonIncluded
			totalMsgs++
			totalChars += msgChars
		} else {
			budgetExhausted = true
			item.Included = false
			item.Reason = models.ContextReasonOverBudget
		}

		candidates[i] = candidate{msg: m, item: item, selected: item.Included}
	}

	selected := make([]*models.Message, 0, len(candidates))
	for _, c := range candidates {
		diag.Items = append(diag.Items, c.item)
		if c.selected {
			selected = append(selected, p.truncateToolResults(c.msg))
			diag.Included++
		} else {
			diag.Dropped++
		}
	}
	result = append(result, selected...)

	if incoming != nil {
		diag.Items = append(diag.Items, models.ContextPackItem{
			ID:       itemID(incoming),
			Kind:     models.ContextItemIncoming,
			Chars:    p.messageChars(incoming),
			Included: true,
			Reason:   models.ContextReasonReserved,
		})
		result = append(result, incoming)
	}

	diag.UsedChars = totalChars
	diag.UsedMessages = totalMsgs

	return PackResult{Messages: result, Diagnostics: diag}
}

// classifyItemKind categorizes a history message for diagnostics: tool
// calls/results are "tool", everything else is plain conversational
// "history".
func classifyItemKind(m *models.Message) models.ContextItemKind {
	if len(m.ToolCalls) > 0 || len(m.ToolResults) > 0 || m.Role == models.RoleTool {
		return models.ContextItemTool
	}
	return models.ContextItemHistory
}
