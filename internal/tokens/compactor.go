package tokens

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/coda/internal/llm"
	"github.com/haasonsaas/coda/pkg/model"
)

const hardClearPlaceholder = "[tool result cleared during compaction]"

// SummaryProvider generates a short summary of a run of conversation
// history; the compaction strategy's last-resort step.
type SummaryProvider interface {
	Summarize(ctx context.Context, messages []*model.Message, maxLength int) (string, error)
}

// LLMSummaryProvider implements SummaryProvider over an llm.Provider,
// draining a single completion request to its final text.
type LLMSummaryProvider struct {
	Provider llm.Provider
	ModelID  string
}

// Summarize issues one non-streaming-shaped completion request (the
// stream is drained fully before returning) asking the model to condense
// messages into maxLength characters.
func (s *LLMSummaryProvider) Summarize(ctx context.Context, messages []*model.Message, maxLength int) (string, error) {
	req := &llm.Request{
		Model:     s.ModelID,
		Messages:  []*model.Message{{Role: model.RoleUser, Content: BuildSummarizationPrompt(messages, maxLength)}},
		MaxTokens: maxLength/3 + 128,
	}

	stream, err := s.Provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for chunk := range stream {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		out.WriteString(chunk.Text)
	}
	return out.String(), nil
}

// BuildSummarizationPrompt renders messages into a prompt asking for a
// concise summary, preserving decisions, open tasks, and tool outcomes.
func BuildSummarizationPrompt(messages []*model.Message, maxLength int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the conversation below in under %d characters. ", maxLength)
	b.WriteString("Preserve key decisions, open tasks, and tool outcomes.\n\n")

	for _, m := range messages {
		if m == nil {
			continue
		}
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&b, "  [called %s]\n", tc.Name)
		}
		for _, tr := range m.ToolResults {
			content := tr.Content
			if len(content) > 200 {
				content = content[:200] + "..."
			}
			status := "ok"
			if tr.IsError {
				status = "error"
			}
			fmt.Fprintf(&b, "  [result(%s): %s]\n", status, content)
		}
	}

	b.WriteString("\n---\nSummary:")
	return b.String()
}

// Settings configures Compactor's ordered strategy.
type Settings struct {
	// KeepLastAssistants protects the N most recent assistant turns (and
	// everything after them) from step 1's clearing.
	KeepLastAssistants int

	// CoalesceRunLength is the minimum run of adjacent non-error
	// tool_results step 2 folds into one summarized entry.
	CoalesceRunLength int

	// TargetRatio is the fraction of the context window compaction tries
	// to land under after each step.
	TargetRatio float64
}

// DefaultSettings mirrors the thresholds in the pressure/compaction rules.
func DefaultSettings() Settings {
	return Settings{KeepLastAssistants: 3, CoalesceRunLength: 3, TargetRatio: 0.5}
}

// Compactor implements engine.Compactor: the three-step ordered strategy
// run until the conversation falls back under the target ratio.
type Compactor struct {
	accountant *Accountant
	modelID    string
	settings   Settings
	summarizer SummaryProvider
}

// NewCompactor builds a Compactor. summarizer may be nil, in which case
// step 3 (LLM summarization) is skipped and the first two steps are the
// ceiling of what compaction can reclaim.
func NewCompactor(accountant *Accountant, modelID string, settings Settings, summarizer SummaryProvider) *Compactor {
	if settings.KeepLastAssistants <= 0 {
		settings.KeepLastAssistants = 3
	}
	if settings.CoalesceRunLength <= 0 {
		settings.CoalesceRunLength = 3
	}
	if settings.TargetRatio <= 0 {
		settings.TargetRatio = 0.5
	}
	return &Compactor{accountant: accountant, modelID: modelID, settings: settings, summarizer: summarizer}
}

// Compact applies the ordered compaction strategy to conv, stopping as
// soon as a step brings the estimate under target.
func (c *Compactor) Compact(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	window := c.accountant.windowFor(c.modelID)
	target := int(float64(window) * c.settings.TargetRatio)

	messages := append([]*model.Message(nil), conv.Messages...)

	messages = dropLowImportance(messages, c.settings.KeepLastAssistants)
	if EstimateMessages(messages) <= target {
		return withMessages(conv, messages), nil
	}

	messages = coalesceToolResults(messages, c.settings.CoalesceRunLength)
	if EstimateMessages(messages) <= target || c.summarizer == nil {
		return withMessages(conv, messages), nil
	}

	half := len(messages) / 2
	if half == 0 {
		return withMessages(conv, messages), nil
	}
	toSummarize := messages[:half]

	summaryText, err := c.summarizer.Summarize(ctx, toSummarize, 2000)
	if err != nil {
		return nil, fmt.Errorf("summarize history: %w", err)
	}

	summaryMsg := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Role:           model.RoleSystem,
		Content:        summaryText,
		Metadata:       map[string]any{"compaction_summary": true},
	}
	messages = append([]*model.Message{summaryMsg}, messages[half:]...)
	return withMessages(conv, messages), nil
}

func withMessages(conv *model.Conversation, messages []*model.Message) *model.Conversation {
	clone := *conv
	clone.Messages = messages
	return &clone
}

// dropLowImportance implements step 1: user messages are never touched,
// everything at or after the assistant cutoff is kept verbatim, and
// non-error tool_results before the cutoff are replaced with a
// placeholder (content is cleared, not the message itself, so tool_use /
// tool_result pairing stays valid for providers that require it).
func dropLowImportance(messages []*model.Message, keepLastAssistants int) []*model.Message {
	cutoff := assistantCutoffIndex(messages, keepLastAssistants)
	out := make([]*model.Message, len(messages))
	copy(out, messages)

	for i := 0; i < cutoff; i++ {
		msg := out[i]
		if msg == nil || msg.Role != model.RoleTool || len(msg.ToolResults) == 0 {
			continue
		}
		cleared := *msg
		cleared.ToolResults = make([]model.ToolResult, len(msg.ToolResults))
		changed := false
		for j, tr := range msg.ToolResults {
			if tr.IsError || tr.Content == hardClearPlaceholder {
				cleared.ToolResults[j] = tr
				continue
			}
			cleared.ToolResults[j] = model.ToolResult{ToolCallID: tr.ToolCallID, Content: hardClearPlaceholder}
			changed = true
		}
		if changed {
			out[i] = &cleared
		}
	}
	return out
}

func assistantCutoffIndex(messages []*model.Message, keepLastAssistants int) int {
	if keepLastAssistants <= 0 {
		return len(messages)
	}
	remaining := keepLastAssistants
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i] != nil && messages[i].Role == model.RoleAssistant {
			remaining--
			if remaining == 0 {
				return i
			}
		}
	}
	return 0
}

// coalesceToolResults implements step 2: within each tool-role message,
// a run of 3+ adjacent non-error tool_results collapses into one entry
// summarizing what was coalesced.
func coalesceToolResults(messages []*model.Message, runLength int) []*model.Message {
	out := make([]*model.Message, len(messages))
	copy(out, messages)

	for i, msg := range out {
		if msg == nil || msg.Role != model.RoleTool || len(msg.ToolResults) < runLength {
			continue
		}
		coalesced, changed := coalesceRuns(msg.ToolResults, runLength)
		if !changed {
			continue
		}
		clone := *msg
		clone.ToolResults = coalesced
		out[i] = &clone
	}
	return out
}

func coalesceRuns(results []model.ToolResult, runLength int) ([]model.ToolResult, bool) {
	var out []model.ToolResult
	changed := false
	i := 0
	for i < len(results) {
		j := i
		for j < len(results) && !results[j].IsError {
			j++
		}
		run := results[i:j]
		switch {
		case len(run) >= runLength:
			// Every tool_use block still needs a matching tool_result
			// (the provider APIs reject an unpaired one), so coalescing
			// must keep one result per ToolCallID in the run — only the
			// content collapses to a shared summary.
			ids := make([]string, len(run))
			for k, r := range run {
				ids[k] = r.ToolCallID
			}
			summary := fmt.Sprintf("[%d tool results coalesced: %s]", len(run), strings.Join(ids, ", "))
			for _, r := range run {
				out = append(out, model.ToolResult{ToolCallID: r.ToolCallID, Content: summary})
			}
			changed = true
		default:
			out = append(out, run...)
		}
		if j == i {
			out = append(out, results[j])
			j++
		}
		i = j
	}
	return out, changed
}
