// Package tokens estimates token usage ahead of an LLM request, tracks
// pressure against a model's context window, and compacts conversation
// history when that pressure crosses the auto-compact threshold.
package tokens

import (
	"math"
	"strings"

	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/pkg/model"
)

// messageWrapperOverhead is the fixed per-message estimate added for role
// and structural framing, on top of its content.
const messageWrapperOverhead = 4

// EstimateText applies the word-count/char-count heuristic: these are
// estimates for budgeting and compaction decisions, never for billing.
func EstimateText(s string) int {
	if s == "" {
		return 0
	}
	words := len(strings.Fields(s))
	byWords := int(math.Ceil(float64(words) * 1.3))
	byChars := int(math.Ceil(float64(len(s)) / 4))
	if byWords > byChars {
		return byWords
	}
	return byChars
}

// EstimateBlock estimates one content block by its variant.
func EstimateBlock(b model.ContentBlock) int {
	switch b.Type {
	case model.BlockImage:
		return 765
	case model.BlockDocument:
		return int(math.Ceil(float64(len(b.Data))/50000)) * 1000
	case model.BlockToolUse:
		return 10 + len(b.ToolInput)/4
	case model.BlockToolResult:
		return 5 + EstimateText(b.Text)
	case model.BlockThinking:
		return EstimateText(b.Thinking)
	default:
		return EstimateText(b.Text)
	}
}

// EstimateMessage estimates one message: its text, its tool_use/tool_result
// overheads, any attached content blocks, plus the message wrapper.
func EstimateMessage(msg *model.Message) int {
	if msg == nil {
		return 0
	}

	total := EstimateText(msg.Content)

	for _, tc := range msg.ToolCalls {
		total += 10 + len(tc.Input)/4
	}
	for _, tr := range msg.ToolResults {
		total += 5 + EstimateText(tr.Content)
		for _, att := range tr.Attachments {
			total += EstimateBlock(att)
		}
	}
	for _, b := range msg.Blocks {
		total += EstimateBlock(b)
	}

	return total + messageWrapperOverhead
}

// EstimateMessages sums EstimateMessage over a slice.
func EstimateMessages(messages []*model.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateMessage(m)
	}
	return total
}

// EstimateConversation estimates the full request an LLM call would send:
// system prompt, message history, and declared tool schemas.
func EstimateConversation(system string, messages []*model.Message, tools []toolexec.Tool) int {
	total := EstimateText(system)
	total += EstimateMessages(messages)
	for _, t := range tools {
		total += EstimateText(t.Description()) + len(t.Schema())/4
	}
	return total
}
