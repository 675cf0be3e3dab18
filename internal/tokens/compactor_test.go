package tokens

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/coda/pkg/model"
)

type fakeSummarizer struct{ summary string }

func (f *fakeSummarizer) Summarize(ctx context.Context, messages []*model.Message, maxLength int) (string, error) {
	return f.summary, nil
}

func bigToolResultMessages(n int) []*model.Message {
	content := strings.Repeat("x", 5000)
	var out []*model.Message
	for i := 0; i < n; i++ {
		out = append(out, &model.Message{
			Role:        model.RoleAssistant,
			Content:     content,
			ToolResults: nil,
		})
		out = append(out, &model.Message{
			Role: model.RoleTool,
			ToolResults: []model.ToolResult{
				{ToolCallID: "call", Content: content},
			},
		})
	}
	out = append(out, &model.Message{Role: model.RoleAssistant, Content: "final answer"})
	return out
}

func TestCompactorDropsLowImportanceToolResults(t *testing.T) {
	accountant := NewAccountant(map[string]int{"m": 2000}, nil, nil)
	compactor := NewCompactor(accountant, "m", DefaultSettings(), nil)

	conv := &model.Conversation{ID: "c1", Messages: bigToolResultMessages(10)}
	compacted, err := compactor.Compact(context.Background(), conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if EstimateMessages(compacted.Messages) >= EstimateMessages(conv.Messages) {
		t.Fatal("expected compaction to shrink the estimated size")
	}

	var sawPlaceholder bool
	for _, m := range compacted.Messages {
		for _, tr := range m.ToolResults {
			if tr.Content == hardClearPlaceholder {
				sawPlaceholder = true
			}
		}
	}
	if !sawPlaceholder {
		t.Fatal("expected at least one tool result cleared by step 1")
	}
}

func TestCompactorFallsBackToSummarizationWhenStillOverTarget(t *testing.T) {
	accountant := NewAccountant(map[string]int{"m": 10}, nil, nil) // tiny window forces step 3
	summarizer := &fakeSummarizer{summary: "condensed history"}
	compactor := NewCompactor(accountant, "m", DefaultSettings(), summarizer)

	conv := &model.Conversation{ID: "c2", Messages: bigToolResultMessages(10)}
	compacted, err := compactor.Compact(context.Background(), conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawSummary bool
	for _, m := range compacted.Messages {
		if m.Role == model.RoleSystem && m.Content == "condensed history" {
			sawSummary = true
		}
	}
	if !sawSummary {
		t.Fatal("expected a summary message when compaction falls through to step 3")
	}
}

func TestCoalesceRunsFoldsThreeOrMoreAdjacentNonErrorResults(t *testing.T) {
	results := []model.ToolResult{
		{ToolCallID: "1", Content: "a"},
		{ToolCallID: "2", Content: "b"},
		{ToolCallID: "3", Content: "c"},
		{ToolCallID: "4", Content: "d", IsError: true},
		{ToolCallID: "5", Content: "e"},
	}
	coalesced, changed := coalesceRuns(results, 3)
	if !changed {
		t.Fatal("expected changed=true when a run was coalesced")
	}
	if len(coalesced) != len(results) {
		t.Fatalf("expected one result per original ToolCallID (provider APIs require a tool_result per tool_use), got %d: %+v", len(coalesced), coalesced)
	}
	for i, want := range []string{"1", "2", "3", "4", "5"} {
		if coalesced[i].ToolCallID != want {
			t.Fatalf("expected ToolCallID order preserved, got %+v", coalesced)
		}
	}
	if !strings.Contains(coalesced[0].Content, "3 tool results coalesced") {
		t.Fatalf("expected coalesced summary content, got %q", coalesced[0].Content)
	}
	if coalesced[0].Content != coalesced[2].Content {
		t.Fatal("expected every result in the coalesced run to share the same summary content")
	}
	if coalesced[3].IsError != true || coalesced[3].Content != "d" {
		t.Fatalf("expected the error result outside the run to pass through unchanged, got %+v", coalesced[3])
	}
}
