package tokens

import (
	"testing"

	"github.com/haasonsaas/coda/pkg/model"
)

func TestEstimateTextUsesLargerOfWordAndCharEstimate(t *testing.T) {
	if got := EstimateText(""); got != 0 {
		t.Fatalf("expected 0 for empty string, got %d", got)
	}
	// Long single "word" with no spaces should be bound by char count.
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	if got := EstimateText(string(long)); got < 100 {
		t.Fatalf("expected char-driven estimate for a long unspaced string, got %d", got)
	}
}

func TestEstimateMessageIncludesToolOverheads(t *testing.T) {
	msg := &model.Message{
		Content: "hello there",
		ToolCalls: []model.ToolCall{
			{ID: "1", Name: "search", Input: []byte(`{"query":"x"}`)},
		},
		ToolResults: []model.ToolResult{
			{ToolCallID: "1", Content: "some result text"},
		},
	}
	got := EstimateMessage(msg)
	if got <= EstimateText(msg.Content) {
		t.Fatalf("expected tool overheads to add to the estimate, got %d", got)
	}
}

func TestEstimateBlockVariants(t *testing.T) {
	if EstimateBlock(model.ContentBlock{Type: model.BlockImage}) != 765 {
		t.Fatal("expected fixed image estimate")
	}
	doc := EstimateBlock(model.ContentBlock{Type: model.BlockDocument, Data: string(make([]byte, 100000))})
	if doc != 2000 {
		t.Fatalf("expected 2000 for a 100000-byte document, got %d", doc)
	}
}

func TestEstimateConversationSumsComponents(t *testing.T) {
	messages := []*model.Message{
		{Content: "hi"},
		{Content: "there"},
	}
	got := EstimateConversation("system prompt", messages, nil)
	if got <= EstimateText("system prompt") {
		t.Fatal("expected conversation estimate to include message content")
	}
}
