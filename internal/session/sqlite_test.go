package session

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/coda/pkg/model"
)

func TestSQLiteStoreCreateGetAppendRoundTrips(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	conv := &model.Conversation{ID: "c1", AgentType: "general-purpose"}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("create: %v", err)
	}

	msg := &model.Message{
		ID:      "m1",
		Role:    model.RoleAssistant,
		Content: "hello",
		ToolCalls: []model.ToolCall{
			{ID: "call-1", Name: "echo", Input: json.RawMessage(`{"x":1}`)},
		},
		Metadata: map[string]any{"k": "v"},
	}
	if err := store.AppendMessage(ctx, "c1", msg); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "hello" {
		t.Fatalf("expected content 'hello', got %q", got.Messages[0].Content)
	}
	if len(got.Messages[0].ToolCalls) != 1 || got.Messages[0].ToolCalls[0].Name != "echo" {
		t.Fatalf("expected tool call round-tripped, got %+v", got.Messages[0].ToolCalls)
	}
	if got.Messages[0].Metadata["k"] != "v" {
		t.Fatalf("expected metadata round-tripped, got %+v", got.Messages[0].Metadata)
	}
}

func TestSQLiteStoreGetMissingReturnsNotFound(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if _, err := store.GetConversation(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStoreDeleteConversation(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.CreateConversation(ctx, &model.Conversation{ID: "c1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetConversation(ctx, "c1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSQLiteStoreListOrdersByUpdatedAtDescending(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.CreateConversation(ctx, &model.Conversation{ID: "c-old", AgentType: "general-purpose"}); err != nil {
		t.Fatalf("create c-old: %v", err)
	}
	if err := store.CreateConversation(ctx, &model.Conversation{ID: "c-new", AgentType: "general-purpose"}); err != nil {
		t.Fatalf("create c-new: %v", err)
	}
	if err := store.TouchConversation(ctx, "c-new"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := store.ListConversations(ctx, ListOptions{AgentType: "general-purpose"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c-new" {
		t.Fatalf("expected c-new listed first, got %+v", got)
	}
}
