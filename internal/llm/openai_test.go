package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/coda/pkg/model"
)

func TestNewOpenAIProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewOpenAIProviderAppliesDefaults(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.defaultModel != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %s", p.defaultModel)
	}
	if p.retry.MaxAttempts == 0 {
		t.Error("expected default retry config to be applied")
	}
}

func TestOpenAIProviderMethods(t *testing.T) {
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("expected name openai, got %s", p.Name())
	}
	if !p.SupportsTools() {
		t.Error("expected SupportsTools to be true")
	}
	if len(p.Models()) == 0 {
		t.Error("expected at least one model")
	}
}

func TestOpenAIConvertMessagesRoundsTripsToolResults(t *testing.T) {
	p, _ := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})

	messages := []*model.Message{
		{Role: model.RoleUser, Content: "what's 2+2?"},
		{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{
				{ID: "1", Name: "calc", Input: json.RawMessage(`{"expr":"2+2"}`)},
			},
		},
		{
			Role:        model.RoleTool,
			ToolResults: []model.ToolResult{{ToolCallID: "1", Content: "4"}},
		},
	}

	converted, err := p.convertMessages(messages, "be concise")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if converted[0].Role != "system" || converted[0].Content != "be concise" {
		t.Fatalf("expected leading system message, got %+v", converted[0])
	}

	var sawToolCall, sawToolResult bool
	for _, msg := range converted {
		if len(msg.ToolCalls) > 0 {
			sawToolCall = true
		}
		if msg.Role == "tool" && msg.ToolCallID == "1" && msg.Content == "4" {
			sawToolResult = true
		}
	}
	if !sawToolCall {
		t.Error("expected an assistant message carrying the tool call")
	}
	if !sawToolResult {
		t.Error("expected a tool message carrying the tool result")
	}
}

func TestOpenAICountTokens(t *testing.T) {
	p, _ := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})

	req := &Request{
		System:   "you are helpful",
		Messages: []*model.Message{{Role: model.RoleUser, Content: "hello there"}},
	}

	tokens, err := p.CountTokens(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens <= 0 {
		t.Error("expected a positive token estimate")
	}
}
