package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/coda/internal/hooks"
	"github.com/haasonsaas/coda/internal/llm"
	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/pkg/model"
)

// scriptedProvider replays a fixed sequence of responses, one per call to
// Complete, so tests can drive a multi-turn tool-use recursion
// deterministically.
type scriptedProvider struct {
	turns [][]*llm.Chunk
	calls int
}

func (p *scriptedProvider) Name() string         { return "scripted" }
func (p *scriptedProvider) Models() []llm.Model  { return nil }
func (p *scriptedProvider) SupportsTools() bool  { return true }
func (p *scriptedProvider) CountTokens(ctx context.Context, req *llm.Request) (int, error) {
	return 0, nil
}

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.Request) (<-chan *llm.Chunk, error) {
	turn := p.turns[p.calls]
	p.calls++

	ch := make(chan *llm.Chunk, len(turn))
	for _, c := range turn {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type echoTool struct{}

func (echoTool) Name() string              { return "echo" }
func (echoTool) Description() string       { return "echoes its input" }
func (echoTool) Schema() json.RawMessage   { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*toolexec.Result, error) {
	return &toolexec.Result{Content: "echoed"}, nil
}

func newTestLoop(provider llm.Provider, tools *toolexec.Registry) *Loop {
	var executor *toolexec.Executor
	if tools != nil {
		executor = toolexec.NewExecutor(tools, toolexec.DefaultConfig())
	}
	return New(Config{
		Provider: provider,
		ModelID:  "test-model",
		Tools:    tools,
		Executor: executor,
		Gate:     NewHookGate(hooks.NewRegistry(nil), nil, toolexec.Profile{}),
	})
}

func drain(t *testing.T, events <-chan *Event, timeout time.Duration) []*Event {
	t.Helper()
	var got []*Event
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, e)
		case <-deadline:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestLoopCompletesWithoutToolCalls(t *testing.T) {
	provider := &scriptedProvider{turns: [][]*llm.Chunk{
		{{Text: "hello"}, {Text: " world"}, {Done: true, Usage: model.Usage{InputTokens: 10, OutputTokens: 2}}},
	}}
	loop := newTestLoop(provider, nil)
	conv := NewConversation("conv-1", "general-purpose")

	events, err := loop.Run(context.Background(), conv, "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drain(t, events, time.Second)

	var sawDone bool
	var text string
	for _, e := range got {
		if e.Kind == EventText {
			text += e.Text
		}
		if e.Kind == EventDone {
			sawDone = true
		}
		if e.Kind == EventError {
			t.Fatalf("unexpected error event: %v", e.Err)
		}
	}
	if !sawDone {
		t.Fatal("expected a Done event")
	}
	if text != "hello world" {
		t.Fatalf("expected accumulated text %q, got %q", "hello world", text)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("expected user + assistant messages, got %d", len(conv.Messages))
	}
}

func TestLoopExecutesToolAndContinues(t *testing.T) {
	registry := toolexec.NewRegistry()
	registry.Register(echoTool{})

	provider := &scriptedProvider{turns: [][]*llm.Chunk{
		{
			{ToolCall: &model.ToolCall{ID: "call-1", Name: "echo", Input: json.RawMessage(`{}`)}},
			{Done: true},
		},
		{
			{Text: "done"},
			{Done: true},
		},
	}}

	loop := newTestLoop(provider, registry)
	conv := NewConversation("conv-2", "general-purpose")

	events, err := loop.Run(context.Background(), conv, "run echo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drain(t, events, time.Second)

	var sawToolCompleted, sawDone bool
	for _, e := range got {
		if e.Kind == EventToolCompleted {
			sawToolCompleted = true
			if e.ToolResult == nil || e.ToolResult.IsError {
				t.Fatalf("expected successful tool result, got %+v", e.ToolResult)
			}
		}
		if e.Kind == EventDone {
			sawDone = true
		}
		if e.Kind == EventError {
			t.Fatalf("unexpected error event: %v", e.Err)
		}
	}
	if !sawToolCompleted {
		t.Fatal("expected a tool_completed event")
	}
	if !sawDone {
		t.Fatal("expected a Done event")
	}
	if len(conv.CompletedToolUseIDs) != 1 || !conv.CompletedToolUseIDs["call-1"] {
		t.Fatalf("expected call-1 marked completed, got %+v", conv.CompletedToolUseIDs)
	}
	if len(conv.PendingToolUseIDs) != 0 {
		t.Fatalf("expected no pending tool uses left, got %+v", conv.PendingToolUseIDs)
	}
}

func TestLoopDeniesToolViaProfile(t *testing.T) {
	registry := toolexec.NewRegistry()
	registry.Register(echoTool{})

	provider := &scriptedProvider{turns: [][]*llm.Chunk{
		{
			{ToolCall: &model.ToolCall{ID: "call-1", Name: "echo", Input: json.RawMessage(`{}`)}},
			{Done: true},
		},
		{{Text: "ok"}, {Done: true}},
	}}

	loop := New(Config{
		Provider: provider,
		ModelID:  "test-model",
		Tools:    registry,
		Executor: toolexec.NewExecutor(registry, toolexec.DefaultConfig()),
		Gate:     NewHookGate(hooks.NewRegistry(nil), nil, toolexec.Profile{Deny: []string{"echo"}}),
	})
	conv := NewConversation("conv-3", "general-purpose")

	events, err := loop.Run(context.Background(), conv, "run echo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drain(t, events, time.Second)

	var sawToolCompleted bool
	for _, e := range got {
		if e.Kind == EventToolCompleted {
			sawToolCompleted = true
		}
	}
	if sawToolCompleted {
		t.Fatal("denied tool should not execute, so no tool_completed event is expected")
	}
	if len(conv.ErroredToolUseIDs) != 1 || !conv.ErroredToolUseIDs["call-1"] {
		t.Fatalf("expected call-1 marked errored by denial, got %+v", conv.ErroredToolUseIDs)
	}
}

func TestLoopCancellationAbandonsPendingToolUses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &scriptedProvider{turns: [][]*llm.Chunk{{{Text: "x"}, {Done: true}}}}
	loop := newTestLoop(provider, nil)
	conv := NewConversation("conv-4", "general-purpose")
	conv.markPending("stale-call")

	events, err := loop.Run(ctx, conv, "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drain(t, events, time.Second)

	var sawError bool
	for _, e := range got {
		if e.Kind == EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an error event on cancellation")
	}
	if !conv.ErroredToolUseIDs["stale-call"] {
		t.Fatal("expected stale pending tool use to be moved to errored on cancellation")
	}
}

func TestConversationClearResetsState(t *testing.T) {
	conv := NewConversation("conv-5", "general-purpose")
	conv.Append(&model.Message{ID: "m1", Role: model.RoleUser, Content: "hi"})
	conv.markPending("p1")
	conv.mergeUsage(model.Usage{InputTokens: 5})

	conv.Clear()

	if len(conv.Messages) != 0 {
		t.Fatal("expected messages cleared")
	}
	if len(conv.PendingToolUseIDs) != 0 {
		t.Fatal("expected pending set cleared")
	}
	if conv.Usage.InputTokens != 0 {
		t.Fatal("expected usage reset")
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt(SystemPromptInput{Base: "you are helpful", Cwd: "/tmp", RuntimeID: "coda/test"})
	if prompt == "" {
		t.Fatal("expected non-empty system prompt")
	}
}
