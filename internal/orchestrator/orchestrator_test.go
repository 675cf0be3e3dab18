package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/coda/internal/engine"
	"github.com/haasonsaas/coda/internal/hooks"
	"github.com/haasonsaas/coda/internal/llm"
	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/pkg/model"
)

type scriptedProvider struct {
	turns [][]*llm.Chunk
	calls int
}

func (p *scriptedProvider) Name() string        { return "scripted" }
func (p *scriptedProvider) Models() []llm.Model { return nil }
func (p *scriptedProvider) SupportsTools() bool { return true }
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

func (echoTool) Name() string            { return "Read" }
func (echoTool) Description() string     { return "reads a file" }
func (echoTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Execute(ctx context.Context, params json.RawMessage) (*toolexec.Result, error) {
	return &toolexec.Result{Content: "file contents"}, nil
}

func drain(t *testing.T, events <-chan *engine.Event, timeout time.Duration) []*engine.Event {
	t.Helper()
	var got []*engine.Event
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

func TestLaunchUnknownAgentTypeErrors(t *testing.T) {
	o := New(Config{Provider: &scriptedProvider{}})
	_, err := o.Launch(context.Background(), AgentType("no-such-agent"), "task", "")
	if err == nil {
		t.Fatal("expected an error for an unknown agent type")
	}
}

func TestLaunchGeneralPurposeRunsToCompletion(t *testing.T) {
	registry := toolexec.NewRegistry()
	registry.Register(echoTool{})

	provider := &scriptedProvider{turns: [][]*llm.Chunk{
		{{Text: "done"}, {Done: true, Usage: model.Usage{InputTokens: 3, OutputTokens: 1}}},
	}}

	var completed []*hooks.Event
	hookRegistry := hooks.NewRegistry(nil)
	hookRegistry.Register(hooks.EventAgentCompleted, func(ctx context.Context, evt *hooks.Event) error {
		completed = append(completed, evt)
		return nil
	})

	o := New(Config{
		Provider:     provider,
		ModelID:      "test-model",
		Tools:        registry,
		Executor:     toolexec.NewExecutor(registry, toolexec.DefaultConfig()),
		HookRegistry: hookRegistry,
	})

	events, err := o.Launch(context.Background(), AgentGeneralPurpose, "summarize the repo", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drain(t, events, time.Second)

	var sawDone bool
	for _, e := range got {
		if e.Kind == engine.EventDone {
			sawDone = true
		}
		if e.Kind == engine.EventError {
			t.Fatalf("unexpected error event: %v", e.Err)
		}
	}
	if !sawDone {
		t.Fatal("expected the launched conversation to finish")
	}

	// Give the supervising goroutine a moment to fire AgentCompleted after
	// the channel close it was just observed through.
	time.Sleep(10 * time.Millisecond)
	if len(completed) != 1 {
		t.Fatalf("expected exactly one AgentCompleted event, got %d", len(completed))
	}
}

func TestLaunchStatuslineSetupDeniesDisallowedTool(t *testing.T) {
	registry := toolexec.NewRegistry()
	registry.Register(echoTool{})
	registry.Register(writeTool{})

	provider := &scriptedProvider{turns: [][]*llm.Chunk{
		{
			{ToolCall: &model.ToolCall{ID: "call-1", Name: "Write", Input: json.RawMessage(`{}`)}},
			{Done: true},
		},
		{{Text: "ok"}, {Done: true}},
	}}

	o := New(Config{
		Provider: provider,
		ModelID:  "test-model",
		Tools:    registry,
		Executor: toolexec.NewExecutor(registry, toolexec.DefaultConfig()),
	})

	events, err := o.Launch(context.Background(), AgentStatuslineSetup, "convert my PS1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := drain(t, events, time.Second)

	for _, e := range got {
		if e.Kind == engine.EventToolCompleted {
			t.Fatal("statusline-setup's whitelist excludes Write; it must not execute")
		}
	}
}

func TestCancelUnknownConversationReportsFalse(t *testing.T) {
	o := New(Config{Provider: &scriptedProvider{}})
	if o.Cancel("never-launched") {
		t.Fatal("expected Cancel on an unknown conversation id to report false")
	}
}

type writeTool struct{}

func (writeTool) Name() string            { return "Write" }
func (writeTool) Description() string     { return "writes a file" }
func (writeTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (writeTool) Execute(ctx context.Context, params json.RawMessage) (*toolexec.Result, error) {
	return &toolexec.Result{Content: "wrote"}, nil
}
