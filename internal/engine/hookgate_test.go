package engine

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/coda/internal/hooks"
	"github.com/haasonsaas/coda/internal/toolexec"
)

func TestHookGateProfileDenyWinsOverHooks(t *testing.T) {
	gate := NewHookGate(hooks.NewRegistry(nil), nil, toolexec.Profile{Deny: []string{"bash"}})

	decision, reason, err := gate.EvaluateTool(context.Background(), "conv-1", toolCallView{ID: "1", Name: "bash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != toolexec.DecisionDeny {
		t.Fatalf("expected deny, got %s", decision)
	}
	if reason == "" {
		t.Fatal("expected a reason for denial")
	}
}

func TestHookGateAskWithoutHookResponseDeniesInHeadlessRun(t *testing.T) {
	gate := NewHookGate(hooks.NewRegistry(nil), nil, toolexec.Profile{RequireApproval: []string{"bash"}})

	decision, _, err := gate.EvaluateTool(context.Background(), "conv-1", toolCallView{ID: "1", Name: "bash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != toolexec.DecisionDeny {
		t.Fatalf("expected ask-without-approval to deny, got %s", decision)
	}
}

func TestHookGateCommandHookCanDenyAllowedTool(t *testing.T) {
	commands := map[hooks.EventType][]hooks.CommandSpec{
		hooks.EventPreToolUse: {{Command: `printf '{"continue":true,"decision":"deny","reason":"blocked by policy"}'`, Timeout: time.Second}},
	}
	gate := NewHookGate(hooks.NewRegistry(nil), commands, toolexec.Profile{})

	decision, reason, err := gate.EvaluateTool(context.Background(), "conv-1", toolCallView{ID: "1", Name: "bash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision != toolexec.DecisionDeny {
		t.Fatalf("expected command hook denial, got %s", decision)
	}
	if reason != "blocked by policy" {
		t.Fatalf("expected hook reason to propagate, got %q", reason)
	}
}

func TestHookGateFireRunsCallbackHandlers(t *testing.T) {
	registry := hooks.NewRegistry(nil)
	var fired bool
	registry.Register(hooks.EventStop, func(ctx context.Context, e *hooks.Event) error {
		fired = true
		return nil
	})
	gate := NewHookGate(registry, nil, toolexec.Profile{})

	if _, err := gate.Fire(context.Background(), hooks.NewEvent(hooks.EventStop, "conv-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fired {
		t.Fatal("expected callback handler to run")
	}
}
