package hooks

import (
	"context"
	"testing"
	"time"
)

func TestCommandRunnerEchoesResponse(t *testing.T) {
	r := NewCommandRunner(0)
	spec := CommandSpec{
		Command: `cat <&0 >/dev/null; echo '{"continue":true,"decision":"allow"}'`,
		Timeout: 5 * time.Second,
	}
	resp, err := r.Run(context.Background(), spec, NewEvent(EventPreToolUse, "conv-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || !resp.Continue || resp.Decision != DecisionAllow {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !resp.Delivered {
		t.Fatal("expected Delivered to be true")
	}
}

func TestCommandRunnerEmptyStdoutDefaultsToContinue(t *testing.T) {
	r := NewCommandRunner(0)
	spec := CommandSpec{Command: "cat <&0 >/dev/null", Timeout: 5 * time.Second}
	resp, err := r.Run(context.Background(), spec, NewEvent(EventPostToolUse, "conv-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || !resp.Continue {
		t.Fatalf("expected a default continue response, got %+v", resp)
	}
}

func TestCommandRunnerNonZeroExitWithoutOutputIsError(t *testing.T) {
	r := NewCommandRunner(0)
	spec := CommandSpec{Command: "cat <&0 >/dev/null; exit 1", Timeout: 5 * time.Second}
	_, err := r.Run(context.Background(), spec, NewEvent(EventPostToolUse, "conv-1"))
	if err == nil {
		t.Fatal("expected an error for a non-zero exit with no stdout")
	}
}

func TestCommandRunnerRespectsMatchers(t *testing.T) {
	r := NewCommandRunner(0)
	spec := CommandSpec{
		Command:  "cat <&0 >/dev/null",
		Matchers: Filter{EventTypes: []EventType{EventPreToolUse}},
	}
	resp, err := r.Run(context.Background(), spec, NewEvent(EventStop, "conv-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected filtered-out event to skip the hook, got %+v", resp)
	}
}

func TestApplyShellPrefixInsertsBeforeFirstFlag(t *testing.T) {
	got := applyShellPrefix("git commit -m msg", "sandbox-exec --quiet")
	want := "sandbox-exec git commit -m msg --quiet"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyShellPrefixAppendsWhenNoFlag(t *testing.T) {
	got := applyShellPrefix("ls", "sandbox-exec")
	want := "sandbox-exec ls"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyShellPrefixNoopWhenUnset(t *testing.T) {
	if got := applyShellPrefix("ls -la", ""); got != "ls -la" {
		t.Fatalf("expected command unchanged, got %q", got)
	}
}
