package hooks

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryTriggerRunsHandlersInPriorityOrder(t *testing.T) {
	r := NewRegistry(nil)
	var order []string

	r.Register(EventPreToolUse, func(ctx context.Context, e *Event) error {
		order = append(order, "low")
		return nil
	}, WithPriority(PriorityLow))
	r.Register(EventPreToolUse, func(ctx context.Context, e *Event) error {
		order = append(order, "high")
		return nil
	}, WithPriority(PriorityHigh))

	err := r.Trigger(context.Background(), NewEvent(EventPreToolUse, "conv-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("expected [high low], got %v", order)
	}
}

func TestRegistryTriggerContinuesAfterHandlerError(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0

	r.Register(EventStop, func(ctx context.Context, e *Event) error {
		calls++
		return errors.New("boom")
	}, WithPriority(PriorityHigh))
	r.Register(EventStop, func(ctx context.Context, e *Event) error {
		calls++
		return nil
	}, WithPriority(PriorityLow))

	err := r.Trigger(context.Background(), NewEvent(EventStop, "conv-1"))
	if err == nil {
		t.Fatal("expected first handler's error to surface")
	}
	if calls != 2 {
		t.Fatalf("expected both handlers to run, got %d calls", calls)
	}
}

func TestRegistryTriggerRecoversHandlerPanic(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(EventNotification, func(ctx context.Context, e *Event) error {
		panic("nope")
	})

	err := r.Trigger(context.Background(), NewEvent(EventNotification, "conv-1"))
	if err == nil {
		t.Fatal("expected panic to be converted into an error")
	}
}

func TestRegistryUnregisterRemovesHandler(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0
	id := r.Register(EventSessionStart, func(ctx context.Context, e *Event) error {
		calls++
		return nil
	})

	if !r.Unregister(id) {
		t.Fatal("expected unregister to succeed")
	}
	if err := r.Trigger(context.Background(), NewEvent(EventSessionStart, "conv-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected unregistered handler not to run, got %d calls", calls)
	}
}

func TestFilterMatches(t *testing.T) {
	f := Filter{EventTypes: []EventType{EventPreToolUse, EventPostToolUse}}
	if !f.Matches(NewEvent(EventPreToolUse, "c")) {
		t.Fatal("expected PreToolUse to match")
	}
	if f.Matches(NewEvent(EventStop, "c")) {
		t.Fatal("expected Stop not to match")
	}

	var empty Filter
	if !empty.Matches(NewEvent(EventStop, "c")) {
		t.Fatal("expected empty filter to match everything")
	}
}
