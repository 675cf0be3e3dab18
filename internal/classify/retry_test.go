package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/coda/internal/backoff"
)

func TestRetrySucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	res := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if res.Err != nil || calls != 1 {
		t.Fatalf("expected single successful call, got calls=%d err=%v", calls, res.Err)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 5, Policy: backoff.Policy{Multiplier: 2, MaxBackoffMs: 1}}
	res := Retry(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return New("tool:x", errors.New("invalid input: missing field")).WithKind(KindInvalidInput)
	})
	if calls != 1 {
		t.Fatalf("expected 1 call for non-retryable error, got %d", calls)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected Attempts=1, got %d", res.Attempts)
	}
}

func TestRetryExhaustsRetryableError(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 3, Policy: backoff.Policy{Multiplier: 1, MaxBackoffMs: 1}}
	res := Retry(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return New("tool:x", errors.New("connection reset")).WithKind(KindNetwork)
	})
	if calls != 3 || res.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got calls=%d attempts=%d", calls, res.Attempts)
	}
	if res.Err == nil {
		t.Fatal("expected final error to be non-nil")
	}
}

func TestRetryHintOverridesComputedDelay(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 2, Policy: backoff.Policy{Multiplier: 2, MaxBackoffMs: 10000}}
	res := Retry(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 1 {
			return WithRetryHint(New("llm:anthropic", errors.New("429 too many requests")).WithKind(KindRateLimit), 0)
		}
		return nil
	})
	if res.Err != nil || calls != 2 {
		t.Fatalf("expected success after hinted retry, calls=%d err=%v", calls, res.Err)
	}
}

func TestKindRetryable(t *testing.T) {
	cases := map[Kind]bool{
		KindTimeout:      true,
		KindNetwork:      true,
		KindRateLimit:    true,
		KindServerError:  true,
		KindNotFound:     false,
		KindInvalidInput: false,
		KindPermission:   false,
		KindPanic:        false,
	}
	for kind, want := range cases {
		if got := kind.Retryable(); got != want {
			t.Errorf("Kind(%s).Retryable() = %v, want %v", kind, got, want)
		}
	}
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, OpenDuration: time.Millisecond, HalfOpenSuccesses: 1})
	if !b.Allow() {
		t.Fatal("expected closed breaker to allow")
	}
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open state after threshold failures, got %s", b.State())
	}
	time.Sleep(2 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected half-open probe to be allowed once OpenDuration elapsed")
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("expected closed state after half-open success, got %s", b.State())
	}
}
