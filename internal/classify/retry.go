package classify

import (
	"context"
	"time"

	"github.com/haasonsaas/coda/internal/backoff"
)

// RetryConfig bounds a retry loop.
type RetryConfig struct {
	MaxAttempts int
	Policy      backoff.Policy
}

// DefaultRetryConfig allows 3 attempts total (1 try + 2 retries) under the
// default backoff policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Policy: backoff.DefaultPolicy()}
}

// Result reports what a retry loop did.
type Result struct {
	Attempts int
	Err      error
	Duration time.Duration
}

// RetryHint lets an operation report a server-provided retry-after value
// (e.g. from a 429/503 response's Retry-After header) that overrides the
// computed backoff for the next attempt.
type RetryHint struct {
	After time.Duration
}

// Op is retried by Retry. It may wrap its error with WithRetryHint to
// force a specific delay before the next attempt.
type Op func(ctx context.Context, attempt int) error

type hintedError struct {
	error
	hint time.Duration
}

// WithRetryHint wraps err so Retry honors the server-supplied delay instead
// of computing its own backoff for the next attempt.
func WithRetryHint(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &hintedError{error: err, hint: after}
}

func (e *hintedError) Unwrap() error { return e.error }

// Retry runs op until it succeeds, exhausts MaxAttempts, hits a
// non-retryable classification, or ctx is cancelled. Attempts are
// 1-indexed; retriesLeft fed to backoff.Delay counts down so the first
// retry (most budget remaining) backs off hardest.
func Retry(ctx context.Context, cfg RetryConfig, op Op) Result {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	start := time.Now()
	res := Result{}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt

		if err := ctx.Err(); err != nil {
			res.Err = err
			res.Duration = time.Since(start)
			return res
		}

		err := op(ctx, attempt)
		if err == nil {
			res.Err = nil
			res.Duration = time.Since(start)
			return res
		}
		res.Err = err

		if !IsRetryable(err) {
			res.Duration = time.Since(start)
			return res
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		delay := backoff.Delay(cfg.Policy, cfg.MaxAttempts-attempt)
		var hinted *hintedError
		if asHinted(err, &hinted) {
			delay = hinted.hint
		}

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			res.Duration = time.Since(start)
			return res
		case <-time.After(delay):
		}
	}

	res.Duration = time.Since(start)
	return res
}

func asHinted(err error, target **hintedError) bool {
	for err != nil {
		if h, ok := err.(*hintedError); ok {
			*target = h
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
