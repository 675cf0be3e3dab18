// Package backoff computes retry delays. It is deliberately pure: every
// function here is a function of its inputs, with randomness injectable so
// callers (and tests) can get deterministic delays.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes the delay curve. MaxBackoffMs is a hard ceiling
// regardless of how many retries remain.
type Policy struct {
	Multiplier   float64
	MaxBackoffMs float64
}

// DefaultPolicy doubles on every retry, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{Multiplier: 2, MaxBackoffMs: 30000}
}

// AggressivePolicy retries quickly with a low ceiling.
func AggressivePolicy() Policy {
	return Policy{Multiplier: 1.5, MaxBackoffMs: 5000}
}

// ConservativePolicy backs off hard and waits up to a minute.
func ConservativePolicy() Policy {
	return Policy{Multiplier: 2.5, MaxBackoffMs: 60000}
}

// Delay computes delay = min(0.5 * multiplier^(retriesLeft) * jitter * 1000, maxBackoffMs),
// where jitter is drawn from math/rand. retriesLeft counts down from the
// configured attempt budget, so the first retry (most remaining attempts)
// waits longest and the last retry waits shortest — a countdown shape
// rather than a counting-up one, matching how a bounded retry budget should
// back off harder while it still has room to spare.
func Delay(policy Policy, retriesLeft int) time.Duration {
	return DelayWithJitter(policy, retriesLeft, rand.Float64()) // #nosec G404 -- jitter, not a credential
}

// DelayWithJitter is Delay with an injected jitter value in [0,1) for
// deterministic tests.
func DelayWithJitter(policy Policy, retriesLeft int, jitter float64) time.Duration {
	if retriesLeft < 0 {
		retriesLeft = 0
	}
	base := 0.5 * math.Pow(policy.Multiplier, float64(retriesLeft)) * jitter * 1000
	ms := math.Min(base, policy.MaxBackoffMs)
	if ms < 0 {
		ms = 0
	}
	return time.Duration(math.Round(ms)) * time.Millisecond
}
