package classify

import (
	"sync"
	"time"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes when a Breaker trips and how long it stays open.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that trip the
	// breaker from closed to open.
	FailureThreshold int
	// OpenDuration is how long the breaker stays open before allowing a
	// single half-open probe through.
	OpenDuration time.Duration
	// HalfOpenSuccesses is the number of consecutive probe successes
	// required to close the breaker again.
	HalfOpenSuccesses int
}

// DefaultBreakerConfig trips after 5 consecutive failures, stays open 30s,
// and requires 2 clean probes to close.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenDuration: 30 * time.Second, HalfOpenSuccesses: 2}
}

// Breaker is a per-source (tool name, hook name, provider) circuit breaker
// guarding a retry loop from hammering a target that is already down.
// State bookkeeping is counter-and-mutex based, mirroring the atomic
// counters behind the tool executor's metrics snapshot.
type Breaker struct {
	cfg BreakerConfig

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	consecutiveOK   int
	openedAt        time.Time
	probeInFlight   bool
}

// NewBreaker constructs a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = 30 * time.Second
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = 2
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call should proceed. It transitions open->half_open
// once OpenDuration has elapsed, and only lets a single probe call through at
// a time while half-open — concurrent callers must not all re-hammer a
// target that just tripped the breaker.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.openedAt) >= b.cfg.OpenDuration {
			b.state = StateHalfOpen
			b.consecutiveOK = 0
			b.probeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess reports a successful call and may close a half-open breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.consecutiveOK++
		b.probeInFlight = false
		if b.consecutiveOK >= b.cfg.HalfOpenSuccesses {
			b.state = StateClosed
			b.consecutiveFail = 0
			b.consecutiveOK = 0
		}
	case StateClosed:
		b.consecutiveFail = 0
	}
}

// RecordFailure reports a failed call and may trip the breaker open.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = time.Now()
		b.consecutiveOK = 0
		b.probeInFlight = false
	case StateClosed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
		}
	}
}

// State returns the current state for diagnostics.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerRegistry hands out one Breaker per source key, creating it lazily.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      BreakerConfig
	breakers map[string]*Breaker
}

// NewBreakerRegistry creates a registry that builds breakers with cfg.
func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns (creating if necessary) the Breaker for key.
func (r *BreakerRegistry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	if !ok {
		b = NewBreaker(r.cfg)
		r.breakers[key] = b
	}
	return b
}
