package toolexec

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/haasonsaas/coda/internal/backoff"
	"github.com/haasonsaas/coda/internal/classify"
	"github.com/haasonsaas/coda/pkg/model"
)

// Config configures the parallel tool executor: concurrency limit, default
// timeout/retry policy, and per-tool overrides.
type Config struct {
	MaxConcurrency int
	DefaultTimeout time.Duration
	RetryConfig    classify.RetryConfig
	BreakerConfig  classify.BreakerConfig
}

// DefaultConfig mirrors the defaults a single-user interactive session runs with.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		DefaultTimeout: 30 * time.Second,
		RetryConfig:    classify.RetryConfig{MaxAttempts: 3, Policy: backoff.DefaultPolicy()},
		BreakerConfig:  classify.DefaultBreakerConfig(),
	}
}

// ToolOverride customizes timeout/retry behavior for a single tool name.
type ToolOverride struct {
	Timeout     time.Duration
	RetryConfig *classify.RetryConfig
}

// Executor runs tool calls with concurrency limiting, retry, and
// per-tool circuit breaking, mirroring the agent loop's need to fan a
// batch of tool_use blocks out in parallel and fold the results back into
// one ordered slice of tool_result blocks.
type Executor struct {
	registry  *Registry
	config    Config
	breakers  *classify.BreakerRegistry
	overrides map[string]ToolOverride
	mu        sync.RWMutex
	sem       chan struct{}
	metrics   *metrics
}

type metrics struct {
	mu          sync.Mutex
	executions  int64
	retries     int64
	failures    int64
	timeouts    int64
	panics      int64
	breakerOpen int64
}

// NewExecutor builds an Executor over registry.
func NewExecutor(registry *Registry, config Config) *Executor {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 30 * time.Second
	}
	return &Executor{
		registry:  registry,
		config:    config,
		breakers:  classify.NewBreakerRegistry(config.BreakerConfig),
		overrides: make(map[string]ToolOverride),
		sem:       make(chan struct{}, config.MaxConcurrency),
		metrics:   &metrics{},
	}
}

// SetOverride installs per-tool timeout/retry overrides.
func (e *Executor) SetOverride(toolName string, o ToolOverride) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides[toolName] = o
}

func (e *Executor) override(toolName string) (ToolOverride, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.overrides[toolName]
	return o, ok
}

// Outcome is the result of executing one tool call.
type Outcome struct {
	ToolCallID string
	ToolName   string
	Result     *Result
	Err        error
	Duration   time.Duration
	Attempts   int
}

// ExecuteAll runs calls concurrently (bounded by MaxConcurrency) and
// returns outcomes in the same order as calls.
func (e *Executor) ExecuteAll(ctx context.Context, calls []model.ToolCall) []*Outcome {
	if len(calls) == 0 {
		return nil
	}
	outcomes := make([]*Outcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc model.ToolCall) {
			defer wg.Done()
			outcomes[idx] = e.Execute(ctx, tc)
		}(i, call)
	}
	wg.Wait()
	return outcomes
}

// Execute runs a single tool call with backpressure, breaker, and retry.
func (e *Executor) Execute(ctx context.Context, call model.ToolCall) *Outcome {
	start := time.Now()
	outcome := &Outcome{ToolCallID: call.ID, ToolName: call.Name}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		outcome.Err = classify.New(call.Name, ctx.Err()).WithKind(classify.KindTimeout)
		outcome.Duration = time.Since(start)
		return outcome
	}

	timeout := e.config.DefaultTimeout
	retryCfg := e.config.RetryConfig
	if o, ok := e.override(call.Name); ok {
		if o.Timeout > 0 {
			timeout = o.Timeout
		}
		if o.RetryConfig != nil {
			retryCfg = *o.RetryConfig
		}
	}

	breaker := e.breakers.Get(call.Name)
	if !breaker.Allow() {
		e.metrics.mu.Lock()
		e.metrics.breakerOpen++
		e.metrics.mu.Unlock()
		outcome.Err = classify.New(call.Name, classify.ErrCircuitOpen).WithKind(classify.KindServerError)
		outcome.Duration = time.Since(start)
		return outcome
	}

	res := classify.Retry(ctx, retryCfg, func(ctx context.Context, attempt int) error {
		result, err := e.executeOnce(ctx, call, timeout)
		outcome.Result = result
		return err
	})

	outcome.Attempts = res.Attempts
	outcome.Err = res.Err
	outcome.Duration = time.Since(start)

	e.metrics.mu.Lock()
	e.metrics.executions++
	if res.Attempts > 1 {
		e.metrics.retries += int64(res.Attempts - 1)
	}
	if res.Err != nil {
		e.metrics.failures++
		if classErr, ok := classify.As(res.Err); ok {
			switch classErr.Kind {
			case classify.KindTimeout:
				e.metrics.timeouts++
			case classify.KindPanic:
				e.metrics.panics++
			}
		}
	}
	e.metrics.mu.Unlock()

	if res.Err != nil {
		breaker.RecordFailure()
	} else {
		breaker.RecordSuccess()
	}

	return outcome
}

func (e *Executor) executeOnce(ctx context.Context, call model.ToolCall, timeout time.Duration) (result *Result, err error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type out struct {
		result *Result
		err    error
	}
	ch := make(chan out, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- out{err: classify.New(call.Name, fmt.Errorf("panic: %v\n%s", r, debug.Stack())).WithKind(classify.KindPanic)}
			}
		}()
		res, err := e.registry.Invoke(execCtx, call.Name, call.Input)
		if err != nil {
			ch <- out{err: classify.New(call.Name, err)}
			return
		}
		ch <- out{result: res}
	}()

	select {
	case o := <-ch:
		return o.result, o.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, classify.New(call.Name, ctx.Err()).WithKind(classify.KindTimeout)
		}
		return nil, classify.New(call.Name, classify.ErrToolTimeout).WithKind(classify.KindTimeout).
			WithMessage(fmt.Sprintf("execution timed out after %s", timeout))
	}
}

// Snapshot is a point-in-time copy of executor counters.
type Snapshot struct {
	Executions  int64
	Retries     int64
	Failures    int64
	Timeouts    int64
	Panics      int64
	BreakerOpen int64
}

// Metrics returns a Snapshot of the executor's counters.
func (e *Executor) Metrics() Snapshot {
	e.metrics.mu.Lock()
	defer e.metrics.mu.Unlock()
	return Snapshot{
		Executions:  e.metrics.executions,
		Retries:     e.metrics.retries,
		Failures:    e.metrics.failures,
		Timeouts:    e.metrics.timeouts,
		Panics:      e.metrics.panics,
		BreakerOpen: e.metrics.breakerOpen,
	}
}

// ResultsToModel converts outcomes to model.ToolResult values, suitable for
// appending to a conversation.
func ResultsToModel(outcomes []*Outcome) []model.ToolResult {
	results := make([]model.ToolResult, len(outcomes))
	for i, o := range outcomes {
		switch {
		case o.Err != nil:
			results[i] = model.ToolResult{ToolCallID: o.ToolCallID, Content: o.Err.Error(), IsError: true}
		case o.Result != nil:
			results[i] = model.ToolResult{ToolCallID: o.ToolCallID, Content: o.Result.Content, IsError: o.Result.IsError}
		}
	}
	return results
}

// AnyErrors reports whether any outcome failed.
func AnyErrors(outcomes []*Outcome) bool {
	for _, o := range outcomes {
		if o.Err != nil {
			return true
		}
	}
	return false
}
