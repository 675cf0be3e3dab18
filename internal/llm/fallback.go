package llm

import (
	"context"
	"fmt"

	"github.com/haasonsaas/coda/internal/classify"
)

// FallbackProvider wraps a Registry and tries each provider in a
// configured chain, in order, until one streams a completion without an
// immediate, retryable error. It implements Provider itself so callers
// (the orchestrator, the top-level run loop) can hold one Provider value
// without knowing a fallback chain is behind it.
type FallbackProvider struct {
	registry *Registry
	primary  string
}

// NewFallbackProvider builds a FallbackProvider trying primary first and
// then registry.FallbackChain() in order. primary and the chain are
// resolved against the registry lazily, on each call, so providers
// registered after construction are still honored.
func NewFallbackProvider(registry *Registry, primary string) *FallbackProvider {
	return &FallbackProvider{registry: registry, primary: primary}
}

// order returns the distinct, registered providers to try, primary first.
func (f *FallbackProvider) order() []Provider {
	seen := make(map[string]bool)
	var out []Provider

	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		if p, ok := f.registry.Get(name); ok {
			out = append(out, p)
		}
	}

	add(f.primary)
	for _, name := range f.registry.FallbackChain() {
		add(name)
	}
	return out
}

// head returns the first resolvable provider, used to answer the static
// parts of Provider (Name, Models, SupportsTools, CountTokens) before a
// request picks which provider in the chain actually serves it.
func (f *FallbackProvider) head() (Provider, bool) {
	providers := f.order()
	if len(providers) == 0 {
		return nil, false
	}
	return providers[0], true
}

func (f *FallbackProvider) Name() string {
	if p, ok := f.head(); ok {
		return p.Name()
	}
	return "fallback:" + f.primary
}

func (f *FallbackProvider) Models() []Model {
	if p, ok := f.head(); ok {
		return p.Models()
	}
	return nil
}

func (f *FallbackProvider) SupportsTools() bool {
	if p, ok := f.head(); ok {
		return p.SupportsTools()
	}
	return false
}

func (f *FallbackProvider) CountTokens(ctx context.Context, req *Request) (int, error) {
	p, ok := f.head()
	if !ok {
		return 0, fmt.Errorf("llm: no provider available to count tokens")
	}
	return p.CountTokens(ctx, req)
}

// Complete tries each provider in the chain in turn. A provider that
// fails to even start streaming (a synchronous error from Complete) is
// skipped if the error is retryable and another provider remains. Once a
// provider starts streaming, a failover only happens if its very first
// chunk is a retryable error — once any text or thinking has reached the
// caller, switching providers mid-stream would duplicate or corrupt the
// transcript, so the stream is forwarded as-is from then on.
func (f *FallbackProvider) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	providers := f.order()
	if len(providers) == 0 {
		return nil, fmt.Errorf("llm: no provider available for model %q", req.Model)
	}
	return f.completeFrom(ctx, req, providers)
}

func (f *FallbackProvider) completeFrom(ctx context.Context, req *Request, providers []Provider) (<-chan *Chunk, error) {
	p := providers[0]
	rest := providers[1:]

	upstream, err := p.Complete(ctx, req)
	if err != nil {
		if len(rest) > 0 && classify.IsRetryable(err) {
			return f.completeFrom(ctx, req, rest)
		}
		return nil, err
	}

	out := make(chan *Chunk)
	go f.forward(ctx, req, upstream, rest, out)
	return out, nil
}

func (f *FallbackProvider) forward(ctx context.Context, req *Request, upstream <-chan *Chunk, rest []Provider, out chan *Chunk) {
	defer close(out)

	first := true
	for chunk := range upstream {
		if first {
			first = false
			if chunk.Error != nil && len(rest) > 0 && classify.IsRetryable(chunk.Error) {
				fallback, err := f.completeFrom(ctx, req, rest)
				if err != nil {
					out <- chunk
					return
				}
				for c := range fallback {
					out <- c
				}
				return
			}
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
	}
}
