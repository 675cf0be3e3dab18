package llm

import (
	"context"
	"errors"
	"testing"
)

// scriptedProvider is a named provider whose Complete behavior is
// supplied by the test: either a synchronous error, or a fixed sequence
// of chunks delivered over a channel.
type scriptedProvider struct {
	name    string
	err     error
	chunks  []*Chunk
	started bool
}

func (p *scriptedProvider) Name() string        { return p.name }
func (p *scriptedProvider) Models() []Model     { return []Model{{ID: p.name + "-model"}} }
func (p *scriptedProvider) SupportsTools() bool { return true }
func (p *scriptedProvider) CountTokens(ctx context.Context, req *Request) (int, error) {
	return 0, nil
}

func (p *scriptedProvider) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	p.started = true
	if p.err != nil {
		return nil, p.err
	}
	out := make(chan *Chunk, len(p.chunks))
	for _, c := range p.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func drainChunks(t *testing.T, ch <-chan *Chunk) []*Chunk {
	t.Helper()
	var out []*Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestFallbackProviderUsesPrimaryWhenItSucceeds(t *testing.T) {
	r := NewRegistry()
	primary := &scriptedProvider{name: "anthropic", chunks: []*Chunk{{Text: "hi"}, {Done: true}}}
	secondary := &scriptedProvider{name: "openai", chunks: []*Chunk{{Text: "should not run"}, {Done: true}}}
	r.Register(primary)
	r.Register(secondary)
	r.SetFallbackChain([]string{"openai"})

	fp := NewFallbackProvider(r, "anthropic")
	ch, err := fp.Complete(context.Background(), &Request{Model: "claude"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := drainChunks(t, ch)
	if len(chunks) != 2 || chunks[0].Text != "hi" {
		t.Fatalf("expected primary's chunks, got %+v", chunks)
	}
	if secondary.started {
		t.Error("secondary provider should not have been invoked")
	}
}

func TestFallbackProviderFailsOverOnSynchronousError(t *testing.T) {
	r := NewRegistry()
	primary := &scriptedProvider{name: "anthropic", err: errors.New("connection refused")}
	secondary := &scriptedProvider{name: "openai", chunks: []*Chunk{{Text: "from secondary"}, {Done: true}}}
	r.Register(primary)
	r.Register(secondary)
	r.SetFallbackChain([]string{"openai"})

	fp := NewFallbackProvider(r, "anthropic")
	ch, err := fp.Complete(context.Background(), &Request{Model: "claude"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := drainChunks(t, ch)
	if len(chunks) != 2 || chunks[0].Text != "from secondary" {
		t.Fatalf("expected secondary's chunks, got %+v", chunks)
	}
}

func TestFallbackProviderFailsOverOnFirstChunkRetryableError(t *testing.T) {
	r := NewRegistry()
	primary := &scriptedProvider{name: "anthropic", chunks: []*Chunk{{Error: errors.New("503 service unavailable"), Done: true}}}
	secondary := &scriptedProvider{name: "openai", chunks: []*Chunk{{Text: "from secondary"}, {Done: true}}}
	r.Register(primary)
	r.Register(secondary)
	r.SetFallbackChain([]string{"openai"})

	fp := NewFallbackProvider(r, "anthropic")
	ch, err := fp.Complete(context.Background(), &Request{Model: "claude"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := drainChunks(t, ch)
	if len(chunks) != 2 || chunks[0].Text != "from secondary" {
		t.Fatalf("expected secondary's chunks after failover, got %+v", chunks)
	}
}

func TestFallbackProviderDoesNotFailOverAfterTextHasStreamed(t *testing.T) {
	r := NewRegistry()
	primary := &scriptedProvider{name: "anthropic", chunks: []*Chunk{
		{Text: "partial"},
		{Error: errors.New("503 service unavailable"), Done: true},
	}}
	secondary := &scriptedProvider{name: "openai", chunks: []*Chunk{{Text: "should not run"}, {Done: true}}}
	r.Register(primary)
	r.Register(secondary)
	r.SetFallbackChain([]string{"openai"})

	fp := NewFallbackProvider(r, "anthropic")
	ch, err := fp.Complete(context.Background(), &Request{Model: "claude"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunks := drainChunks(t, ch)
	if len(chunks) != 2 || chunks[0].Text != "partial" || chunks[1].Error == nil {
		t.Fatalf("expected the partial stream and its terminal error preserved, got %+v", chunks)
	}
	if secondary.started {
		t.Error("secondary provider should not have been invoked once text had streamed")
	}
}

func TestFallbackProviderReturnsErrorWhenNoProviderRegistered(t *testing.T) {
	r := NewRegistry()
	fp := NewFallbackProvider(r, "anthropic")
	if _, err := fp.Complete(context.Background(), &Request{Model: "claude"}); err == nil {
		t.Fatal("expected an error when no provider is registered")
	}
}

func TestFallbackProviderDelegatesStaticMethodsToPrimary(t *testing.T) {
	r := NewRegistry()
	primary := &scriptedProvider{name: "anthropic"}
	r.Register(primary)

	fp := NewFallbackProvider(r, "anthropic")
	if fp.Name() != "anthropic" {
		t.Errorf("expected Name() to delegate to primary, got %s", fp.Name())
	}
	if !fp.SupportsTools() {
		t.Error("expected SupportsTools() to delegate to primary")
	}
	if len(fp.Models()) != 1 {
		t.Errorf("expected Models() to delegate to primary, got %+v", fp.Models())
	}
}
