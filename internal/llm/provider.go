// Package llm defines the provider-agnostic streaming completion contract
// the engine loop drives, and implements it against Anthropic and OpenAI.
package llm

import (
	"context"

	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/pkg/model"
)

// Provider is a streaming chat-completion backend. Complete returns
// immediately with a channel of Chunks; the caller ranges over it until a
// Chunk with Done=true or Error set arrives.
type Provider interface {
	// Name identifies the provider ("anthropic", "openai", ...).
	Name() string

	// Models lists the models this provider can serve.
	Models() []Model

	// SupportsTools reports whether this provider accepts tool definitions.
	SupportsTools() bool

	// Complete streams a completion for req.
	Complete(ctx context.Context, req *Request) (<-chan *Chunk, error)

	// CountTokens estimates the token count req would consume (system
	// prompt and messages; the built-in providers also count tool schemas),
	// used by the token accountant ahead of a real call.
	CountTokens(ctx context.Context, req *Request) (int, error)
}

// Request is one completion request against a Provider.
type Request struct {
	Model                string
	System               string
	Messages             []*model.Message
	Tools                []toolexec.Tool
	MaxTokens            int
	Temperature          float64
	EnableThinking       bool
	ThinkingBudgetTokens int
}

// Chunk is one piece of a streamed completion.
type Chunk struct {
	Text          string
	Thinking      string
	ThinkingStart bool
	ThinkingEnd   bool
	ToolCall      *model.ToolCall
	Done          bool
	Error         error
	Usage         model.Usage
}

// Model describes one model a Provider can serve.
type Model struct {
	ID             string
	Name           string
	ContextWindow  int
	SupportsVision bool
}

// Registry resolves a provider by name, used by the orchestrator to honor
// per-agent-type provider overrides and the configured fallback chain.
type Registry struct {
	providers map[string]Provider
	fallback  []string
}

// NewRegistry builds an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider under its own Name().
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// SetFallbackChain configures the provider names tried, in order, after
// the requested provider fails with a retryable error.
func (r *Registry) SetFallbackChain(names []string) {
	r.fallback = names
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// FallbackChain returns the configured fallback order.
func (r *Registry) FallbackChain() []string {
	return r.fallback
}
