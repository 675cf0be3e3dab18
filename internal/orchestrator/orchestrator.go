package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/coda/internal/engine"
	"github.com/haasonsaas/coda/internal/hooks"
	"github.com/haasonsaas/coda/internal/llm"
	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/pkg/model"
)

// Config holds the dependencies every launched agent conversation shares:
// one provider, tool registry, executor, hook registry, and token
// accountant/compactor pair. Only the tool permission profile and system
// prompt suffix vary per agent type.
type Config struct {
	Provider     llm.Provider
	ModelID      string
	Tools        *toolexec.Registry
	Executor     *toolexec.Executor
	HookRegistry *hooks.Registry
	HookCommands map[hooks.EventType][]hooks.CommandSpec
	HookPlugins  map[hooks.EventType][]hooks.PluginSpec
	PluginHost   *hooks.PluginHost
	Accountant   engine.Accountant
	Compactor    engine.Compactor

	// BaseSystemPrompt precedes each agent profile's own SystemExtra text.
	BaseSystemPrompt string

	MaxTokens            int
	EnableThinking       bool
	ThinkingBudgetTokens int
	MaxIterations        int
	CompactionThreshold  float64
}

// AgentTelemetry is emitted (as an AgentCompleted hook event, and returned
// to a caller that wants it directly) once an agent conversation finishes.
type AgentTelemetry struct {
	ConversationID string
	AgentType      AgentType
	Duration       time.Duration
	MessageCount   int
	ToolUseCount   int
	Usage          model.Usage
}

type agentScope struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

// Orchestrator launches conversations under one of the built-in agent
// profiles and supervises their lifecycle: each launched conversation
// gets its own cancellation scope and its own Conversation state, but all
// launches share the tool registry and hook registry, matching the
// "tools are reentrant" sharing rule.
type Orchestrator struct {
	cfg Config

	mu     sync.Mutex
	scopes map[string]*agentScope
}

// New builds an Orchestrator from shared dependencies.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg, scopes: make(map[string]*agentScope)}
}

// Launch starts a new agent conversation of agentType, composing task and
// parentContext into its first user message, and returns a channel of
// engine events for the caller to forward. The channel closes once the
// conversation reaches a terminal event; an AgentCompleted hook event
// fires at that point carrying the conversation's telemetry.
func (o *Orchestrator) Launch(ctx context.Context, agentType AgentType, task, parentContext string) (<-chan *engine.Event, error) {
	profile, ok := LookupProfile(agentType)
	if !ok {
		return nil, fmt.Errorf("orchestrator: unknown agent type %q", agentType)
	}

	conv := engine.NewConversation(uuid.New().String(), string(agentType))
	gate := engine.NewHookGate(o.cfg.HookRegistry, o.cfg.HookCommands, profile.Tools)
	if o.cfg.PluginHost != nil {
		gate = gate.WithPlugins(o.cfg.PluginHost, o.cfg.HookPlugins)
	}

	loop := engine.New(engine.Config{
		Provider:             o.cfg.Provider,
		ModelID:              o.cfg.ModelID,
		Tools:                o.cfg.Tools,
		Executor:             o.cfg.Executor,
		Gate:                 gate,
		Accountant:           o.cfg.Accountant,
		Compactor:            o.cfg.Compactor,
		SystemPrompt:         buildSystemPrompt(o.cfg.BaseSystemPrompt, profile),
		MaxTokens:            o.cfg.MaxTokens,
		EnableThinking:       o.cfg.EnableThinking,
		ThinkingBudgetTokens: o.cfg.ThinkingBudgetTokens,
		MaxIterations:        o.cfg.MaxIterations,
		CompactionThreshold:  o.cfg.CompactionThreshold,
	})

	scopedCtx, release := o.acquireScope(conv.ID, ctx)

	if o.cfg.HookRegistry != nil {
		startEvt := hooks.NewEvent(hooks.EventAgentStarted, conv.ID).WithExtra("agent_type", string(agentType))
		_ = o.cfg.HookRegistry.Trigger(scopedCtx, startEvt)
	}

	started := time.Now()
	events, err := loop.Run(scopedCtx, conv, composeInitialMessage(task, parentContext))
	if err != nil {
		release()
		return nil, err
	}

	out := make(chan *engine.Event, 16)
	go o.supervise(release, conv, agentType, started, events, out)
	return out, nil
}

// Cancel cancels the conversation identified by conversationID, if it is
// still running. It reports whether a running scope was found.
func (o *Orchestrator) Cancel(conversationID string) bool {
	o.mu.Lock()
	scope, ok := o.scopes[conversationID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	scope.cancel()
	return true
}

// acquireScope returns a context derived from parent for conversationID,
// creating its cancellation scope on first use. The returned release
// function must be called exactly once; the scope's cancel func only
// actually runs once every acquirer has released it, the same
// reference-counted shape as the teacher's per-session lock map.
func (o *Orchestrator) acquireScope(conversationID string, parent context.Context) (context.Context, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	scope := o.scopes[conversationID]
	if scope == nil {
		scopedCtx, cancel := context.WithCancel(parent)
		scope = &agentScope{ctx: scopedCtx, cancel: cancel}
		o.scopes[conversationID] = scope
	}
	scope.refs++

	return scope.ctx, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		scope.refs--
		if scope.refs <= 0 {
			scope.cancel()
			delete(o.scopes, conversationID)
		}
	}
}

// supervise forwards events to out, tallies telemetry, and fires
// AgentCompleted once the run's event channel closes.
func (o *Orchestrator) supervise(release func(), conv *engine.Conversation, agentType AgentType, started time.Time, in <-chan *engine.Event, out chan<- *engine.Event) {
	defer close(out)
	defer release()

	var toolUseCount int
	var usage model.Usage

	for evt := range in {
		out <- evt
		switch evt.Kind {
		case engine.EventToolCompleted:
			toolUseCount++
		case engine.EventDone:
			usage = evt.Usage
		}
	}

	tel := AgentTelemetry{
		ConversationID: conv.ID,
		AgentType:      agentType,
		Duration:       time.Since(started),
		MessageCount:   len(conv.Messages),
		ToolUseCount:   toolUseCount,
		Usage:          usage,
	}

	if o.cfg.HookRegistry == nil {
		return
	}
	completedEvt := hooks.NewEvent(hooks.EventAgentCompleted, tel.ConversationID).
		WithExtra("agent_type", string(tel.AgentType)).
		WithExtra("duration_ms", tel.Duration.Milliseconds()).
		WithExtra("message_count", tel.MessageCount).
		WithExtra("tool_use_count", tel.ToolUseCount).
		WithExtra("usage", tel.Usage)
	// The scoped context may already be cancelled by the time the run
	// finishes; use Background so the completion event still fires.
	_ = o.cfg.HookRegistry.Trigger(context.Background(), completedEvt)
}

func composeInitialMessage(task, parentContext string) string {
	if parentContext == "" {
		return task
	}
	return fmt.Sprintf("Task: %s\n\nContext from parent conversation:\n%s", task, parentContext)
}

func buildSystemPrompt(base string, profile Profile) string {
	if base == "" {
		return profile.SystemExtra
	}
	return base + "\n\n" + profile.SystemExtra
}
