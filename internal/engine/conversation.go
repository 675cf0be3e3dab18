package engine

import (
	"time"

	"github.com/haasonsaas/coda/pkg/model"
)

// Conversation is the engine's owned view of a conversation: the
// append-only message transcript plus the three tool-use id sets the
// cancellation and reset semantics are defined over. Exactly one Loop.Run
// drives a Conversation at a time; external inspectors should read a copy
// of Messages rather than hold a reference across a Run call.
type Conversation struct {
	*model.Conversation

	PendingToolUseIDs   map[string]bool
	CompletedToolUseIDs map[string]bool
	ErroredToolUseIDs   map[string]bool

	Usage model.Usage
}

// NewConversation starts an empty Conversation for agentType.
func NewConversation(id, agentType string) *Conversation {
	now := time.Now()
	return &Conversation{
		Conversation: &model.Conversation{
			ID:        id,
			AgentType: agentType,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PendingToolUseIDs:   make(map[string]bool),
		CompletedToolUseIDs: make(map[string]bool),
		ErroredToolUseIDs:   make(map[string]bool),
	}
}

// Clear empties messages and all three tool-use sets, and resets token
// counters; the conversation afterward is indistinguishable from one just
// constructed by NewConversation with the same id/agent type.
func (c *Conversation) Clear() {
	c.Messages = nil
	c.PendingToolUseIDs = make(map[string]bool)
	c.CompletedToolUseIDs = make(map[string]bool)
	c.ErroredToolUseIDs = make(map[string]bool)
	c.Usage = model.Usage{}
	c.UpdatedAt = time.Now()
}

// markPending records tool_use ids awaiting execution.
func (c *Conversation) markPending(ids ...string) {
	for _, id := range ids {
		c.PendingToolUseIDs[id] = true
	}
}

// resolvePending moves a tool_use id out of the pending set and into
// either the completed or errored set.
func (c *Conversation) resolvePending(id string, isError bool) {
	delete(c.PendingToolUseIDs, id)
	if isError {
		c.ErroredToolUseIDs[id] = true
	} else {
		c.CompletedToolUseIDs[id] = true
	}
}

// abandonPending moves every still-pending tool_use id to errored; called
// when a run is cancelled mid-flight so the conversation is left in a
// well-formed state rather than with dangling tool_use blocks.
func (c *Conversation) abandonPending() {
	for id := range c.PendingToolUseIDs {
		c.ErroredToolUseIDs[id] = true
	}
	c.PendingToolUseIDs = make(map[string]bool)
}

// mergeUsage accumulates per-exchange usage into the conversation total.
func (c *Conversation) mergeUsage(u model.Usage) {
	c.Usage.InputTokens += u.InputTokens
	c.Usage.OutputTokens += u.OutputTokens
	c.Usage.CacheCreationInputTokens += u.CacheCreationInputTokens
	c.Usage.CacheReadInputTokens += u.CacheReadInputTokens
}
