// Package session persists conversations and their message history
// outside of one engine run's lifetime: a process restart, a CLI
// re-attaching to a prior conversation id, or an orchestrator listing
// what agent runs exist. Store has two implementations, an in-memory one
// for tests and single-shot CLI runs and a sqlite-backed one for
// anything that needs to survive a restart.
package session

import (
	"context"
	"errors"

	"github.com/haasonsaas/coda/pkg/model"
)

// ErrNotFound is returned by Get/GetHistory when the conversation id is
// unknown to the store.
var ErrNotFound = errors.New("session: conversation not found")

// ListOptions narrows ListConversations.
type ListOptions struct {
	AgentType string
	Limit     int
	Offset    int
}

// Store is conversation persistence: the engine's Conversation owns the
// live, in-memory transcript for one run; Store is where that transcript
// lands between runs.
type Store interface {
	// CreateConversation persists a new, usually empty, conversation
	// record. conv.ID must already be set.
	CreateConversation(ctx context.Context, conv *model.Conversation) error

	// GetConversation loads a conversation and its full message history.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)

	// TouchConversation refreshes a conversation's UpdatedAt without
	// rewriting its messages, used after a run that appended messages
	// incrementally via AppendMessage.
	TouchConversation(ctx context.Context, id string) error

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// ListConversations lists conversations, most recently updated first.
	ListConversations(ctx context.Context, opts ListOptions) ([]*model.Conversation, error)

	// AppendMessage appends one message to conversationID's history.
	AppendMessage(ctx context.Context, conversationID string, msg *model.Message) error

	// GetHistory returns up to limit most recent messages for
	// conversationID, oldest first. limit <= 0 means no limit.
	GetHistory(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)
}
