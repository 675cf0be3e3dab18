package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/coda/pkg/model"
)

// maxMessagesPerConversation bounds in-memory growth for a long-lived
// process; oldest messages are trimmed once a conversation exceeds it.
const maxMessagesPerConversation = 1000

// MemoryStore is an in-memory Store, used for tests and single-shot CLI
// runs where nothing needs to survive process exit.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.Message),
	}
}

func (m *MemoryStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return errNilOrEmptyID("conversation")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *conv
	now := time.Now()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = clone.CreatedAt
	clone.Messages = nil
	m.conversations[clone.ID] = &clone
	if len(conv.Messages) > 0 {
		m.messages[clone.ID] = append([]*model.Message(nil), conv.Messages...)
	}
	return nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *conv
	clone.Messages = append([]*model.Message(nil), m.messages[id]...)
	return &clone, nil
}

func (m *MemoryStore) TouchConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	conv.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) ListConversations(ctx context.Context, opts ListOptions) ([]*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.Conversation
	for _, conv := range m.conversations {
		if opts.AgentType != "" && conv.AgentType != opts.AgentType {
			continue
		}
		clone := *conv
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID string, msg *model.Message) error {
	if msg == nil {
		return errNilOrEmptyID("message")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}

	clone := *msg
	m.messages[conversationID] = append(m.messages[conversationID], &clone)
	if over := len(m.messages[conversationID]) - maxMessagesPerConversation; over > 0 {
		m.messages[conversationID] = m.messages[conversationID][over:]
	}

	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	conv.UpdatedAt = clone.CreatedAt
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	all := m.messages[conversationID]
	if limit <= 0 || limit >= len(all) {
		return append([]*model.Message(nil), all...), nil
	}
	return append([]*model.Message(nil), all[len(all)-limit:]...), nil
}

func errNilOrEmptyID(what string) error {
	return &validationError{what: what}
}

type validationError struct{ what string }

func (e *validationError) Error() string { return e.what + " is required" }
