package store

import (
	"context"
	"sync"
	"time"

	"github.com/fluxchat/backend/internal/apperrors"
	"github.com/fluxchat/backend/internal/model/chat"
)

// Memory keeps everything in process-local maps. Suitable for tests and
// single-node development runs.
type Memory struct {
	mu            sync.RWMutex
	users         map[string]chat.User
	usersByName   map[string]string
	conversations map[string]chat.Conversation
	messages      map[string][]chat.Message
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]chat.User),
		usersByName:   make(map[string]string),
		conversations: make(map[string]chat.Conversation),
		messages:      make(map[string][]chat.Message),
	}
}

func (m *Memory) CreateUser(_ context.Context, user *chat.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.usersByName[user.Username]; ok {
		return apperrors.ErrUserExists
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	m.users[user.ID] = *user
	m.usersByName[user.Username] = user.ID
	return nil
}

func (m *Memory) GetUserByID(_ context.Context, id string) (*chat.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return &user, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*chat.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usersByName[username]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	user := m.users[id]
	return &user, nil
}

func (m *Memory) RecordLogin(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	user.LastLogin = time.Now().UTC()
	m.users[userID] = user
	return nil
}

func (m *Memory) CreateConversation(_ context.Context, conv *chat.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	m.conversations[conv.ID] = *conv
	m.messages[conv.ID] = make([]chat.Message, 0, 16)
	return nil
}

func (m *Memory) GetConversation(_ context.Context, id, ownerID string) (*chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok || conv.OwnerID != ownerID {
		return nil, apperrors.ErrConversationNotFound
	}
	return &conv, nil
}

func (m *Memory) ListConversations(_ context.Context, ownerID string) ([]*chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*chat.Conversation, 0, 8)
	for _, conv := range m.conversations {
		if conv.OwnerID != ownerID {
			continue
		}
		c := conv
		out = append(out, &c)
	}
	return out, nil
}

func (m *Memory) DeleteConversation(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok || conv.OwnerID != ownerID {
		return apperrors.ErrConversationNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *Memory) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages, ok := m.messages[conversationID]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (m *Memory) AppendExchange(_ context.Context, conversationID string, inbound, outbound chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return apperrors.ErrConversationNotFound
	}

	m.messages[conversationID] = append(m.messages[conversationID], inbound, outbound)
	conv.UpdatedAt = time.Now().UTC()
	m.conversations[conversationID] = conv
	return nil
}

func (m *Memory) AppendInboundOnly(_ context.Context, conversationID string, inbound chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return apperrors.ErrConversationNotFound
	}

	m.messages[conversationID] = append(m.messages[conversationID], inbound)
	conv.UpdatedAt = time.Now().UTC()
	m.conversations[conversationID] = conv
	return nil
}

func (m *Memory) AppendOutbound(_ context.Context, conversationID string, outbound chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return apperrors.ErrConversationNotFound
	}

	m.messages[conversationID] = append(m.messages[conversationID], outbound)
	conv.UpdatedAt = time.Now().UTC()
	m.conversations[conversationID] = conv
	return nil
}

func (m *Memory) Close() error { return nil }
