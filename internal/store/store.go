// Package store is the persistence collaborator consumed by the chat
// orchestrator and the HTTP surface. Implementations must commit
// AppendExchange atomically: both halves of an exchange or neither.
package store

import (
	"context"

	"github.com/fluxchat/backend/internal/model/chat"
)

// Store provides durable users, conversations and messages.
type Store interface {
	CreateUser(ctx context.Context, user *chat.User) error
	GetUserByID(ctx context.Context, id string) (*chat.User, error)
	GetUserByUsername(ctx context.Context, username string) (*chat.User, error)
	RecordLogin(ctx context.Context, userID string) error

	CreateConversation(ctx context.Context, conv *chat.Conversation) error
	// GetConversation resolves a conversation only when ownerID matches.
	GetConversation(ctx context.Context, id, ownerID string) (*chat.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*chat.Conversation, error)
	DeleteConversation(ctx context.Context, id, ownerID string) error

	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	// AppendExchange commits the inbound/outbound pair and bumps the
	// conversation's activity timestamp as one unit.
	AppendExchange(ctx context.Context, conversationID string, inbound, outbound chat.Message) error
	// AppendInboundOnly persists the user's message ahead of generation on
	// the streamed path.
	AppendInboundOnly(ctx context.Context, conversationID string, inbound chat.Message) error
	// AppendOutbound completes a streamed exchange with the assembled
	// response.
	AppendOutbound(ctx context.Context, conversationID string, outbound chat.Message) error

	Close() error
}
