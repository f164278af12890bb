package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one persisted turn of a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Backend        string    `json:"backend,omitempty"`
	TokensUsed     int       `json:"tokensUsed,omitempty"`
	Cost           float64   `json:"cost,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Exchange is an inbound/outbound message pair committed as one unit.
// Readers never observe half of an exchange.
type Exchange struct {
	ConversationID string  `json:"conversationId"`
	Inbound        Message `json:"inbound"`
	Outbound       Message `json:"outbound"`
	TokensUsed     int     `json:"tokensUsed"`
	Cost           float64 `json:"cost"`
}
