package chat

import "time"

// Frame type identifiers shared by the websocket and broadcast surfaces.
const (
	FrameConnected = "connected"
	FrameChunk     = "chunk"
	FrameComplete  = "complete"
	FrameError     = "error"
	FramePresence  = "presence"
	FrameTyping    = "typing"
	FrameExchange  = "exchange"
	FrameInbound   = "inbound"
)

// Frame is one outbound event delivered to live sessions.
type Frame struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	SessionID      string    `json:"sessionId,omitempty"`
	User           string    `json:"user,omitempty"`
	Text           string    `json:"text,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	Exchange       *Exchange `json:"exchange,omitempty"`
	TokensUsed     int       `json:"tokensUsed,omitempty"`
	Cost           float64   `json:"cost,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      int64     `json:"timestamp"`
}

// ChunkFrame wraps one streamed text fragment.
func ChunkFrame(conversationID, text string) Frame {
	return Frame{
		Type:           FrameChunk,
		ConversationID: conversationID,
		Text:           text,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// CompleteFrame closes a streamed exchange with its persisted message and
// metered usage.
func CompleteFrame(conversationID string, msg *Message, tokens int, cost float64) Frame {
	return Frame{
		Type:           FrameComplete,
		ConversationID: conversationID,
		Message:        msg,
		TokensUsed:     tokens,
		Cost:           cost,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// ErrorFrame reports a failed exchange to the room.
func ErrorFrame(conversationID, reason string) Frame {
	return Frame{
		Type:           FrameError,
		ConversationID: conversationID,
		Error:          reason,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// InboundFrame confirms the user's own message back to the room before any
// generated output follows it.
func InboundFrame(conversationID string, msg *Message) Frame {
	return Frame{
		Type:           FrameInbound,
		ConversationID: conversationID,
		Message:        msg,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// ExchangeFrame publishes a completed buffered exchange.
func ExchangeFrame(ex *Exchange) Frame {
	return Frame{
		Type:           FrameExchange,
		ConversationID: ex.ConversationID,
		Exchange:       ex,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// PresenceFrame announces a session joining or leaving a room.
func PresenceFrame(conversationID, user, event string) Frame {
	return Frame{
		Type:           FramePresence,
		ConversationID: conversationID,
		User:           user,
		Text:           event,
		Timestamp:      time.Now().UnixMilli(),
	}
}

// TypingFrame relays a typing indicator to the rest of a room.
func TypingFrame(conversationID, user string) Frame {
	return Frame{
		Type:           FrameTyping,
		ConversationID: conversationID,
		User:           user,
		Timestamp:      time.Now().UnixMilli(),
	}
}
