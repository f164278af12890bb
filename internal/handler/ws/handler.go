// Package ws serves the persistent websocket surface. One connection is one
// registry session; frames on it drive room membership, typing indicators
// and both chat paths.
package ws

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/fluxchat/backend/internal/auth"
	"github.com/fluxchat/backend/internal/handler/httperr"
	"github.com/fluxchat/backend/internal/model/chat"
	"github.com/fluxchat/backend/internal/service/orchestrator"
	"github.com/fluxchat/backend/internal/service/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades connections and runs the per-session frame loop.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	registry     *registry.Registry
	tokens       *auth.Manager
}

func New(orch *orchestrator.Orchestrator, reg *registry.Registry, tokens *auth.Manager) *Handler {
	return &Handler{orchestrator: orch, registry: reg, tokens: tokens}
}

// RegisterRoutes mounts the websocket endpoint. The token is optional;
// anonymous sessions can join rooms and observe streams but cannot chat.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.tokens.Optional).Get("/ws/{clientID}", h.handleConnect)
}

// inboundFrame is a client request on the socket.
type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	Backend        string `json:"backend"`
}

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	sessionID := chi.URLParam(r, "clientID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for session=%s: %v", sessionID, err)
		return
	}

	// The session context is cancelled the moment the socket drops, which
	// tears down any in-flight stream.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := registry.NewWebSocketTransport(conn)
	h.registry.Register(sessionID, transport, id.UserID)
	defer h.registry.Unregister(sessionID)

	if err := h.registry.SendTo(sessionID, chat.Frame{
		Type:      chat.FrameConnected,
		SessionID: sessionID,
		User:      id.Username,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return
	}
	log.Printf("[ws] session=%s connected user=%s", sessionID, id.UserID)

	// The read pump stays on the socket while frames are handled, so a
	// disconnect is observed even mid-stream and cancels the session context.
	frames := make(chan inboundFrame)
	go func() {
		defer close(frames)
		for {
			var frame inboundFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[ws] session=%s read error: %v", sessionID, err)
				}
				cancel()
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Frames are handled in arrival order; a session's own requests must not
	// race each other.
	for frame := range frames {
		h.dispatch(ctx, sessionID, id, frame)
	}

	log.Printf("[ws] session=%s disconnected", sessionID)
}

func (h *Handler) dispatch(ctx context.Context, sessionID string, id auth.Identity, frame inboundFrame) {
	switch frame.Type {
	case "join":
		if err := h.registry.JoinRoom(sessionID, frame.ConversationID); err != nil {
			h.sendError(sessionID, frame.ConversationID, err)
			return
		}
		h.registry.BroadcastRoom(frame.ConversationID,
			chat.PresenceFrame(frame.ConversationID, id.Username, "joined"), sessionID)

	case "leave":
		h.registry.LeaveRoom(sessionID, frame.ConversationID)
		h.registry.BroadcastRoom(frame.ConversationID,
			chat.PresenceFrame(frame.ConversationID, id.Username, "left"), sessionID)

	case "typing":
		h.registry.BroadcastRoom(frame.ConversationID,
			chat.TypingFrame(frame.ConversationID, id.Username), sessionID)

	case "send":
		exchange, err := h.orchestrator.HandleBuffered(ctx, &orchestrator.Request{
			ConversationID: frame.ConversationID,
			Message:        frame.Message,
			BackendID:      frame.Backend,
			UserID:         id.UserID,
			Tier:           id.Tier,
			SessionID:      sessionID,
		})
		if err != nil {
			h.sendError(sessionID, frame.ConversationID, err)
			return
		}
		// Room broadcast excludes the sender; deliver its copy directly.
		if err := h.registry.SendTo(sessionID, chat.ExchangeFrame(exchange)); err != nil {
			log.Printf("[ws] deliver exchange to session=%s: %v", sessionID, err)
		}

	case "stream":
		// The sender observes its own stream through room membership.
		if err := h.registry.JoinRoom(sessionID, frame.ConversationID); err != nil {
			h.sendError(sessionID, frame.ConversationID, err)
			return
		}
		err := h.orchestrator.HandleStreamed(ctx, &orchestrator.Request{
			ConversationID: frame.ConversationID,
			Message:        frame.Message,
			BackendID:      frame.Backend,
			UserID:         id.UserID,
			Tier:           id.Tier,
			SessionID:      sessionID,
		})
		if err != nil {
			h.sendError(sessionID, frame.ConversationID, err)
		}

	default:
		h.sendError(sessionID, frame.ConversationID, errUnknownFrame(frame.Type))
	}
}

func (h *Handler) sendError(sessionID, conversationID string, err error) {
	payload := httperr.Payload(err)
	reason, _ := payload["error"].(string)
	if sendErr := h.registry.SendTo(sessionID, chat.ErrorFrame(conversationID, reason)); sendErr != nil {
		log.Printf("[ws] deliver error to session=%s: %v", sessionID, sendErr)
	}
}

type errUnknownFrame string

func (e errUnknownFrame) Error() string { return "unknown frame type: " + string(e) }
