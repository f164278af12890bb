// Package stream serves the SSE chat surface. Each request opens an
// ephemeral registry session scoped to one streamed exchange, so SSE
// clients receive the same frames a websocket room member would.
package stream

import (
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fluxchat/backend/internal/auth"
	"github.com/fluxchat/backend/internal/handler/httperr"
	"github.com/fluxchat/backend/internal/service/orchestrator"
	"github.com/fluxchat/backend/internal/service/registry"
	"github.com/fluxchat/backend/pkg/utils"
)

// Handler serves one streamed exchange per request over Server-Sent Events.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	registry     *registry.Registry
	tokens       *auth.Manager
}

func New(orch *orchestrator.Orchestrator, reg *registry.Registry, tokens *auth.Manager) *Handler {
	return &Handler{orchestrator: orch, registry: reg, tokens: tokens}
}

// RegisterRoutes mounts the streaming endpoint. The token may arrive as a
// query parameter because EventSource cannot set headers.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.tokens.Middleware).Get("/chat/stream", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	conversationID := r.URL.Query().Get("conversationId")
	message := r.URL.Query().Get("message")
	if conversationID == "" || strings.TrimSpace(message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "conversationId and message are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)
	flusher.Flush()

	sessionID := "sse-" + uuid.NewString()
	transport := &sseTransport{w: w, flusher: flusher}
	h.registry.Register(sessionID, transport, "")
	defer h.registry.Unregister(sessionID)

	if err := h.registry.JoinRoom(sessionID, conversationID); err != nil {
		utils.SendSSEChunk(w, flusher, httperr.Payload(err))
		return
	}

	err := h.orchestrator.HandleStreamed(r.Context(), &orchestrator.Request{
		ConversationID: conversationID,
		Message:        message,
		BackendID:      r.URL.Query().Get("backend"),
		UserID:         id.UserID,
		Tier:           id.Tier,
		SessionID:      sessionID,
	})
	if err != nil {
		// Pre-stream failures never reached the room; report them on this
		// connection directly.
		utils.SendSSEChunk(w, flusher, httperr.Payload(err))
	}
}

// sseTransport adapts one SSE response into a registry transport. Writes are
// serialized because broadcasts arrive from the orchestrator goroutine while
// the handler may still be writing.
type sseTransport struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func (t *sseTransport) Send(payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return http.ErrHandlerTimeout
	}
	utils.SendSSEChunk(t.w, t.flusher, payload)
	return nil
}

// Close marks the transport dead. The underlying connection belongs to the
// HTTP server and closes when the handler returns.
func (t *sseTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
