package chat

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fluxchat/backend/internal/auth"
	"github.com/fluxchat/backend/internal/handler/httperr"
	"github.com/fluxchat/backend/internal/service/orchestrator"
	"github.com/fluxchat/backend/pkg/utils"
)

// Handler serves the buffered chat path: one request, one full response.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	tokens       *auth.Manager
}

func New(orch *orchestrator.Orchestrator, tokens *auth.Manager) *Handler {
	return &Handler{orchestrator: orch, tokens: tokens}
}

// RegisterRoutes mounts the chat endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.tokens.Middleware).Post("/chat", h.handleChat)
}

type chatPayload struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
	Backend        string `json:"backend"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ConversationID == "" || strings.TrimSpace(payload.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "conversationId and message are required")
		return
	}

	exchange, err := h.orchestrator.HandleBuffered(r.Context(), &orchestrator.Request{
		ConversationID: payload.ConversationID,
		Message:        payload.Message,
		BackendID:      payload.Backend,
		UserID:         id.UserID,
		Tier:           id.Tier,
	})
	if err != nil {
		utils.RespondJSON(w, httperr.StatusFor(err), httperr.Payload(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, exchange)
}
