package conversation

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fluxchat/backend/internal/auth"
	"github.com/fluxchat/backend/internal/handler/httperr"
	"github.com/fluxchat/backend/internal/model/catalog"
	"github.com/fluxchat/backend/internal/model/chat"
	"github.com/fluxchat/backend/internal/store"
	"github.com/fluxchat/backend/pkg/utils"
)

// Handler manages conversation lifecycle and history for the owning user.
type Handler struct {
	store   store.Store
	catalog *catalog.Catalog
	tokens  *auth.Manager
}

func New(st store.Store, cat *catalog.Catalog, tokens *auth.Manager) *Handler {
	return &Handler{store: st, catalog: cat, tokens: tokens}
}

// RegisterRoutes mounts the conversation endpoints. All of them require an
// authenticated caller.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Use(h.tokens.Middleware)
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{conversationID}", h.handleGet)
		r.Delete("/{conversationID}", h.handleDelete)
		r.Get("/{conversationID}/messages", h.handleMessages)
	})
}

type createPayload struct {
	Title   string `json:"title"`
	Backend string `json:"backend"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	backend := payload.Backend
	if backend == "" {
		backend = h.catalog.DefaultID()
	}
	if _, ok := h.catalog.Resolve(backend); !ok {
		utils.RespondError(w, http.StatusBadRequest, "unknown backend: "+backend)
		return
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = "New conversation"
	}

	now := time.Now().UTC()
	conv := &chat.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   id.UserID,
		Title:     title,
		Backend:   backend,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateConversation(r.Context(), conv); err != nil {
		utils.RespondJSON(w, httperr.StatusFor(err), httperr.Payload(err))
		return
	}
	utils.RespondJSON(w, http.StatusCreated, conv)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	convs, err := h.store.ListConversations(r.Context(), id.UserID)
	if err != nil {
		utils.RespondJSON(w, httperr.StatusFor(err), httperr.Payload(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	conv, err := h.store.GetConversation(r.Context(), chi.URLParam(r, "conversationID"), id.UserID)
	if err != nil {
		utils.RespondJSON(w, httperr.StatusFor(err), httperr.Payload(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	if err := h.store.DeleteConversation(r.Context(), chi.URLParam(r, "conversationID"), id.UserID); err != nil {
		utils.RespondJSON(w, httperr.StatusFor(err), httperr.Payload(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	conversationID := chi.URLParam(r, "conversationID")

	// Ownership check first so history is never readable across users.
	if _, err := h.store.GetConversation(r.Context(), conversationID, id.UserID); err != nil {
		utils.RespondJSON(w, httperr.StatusFor(err), httperr.Payload(err))
		return
	}

	messages, err := h.store.ListMessages(r.Context(), conversationID)
	if err != nil {
		utils.RespondJSON(w, httperr.StatusFor(err), httperr.Payload(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
