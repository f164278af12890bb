package auth

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fluxchat/backend/internal/apperrors"
	authservice "github.com/fluxchat/backend/internal/auth"
	"github.com/fluxchat/backend/internal/handler/httperr"
	"github.com/fluxchat/backend/internal/model/catalog"
	"github.com/fluxchat/backend/internal/model/chat"
	"github.com/fluxchat/backend/internal/store"
	"github.com/fluxchat/backend/pkg/utils"
)

// Handler exposes registration, login and identity lookup.
type Handler struct {
	store  store.Store
	tokens *authservice.Manager
}

// New creates the auth handler.
func New(st store.Store, tokens *authservice.Manager) *Handler {
	return &Handler{store: st, tokens: tokens}
}

// RegisterRoutes mounts the auth endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/register", h.handleRegister)
	r.Post("/auth/login", h.handleLogin)
	r.With(h.tokens.Middleware).Get("/auth/me", h.handleMe)
}

type credentialsPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string     `json:"token"`
	User  *chat.User `json:"user"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payload.Username = strings.TrimSpace(payload.Username)
	if payload.Username == "" || len(payload.Password) < 8 {
		utils.RespondError(w, http.StatusBadRequest, "username and a password of at least 8 characters are required")
		return
	}

	hash, err := authservice.HashPassword(payload.Password)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to process credentials")
		return
	}

	user := &chat.User{
		ID:           uuid.NewString(),
		Username:     payload.Username,
		Email:        payload.Email,
		PasswordHash: hash,
		Tier:         catalog.TierFree,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		utils.RespondJSON(w, httperr.StatusFor(err), httperr.Payload(err))
		return
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Username, user.Tier)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), payload.Username)
	if err != nil || !authservice.CheckPassword(user.PasswordHash, payload.Password) {
		utils.RespondJSON(w, http.StatusUnauthorized, httperr.Payload(apperrors.ErrInvalidCredentials))
		return
	}

	if err := h.store.RecordLogin(r.Context(), user.ID); err != nil {
		log.Printf("[auth] record login for user=%s: %v", user.ID, err)
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Username, user.Tier)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	utils.RespondJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := authservice.IdentityFrom(r.Context())

	user, err := h.store.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		utils.RespondJSON(w, httperr.StatusFor(err), httperr.Payload(err))
		return
	}
	utils.RespondJSON(w, http.StatusOK, user)
}
