package models

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fluxchat/backend/internal/auth"
	"github.com/fluxchat/backend/internal/model/catalog"
	"github.com/fluxchat/backend/internal/service/access"
	"github.com/fluxchat/backend/pkg/utils"
)

// Handler lists the generation backend catalog.
type Handler struct {
	catalog *catalog.Catalog
	policy  *access.Policy
	tokens  *auth.Manager
}

func New(cat *catalog.Catalog, policy *access.Policy, tokens *auth.Manager) *Handler {
	return &Handler{catalog: cat, policy: policy, tokens: tokens}
}

// RegisterRoutes mounts the catalog endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(h.tokens.Optional).Get("/models", h.handleList)
}

type entry struct {
	ID string `json:"id"`
	catalog.Config
	// Accessible reflects the caller's tier; anonymous callers see the
	// free-tier view.
	Accessible bool `json:"accessible"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tier := catalog.TierFree
	if id, ok := auth.IdentityFrom(r.Context()); ok {
		tier = id.Tier
	}

	entries := make([]entry, 0, h.catalog.Len())
	for _, id := range h.catalog.IDs() {
		cfg, _ := h.catalog.Resolve(id)
		entries = append(entries, entry{
			ID:         id,
			Config:     cfg,
			Accessible: h.policy.Allows(tier, id),
		})
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"models":  entries,
		"default": h.catalog.DefaultID(),
	})
}
