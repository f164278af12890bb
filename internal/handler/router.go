package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authservice "github.com/fluxchat/backend/internal/auth"
	authHandler "github.com/fluxchat/backend/internal/handler/auth"
	chatHandler "github.com/fluxchat/backend/internal/handler/chat"
	conversationHandler "github.com/fluxchat/backend/internal/handler/conversation"
	healthHandler "github.com/fluxchat/backend/internal/handler/health"
	modelsHandler "github.com/fluxchat/backend/internal/handler/models"
	streamHandler "github.com/fluxchat/backend/internal/handler/stream"
	wsHandler "github.com/fluxchat/backend/internal/handler/ws"
	middlewarePkg "github.com/fluxchat/backend/internal/middleware"
	"github.com/fluxchat/backend/internal/model/catalog"
	"github.com/fluxchat/backend/internal/service/access"
	"github.com/fluxchat/backend/internal/service/orchestrator"
	"github.com/fluxchat/backend/internal/service/registry"
	"github.com/fluxchat/backend/internal/store"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(
	st store.Store,
	reg *registry.Registry,
	cat *catalog.Catalog,
	policy *access.Policy,
	orch *orchestrator.Orchestrator,
	tokens *authservice.Manager,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		authHandler.New(st, tokens).RegisterRoutes(api)
		modelsHandler.New(cat, policy, tokens).RegisterRoutes(api)
		conversationHandler.New(st, cat, tokens).RegisterRoutes(api)
		chatHandler.New(orch, tokens).RegisterRoutes(api)
		streamHandler.New(orch, reg, tokens).RegisterRoutes(api)
	})

	wsHandler.New(orch, reg, tokens).RegisterRoutes(r)
	healthHandler.New(reg).RegisterRoutes(r)

	return r
}
