package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fluxchat/backend/internal/auth"
	"github.com/fluxchat/backend/internal/config"
	"github.com/fluxchat/backend/internal/handler"
	"github.com/fluxchat/backend/internal/model/catalog"
	"github.com/fluxchat/backend/internal/service/access"
	"github.com/fluxchat/backend/internal/service/generate"
	"github.com/fluxchat/backend/internal/service/orchestrator"
	"github.com/fluxchat/backend/internal/service/registry"
	"github.com/fluxchat/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("warning: closing store: %v", err)
		}
	}()

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)

	cat := catalog.New(catalog.Seed(), catalog.DefaultBackendID)
	policy := access.NewPolicy(cat)
	meter := generate.NewMeter(cat)

	backends, err := generate.Build(ctx, cat, cfg.AI, meter)
	if err != nil {
		log.Fatalf("failed to build generation backends: %v", err)
	}
	log.Printf("loaded %d generation backends", backends.Len())

	reg := registry.New()
	defer reg.Shutdown()

	orch := orchestrator.New(st, reg, cat, policy, backends)

	router := handler.NewRouter(st, reg, cat, policy, orch, tokens)

	startServer(ctx, cfg.Server, router)
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "badger":
		log.Printf("opening badger store at %s", cfg.Path)
		return store.OpenBadger(cfg.Path)
	default:
		log.Println("using in-memory store; data will not survive a restart")
		return store.NewMemory(), nil
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("FluxChat backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
