package generate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/fluxchat/backend/internal/apperrors"
	"github.com/fluxchat/backend/internal/config"
	"github.com/fluxchat/backend/internal/model/catalog"
)

// Resolver maps backend identifiers to their constructed strategy.
type Resolver struct {
	backends map[string]Backend
}

// NewResolver builds an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{backends: make(map[string]Backend)}
}

// Register installs a backend under its own id.
func (r *Resolver) Register(b Backend) {
	r.backends[b.ID()] = b
}

// Resolve returns the backend for id or ErrUnknownBackend.
func (r *Resolver) Resolve(id string) (Backend, error) {
	b, ok := r.backends[id]
	if !ok {
		return nil, apperrors.ErrUnknownBackend
	}
	return b, nil
}

// Len reports how many backends are registered.
func (r *Resolver) Len() int {
	return len(r.backends)
}

// streamDelay paces canned word fragments so streamed output is visibly
// incremental in development.
const streamDelay = 30 * time.Millisecond

// Build constructs one backend per catalog entry. Remote providers without
// credentials degrade to the canned strategy, so the service always starts.
func Build(ctx context.Context, cat *catalog.Catalog, ai config.AIConfig, meter *Meter) (*Resolver, error) {
	resolver := NewResolver()

	for _, id := range cat.IDs() {
		cfg, _ := cat.Resolve(id)

		backend, err := buildOne(ctx, cfg, ai, meter)
		if err != nil {
			log.Printf("[generate] %s: %v, falling back to canned responses", id, err)
			backend = NewCanned(cfg, meter, streamDelay)
		}
		resolver.Register(backend)
		log.Printf("[generate] loaded backend %s (provider=%s)", id, cfg.Provider)
	}

	return resolver, nil
}

func buildOne(ctx context.Context, cfg catalog.Config, ai config.AIConfig, meter *Meter) (Backend, error) {
	switch cfg.Provider {
	case catalog.ProviderCanned:
		return NewCanned(cfg, meter, streamDelay), nil
	case catalog.ProviderArk:
		if !ai.ArkEnabled() {
			return nil, fmt.Errorf("ark credentials not configured")
		}
		chatModel, err := newArkModel(ctx, cfg, ai)
		if err != nil {
			return nil, err
		}
		return NewEino(cfg, chatModel, meter), nil
	case catalog.ProviderOpenAI:
		if !ai.OpenAIEnabled() {
			return nil, fmt.Errorf("openai credentials not configured")
		}
		chatModel, err := newOpenAIModel(ctx, cfg, ai)
		if err != nil {
			return nil, err
		}
		return NewEino(cfg, chatModel, meter), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func newArkModel(ctx context.Context, cfg catalog.Config, ai config.AIConfig) (einomodel.ChatModel, error) {
	temperature := float32(cfg.Temperature)
	topP := float32(cfg.TopP)
	maxTokens := cfg.MaxTokens

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     ai.ArkBaseURL,
		Region:      ai.ArkRegion,
		APIKey:      ai.ArkAPIKey,
		Model:       cfg.BaseModel,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        &topP,
	})
}

func newOpenAIModel(ctx context.Context, cfg catalog.Config, ai config.AIConfig) (einomodel.ChatModel, error) {
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  ai.OpenAIAPIKey,
		BaseURL: ai.OpenAIBase,
		Model:   cfg.BaseModel,
	})
}
