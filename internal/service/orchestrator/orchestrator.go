// Package orchestrator sequences persistence, generation and fan-out for
// chat exchanges so that every room participant observes the same order and
// no exchange is half-committed.
package orchestrator

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fluxchat/backend/internal/apperrors"
	"github.com/fluxchat/backend/internal/model/catalog"
	"github.com/fluxchat/backend/internal/model/chat"
	"github.com/fluxchat/backend/internal/service/access"
	"github.com/fluxchat/backend/internal/service/generate"
	"github.com/fluxchat/backend/internal/service/registry"
	"github.com/fluxchat/backend/internal/store"
)

// Request is one inbound chat message. Immutable once constructed.
type Request struct {
	ConversationID string
	Message        string
	BackendID      string
	UserID         string
	Tier           catalog.Tier
	// SessionID is the originating live session, if the request arrived
	// over one. Buffered responses are not echoed back to it.
	SessionID string
}

// Orchestrator coordinates the store, the access policy, the generation
// backends and the connection registry. All collaborators are injected at
// construction; there are no package-level singletons.
type Orchestrator struct {
	store    store.Store
	registry *registry.Registry
	catalog  *catalog.Catalog
	policy   *access.Policy
	backends *generate.Resolver
}

// New wires an orchestrator from its collaborators.
func New(st store.Store, reg *registry.Registry, cat *catalog.Catalog, policy *access.Policy, backends *generate.Resolver) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: reg,
		catalog:  cat,
		policy:   policy,
		backends: backends,
	}
}

// authorize validates conversation ownership and tier access, returning the
// resolved backend and its catalog entry.
func (o *Orchestrator) authorize(ctx context.Context, req *Request) (generate.Backend, catalog.Config, error) {
	if _, err := o.store.GetConversation(ctx, req.ConversationID, req.UserID); err != nil {
		return nil, catalog.Config{}, apperrors.ErrConversationNotFound
	}

	backendID := req.BackendID
	if backendID == "" {
		backendID = o.catalog.DefaultID()
	}

	cfg, ok := o.catalog.Resolve(backendID)
	if !ok {
		return nil, catalog.Config{}, apperrors.ErrUnknownBackend
	}

	if !o.policy.Allows(req.Tier, backendID) {
		return nil, catalog.Config{}, &apperrors.AccessDenied{
			BackendID:    backendID,
			RequiredTier: cfg.MinTier,
		}
	}

	backend, err := o.backends.Resolve(backendID)
	if err != nil {
		return nil, catalog.Config{}, err
	}
	return backend, cfg, nil
}

// HandleBuffered runs the synchronous path: authorize, generate the whole
// response, commit both messages atomically, then publish the exchange to
// the conversation room. If generation or persistence fails, nothing is
// committed; the inbound message is never persisted without its response.
func (o *Orchestrator) HandleBuffered(ctx context.Context, req *Request) (*chat.Exchange, error) {
	backend, cfg, err := o.authorize(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := backend.GenerateFull(ctx, req.Message, optionsFor(cfg))
	if err != nil {
		return nil, &apperrors.GenerationFailed{BackendID: backend.ID(), Reason: err}
	}

	inbound := newMessage(req.ConversationID, chat.RoleUser, req.Message, "", 0, 0)
	outbound := newMessage(req.ConversationID, chat.RoleAssistant, result.Response, backend.ID(), result.TokensUsed, result.Cost)

	if err := o.store.AppendExchange(ctx, req.ConversationID, inbound, outbound); err != nil {
		return nil, &apperrors.PersistenceFailed{Reason: err}
	}

	exchange := &chat.Exchange{
		ConversationID: req.ConversationID,
		Inbound:        inbound,
		Outbound:       outbound,
		TokensUsed:     result.TokensUsed,
		Cost:           result.Cost,
	}

	o.registry.BroadcastRoom(req.ConversationID, chat.ExchangeFrame(exchange), req.SessionID)
	return exchange, nil
}

// HandleStreamed runs the incremental path. The inbound message is persisted
// before generation starts, so a crash mid-stream still shows the user's own
// message. Failures before the stream opens are returned to the caller;
// once streaming has begun, terminal failures are forwarded to the room as
// an error frame and HandleStreamed returns nil.
func (o *Orchestrator) HandleStreamed(ctx context.Context, req *Request) error {
	backend, cfg, err := o.authorize(ctx, req)
	if err != nil {
		return err
	}

	inbound := newMessage(req.ConversationID, chat.RoleUser, req.Message, "", 0, 0)
	if err := o.store.AppendInboundOnly(ctx, req.ConversationID, inbound); err != nil {
		return &apperrors.PersistenceFailed{Reason: err}
	}

	// Confirm the inbound message before any generated output so the room
	// never sees a fragment ahead of the message it answers.
	o.registry.BroadcastRoom(req.ConversationID, chat.InboundFrame(req.ConversationID, &inbound), "")

	stream, err := backend.GenerateStream(ctx, req.Message, optionsFor(cfg))
	if err != nil {
		return &apperrors.GenerationFailed{BackendID: backend.ID(), Reason: err}
	}
	defer stream.Cancel()

	var assembled strings.Builder
	for chunk := range stream.Chunks() {
		switch chunk.Kind {
		case generate.ChunkFragment:
			assembled.WriteString(chunk.Text)
			o.registry.BroadcastRoom(req.ConversationID, chat.ChunkFrame(req.ConversationID, chunk.Text), "")

		case generate.ChunkError:
			log.Printf("[orchestrator] stream failed for conversation=%s backend=%s: %v",
				req.ConversationID, backend.ID(), chunk.Err)
			o.registry.BroadcastRoom(req.ConversationID,
				chat.ErrorFrame(req.ConversationID, (&apperrors.GenerationFailed{BackendID: backend.ID(), Reason: chunk.Err}).Error()), "")
			return nil

		case generate.ChunkDone:
			outbound := newMessage(req.ConversationID, chat.RoleAssistant, assembled.String(), backend.ID(), chunk.Tokens, chunk.Cost)
			if err := o.store.AppendOutbound(ctx, req.ConversationID, outbound); err != nil {
				// The room already saw the fragments; the failure to commit
				// the assembled message is reported, not swallowed.
				log.Printf("[orchestrator] persist streamed response for conversation=%s: %v", req.ConversationID, err)
				o.registry.BroadcastRoom(req.ConversationID,
					chat.ErrorFrame(req.ConversationID, (&apperrors.PersistenceFailed{Reason: err}).Error()), "")
				return nil
			}
			o.registry.BroadcastRoom(req.ConversationID,
				chat.CompleteFrame(req.ConversationID, &outbound, chunk.Tokens, chunk.Cost), "")
			return nil
		}
	}

	// The channel closed without a terminal chunk: the consumer side was
	// cancelled (session disconnect). Registry cleanup happens in the
	// session handler; nothing more to do here.
	if ctx.Err() != nil {
		log.Printf("[orchestrator] stream cancelled for conversation=%s", req.ConversationID)
	}
	return nil
}

func optionsFor(cfg catalog.Config) generate.Options {
	return generate.Options{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}
}

func newMessage(conversationID string, role chat.Role, content, backend string, tokens int, cost float64) chat.Message {
	return chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Backend:        backend,
		TokensUsed:     tokens,
		Cost:           cost,
		CreatedAt:      time.Now().UTC(),
	}
}
