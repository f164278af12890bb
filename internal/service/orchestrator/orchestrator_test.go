package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxchat/backend/internal/apperrors"
	"github.com/fluxchat/backend/internal/model/catalog"
	"github.com/fluxchat/backend/internal/model/chat"
	"github.com/fluxchat/backend/internal/service/access"
	"github.com/fluxchat/backend/internal/service/generate"
	"github.com/fluxchat/backend/internal/service/orchestrator"
	"github.com/fluxchat/backend/internal/service/registry"
	"github.com/fluxchat/backend/internal/store"
)

const (
	ownerID = "alice-id"
	convID  = "conv-1"
)

// scriptedBackend plays back a fixed response or failure.
type scriptedBackend struct {
	id        string
	response  string
	fragments []string
	tokens    int
	cost      float64
	fullErr   error
	openErr   error
	midErr    error
}

func (b *scriptedBackend) ID() string { return b.id }

func (b *scriptedBackend) GenerateFull(ctx context.Context, prompt string, opts generate.Options) (generate.Result, error) {
	if b.fullErr != nil {
		return generate.Result{}, b.fullErr
	}
	return generate.Result{
		Response:   b.response,
		TokensUsed: b.tokens,
		Cost:       b.cost,
		Backend:    b.id,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (b *scriptedBackend) GenerateStream(ctx context.Context, prompt string, opts generate.Options) (*generate.Stream, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	stream, writer, _ := generate.NewStream(ctx)
	go func() {
		for _, fragment := range b.fragments {
			if !writer.Emit(fragment) {
				writer.Close()
				return
			}
		}
		if b.midErr != nil {
			writer.Fail(b.midErr)
			return
		}
		writer.Finish(b.tokens, b.cost)
	}()
	return stream, nil
}

// countingStore wraps a real store and can inject persistence failures.
type countingStore struct {
	store.Store
	mu           sync.Mutex
	exchanges    int
	inbounds     int
	outbounds    int
	failExchange error
	failOutbound error
}

func (s *countingStore) AppendExchange(ctx context.Context, conversationID string, inbound, outbound chat.Message) error {
	s.mu.Lock()
	fail := s.failExchange
	if fail == nil {
		s.exchanges++
	}
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.Store.AppendExchange(ctx, conversationID, inbound, outbound)
}

func (s *countingStore) AppendInboundOnly(ctx context.Context, conversationID string, inbound chat.Message) error {
	s.mu.Lock()
	s.inbounds++
	s.mu.Unlock()
	return s.Store.AppendInboundOnly(ctx, conversationID, inbound)
}

func (s *countingStore) AppendOutbound(ctx context.Context, conversationID string, outbound chat.Message) error {
	s.mu.Lock()
	fail := s.failOutbound
	if fail == nil {
		s.outbounds++
	}
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.Store.AppendOutbound(ctx, conversationID, outbound)
}

// frameTransport records delivered frames.
type frameTransport struct {
	mu     sync.Mutex
	frames []chat.Frame
}

func (t *frameTransport) Send(payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if frame, ok := payload.(chat.Frame); ok {
		t.frames = append(t.frames, frame)
	}
	return nil
}

func (t *frameTransport) Close() error { return nil }

func (t *frameTransport) recorded() []chat.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chat.Frame, len(t.frames))
	copy(out, t.frames)
	return out
}

type fixture struct {
	orch  *orchestrator.Orchestrator
	store *countingStore
	reg   *registry.Registry
}

func newFixture(t *testing.T, backend *scriptedBackend) *fixture {
	t.Helper()

	cat := catalog.New(map[string]catalog.Config{
		"scripted": {Name: "scripted", MaxTokens: 2000, CostPerToken: 0.00001, MinTier: catalog.TierFree},
		"gated":    {Name: "gated", MaxTokens: 2000, CostPerToken: 0.00003, MinTier: catalog.TierPro},
	}, "scripted")

	resolver := generate.NewResolver()
	resolver.Register(backend)
	resolver.Register(&scriptedBackend{id: "gated", response: "gated reply"})

	st := &countingStore{Store: store.NewMemory()}
	require.NoError(t, st.CreateConversation(context.Background(), &chat.Conversation{
		ID: convID, OwnerID: ownerID, Title: "test", Backend: "scripted",
	}))

	reg := registry.New()
	return &fixture{
		orch:  orchestrator.New(st, reg, cat, access.NewPolicy(cat), resolver),
		store: st,
		reg:   reg,
	}
}

func (f *fixture) joinObserver(t *testing.T, sessionID string) *frameTransport {
	t.Helper()
	transport := &frameTransport{}
	f.reg.Register(sessionID, transport, "")
	require.NoError(t, f.reg.JoinRoom(sessionID, convID))
	return transport
}

func request(backendID, sessionID string) *orchestrator.Request {
	return &orchestrator.Request{
		ConversationID: convID,
		Message:        "hello",
		BackendID:      backendID,
		UserID:         ownerID,
		Tier:           catalog.TierFree,
		SessionID:      sessionID,
	}
}

func TestBufferedCommitsExchangeAndBroadcasts(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted", response: "Hello", tokens: 2, cost: 0.00002})
	sender := f.joinObserver(t, "sender")
	peer := f.joinObserver(t, "peer")

	exchange, err := f.orch.HandleBuffered(context.Background(), request("scripted", "sender"))
	require.NoError(t, err)
	require.Equal(t, "hello", exchange.Inbound.Content)
	require.Equal(t, "Hello", exchange.Outbound.Content)
	require.Equal(t, 2, exchange.TokensUsed)
	require.Equal(t, 0.00002, exchange.Cost)
	require.Equal(t, "scripted", exchange.Outbound.Backend)

	messages, err := f.store.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, chat.RoleUser, messages[0].Role)
	require.Equal(t, chat.RoleAssistant, messages[1].Role)

	peerFrames := peer.recorded()
	require.Len(t, peerFrames, 1)
	require.Equal(t, chat.FrameExchange, peerFrames[0].Type)
	require.Empty(t, sender.recorded(), "originating session must not receive the broadcast")
}

func TestBufferedGenerationFailureCommitsNothing(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted", fullErr: errors.New("model offline")})
	observer := f.joinObserver(t, "observer")

	_, err := f.orch.HandleBuffered(context.Background(), request("scripted", ""))

	var generation *apperrors.GenerationFailed
	require.ErrorAs(t, err, &generation)
	require.Equal(t, "scripted", generation.BackendID)

	require.Zero(t, f.store.exchanges)
	messages, listErr := f.store.ListMessages(context.Background(), convID)
	require.NoError(t, listErr)
	require.Empty(t, messages, "a failed exchange must leave no messages behind")
	require.Empty(t, observer.recorded())
}

func TestBufferedPersistenceFailureBroadcastsNothing(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted", response: "Hello", tokens: 2, cost: 0.00002})
	f.store.failExchange = errors.New("disk full")
	observer := f.joinObserver(t, "observer")

	_, err := f.orch.HandleBuffered(context.Background(), request("scripted", ""))

	var persistence *apperrors.PersistenceFailed
	require.ErrorAs(t, err, &persistence)
	require.Empty(t, observer.recorded())
}

func TestAccessDeniedLeavesNoTrace(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted"})

	_, err := f.orch.HandleBuffered(context.Background(), request("gated", ""))

	var denied *apperrors.AccessDenied
	require.ErrorAs(t, err, &denied)
	require.Equal(t, "gated", denied.BackendID)
	require.Equal(t, catalog.TierPro, denied.RequiredTier)

	messages, listErr := f.store.ListMessages(context.Background(), convID)
	require.NoError(t, listErr)
	require.Empty(t, messages)
}

func TestUnknownConversation(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted"})

	req := request("scripted", "")
	req.ConversationID = "missing"
	_, err := f.orch.HandleBuffered(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestConversationOwnershipEnforced(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted"})

	req := request("scripted", "")
	req.UserID = "mallory-id"
	_, err := f.orch.HandleBuffered(context.Background(), req)
	require.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestUnknownBackend(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted"})

	_, err := f.orch.HandleBuffered(context.Background(), request("missing", ""))
	require.ErrorIs(t, err, apperrors.ErrUnknownBackend)
}

func TestDefaultBackendWhenUnspecified(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted", response: "Hello", tokens: 2, cost: 0.00002})

	exchange, err := f.orch.HandleBuffered(context.Background(), request("", ""))
	require.NoError(t, err)
	require.Equal(t, "scripted", exchange.Outbound.Backend)
}

func TestStreamedDeliversFragmentsThenComplete(t *testing.T) {
	f := newFixture(t, &scriptedBackend{
		id:        "scripted",
		fragments: []string{"He", "llo", ""},
		tokens:    2,
		cost:      0.00002,
	})
	observer := f.joinObserver(t, "observer")

	require.NoError(t, f.orch.HandleStreamed(context.Background(), request("scripted", "")))

	frames := observer.recorded()
	require.Len(t, frames, 5)
	require.Equal(t, chat.FrameInbound, frames[0].Type)
	require.Equal(t, "hello", frames[0].Message.Content)
	require.Equal(t, chat.FrameChunk, frames[1].Type)
	require.Equal(t, "He", frames[1].Text)
	require.Equal(t, "llo", frames[2].Text)
	require.Equal(t, "", frames[3].Text)
	require.Equal(t, chat.FrameComplete, frames[4].Type)
	require.Equal(t, 2, frames[4].TokensUsed)
	require.Equal(t, 0.00002, frames[4].Cost)
	require.Equal(t, "Hello", frames[4].Message.Content)

	messages, err := f.store.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "hello", messages[0].Content)
	require.Equal(t, "Hello", messages[1].Content)
	require.Equal(t, 2, messages[1].TokensUsed)
	require.Equal(t, 0.00002, messages[1].Cost)
}

func TestStreamedErrorMidStream(t *testing.T) {
	f := newFixture(t, &scriptedBackend{
		id:        "scripted",
		fragments: []string{"par", "tial"},
		midErr:    errors.New("upstream reset"),
	})
	observer := f.joinObserver(t, "observer")

	require.NoError(t, f.orch.HandleStreamed(context.Background(), request("scripted", "")))

	frames := observer.recorded()
	require.Equal(t, chat.FrameError, frames[len(frames)-1].Type)

	// The inbound message stays; the partial response is never committed.
	messages, err := f.store.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, chat.RoleUser, messages[0].Role)
}

func TestStreamedOutboundPersistFailure(t *testing.T) {
	f := newFixture(t, &scriptedBackend{
		id:        "scripted",
		fragments: []string{"Hello"},
		tokens:    2,
		cost:      0.00002,
	})
	f.store.failOutbound = errors.New("disk full")
	observer := f.joinObserver(t, "observer")

	require.NoError(t, f.orch.HandleStreamed(context.Background(), request("scripted", "")))

	frames := observer.recorded()
	require.Equal(t, chat.FrameError, frames[len(frames)-1].Type)
}

func TestStreamedOpenFailureReturnsError(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted", openErr: errors.New("dial failed")})
	observer := f.joinObserver(t, "observer")

	err := f.orch.HandleStreamed(context.Background(), request("scripted", ""))

	var generation *apperrors.GenerationFailed
	require.ErrorAs(t, err, &generation)

	// The inbound message was persisted and confirmed before the open failed.
	require.Equal(t, 1, f.store.inbounds)
	frames := observer.recorded()
	require.Len(t, frames, 1)
	require.Equal(t, chat.FrameInbound, frames[0].Type)
}

func TestStreamedAccessDeniedPersistsNothing(t *testing.T) {
	f := newFixture(t, &scriptedBackend{id: "scripted"})

	err := f.orch.HandleStreamed(context.Background(), request("gated", ""))

	var denied *apperrors.AccessDenied
	require.ErrorAs(t, err, &denied)
	require.Zero(t, f.store.inbounds)
}
