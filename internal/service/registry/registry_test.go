package registry_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxchat/backend/internal/apperrors"
	"github.com/fluxchat/backend/internal/service/registry"
)

// fakeTransport records deliveries and can be told to fail.
type fakeTransport struct {
	mu       sync.Mutex
	payloads []any
	fail     bool
	closed   bool
}

func (t *fakeTransport) Send(payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return errors.New("transport failure")
	}
	t.payloads = append(t.payloads, payload)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.payloads)
}

func (t *fakeTransport) wasClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func TestRegisterAndSendTo(t *testing.T) {
	reg := registry.New()
	transport := &fakeTransport{}
	reg.Register("s1", transport, "alice")

	require.NoError(t, reg.SendTo("s1", "hello"))
	require.Equal(t, 1, transport.count())
	require.Equal(t, 1, reg.Count())
}

func TestSendToUnknownSession(t *testing.T) {
	reg := registry.New()

	err := reg.SendTo("ghost", "hello")
	var delivery *apperrors.DeliveryError
	require.ErrorAs(t, err, &delivery)
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	reg := registry.New()
	transport := &fakeTransport{}
	reg.Register("s1", transport, "alice")
	require.NoError(t, reg.JoinRoom("s1", "conv-1"))

	reg.Unregister("s1")
	reg.Unregister("s1")
	reg.Unregister("never-existed")

	require.Zero(t, reg.Count())
	require.True(t, transport.wasClosed())
	require.Empty(t, reg.RoomMembers("conv-1"))
	_, ok := reg.UserSession("alice")
	require.False(t, ok)
}

func TestUserIndexLastWriterWins(t *testing.T) {
	reg := registry.New()
	first := &fakeTransport{}
	second := &fakeTransport{}
	reg.Register("s1", first, "alice")
	reg.Register("s2", second, "alice")

	sessionID, ok := reg.UserSession("alice")
	require.True(t, ok)
	require.Equal(t, "s2", sessionID)

	// The first session keeps running; it only lost the binding.
	require.NoError(t, reg.SendTo("s1", "still alive"))

	// Unregistering the stale session must not evict the new binding.
	reg.Unregister("s1")
	sessionID, ok = reg.UserSession("alice")
	require.True(t, ok)
	require.Equal(t, "s2", sessionID)
}

func TestSendToUserWithoutSessionIsNoop(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.SendToUser("nobody", "hello"))
}

func TestBroadcastRoomExcludesSender(t *testing.T) {
	reg := registry.New()
	sender := &fakeTransport{}
	peer := &fakeTransport{}
	outsider := &fakeTransport{}
	reg.Register("sender", sender, "")
	reg.Register("peer", peer, "")
	reg.Register("outsider", outsider, "")
	require.NoError(t, reg.JoinRoom("sender", "conv-1"))
	require.NoError(t, reg.JoinRoom("peer", "conv-1"))

	delivered := reg.BroadcastRoom("conv-1", "payload", "sender")

	require.Equal(t, 1, delivered)
	require.Zero(t, sender.count())
	require.Equal(t, 1, peer.count())
	require.Zero(t, outsider.count())
}

func TestBroadcastReapsFailedSessions(t *testing.T) {
	reg := registry.New()
	healthy := &fakeTransport{}
	broken := &fakeTransport{fail: true}
	reg.Register("healthy", healthy, "")
	reg.Register("broken", broken, "")
	require.NoError(t, reg.JoinRoom("healthy", "conv-1"))
	require.NoError(t, reg.JoinRoom("broken", "conv-1"))

	delivered := reg.BroadcastRoom("conv-1", "payload", "")

	require.Equal(t, 1, delivered)
	require.Equal(t, 1, reg.Count(), "failed session must be reaped")
	require.True(t, broken.wasClosed())
	require.Equal(t, []string{"healthy"}, reg.RoomMembers("conv-1"))
}

func TestBroadcastAllReachesEverySession(t *testing.T) {
	reg := registry.New()
	a := &fakeTransport{}
	b := &fakeTransport{}
	c := &fakeTransport{}
	reg.Register("a", a, "")
	reg.Register("b", b, "")
	reg.Register("c", c, "")

	delivered := reg.BroadcastAll("payload", "b")

	require.Equal(t, 2, delivered)
	require.Equal(t, 1, a.count())
	require.Zero(t, b.count())
	require.Equal(t, 1, c.count())
}

func TestJoinRoomUnknownSession(t *testing.T) {
	reg := registry.New()
	require.ErrorIs(t, reg.JoinRoom("ghost", "conv-1"), apperrors.ErrSessionNotFound)
}

func TestLeaveRoomNeverJoinedIsNoop(t *testing.T) {
	reg := registry.New()
	reg.Register("s1", &fakeTransport{}, "")

	reg.LeaveRoom("s1", "conv-1")
	reg.LeaveRoom("ghost", "conv-1")
	require.Empty(t, reg.RoomMembers("conv-1"))
}

func TestEmptyRoomsAreCollected(t *testing.T) {
	reg := registry.New()
	reg.Register("s1", &fakeTransport{}, "")
	require.NoError(t, reg.JoinRoom("s1", "conv-1"))
	reg.LeaveRoom("s1", "conv-1")

	require.Zero(t, reg.BroadcastRoom("conv-1", "payload", ""))
	require.Empty(t, reg.RoomMembers("conv-1"))
}

func TestShutdownClosesEverything(t *testing.T) {
	reg := registry.New()
	transports := make([]*fakeTransport, 4)
	for i := range transports {
		transports[i] = &fakeTransport{}
		reg.Register(fmt.Sprintf("s%d", i), transports[i], "")
	}

	reg.Shutdown()

	require.Zero(t, reg.Count())
	for _, transport := range transports {
		require.True(t, transport.wasClosed())
	}
}

func TestConcurrentRegistryAccess(t *testing.T) {
	reg := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("s%d", n)
			reg.Register(sessionID, &fakeTransport{}, fmt.Sprintf("u%d", n%8))
			_ = reg.JoinRoom(sessionID, "conv-shared")
			reg.BroadcastRoom("conv-shared", n, "")
			reg.LeaveRoom(sessionID, "conv-shared")
			reg.Unregister(sessionID)
		}(i)
	}
	wg.Wait()

	require.Zero(t, reg.Count())
	require.Empty(t, reg.RoomMembers("conv-shared"))
}
