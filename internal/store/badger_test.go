package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxchat/backend/internal/apperrors"
	"github.com/fluxchat/backend/internal/model/chat"
	"github.com/fluxchat/backend/internal/store"
)

func openBadger(t *testing.T) *store.Badger {
	t.Helper()
	st, err := store.OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })
	return st
}

func TestBadgerUserRoundTrip(t *testing.T) {
	st := openBadger(t)
	ctx := context.Background()

	user := &chat.User{ID: "u1", Username: "alice", PasswordHash: "hash", Tier: "pro"}
	require.NoError(t, st.CreateUser(ctx, user))
	require.ErrorIs(t, st.CreateUser(ctx, &chat.User{ID: "u2", Username: "alice"}), apperrors.ErrUserExists)

	got, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "u1", got.ID)
	// The hash survives persistence despite being hidden from JSON responses.
	require.Equal(t, "hash", got.PasswordHash)
}

func TestBadgerMessagesKeepInsertionOrder(t *testing.T) {
	st := openBadger(t)
	ctx := context.Background()

	require.NoError(t, st.CreateConversation(ctx, &chat.Conversation{ID: "conv-1", OwnerID: "alice"}))

	base := time.Now().UTC()
	for i, content := range []string{"one", "two", "three"} {
		msg := chat.Message{
			ID:             content,
			ConversationID: "conv-1",
			Role:           chat.RoleUser,
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Millisecond),
		}
		require.NoError(t, st.AppendInboundOnly(ctx, "conv-1", msg))
	}

	messages, err := st.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	require.Equal(t, "one", messages[0].Content)
	require.Equal(t, "two", messages[1].Content)
	require.Equal(t, "three", messages[2].Content)
}

func TestBadgerAppendExchangeMissingConversation(t *testing.T) {
	st := openBadger(t)
	ctx := context.Background()

	inbound := chat.Message{ID: "m1", CreatedAt: time.Now().UTC()}
	outbound := chat.Message{ID: "m2", CreatedAt: time.Now().UTC()}
	require.ErrorIs(t, st.AppendExchange(ctx, "missing", inbound, outbound), apperrors.ErrConversationNotFound)

	// The aborted transaction must leave no orphan messages behind.
	_, err := st.ListMessages(ctx, "missing")
	require.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestBadgerDeleteConversationRemovesMessages(t *testing.T) {
	st := openBadger(t)
	ctx := context.Background()

	require.NoError(t, st.CreateConversation(ctx, &chat.Conversation{ID: "conv-1", OwnerID: "alice"}))
	msg := chat.Message{ID: "m1", ConversationID: "conv-1", Content: "hello", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.AppendInboundOnly(ctx, "conv-1", msg))

	require.ErrorIs(t, st.DeleteConversation(ctx, "conv-1", "mallory"), apperrors.ErrConversationNotFound)
	require.NoError(t, st.DeleteConversation(ctx, "conv-1", "alice"))

	_, err := st.ListMessages(ctx, "conv-1")
	require.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}
