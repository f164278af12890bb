package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fluxchat/backend/internal/apperrors"
	"github.com/fluxchat/backend/internal/model/chat"
)

// Badger persists records in a local BadgerDB. Key layout:
//
//	user:id:<userID>        -> storedUser
//	user:name:<username>    -> userID
//	conv:<convID>           -> chat.Conversation
//	msg:<convID>:<seq>:<id> -> chat.Message (seq = zero-padded unix nanos)
type Badger struct {
	db *badger.DB
}

// storedUser keeps the password hash, which the API representation of
// chat.User deliberately drops from JSON.
type storedUser struct {
	chat.User
	PasswordHash string `json:"passwordHash"`
}

// OpenBadger opens (or creates) the database at path.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Badger{db: db}, nil
}

func userKey(id string) []byte         { return []byte("user:id:" + id) }
func userNameKey(name string) []byte   { return []byte("user:name:" + name) }
func convKey(id string) []byte         { return []byte("conv:" + id) }
func msgPrefix(convID string) []byte   { return []byte("msg:" + convID + ":") }
func msgKey(convID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%020d:%s", convID, at.UnixNano(), id))
}

func (b *Badger) CreateUser(_ context.Context, user *chat.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userNameKey(user.Username)); err == nil {
			return apperrors.ErrUserExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		payload, err := json.Marshal(storedUser{User: *user, PasswordHash: user.PasswordHash})
		if err != nil {
			return err
		}
		if err := txn.Set(userKey(user.ID), payload); err != nil {
			return err
		}
		return txn.Set(userNameKey(user.Username), []byte(user.ID))
	})
}

func (b *Badger) GetUserByID(_ context.Context, id string) (*chat.User, error) {
	var user *chat.User
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUserTxn(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (b *Badger) GetUserByUsername(_ context.Context, username string) (*chat.User, error) {
	var user *chat.User
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userNameKey(username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return apperrors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUserTxn(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func getUserTxn(txn *badger.Txn, id string) (*chat.User, error) {
	item, err := txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	var stored storedUser
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	}); err != nil {
		return nil, err
	}

	user := stored.User
	user.PasswordHash = stored.PasswordHash
	return &user, nil
}

func (b *Badger) RecordLogin(ctx context.Context, userID string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		user, err := getUserTxn(txn, userID)
		if err != nil {
			return err
		}
		user.LastLogin = time.Now().UTC()
		payload, err := json.Marshal(storedUser{User: *user, PasswordHash: user.PasswordHash})
		if err != nil {
			return err
		}
		return txn.Set(userKey(userID), payload)
	})
}

func (b *Badger) CreateConversation(_ context.Context, conv *chat.Conversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	return b.db.Update(func(txn *badger.Txn) error {
		payload, err := json.Marshal(conv)
		if err != nil {
			return err
		}
		return txn.Set(convKey(conv.ID), payload)
	})
}

func (b *Badger) GetConversation(_ context.Context, id, ownerID string) (*chat.Conversation, error) {
	var conv *chat.Conversation
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = getConversationTxn(txn, id, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func getConversationTxn(txn *badger.Txn, id, ownerID string) (*chat.Conversation, error) {
	item, err := txn.Get(convKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	var conv chat.Conversation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &conv)
	}); err != nil {
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, apperrors.ErrConversationNotFound
	}
	return &conv, nil
}

func (b *Badger) ListConversations(_ context.Context, ownerID string) ([]*chat.Conversation, error) {
	out := make([]*chat.Conversation, 0, 8)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("conv:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var conv chat.Conversation
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &conv)
			}); err != nil {
				return err
			}
			if conv.OwnerID == ownerID {
				c := conv
				out = append(out, &c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) DeleteConversation(_ context.Context, id, ownerID string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := getConversationTxn(txn, id, ownerID); err != nil {
			return err
		}
		if err := txn.Delete(convKey(id)); err != nil {
			return err
		}

		// Collect message keys first; deleting while iterating invalidates
		// the iterator.
		keys := make([][]byte, 0, 32)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		for it.Seek(msgPrefix(id)); it.ValidForPrefix(msgPrefix(id)); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) ListMessages(_ context.Context, conversationID string) ([]chat.Message, error) {
	out := make([]chat.Message, 0, 16)
	err := b.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(convKey(conversationID)); errors.Is(err, badger.ErrKeyNotFound) {
			return apperrors.ErrConversationNotFound
		} else if err != nil {
			return err
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := msgPrefix(conversationID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg chat.Message
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Badger) AppendExchange(_ context.Context, conversationID string, inbound, outbound chat.Message) error {
	// A single Update transaction commits both halves or neither.
	return b.db.Update(func(txn *badger.Txn) error {
		if err := appendMessageTxn(txn, conversationID, inbound); err != nil {
			return err
		}
		if err := appendMessageTxn(txn, conversationID, outbound); err != nil {
			return err
		}
		return touchConversationTxn(txn, conversationID)
	})
}

func (b *Badger) AppendInboundOnly(_ context.Context, conversationID string, inbound chat.Message) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := appendMessageTxn(txn, conversationID, inbound); err != nil {
			return err
		}
		return touchConversationTxn(txn, conversationID)
	})
}

func (b *Badger) AppendOutbound(_ context.Context, conversationID string, outbound chat.Message) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := appendMessageTxn(txn, conversationID, outbound); err != nil {
			return err
		}
		return touchConversationTxn(txn, conversationID)
	})
}

func appendMessageTxn(txn *badger.Txn, conversationID string, msg chat.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return txn.Set(msgKey(conversationID, msg.CreatedAt, msg.ID), payload)
}

func touchConversationTxn(txn *badger.Txn, conversationID string) error {
	item, err := txn.Get(convKey(conversationID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return apperrors.ErrConversationNotFound
	}
	if err != nil {
		return err
	}

	var conv chat.Conversation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &conv)
	}); err != nil {
		return err
	}

	conv.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return txn.Set(convKey(conversationID), payload)
}

func (b *Badger) Close() error {
	return b.db.Close()
}
