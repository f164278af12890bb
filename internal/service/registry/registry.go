// Package registry is the single point of truth for live sessions, the
// user index and conversation room membership. Every mutation appears
// atomic to concurrent readers; no other component caches this state.
package registry

import (
	"log"
	"sync"

	"github.com/fluxchat/backend/internal/apperrors"
)

// Transport is the write side of one live session. The registry owns it
// exclusively after Register.
type Transport interface {
	Send(payload any) error
	Close() error
}

type session struct {
	id        string
	transport Transport
	userID    string
	rooms     map[string]struct{}
}

// Registry tracks open sessions and their room membership.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	users    map[string]string // userID -> active sessionID, last writer wins
	rooms    map[string]map[string]struct{}
}

// New builds an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		users:    make(map[string]string),
		rooms:    make(map[string]map[string]struct{}),
	}
}

// Register opens a session. A non-empty userID installs or overwrites the
// user index entry; a prior session for the same user keeps running but
// loses its binding.
func (r *Registry) Register(sessionID string, transport Transport, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sessionID] = &session{
		id:        sessionID,
		transport: transport,
		userID:    userID,
		rooms:     make(map[string]struct{}),
	}
	if userID != "" {
		r.users[userID] = sessionID
	}
}

// Unregister closes a session and removes it from every room and from the
// user index. Calling it again, or with an unknown id, is a no-op.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)

	if sess.userID != "" && r.users[sess.userID] == sessionID {
		delete(r.users, sess.userID)
	}
	for roomID := range sess.rooms {
		r.removeFromRoomLocked(roomID, sessionID)
	}
	transport := sess.transport
	r.mu.Unlock()

	if err := transport.Close(); err != nil {
		log.Printf("[registry] close transport for session=%s: %v", sessionID, err)
	}
}

func (r *Registry) removeFromRoomLocked(roomID, sessionID string) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// SendTo delivers a payload to one session. A transport failure reaps the
// session the same way Unregister does and returns a DeliveryError.
func (r *Registry) SendTo(sessionID string, payload any) error {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return &apperrors.DeliveryError{SessionID: sessionID, Reason: apperrors.ErrSessionNotFound}
	}

	if err := sess.transport.Send(payload); err != nil {
		r.Unregister(sessionID)
		return &apperrors.DeliveryError{SessionID: sessionID, Reason: err}
	}
	return nil
}

// SendToUser resolves the user's active session and delivers to it. Users
// without an active session are skipped silently.
func (r *Registry) SendToUser(userID string, payload any) error {
	r.mu.RLock()
	sessionID, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.SendTo(sessionID, payload)
}

// JoinRoom adds a session to a conversation room, creating the room lazily.
// Joining twice is a no-op.
func (r *Registry) JoinRoom(sessionID, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return apperrors.ErrSessionNotFound
	}

	members, ok := r.rooms[conversationID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[conversationID] = members
	}
	members[sessionID] = struct{}{}
	sess.rooms[conversationID] = struct{}{}
	return nil
}

// LeaveRoom removes a session from a room. Leaving a room the session never
// joined is a no-op.
func (r *Registry) LeaveRoom(sessionID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[sessionID]; ok {
		delete(sess.rooms, conversationID)
	}
	r.removeFromRoomLocked(conversationID, sessionID)
}

// BroadcastRoom delivers a payload to every member of a room except
// excludeSessionID. Failed recipients are reaped during the call; one bad
// connection never aborts delivery to the rest. Returns the delivered count.
// Broadcasting to an unknown or empty room is a no-op.
func (r *Registry) BroadcastRoom(conversationID string, payload any, excludeSessionID string) int {
	r.mu.RLock()
	targets := make([]*session, 0, len(r.rooms[conversationID]))
	for sessionID := range r.rooms[conversationID] {
		if sessionID == excludeSessionID {
			continue
		}
		if sess, ok := r.sessions[sessionID]; ok {
			targets = append(targets, sess)
		}
	}
	r.mu.RUnlock()

	return r.deliver(targets, payload)
}

// BroadcastAll delivers a payload to every open session except
// excludeSessionID, with the same per-recipient failure semantics as
// BroadcastRoom.
func (r *Registry) BroadcastAll(payload any, excludeSessionID string) int {
	r.mu.RLock()
	targets := make([]*session, 0, len(r.sessions))
	for sessionID, sess := range r.sessions {
		if sessionID == excludeSessionID {
			continue
		}
		targets = append(targets, sess)
	}
	r.mu.RUnlock()

	return r.deliver(targets, payload)
}

func (r *Registry) deliver(targets []*session, payload any) int {
	delivered := 0
	for _, sess := range targets {
		if err := sess.transport.Send(payload); err != nil {
			log.Printf("[registry] reaping session=%s after failed send: %v", sess.id, err)
			r.Unregister(sess.id)
			continue
		}
		delivered++
	}
	return delivered
}

// RoomMembers returns the current member session ids of a room.
func (r *Registry) RoomMembers(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms[conversationID]))
	for sessionID := range r.rooms[conversationID] {
		out = append(out, sessionID)
	}
	return out
}

// UserSession reports the active session for a user, if any.
func (r *Registry) UserSession(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.users[userID]
	return sessionID, ok
}

// Count reports the number of open sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown closes every transport and clears all state.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.users = make(map[string]string)
	r.rooms = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.transport.Close(); err != nil {
			log.Printf("[registry] close transport for session=%s: %v", sess.id, err)
		}
	}
	log.Printf("[registry] all sessions closed")
}
