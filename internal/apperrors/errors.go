package apperrors

import (
	"errors"
	"fmt"

	"github.com/fluxchat/backend/internal/model/catalog"
)

// Sentinel failures surfaced verbatim to callers.
var (
	ErrUnknownBackend       = errors.New("unknown backend")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrBackendUnavailable   = errors.New("backend unavailable")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionNotFound      = errors.New("session not found")
)

// AccessDenied means the caller's tier does not reach the backend's minimum.
type AccessDenied struct {
	BackendID    string
	RequiredTier catalog.Tier
}

func (e *AccessDenied) Error() string {
	return fmt.Sprintf("access to %s requires the %s tier", e.BackendID, e.RequiredTier)
}

// GenerationFailed wraps a backend error that aborted an exchange.
type GenerationFailed struct {
	BackendID string
	Reason    error
}

func (e *GenerationFailed) Error() string {
	return fmt.Sprintf("generation on %s failed: %v", e.BackendID, e.Reason)
}

func (e *GenerationFailed) Unwrap() error { return e.Reason }

// PersistenceFailed wraps a store error that aborted an exchange.
type PersistenceFailed struct {
	Reason error
}

func (e *PersistenceFailed) Error() string {
	return fmt.Sprintf("persistence failed: %v", e.Reason)
}

func (e *PersistenceFailed) Unwrap() error { return e.Reason }

// DeliveryError is local to a single recipient and never aborts a broadcast.
type DeliveryError struct {
	SessionID string
	Reason    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to session %s failed: %v", e.SessionID, e.Reason)
}

func (e *DeliveryError) Unwrap() error { return e.Reason }
