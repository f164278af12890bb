// Package httperr maps the service error taxonomy onto HTTP status classes.
package httperr

import (
	"errors"
	"net/http"

	"github.com/fluxchat/backend/internal/apperrors"
)

// StatusFor classifies an orchestration error.
func StatusFor(err error) int {
	var denied *apperrors.AccessDenied
	var generation *apperrors.GenerationFailed
	var persistence *apperrors.PersistenceFailed

	switch {
	case errors.Is(err, apperrors.ErrConversationNotFound),
		errors.Is(err, apperrors.ErrUserNotFound):
		return http.StatusNotFound
	case errors.As(err, &denied):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrUnknownBackend),
		errors.Is(err, apperrors.ErrUserExists):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrBackendUnavailable),
		errors.As(err, &generation):
		return http.StatusServiceUnavailable
	case errors.As(err, &persistence):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Payload renders an error response body, including the required tier on
// access denials so clients can prompt an upgrade.
func Payload(err error) map[string]any {
	body := map[string]any{"error": err.Error()}
	var denied *apperrors.AccessDenied
	if errors.As(err, &denied) {
		body["requiredTier"] = denied.RequiredTier
	}
	return body
}
