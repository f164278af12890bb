package chat

import (
	"time"

	"github.com/fluxchat/backend/internal/model/catalog"
)

// User is an account record. The password hash never leaves the store layer
// in API responses.
type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Tier         catalog.Tier `json:"tier"`
	CreatedAt    time.Time    `json:"createdAt"`
	LastLogin    time.Time    `json:"lastLogin,omitzero"`
}
