package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity is what the identity provider vouches for. It is trusted as given.
type Identity struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}
