package ports

import (
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
)

type TokenService interface {
	Parse(token string) (*domain.Identity, error)
	Issue(userID uuid.UUID, email string, ttl time.Duration) (string, error)
}
