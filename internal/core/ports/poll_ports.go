package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
)

type PollRepository interface {
	// Save persists the poll and one zeroed counter per option atomically.
	Save(ctx context.Context, poll *domain.Poll) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Poll, error)
	ListActiveExcludingOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Poll, error)
	// UpdateStatus sets the status when requesterID owns the poll and returns the new snapshot.
	UpdateStatus(ctx context.Context, id, requesterID uuid.UUID, status domain.PollStatus) (*domain.Poll, error)
	// Delete removes the poll and cascades its votes when requesterID owns it.
	// It returns the last snapshot before deletion.
	Delete(ctx context.Context, id, requesterID uuid.UUID) (*domain.Poll, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type CreatePollInput struct {
	Title       string
	Description string
	Options     []string
}

type PollService interface {
	Create(ctx context.Context, ownerID uuid.UUID, input CreatePollInput) (*domain.Poll, error)
	GetPoll(ctx context.Context, id string) (*domain.Poll, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Poll, error)
	ListActiveExcludingOwner(ctx context.Context, viewerID uuid.UUID) ([]*domain.Poll, error)
	SetStatus(ctx context.Context, id string, requesterID uuid.UUID, status domain.PollStatus) (*domain.Poll, error)
	Delete(ctx context.Context, id string, requesterID uuid.UUID) error
}
