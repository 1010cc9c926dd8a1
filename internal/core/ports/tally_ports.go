package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
)

type TallyRepository interface {
	// CheckTally returns every counter of a poll next to its ledger count, read
	// at one instant so a concurrent cast is either in both or in neither.
	CheckTally(ctx context.Context, pollID uuid.UUID) ([]domain.OptionTally, error)
	// Recount rewrites the counters of a poll from the ledger in one transaction
	// and returns the repaired snapshot. Revision rises by domain.RepairBump
	// whenever a counter changes.
	Recount(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error)
}

type TallyService interface {
	Reconcile(ctx context.Context) ([]domain.TallyDrift, error)
	ReconcilePoll(ctx context.Context, pollID uuid.UUID) ([]domain.TallyDrift, error)
}
