package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
)

type VoteRepository interface {
	// Cast checks the poll, inserts the ledger row and bumps the option counter
	// in one atomic unit. A second cast for the same (poll, voter) yields
	// domain.ErrAlreadyVoted.
	Cast(ctx context.Context, vote *domain.Vote) (*domain.Poll, error)
	GetVote(ctx context.Context, pollID, voterID uuid.UUID) (*domain.Vote, error)
}

type VoteInput struct {
	PollID      uuid.UUID
	VoterID     uuid.UUID
	OptionIndex int
}

type VoteService interface {
	Vote(ctx context.Context, input VoteInput) (*domain.Vote, error)
	MyVote(ctx context.Context, pollID, voterID uuid.UUID) (*domain.Vote, error)
}
