package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
	"github.com/vncsmyrnk/poll-ledger/internal/metrics"
	"go.uber.org/zap"
)

type voteService struct {
	voteRepo  ports.VoteRepository
	publisher ports.Publisher
	log       *logger.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

func NewVoteService(voteRepo ports.VoteRepository, publisher ports.Publisher, log *logger.Logger, m *metrics.Metrics) ports.VoteService {
	return &voteService{
		voteRepo:  voteRepo,
		publisher: publisher,
		log:       log,
		metrics:   m,
		clock:     time.Now,
	}
}

// Vote records a single vote. Poll existence, status and option bounds are
// checked by the repository inside the same transaction as the insert, so
// there is no read-then-write window here.
//
// A caller retrying after a timeout may get domain.ErrAlreadyVoted; that means
// the earlier attempt was recorded.
func (s *voteService) Vote(ctx context.Context, input ports.VoteInput) (*domain.Vote, error) {
	if input.OptionIndex < 0 {
		s.metrics.VoteRejected("invalid_option")
		return nil, domain.ErrInvalidOption
	}

	vote := &domain.Vote{
		PollID:      input.PollID,
		VoterID:     input.VoterID,
		OptionIndex: input.OptionIndex,
		CastAt:      s.clock().UTC(),
	}

	poll, err := s.voteRepo.Cast(ctx, vote)
	if err != nil {
		s.reject(ctx, input, err)
		return nil, err
	}
	s.metrics.VoteCast()

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, domain.NewPollEvent(domain.EventPollUpdated, poll)); err != nil {
			s.log.WithContext(ctx).Error("failed to publish tally update",
				zap.String("poll_id", poll.ID.String()), zap.Error(err))
		}
	}
	return vote, nil
}

func (s *voteService) reject(ctx context.Context, input ports.VoteInput, err error) {
	log := s.log.WithContext(ctx).With(zap.String("poll_id", input.PollID.String()))
	switch {
	case errors.Is(err, domain.ErrAlreadyVoted):
		s.metrics.VoteRejected("already_voted")
		log.Info("duplicate vote rejected")
	case errors.Is(err, domain.ErrPollClosed):
		s.metrics.VoteRejected("poll_closed")
	case errors.Is(err, domain.ErrPollNotFound):
		s.metrics.VoteRejected("poll_not_found")
	case errors.Is(err, domain.ErrInvalidOption):
		s.metrics.VoteRejected("invalid_option")
	default:
		s.metrics.VoteRejected("error")
		log.Error("failed to cast vote", zap.Error(err))
	}
}

func (s *voteService) MyVote(ctx context.Context, pollID, voterID uuid.UUID) (*domain.Vote, error) {
	return s.voteRepo.GetVote(ctx, pollID, voterID)
}
