package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
)

type voteRepository struct {
	db    *sql.DB
	retry *Retrier
}

func NewVoteRepository(db *sql.DB, retry *Retrier) ports.VoteRepository {
	return &voteRepository{
		db:    db,
		retry: retry,
	}
}

// Cast records the vote and bumps its option counter in one transaction.
// The poll row is held FOR SHARE so concurrent casts proceed in parallel while
// status changes and deletion wait for them.
//
// The returned snapshot is read after commit. Inside the transaction a cast
// only sees its own increment, so two overlapping casts on different options
// would both report the same total.
func (r *voteRepository) Cast(ctx context.Context, vote *domain.Vote) (*domain.Poll, error) {
	var pending *domain.Poll
	err := r.retry.Do(ctx, func() error {
		return withTx(ctx, r.db, func(tx *sql.Tx) error {
			var (
				status  string
				options int
			)
			queryLock := `SELECT status, cardinality(options) FROM polls WHERE id = $1 FOR SHARE`
			err := tx.QueryRowContext(ctx, queryLock, vote.PollID).Scan(&status, &options)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return domain.ErrPollNotFound
				}
				return fmt.Errorf("failed to lock poll: %w", err)
			}
			if domain.PollStatus(status) != domain.PollStatusActive {
				return domain.ErrPollClosed
			}
			if vote.OptionIndex < 0 || vote.OptionIndex >= options {
				return domain.ErrInvalidOption
			}

			queryVote := `
				INSERT INTO poll_votes (poll_id, voter_id, option_index, cast_at)
				VALUES ($1, $2, $3, $4)
			`
			_, err = tx.ExecContext(ctx, queryVote, vote.PollID, vote.VoterID, vote.OptionIndex, vote.CastAt)
			if err != nil {
				if isUniqueViolation(err) {
					return domain.ErrAlreadyVoted
				}
				return fmt.Errorf("failed to save vote: %w", err)
			}

			queryCounter := `
				INSERT INTO poll_results (poll_id, option_index, vote_count, last_updated_at)
				VALUES ($1, $2, 1, NOW())
				ON CONFLICT (poll_id, option_index) DO UPDATE
				SET vote_count = poll_results.vote_count + 1,
				    last_updated_at = NOW()
			`
			if _, err := tx.ExecContext(ctx, queryCounter, vote.PollID, vote.OptionIndex); err != nil {
				return fmt.Errorf("failed to increment counter: %w", err)
			}

			pending, err = getPoll(ctx, tx, vote.PollID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	var poll *domain.Poll
	err = r.retry.Do(ctx, func() error {
		var err error
		poll, err = getPoll(ctx, r.db, vote.PollID)
		return err
	})
	switch {
	case errors.Is(err, domain.ErrPollNotFound):
		// Deleted right after the commit; the vote went with it.
		return pending, nil
	case err != nil:
		return nil, err
	}
	return poll, nil
}

func (r *voteRepository) GetVote(ctx context.Context, pollID, voterID uuid.UUID) (*domain.Vote, error) {
	var vote *domain.Vote
	err := r.retry.Do(ctx, func() error {
		query := `
			SELECT p.id, v.voter_id, v.option_index, v.cast_at
			FROM polls p
			LEFT JOIN poll_votes v ON v.poll_id = p.id AND v.voter_id = $2
			WHERE p.id = $1
		`
		var (
			id          uuid.UUID
			voter       uuid.NullUUID
			optionIndex sql.NullInt64
			castAt      sql.NullTime
		)
		err := r.db.QueryRowContext(ctx, query, pollID, voterID).Scan(&id, &voter, &optionIndex, &castAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrPollNotFound
			}
			return fmt.Errorf("failed to get vote: %w", err)
		}
		if !voter.Valid {
			return domain.ErrVoteNotFound
		}
		vote = &domain.Vote{
			PollID:      id,
			VoterID:     voter.UUID,
			OptionIndex: int(optionIndex.Int64),
			CastAt:      castAt.Time,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vote, nil
}
