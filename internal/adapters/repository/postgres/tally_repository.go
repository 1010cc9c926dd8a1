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

type tallyRepository struct {
	db    *sql.DB
	retry *Retrier
}

func NewTallyRepository(db *sql.DB, retry *Retrier) ports.TallyRepository {
	return &tallyRepository{
		db:    db,
		retry: retry,
	}
}

// CheckTally compares counters and ledger in a single statement, so both sides
// come from the same snapshot. A cast commits its ledger row and its counter
// increment together and is therefore seen on both sides or on neither.
func (r *tallyRepository) CheckTally(ctx context.Context, pollID uuid.UUID) ([]domain.OptionTally, error) {
	var tallies []domain.OptionTally
	err := r.retry.Do(ctx, func() error {
		return withTx(ctx, r.db, func(tx *sql.Tx) error {
			// Keeps the poll from being deleted while it is checked.
			if err := lockPoll(ctx, tx, pollID, "FOR SHARE"); err != nil {
				return err
			}

			query := `
				SELECT COALESCE(r.option_index, l.option_index), COALESCE(r.vote_count, 0), COALESCE(l.n, 0)
				FROM (
				    SELECT option_index, vote_count FROM poll_results WHERE poll_id = $1
				) r
				FULL OUTER JOIN (
				    SELECT option_index, COUNT(*) AS n FROM poll_votes WHERE poll_id = $1 GROUP BY option_index
				) l ON l.option_index = r.option_index
				ORDER BY 1
			`
			rows, err := tx.QueryContext(ctx, query, pollID)
			if err != nil {
				return fmt.Errorf("failed to check tally: %w", err)
			}
			defer rows.Close()

			tallies = []domain.OptionTally{}
			for rows.Next() {
				var t domain.OptionTally
				if err := rows.Scan(&t.OptionIndex, &t.Counter, &t.Ledger); err != nil {
					return fmt.Errorf("failed to scan tally: %w", err)
				}
				tallies = append(tallies, t)
			}
			if err := rows.Err(); err != nil {
				return fmt.Errorf("error iterating tallies: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return tallies, nil
}

// Recount locks the poll row exclusively so no cast lands between the ledger
// count and the counter rewrite.
func (r *tallyRepository) Recount(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error) {
	var poll *domain.Poll
	err := r.retry.Do(ctx, func() error {
		return withTx(ctx, r.db, func(tx *sql.Tx) error {
			if err := lockPoll(ctx, tx, pollID, "FOR UPDATE"); err != nil {
				return err
			}

			var oldTotal, newTotal, changed int64
			queryCompare := `
				SELECT COALESCE(SUM(r.vote_count), 0), COALESCE(SUM(l.n), 0),
				       COUNT(*) FILTER (WHERE r.vote_count <> l.n)
				FROM poll_results r
				CROSS JOIN LATERAL (
				    SELECT COUNT(*) AS n FROM poll_votes v
				    WHERE v.poll_id = r.poll_id AND v.option_index = r.option_index
				) l
				WHERE r.poll_id = $1
			`
			err := tx.QueryRowContext(ctx, queryCompare, pollID).Scan(&oldTotal, &newTotal, &changed)
			if err != nil {
				return fmt.Errorf("failed to compare counters: %w", err)
			}

			if changed > 0 {
				queryRecount := `
					UPDATE poll_results r
					SET vote_count = (
					        SELECT COUNT(*) FROM poll_votes v
					        WHERE v.poll_id = r.poll_id AND v.option_index = r.option_index
					    ),
					    last_updated_at = NOW()
					WHERE r.poll_id = $1
				`
				if _, err := tx.ExecContext(ctx, queryRecount, pollID); err != nil {
					return fmt.Errorf("failed to recount poll %s: %w", pollID, err)
				}

				queryRevision := `UPDATE polls SET revision = revision + $2 WHERE id = $1`
				bump := domain.RepairBump(oldTotal, newTotal)
				if _, err := tx.ExecContext(ctx, queryRevision, pollID, bump); err != nil {
					return fmt.Errorf("failed to bump revision: %w", err)
				}
			}

			// The exclusive lock is held, so no other cast is in flight and this
			// read matches what commits.
			poll, err = getPoll(ctx, tx, pollID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return poll, nil
}

// lockPoll takes a row lock on the poll with the given locking clause.
func lockPoll(ctx context.Context, tx *sql.Tx, pollID uuid.UUID, clause string) error {
	var id uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT id FROM polls WHERE id = $1 `+clause, pollID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPollNotFound
		}
		return fmt.Errorf("failed to lock poll: %w", err)
	}
	return nil
}
