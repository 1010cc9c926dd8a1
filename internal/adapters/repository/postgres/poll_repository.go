package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
)

// selectPoll reads a poll with its counters in one statement, so the snapshot
// is consistent and total_votes is always the sum of the returned counts.
const selectPoll = `
	SELECT p.id, p.owner_id, p.title, p.description, p.options, p.status, p.revision, p.created_at,
	       ARRAY(
	           SELECT r.vote_count FROM poll_results r
	           WHERE r.poll_id = p.id
	           ORDER BY r.option_index
	       )
	FROM polls p
`

type pollRepository struct {
	db    *sql.DB
	retry *Retrier
}

func NewPollRepository(db *sql.DB, retry *Retrier) ports.PollRepository {
	return &pollRepository{
		db:    db,
		retry: retry,
	}
}

// Save is idempotent for the same poll: a retry whose earlier attempt did
// commit finds the row in place and succeeds.
func (r *pollRepository) Save(ctx context.Context, poll *domain.Poll) error {
	return r.retry.Do(ctx, func() error {
		err := withTx(ctx, r.db, func(tx *sql.Tx) error {
			queryPoll := `
				INSERT INTO polls (id, owner_id, title, description, options, status, revision, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`
			_, err := tx.ExecContext(ctx, queryPoll,
				poll.ID, poll.OwnerID, poll.Title, poll.Description, pq.Array(poll.Options),
				string(poll.Status), poll.Revision, poll.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert poll: %w", err)
			}

			// One zeroed counter row per option.
			queryCounters := `
				INSERT INTO poll_results (poll_id, option_index, vote_count)
				SELECT $1, i, 0 FROM generate_series(0, $2::int - 1) AS i
			`
			if _, err := tx.ExecContext(ctx, queryCounters, poll.ID, len(poll.Options)); err != nil {
				return fmt.Errorf("failed to insert counters: %w", err)
			}
			return nil
		})
		if err != nil && isUniqueViolation(err) {
			return r.confirmSaved(ctx, poll)
		}
		return err
	})
}

func (r *pollRepository) confirmSaved(ctx context.Context, poll *domain.Poll) error {
	existing, err := getPoll(ctx, r.db, poll.ID)
	if err != nil {
		return fmt.Errorf("failed to confirm poll %s: %w", poll.ID, err)
	}
	if !existing.SameDefinition(poll) {
		return fmt.Errorf("poll with ID %s already exists", poll.ID)
	}
	return nil
}

func (r *pollRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	var poll *domain.Poll
	err := r.retry.Do(ctx, func() error {
		var err error
		poll, err = getPoll(ctx, r.db, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return poll, nil
}

func (r *pollRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Poll, error) {
	query := selectPoll + `
		WHERE p.owner_id = $1
		ORDER BY p.created_at DESC, p.id
	`
	return r.queryPolls(ctx, query, ownerID)
}

func (r *pollRepository) ListActiveExcludingOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Poll, error) {
	query := selectPoll + `
		WHERE p.owner_id <> $1 AND p.status = 'active'
		ORDER BY p.created_at DESC, p.id
	`
	return r.queryPolls(ctx, query, ownerID)
}

func (r *pollRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.retry.Do(ctx, func() error {
		ids = nil
		rows, err := r.db.QueryContext(ctx, `SELECT id FROM polls`)
		if err != nil {
			return fmt.Errorf("failed to get all polls: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("failed to scan poll id: %w", err)
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

func (r *pollRepository) UpdateStatus(ctx context.Context, id, requesterID uuid.UUID, status domain.PollStatus) (*domain.Poll, error) {
	var poll *domain.Poll
	err := r.retry.Do(ctx, func() error {
		return withTx(ctx, r.db, func(tx *sql.Tx) error {
			if err := lockOwnedPoll(ctx, tx, id, requesterID); err != nil {
				return err
			}

			query := `
				UPDATE polls
				SET revision = revision + CASE WHEN status <> $2 THEN 1 ELSE 0 END,
				    status = $2
				WHERE id = $1
			`
			if _, err := tx.ExecContext(ctx, query, id, string(status)); err != nil {
				return fmt.Errorf("failed to update poll status: %w", err)
			}

			var err error
			poll, err = getPoll(ctx, tx, id)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return poll, nil
}

// Delete takes the poll row exclusively. In-flight casts hold FOR SHARE on the
// same row, so deletion waits for them and their votes are cascaded away;
// casts that start afterwards find no poll.
func (r *pollRepository) Delete(ctx context.Context, id, requesterID uuid.UUID) (*domain.Poll, error) {
	var last *domain.Poll
	err := r.retry.Do(ctx, func() error {
		return withTx(ctx, r.db, func(tx *sql.Tx) error {
			if err := lockOwnedPoll(ctx, tx, id, requesterID); err != nil {
				return err
			}

			var err error
			last, err = getPoll(ctx, tx, id)
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM polls WHERE id = $1`, id); err != nil {
				return fmt.Errorf("failed to delete poll: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// lockOwnedPoll locks the poll row FOR UPDATE and checks ownership.
func lockOwnedPoll(ctx context.Context, tx *sql.Tx, id, requesterID uuid.UUID) error {
	var ownerID uuid.UUID
	err := tx.QueryRowContext(ctx, `SELECT owner_id FROM polls WHERE id = $1 FOR UPDATE`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPollNotFound
		}
		return fmt.Errorf("failed to lock poll: %w", err)
	}
	if ownerID != requesterID {
		return domain.ErrNotPollOwner
	}
	return nil
}

func getPoll(ctx context.Context, q DBTX, id uuid.UUID) (*domain.Poll, error) {
	query := selectPoll + ` WHERE p.id = $1`
	poll, err := scanPoll(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to get poll: %w", err)
	}
	return poll, nil
}

func (r *pollRepository) queryPolls(ctx context.Context, query string, args ...interface{}) ([]*domain.Poll, error) {
	var polls []*domain.Poll
	err := r.retry.Do(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to list polls: %w", err)
		}
		defer rows.Close()

		polls = []*domain.Poll{}
		for rows.Next() {
			poll, err := scanPoll(rows)
			if err != nil {
				return fmt.Errorf("failed to scan poll: %w", err)
			}
			polls = append(polls, poll)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating polls: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return polls, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoll(row rowScanner) (*domain.Poll, error) {
	var (
		poll   domain.Poll
		status string
		counts []int64
	)
	err := row.Scan(
		&poll.ID, &poll.OwnerID, &poll.Title, &poll.Description, pq.Array(&poll.Options),
		&status, &poll.Revision, &poll.CreatedAt, pq.Array(&counts),
	)
	if err != nil {
		return nil, err
	}
	poll.Status = domain.PollStatus(status)
	poll.SetTally(counts)
	return &poll, nil
}
