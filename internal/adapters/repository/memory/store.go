// Package memory is an in-process implementation of the poll store, vote
// ledger and tally counters. It keeps the same concurrency contract as the
// postgres adapter: a per-(poll, voter) atomic uniqueness check, per-option
// atomic counters, and casts that share a poll lock which deletion takes
// exclusively.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
)

var (
	_ ports.PollRepository  = (*Store)(nil)
	_ ports.VoteRepository  = (*Store)(nil)
	_ ports.TallyRepository = (*Store)(nil)
)

type pollEntry struct {
	// lock is shared by casts and held exclusively by status changes,
	// recounts and deletion.
	lock    sync.RWMutex
	poll    domain.Poll
	counts  []atomic.Int64
	votes   sync.Map // uuid.UUID (voter) -> *domain.Vote
	deleted bool
}

func (e *pollEntry) snapshot() *domain.Poll {
	p := e.poll.Clone()
	counts := make([]int64, len(e.counts))
	for i := range e.counts {
		counts[i] = e.counts[i].Load()
	}
	p.SetTally(counts)
	return p
}

type Store struct {
	mu    sync.RWMutex
	polls map[uuid.UUID]*pollEntry
}

func NewStore() *Store {
	return &Store{polls: make(map[uuid.UUID]*pollEntry)}
}

func (s *Store) entry(id uuid.UUID) (*pollEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.polls[id]
	return e, ok
}

func (s *Store) Save(ctx context.Context, poll *domain.Poll) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := &pollEntry{
		poll:   *poll.Clone(),
		counts: make([]atomic.Int64, len(poll.Options)),
	}
	e.poll.Votes = nil
	e.poll.TotalVotes = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, exists := s.polls[poll.ID]; exists {
		if existing.poll.SameDefinition(poll) {
			return nil
		}
		return fmt.Errorf("poll with ID %s already exists", poll.ID)
	}
	s.polls[poll.ID] = e
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	e.lock.RLock()
	defer e.lock.RUnlock()
	if e.deleted {
		return nil, domain.ErrPollNotFound
	}
	return e.snapshot(), nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Poll, error) {
	return s.list(ctx, func(p *domain.Poll) bool { return p.OwnerID == ownerID })
}

func (s *Store) ListActiveExcludingOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Poll, error) {
	return s.list(ctx, func(p *domain.Poll) bool { return p.OwnerID != ownerID && p.IsActive() })
}

func (s *Store) list(ctx context.Context, keep func(*domain.Poll) bool) ([]*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entries := make([]*pollEntry, 0, len(s.polls))
	for _, e := range s.polls {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	polls := make([]*domain.Poll, 0, len(entries))
	for _, e := range entries {
		e.lock.RLock()
		if !e.deleted && keep(&e.poll) {
			polls = append(polls, e.snapshot())
		}
		e.lock.RUnlock()
	}
	sortNewestFirst(polls)
	return polls, nil
}

func sortNewestFirst(polls []*domain.Poll) {
	sort.Slice(polls, func(i, j int) bool {
		if !polls[i].CreatedAt.Equal(polls[j].CreatedAt) {
			return polls[i].CreatedAt.After(polls[j].CreatedAt)
		}
		return polls[i].ID.String() < polls[j].ID.String()
	})
}

func (s *Store) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.polls))
	for id := range s.polls {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id, requesterID uuid.UUID, status domain.PollStatus) (*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.deleted {
		return nil, domain.ErrPollNotFound
	}
	if e.poll.OwnerID != requesterID {
		return nil, domain.ErrNotPollOwner
	}
	if e.poll.Status != status {
		e.poll.Status = status
		e.poll.Revision++
	}
	return e.snapshot(), nil
}

func (s *Store) Delete(ctx context.Context, id, requesterID uuid.UUID) (*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(id)
	if !ok {
		return nil, domain.ErrPollNotFound
	}

	// Waits for in-flight casts; casts arriving later observe deleted.
	e.lock.Lock()
	if e.deleted {
		e.lock.Unlock()
		return nil, domain.ErrPollNotFound
	}
	if e.poll.OwnerID != requesterID {
		e.lock.Unlock()
		return nil, domain.ErrNotPollOwner
	}
	e.deleted = true
	last := e.snapshot()
	e.lock.Unlock()

	s.mu.Lock()
	delete(s.polls, id)
	s.mu.Unlock()
	return last, nil
}

func (s *Store) Cast(ctx context.Context, vote *domain.Vote) (*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(vote.PollID)
	if !ok {
		return nil, domain.ErrPollNotFound
	}

	e.lock.RLock()
	defer e.lock.RUnlock()
	if e.deleted {
		return nil, domain.ErrPollNotFound
	}
	if !e.poll.IsActive() {
		return nil, domain.ErrPollClosed
	}
	if !e.poll.ValidOption(vote.OptionIndex) {
		return nil, domain.ErrInvalidOption
	}

	stored := *vote
	if _, loaded := e.votes.LoadOrStore(vote.VoterID, &stored); loaded {
		return nil, domain.ErrAlreadyVoted
	}
	e.counts[vote.OptionIndex].Add(1)
	return e.snapshot(), nil
}

func (s *Store) GetVote(ctx context.Context, pollID, voterID uuid.UUID) (*domain.Vote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(pollID)
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	e.lock.RLock()
	defer e.lock.RUnlock()
	if e.deleted {
		return nil, domain.ErrPollNotFound
	}
	v, ok := e.votes.Load(voterID)
	if !ok {
		return nil, domain.ErrVoteNotFound
	}
	vote := *v.(*domain.Vote)
	return &vote, nil
}

// CheckTally holds the poll lock exclusively, which waits out every cast in
// flight and keeps new ones from starting until both sides are read.
func (s *Store) CheckTally(ctx context.Context, pollID uuid.UUID) ([]domain.OptionTally, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(pollID)
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.deleted {
		return nil, domain.ErrPollNotFound
	}

	ledger := e.ledgerCounts()
	out := make([]domain.OptionTally, len(e.counts))
	for i := range e.counts {
		out[i] = domain.OptionTally{OptionIndex: i, Counter: e.counts[i].Load(), Ledger: ledger[i]}
	}
	return out, nil
}

func (e *pollEntry) ledgerCounts() map[int]int64 {
	out := make(map[int]int64)
	e.votes.Range(func(_, v any) bool {
		out[v.(*domain.Vote).OptionIndex]++
		return true
	})
	return out
}

func (s *Store) Recount(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := s.entry(pollID)
	if !ok {
		return nil, domain.ErrPollNotFound
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.deleted {
		return nil, domain.ErrPollNotFound
	}

	ledger := e.ledgerCounts()
	var oldTotal, newTotal int64
	changed := false
	for i := range e.counts {
		c := e.counts[i].Load()
		oldTotal += c
		newTotal += ledger[i]
		if c != ledger[i] {
			changed = true
			e.counts[i].Store(ledger[i])
		}
	}
	if changed {
		e.poll.Revision += domain.RepairBump(oldTotal, newTotal)
	}
	return e.snapshot(), nil
}

// corruptCounter overwrites a counter without touching the ledger. Tests use it to
// exercise reconciliation.
func (s *Store) corruptCounter(pollID uuid.UUID, index int, value int64) {
	if e, ok := s.entry(pollID); ok {
		e.counts[index].Store(value)
	}
}
