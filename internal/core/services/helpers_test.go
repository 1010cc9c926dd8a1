package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/core/services"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
)

// recorder is a Publisher that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []domain.PollEvent
}

func (r *recorder) Publish(_ context.Context, ev domain.PollEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) all() []domain.PollEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PollEvent(nil), r.events...)
}

type testEnv struct {
	store  *memory.Store
	events *recorder
	polls  ports.PollService
	votes  ports.VoteService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	events := &recorder{}
	return &testEnv{
		store:  store,
		events: events,
		polls:  services.NewPollService(store, events, logger.Nop(), nil),
		votes:  services.NewVoteService(store, events, logger.Nop(), nil),
	}
}

func (e *testEnv) createPoll(t *testing.T, owner uuid.UUID, options ...string) *domain.Poll {
	t.Helper()
	poll, err := e.polls.Create(context.Background(), owner, ports.CreatePollInput{
		Title:   "Best color?",
		Options: options,
	})
	require.NoError(t, err)
	// Keep created_at strictly increasing between polls.
	time.Sleep(time.Millisecond)
	return poll
}
