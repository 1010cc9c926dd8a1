package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
	"github.com/vncsmyrnk/poll-ledger/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type TallyOptions struct {
	Concurrency int
	// Repair rewrites counters that disagree with the ledger.
	Repair bool
}

type tallyService struct {
	pollRepo  ports.PollRepository
	tallyRepo ports.TallyRepository
	publisher ports.Publisher
	opts      TallyOptions
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewTallyService builds the reconciler. publisher may be nil; when set, every
// repaired poll is announced so subscribers pick up the corrected tally.
func NewTallyService(pollRepo ports.PollRepository, tallyRepo ports.TallyRepository, publisher ports.Publisher, opts TallyOptions, log *logger.Logger, m *metrics.Metrics) ports.TallyService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &tallyService{
		pollRepo:  pollRepo,
		tallyRepo: tallyRepo,
		publisher: publisher,
		opts:      opts,
		log:       log,
		metrics:   m,
	}
}

func (s *tallyService) Reconcile(ctx context.Context) ([]domain.TallyDrift, error) {
	ids, err := s.pollRepo.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch all polls: %w", err)
	}

	var (
		mu     sync.Mutex
		drifts []domain.TallyDrift
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			d, err := s.ReconcilePoll(gctx, id)
			if errors.Is(err, domain.ErrPollNotFound) {
				// Deleted since ListIDs.
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to reconcile poll %s: %w", id, err)
			}
			mu.Lock()
			drifts = append(drifts, d...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return drifts, err
	}

	sort.Slice(drifts, func(i, j int) bool {
		if drifts[i].PollID != drifts[j].PollID {
			return drifts[i].PollID.String() < drifts[j].PollID.String()
		}
		return drifts[i].OptionIndex < drifts[j].OptionIndex
	})
	return drifts, nil
}

func (s *tallyService) ReconcilePoll(ctx context.Context, pollID uuid.UUID) ([]domain.TallyDrift, error) {
	tallies, err := s.tallyRepo.CheckTally(ctx, pollID)
	if err != nil {
		return nil, err
	}

	var drifts []domain.TallyDrift
	for _, t := range tallies {
		if t.Counter != t.Ledger {
			drifts = append(drifts, domain.TallyDrift{
				PollID:      pollID,
				OptionIndex: t.OptionIndex,
				Counter:     t.Counter,
				Ledger:      t.Ledger,
			})
		}
	}
	if len(drifts) == 0 {
		return nil, nil
	}

	s.metrics.TallyDrift(len(drifts))
	log := s.log.WithContext(ctx).With(zap.String("poll_id", pollID.String()))
	log.Warn("tally drift detected", zap.Int("options", len(drifts)))

	if !s.opts.Repair {
		return drifts, nil
	}
	poll, err := s.tallyRepo.Recount(ctx, pollID)
	if err != nil {
		return drifts, fmt.Errorf("failed to recount poll %s: %w", pollID, err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, domain.NewPollEvent(domain.EventPollUpdated, poll)); err != nil {
			log.Error("failed to publish repaired tally", zap.Error(err))
		}
	}
	return drifts, nil
}
