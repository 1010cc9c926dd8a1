package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
	"github.com/vncsmyrnk/poll-ledger/internal/metrics"
	"go.uber.org/zap"
)

type pollService struct {
	repo      ports.PollRepository
	publisher ports.Publisher
	log       *logger.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

func NewPollService(repo ports.PollRepository, publisher ports.Publisher, log *logger.Logger, m *metrics.Metrics) ports.PollService {
	return &pollService{
		repo:      repo,
		publisher: publisher,
		log:       log,
		metrics:   m,
		clock:     time.Now,
	}
}

func (s *pollService) Create(ctx context.Context, ownerID uuid.UUID, input ports.CreatePollInput) (*domain.Poll, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}

	options, err := normalizeOptions(input.Options)
	if err != nil {
		return nil, err
	}

	poll := &domain.Poll{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Options:     options,
		Status:      domain.PollStatusActive,
		CreatedAt:   s.clock().UTC(),
	}
	poll.SetTally(nil)

	if err := s.repo.Save(ctx, poll); err != nil {
		s.log.WithContext(ctx).Error("failed to save poll", zap.Error(err))
		return nil, fmt.Errorf("failed to create poll: %w", err)
	}
	s.metrics.PollCreated()

	s.publish(ctx, domain.NewPollEvent(domain.EventPollInserted, poll))
	return poll, nil
}

// normalizeOptions trims, drops blanks and rejects duplicates.
func normalizeOptions(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	options := make([]string, 0, len(raw))
	for _, opt := range raw {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		if _, dup := seen[opt]; dup {
			return nil, domain.ErrDuplicateOption
		}
		seen[opt] = struct{}{}
		options = append(options, opt)
	}
	if len(options) < 2 {
		return nil, domain.ErrNotEnoughOptions
	}
	return options, nil
}

func (s *pollService) GetPoll(ctx context.Context, id string) (*domain.Poll, error) {
	pollID, err := parsePollID(id)
	if err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, pollID)
}

func (s *pollService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Poll, error) {
	polls, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list polls by owner: %w", err)
	}
	return polls, nil
}

func (s *pollService) ListActiveExcludingOwner(ctx context.Context, viewerID uuid.UUID) ([]*domain.Poll, error) {
	polls, err := s.repo.ListActiveExcludingOwner(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list community polls: %w", err)
	}
	return polls, nil
}

func (s *pollService) SetStatus(ctx context.Context, id string, requesterID uuid.UUID, status domain.PollStatus) (*domain.Poll, error) {
	pollID, err := parsePollID(id)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	poll, err := s.repo.UpdateStatus(ctx, pollID, requesterID, status)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.NewPollEvent(domain.EventPollUpdated, poll))
	return poll, nil
}

func (s *pollService) Delete(ctx context.Context, id string, requesterID uuid.UUID) error {
	pollID, err := parsePollID(id)
	if err != nil {
		return err
	}

	poll, err := s.repo.Delete(ctx, pollID, requesterID)
	if err != nil {
		return err
	}
	s.metrics.PollDeleted()
	s.log.WithContext(ctx).Info("poll deleted", zap.String("poll_id", pollID.String()))

	s.publish(ctx, domain.NewPollEvent(domain.EventPollDeleted, poll))
	return nil
}

func (s *pollService) publish(ctx context.Context, ev domain.PollEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithContext(ctx).Error("failed to publish poll event",
			zap.String("type", string(ev.Type)),
			zap.String("poll_id", ev.Poll.ID.String()),
			zap.Error(err))
	}
}

func parsePollID(id string) (uuid.UUID, error) {
	pollID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidPollID
	}
	return pollID, nil
}
