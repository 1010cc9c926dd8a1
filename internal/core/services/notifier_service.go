package services

import (
	"context"
	"errors"
	"sync"

	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
	"github.com/vncsmyrnk/poll-ledger/internal/core/ports"
	"github.com/vncsmyrnk/poll-ledger/internal/logger"
	"github.com/vncsmyrnk/poll-ledger/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrSubscriberLagged closes a subscription whose buffer filled up. The
	// consumer should re-list and subscribe again.
	ErrSubscriberLagged = errors.New("subscriber fell behind")
	ErrBrokerClosed     = errors.New("broker closed")
	ErrSubscriptionDone = errors.New("subscription closed")
)

const DefaultSubscriberBuffer = 64

// Broker fans poll events out to in-process subscribers, one channel each.
// Publish never blocks on a slow consumer.
type Broker struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	buffer  int
	closed  bool
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewBroker(buffer int, log *logger.Logger, m *metrics.Metrics) *Broker {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Broker{
		subs:    make(map[*subscription]struct{}),
		buffer:  buffer,
		log:     log,
		metrics: m,
	}
}

func (b *Broker) Subscribe(ctx context.Context, filter ports.Filter) (ports.Subscription, error) {
	sub := &subscription{
		filter: filter,
		ch:     make(chan domain.PollEvent, b.buffer),
		broker: b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	b.metrics.SubscriberAdded()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done():
		}
	}()
	return sub, nil
}

func (b *Broker) Publish(ctx context.Context, ev domain.PollEvent) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	var lagged []*subscription
	for sub := range b.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		if !sub.deliver(ev) {
			lagged = append(lagged, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range lagged {
		b.log.WithContext(ctx).Warn("dropping lagged subscriber",
			zap.String("scope", string(sub.filter.Scope)),
			zap.String("viewer_id", sub.filter.ViewerID.String()))
		sub.closeWith(ErrSubscriberLagged)
	}
	return nil
}

func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription with ErrBrokerClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.closeWith(ErrBrokerClosed)
	}
}

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		b.metrics.SubscriberRemoved()
	}
}

type subscription struct {
	filter ports.Filter
	broker *Broker

	mu     sync.Mutex
	ch     chan domain.PollEvent
	closed bool
	err    error
	doneCh chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan domain.PollEvent {
	return s.ch
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() {
	s.closeWith(ErrSubscriptionDone)
}

func (s *subscription) done() <-chan struct{} {
	s.once.Do(func() { s.doneCh = make(chan struct{}) })
	return s.doneCh
}

// deliver reports false when the buffer is full.
func (s *subscription) deliver(ev domain.PollEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *subscription) closeWith(err error) {
	s.done()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	close(s.doneCh)
	s.mu.Unlock()

	s.broker.remove(s)
}
