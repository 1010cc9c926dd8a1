package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/poll-ledger/internal/core/domain"
)

type Scope string

const (
	ScopeOwner  Scope = "owner"
	ScopeActive Scope = "active"
)

// Filter selects the polls a subscriber cares about, relative to ViewerID.
type Filter struct {
	Scope    Scope
	ViewerID uuid.UUID
}

type Publisher interface {
	Publish(ctx context.Context, event domain.PollEvent) error
}

type Notifier interface {
	Publisher
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}

type Subscription interface {
	Events() <-chan domain.PollEvent
	// Err is set once Events is closed.
	Err() error
	Close()
}

// Matches reports whether ev belongs to the filter's view. Community viewers
// also receive status changes and deletions so they can drop polls that left
// the active set.
func (f Filter) Matches(ev domain.PollEvent) bool {
	if ev.Poll == nil {
		return false
	}
	switch f.Scope {
	case ScopeOwner:
		return ev.Poll.OwnerID == f.ViewerID
	case ScopeActive:
		if ev.Poll.OwnerID == f.ViewerID {
			return false
		}
		return ev.Poll.IsActive() || ev.Type != domain.EventPollInserted
	default:
		return false
	}
}
