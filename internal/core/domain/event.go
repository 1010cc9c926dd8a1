package domain

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventPollInserted EventType = "poll.inserted"
	EventPollUpdated  EventType = "poll.updated"
	EventPollDeleted  EventType = "poll.deleted"
)

// PollEvent carries the full poll record, never a delta.
type PollEvent struct {
	Type       EventType `json:"type"`
	Poll       *Poll     `json:"poll"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewPollEvent(t EventType, p *Poll) PollEvent {
	return PollEvent{
		Type:       t,
		Poll:       p.Clone(),
		Version:    p.Version(),
		OccurredAt: time.Now().UTC(),
	}
}

// PollCache is the consumer side of the change feed. Incoming state replaces the
// cached copy for that id; stale and duplicate events are dropped.
type PollCache struct {
	mu      sync.RWMutex
	polls   map[uuid.UUID]*Poll
	deleted map[uuid.UUID]struct{}
}

func NewPollCache(initial ...*Poll) *PollCache {
	c := &PollCache{
		polls:   make(map[uuid.UUID]*Poll),
		deleted: make(map[uuid.UUID]struct{}),
	}
	for _, p := range initial {
		c.polls[p.ID] = p.Clone()
	}
	return c
}

// Apply merges ev and reports whether the cache changed.
func (c *PollCache) Apply(ev PollEvent) bool {
	if ev.Poll == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	id := ev.Poll.ID
	if _, gone := c.deleted[id]; gone {
		return false
	}
	if ev.Type == EventPollDeleted {
		c.deleted[id] = struct{}{}
		_, had := c.polls[id]
		delete(c.polls, id)
		return had
	}

	if cur, ok := c.polls[id]; ok && cur.Version() >= ev.Version {
		return false
	}
	p := ev.Poll.Clone()
	p.SetTally(ev.Poll.Votes)
	c.polls[id] = p
	return true
}

func (c *PollCache) Get(id uuid.UUID) (*Poll, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.polls[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// List returns cached polls newest first.
func (c *PollCache) List() []*Poll {
	c.mu.RLock()
	out := make([]*Poll, 0, len(c.polls))
	for _, p := range c.polls {
		out = append(out, p.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
