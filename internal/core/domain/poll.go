package domain

import (
	"time"

	"github.com/google/uuid"
)

type PollStatus string

const (
	PollStatusActive PollStatus = "active"
	PollStatusClosed PollStatus = "closed"
)

func (s PollStatus) Valid() bool {
	return s == PollStatusActive || s == PollStatusClosed
}

type Poll struct {
	ID          uuid.UUID  `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Options     []string   `json:"options"`
	Status      PollStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`

	// Revision increases on every status change and on every tally repair.
	// Vote casts never touch it.
	Revision int64 `json:"revision"`

	// Votes and TotalVotes are derived from the vote ledger and never written by clients.
	Votes      []int64 `json:"votes"`
	TotalVotes int64   `json:"total_votes"`
}

// Version orders snapshots of the same poll. Both terms only grow, so any
// committed change yields a strictly greater value.
func (p *Poll) Version() int64 {
	return p.Revision + p.TotalVotes
}

// SameDefinition reports whether o describes the same poll as p, ignoring
// status, revision and tally.
func (p *Poll) SameDefinition(o *Poll) bool {
	if p.ID != o.ID || p.OwnerID != o.OwnerID || p.Title != o.Title || p.Description != o.Description {
		return false
	}
	if len(p.Options) != len(o.Options) {
		return false
	}
	for i := range p.Options {
		if p.Options[i] != o.Options[i] {
			return false
		}
	}
	return true
}

func (p *Poll) IsActive() bool {
	return p.Status == PollStatusActive
}

func (p *Poll) ValidOption(index int) bool {
	return index >= 0 && index < len(p.Options)
}

// Percentages returns votes[i] / total * 100 per option, all zero for an empty tally.
func (p *Poll) Percentages() []float64 {
	out := make([]float64, len(p.Options))
	if p.TotalVotes == 0 {
		return out
	}
	for i := range out {
		if i < len(p.Votes) {
			out[i] = float64(p.Votes[i]) / float64(p.TotalVotes) * 100
		}
	}
	return out
}

// SetTally installs per-option counts and recomputes the total from them.
func (p *Poll) SetTally(counts []int64) {
	p.Votes = make([]int64, len(p.Options))
	copy(p.Votes, counts)
	p.TotalVotes = 0
	for _, c := range p.Votes {
		p.TotalVotes += c
	}
}

func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = append([]string(nil), p.Options...)
	c.Votes = append([]int64(nil), p.Votes...)
	return &c
}
