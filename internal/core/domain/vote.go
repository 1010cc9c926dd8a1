package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote is one ledger entry. Identity is (PollID, VoterID).
type Vote struct {
	PollID      uuid.UUID `json:"poll_id"`
	VoterID     uuid.UUID `json:"voter_id"`
	OptionIndex int       `json:"option_index"`
	CastAt      time.Time `json:"cast_at"`
}
