package domain

import (
	"github.com/google/uuid"
)

// OptionTally pairs the maintained counter of one option with the number of
// ledger rows for it, both taken from the same read.
type OptionTally struct {
	OptionIndex int
	Counter     int64
	Ledger      int64
}

// RepairBump is how far Revision must rise when counters summing to oldTotal
// are rewritten to sum to newTotal, so the repaired snapshot's Version is
// greater than any Version published before the repair.
func RepairBump(oldTotal, newTotal int64) int64 {
	if oldTotal > newTotal {
		return oldTotal - newTotal + 1
	}
	return 1
}

// TallyDrift records a counter that disagreed with the ledger during reconciliation.
type TallyDrift struct {
	PollID      uuid.UUID `json:"poll_id"`
	OptionIndex int       `json:"option_index"`
	Counter     int64     `json:"counter"`
	Ledger      int64     `json:"ledger"`
}
