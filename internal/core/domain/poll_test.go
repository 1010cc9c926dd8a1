package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollSetTally(t *testing.T) {
	p := &Poll{Options: []string{"Red", "Blue", "Green"}}

	p.SetTally([]int64{2, 1})
	assert.Equal(t, []int64{2, 1, 0}, p.Votes)
	assert.Equal(t, int64(3), p.TotalVotes)

	p.SetTally(nil)
	assert.Equal(t, []int64{0, 0, 0}, p.Votes)
	assert.Zero(t, p.TotalVotes)
}

func TestPollPercentages(t *testing.T) {
	p := &Poll{Options: []string{"Red", "Blue", "Green"}}
	p.SetTally(nil)
	assert.Equal(t, []float64{0, 0, 0}, p.Percentages())

	p.SetTally([]int64{2, 1, 1})
	assert.Equal(t, []float64{50, 25, 25}, p.Percentages())

	sum := 0.0
	p.SetTally([]int64{1, 1, 1})
	for _, v := range p.Percentages() {
		sum += v
	}
	assert.InDelta(t, 100, sum, 1e-9)
}

func TestPollValidOption(t *testing.T) {
	p := &Poll{Options: []string{"a", "b"}}
	assert.True(t, p.ValidOption(0))
	assert.True(t, p.ValidOption(1))
	assert.False(t, p.ValidOption(2))
	assert.False(t, p.ValidOption(-1))
}

func TestPollVersionGrows(t *testing.T) {
	p := &Poll{Options: []string{"a", "b"}}
	p.SetTally(nil)
	v0 := p.Version()

	p.SetTally([]int64{1, 0})
	v1 := p.Version()
	assert.Greater(t, v1, v0)

	p.Revision++
	assert.Greater(t, p.Version(), v1)
}

func TestPollCloneIsDeep(t *testing.T) {
	p := &Poll{ID: uuid.New(), Options: []string{"a", "b"}}
	p.SetTally([]int64{1, 2})

	c := p.Clone()
	c.Options[0] = "changed"
	c.Votes[0] = 99

	require.Equal(t, "a", p.Options[0])
	require.Equal(t, int64(1), p.Votes[0])
}

func TestPollStatusValid(t *testing.T) {
	assert.True(t, PollStatusActive.Valid())
	assert.True(t, PollStatusClosed.Valid())
	assert.False(t, PollStatus("archived").Valid())
}

func TestPollSameDefinition(t *testing.T) {
	p := &Poll{ID: uuid.New(), OwnerID: uuid.New(), Title: "Best color?", Options: []string{"Red", "Blue"}}

	stored := p.Clone()
	stored.Status = PollStatusClosed
	stored.Revision = 3
	stored.SetTally([]int64{4, 1})
	assert.True(t, p.SameDefinition(stored))

	renamed := p.Clone()
	renamed.Options[1] = "Green"
	assert.False(t, p.SameDefinition(renamed))

	other := p.Clone()
	other.OwnerID = uuid.New()
	assert.False(t, p.SameDefinition(other))
}
