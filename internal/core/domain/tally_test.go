package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairBumpKeepsVersionRising(t *testing.T) {
	cases := []struct{ oldTotal, newTotal int64 }{
		{9, 2},
		{2, 9},
		{3, 3},
		{0, 0},
	}
	for _, c := range cases {
		before := int64(4) + c.oldTotal
		after := int64(4) + RepairBump(c.oldTotal, c.newTotal) + c.newTotal
		assert.Greater(t, after, before, "old=%d new=%d", c.oldTotal, c.newTotal)
	}
}
