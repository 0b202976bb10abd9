package listener

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGapTracker_FirstObservationIsBaseline(t *testing.T) {
	var g GapTracker

	_, seen := g.LastSeen()
	assert.False(t, seen)

	// Starting mid-stream reports no loss
	assert.Zero(t, g.Observe(42))
	assert.Zero(t, g.TotalLost())

	last, seen := g.LastSeen()
	assert.True(t, seen)
	assert.Equal(t, uint32(42), last)
}

func TestGapTracker_InOrderReportsNoLoss(t *testing.T) {
	var g GapTracker

	for seq := uint32(0); seq < 5; seq++ {
		assert.Zero(t, g.Observe(seq))
	}
	assert.Zero(t, g.TotalLost())
}

func TestGapTracker_GapCountsIntervening(t *testing.T) {
	var g GapTracker

	g.Observe(0)
	g.Observe(1)
	g.Observe(2)
	// 3 and 4 lost
	assert.Equal(t, uint64(2), g.Observe(5))
	assert.Zero(t, g.Observe(6))
	assert.Equal(t, uint64(2), g.TotalLost())
}

func TestGapTracker_DuplicateReportsNoLoss(t *testing.T) {
	var g GapTracker

	g.Observe(10)
	assert.Zero(t, g.Observe(10))
	assert.Zero(t, g.TotalLost())
}

func TestGapTracker_SequenceWraparound(t *testing.T) {
	var g GapTracker

	g.Observe(math.MaxUint32 - 1)
	assert.Zero(t, g.Observe(math.MaxUint32))
	// Direct successor across the wrap point
	assert.Zero(t, g.Observe(0))

	// Sequence 0 lost across the wrap
	var g2 GapTracker
	g2.Observe(math.MaxUint32)
	assert.Equal(t, uint64(1), g2.Observe(1))
	assert.Equal(t, uint64(1), g2.TotalLost())
}
