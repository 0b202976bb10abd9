package listener

import (
	"github.com/c360/diodeflow/envelope"
)

// GapTracker infers datagram loss from the sequence numbers of arriving
// envelopes. It is owned by the read loop and is not safe for concurrent use.
//
// The first envelope seen establishes the baseline and reports no loss: the
// receiver may start mid-stream, and numbering before the first arrival is
// unknowable. After that, each observation reports the count of sequence
// numbers skipped since the previous arrival in modulo-2^32 arithmetic, so a
// late reordered datagram is counted as lost rather than producing a huge
// bogus gap.
type GapTracker struct {
	initialized bool
	last        uint32
	totalLost   uint64
}

// Observe records an arriving sequence number and returns how many envelopes
// were newly inferred lost.
func (g *GapTracker) Observe(seq uint32) uint64 {
	if !g.initialized {
		g.initialized = true
		g.last = seq
		return 0
	}

	lost := envelope.Gap(g.last, seq)
	g.last = seq
	g.totalLost += lost
	return lost
}

// TotalLost returns the cumulative inferred loss count.
func (g *GapTracker) TotalLost() uint64 {
	return g.totalLost
}

// LastSeen returns the most recent sequence number and whether any envelope
// has been observed yet.
func (g *GapTracker) LastSeen() (uint32, bool) {
	return g.last, g.initialized
}
