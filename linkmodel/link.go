// Package linkmodel provides a performance model for a lossy point-to-point
// link that connects the two endpoints.
package linkmodel

import (
	"math/rand"

	"gitlab.com/akita/akita/v3/sim"
)

// DefaultSeed is the loss-process seed used when the caller does not pick
// one. It is fixed so that default runs are reproducible.
const DefaultSeed = 12345

// A Link is a point-to-point link with finite bandwidth, a fixed one-way
// propagation delay, and independent Bernoulli loss per delivery.
type Link struct {
	BandwidthBps float64
	PropDelay    sim.VTimeInSec
	LossProb     float64

	rng *rand.Rand
}

// NewLink creates a Link. Each link owns its PRNG so that concurrent
// simulations in one process stay deterministic and independent.
func NewLink(
	bandwidthBps float64,
	propDelay sim.VTimeInSec,
	lossProb float64,
	seed int64,
) *Link {
	if bandwidthBps <= 0 {
		panic("link bandwidth must be positive")
	}
	if propDelay < 0 {
		panic("propagation delay must be non-negative")
	}
	if lossProb < 0 || lossProb > 1 {
		panic("loss probability must be within [0, 1]")
	}

	return &Link{
		BandwidthBps: bandwidthBps,
		PropDelay:    propDelay,
		LossProb:     lossProb,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// XmitDelay returns the serialization delay of a frame of the given size,
// headers included.
func (l *Link) XmitDelay(bytes int) sim.VTimeInSec {
	return sim.VTimeInSec(float64(bytes) * 8.0 / l.BandwidthBps)
}

// Lost samples the loss process for one delivery. Every call consumes one
// draw, whether or not the delivery is lost.
func (l *Link) Lost() bool {
	return l.rng.Float64() < l.LossProb
}
