package tcpflow

import (
	"gitlab.com/akita/akita/v3/sim"

	"github.com/sarchlab/renosim"
)

// A clientStartEvent opens the connection from the client side at t=0.
type clientStartEvent struct {
	time    sim.VTimeInSec
	handler *Connection
}

// Time returns the time of the event.
func (e clientStartEvent) Time() sim.VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
func (e clientStartEvent) Handler() sim.Handler {
	return e.handler
}

// IsSecondary always returns false.
func (e clientStartEvent) IsSecondary() bool {
	return false
}

// A segmentArrivalEvent delivers a segment to its destination endpoint after
// the link transit delay has elapsed.
type segmentArrivalEvent struct {
	time    sim.VTimeInSec
	handler *Connection
	dst     EndpointID
	msg     *renosim.SegmentMsg
}

// Time returns the time of the event.
func (e segmentArrivalEvent) Time() sim.VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
func (e segmentArrivalEvent) Handler() sim.Handler {
	return e.handler
}

// IsSecondary always returns false.
func (e segmentArrivalEvent) IsSecondary() bool {
	return false
}

// A rtoFireEvent fires an endpoint's retransmission timer. The fire is
// validated against the endpoint's running flag and recorded deadline, so
// fires left behind by a cancelled or re-armed timer are no-ops.
type rtoFireEvent struct {
	time     sim.VTimeInSec
	handler  *Connection
	endpoint EndpointID
}

// Time returns the time of the event.
func (e rtoFireEvent) Time() sim.VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
func (e rtoFireEvent) Handler() sim.Handler {
	return e.handler
}

// IsSecondary always returns false.
func (e rtoFireEvent) IsSecondary() bool {
	return false
}

// A completionCheckEvent periodically re-evaluates the termination
// predicate and re-schedules itself while the connection is still moving.
type completionCheckEvent struct {
	time    sim.VTimeInSec
	handler *Simulation
}

// Time returns the time of the event.
func (e completionCheckEvent) Time() sim.VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
func (e completionCheckEvent) Handler() sim.Handler {
	return e.handler
}

// IsSecondary always returns false.
func (e completionCheckEvent) IsSecondary() bool {
	return false
}
