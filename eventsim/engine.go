// Package eventsim provides a deterministic serial engine that drives
// simulation components through akita events.
package eventsim

import (
	"container/heap"
	"fmt"
	"math"

	"gitlab.com/akita/akita/v3/sim"
)

// A queuedEvent pairs an event with its insertion sequence number. The
// sequence number breaks deadline ties so that equal-time events dispatch
// in FIFO order.
type queuedEvent struct {
	evt sim.Event
	seq uint64
}

type eventQueue []queuedEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].evt.Time() != q[j].evt.Time() {
		return q[i].evt.Time() < q[j].evt.Time()
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x interface{}) {
	*q = append(*q, x.(queuedEvent))
}

func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// A SerialEngine runs events one at a time in non-decreasing virtual time.
// It implements sim.EventScheduler and sim.TimeTeller.
type SerialEngine struct {
	now     sim.VTimeInSec
	queue   eventQueue
	nextSeq uint64
}

// NewSerialEngine creates a SerialEngine with an empty queue at time zero.
func NewSerialEngine() *SerialEngine {
	return &SerialEngine{}
}

// CurrentTime returns the current virtual time.
func (e *SerialEngine) CurrentTime() sim.VTimeInSec {
	return e.now
}

// EventCount returns the number of events still pending.
func (e *SerialEngine) EventCount() int {
	return e.queue.Len()
}

// Schedule adds an event to the queue. Scheduling an event in the past is a
// programmer error.
func (e *SerialEngine) Schedule(evt sim.Event) {
	if evt.Time() < e.now {
		panic(fmt.Sprintf(
			"cannot schedule event at %.9f, current time is %.9f",
			float64(evt.Time()), float64(e.now)))
	}

	heap.Push(&e.queue, queuedEvent{evt: evt, seq: e.nextSeq})
	e.nextSeq++
}

// Run dispatches events in deadline order until the queue drains. An error
// from a handler aborts the run.
func (e *SerialEngine) Run() error {
	return e.RunUntil(sim.VTimeInSec(math.Inf(1)))
}

// RunUntil dispatches events until the queue drains or the next event lies
// beyond the deadline. The event past the deadline stays in the queue and
// virtual time does not advance to it.
func (e *SerialEngine) RunUntil(deadline sim.VTimeInSec) error {
	for e.queue.Len() > 0 {
		if e.queue[0].evt.Time() > deadline {
			return nil
		}

		qe := heap.Pop(&e.queue).(queuedEvent)
		e.now = qe.evt.Time()

		if err := qe.evt.Handler().Handle(qe.evt); err != nil {
			return err
		}
	}

	return nil
}
