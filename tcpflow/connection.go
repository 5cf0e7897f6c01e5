package tcpflow

import (
	"reflect"

	"gitlab.com/akita/akita/v3/sim"

	"github.com/sarchlab/renosim"
	"github.com/sarchlab/renosim/linkmodel"
)

// Protocol parameters. The sequence numbers and window sizes follow the
// classic Reno teaching configuration.
const (
	defaultMSS      = 1000
	defaultRWND     = 1 << 30
	initialSsthresh = 65535

	clientISS = 1000
	serverISN = 5000

	headerBytes = 40

	initialRTO = sim.VTimeInSec(1.0)
	maxRTO     = sim.VTimeInSec(4.0)
)

// A Connection owns the two endpoints and the link between them. It turns
// every send into a loss trial plus a scheduled arrival event at the peer,
// and it handles those events along with the endpoints' timer fires.
type Connection struct {
	sim.TimeTeller
	sim.EventScheduler

	link *linkmodel.Link

	a, b Endpoint

	totalPacketsSent    int
	totalPacketsDropped int

	// lastArrival holds the latest arrival time scheduled toward each
	// endpoint, so that the link never reorders segments.
	lastArrival [2]sim.VTimeInSec
}

// NewConnection creates a Connection moving appBytes of application data
// from A to B over the given link.
func NewConnection(
	tt sim.TimeTeller,
	es sim.EventScheduler,
	link *linkmodel.Link,
	appBytes int,
) *Connection {
	c := &Connection{
		TimeTeller:     tt,
		EventScheduler: es,
		link:           link,
	}

	c.a = Endpoint{
		id:            EndpointA,
		conn:          c,
		iss:           clientISS,
		sndUna:        clientISS,
		sndNxt:        clientISS,
		cwnd:          defaultMSS,
		ssthresh:      initialSsthresh,
		mss:           defaultMSS,
		rwnd:          defaultRWND,
		rto:           initialRTO,
		appBytesTotal: appBytes,
	}
	c.b = Endpoint{
		id:     EndpointB,
		conn:   c,
		rcvNxt: serverISN,
		mss:    defaultMSS,
		rwnd:   defaultRWND,
		rto:    initialRTO,
	}

	return c
}

// Endpoint returns one side of the connection.
func (c *Connection) Endpoint(id EndpointID) *Endpoint {
	if id == EndpointA {
		return &c.a
	}
	return &c.b
}

// StartClient begins the three-way handshake from A.
func (c *Connection) StartClient() {
	c.a.startClient()
}

// Handle dispatches the connection's scheduled events.
func (c *Connection) Handle(e sim.Event) error {
	switch e := e.(type) {
	case clientStartEvent:
		c.a.startClient()
	case segmentArrivalEvent:
		c.Endpoint(e.dst).onSegment(e.msg.Segment)
	case rtoFireEvent:
		ep := c.Endpoint(e.endpoint)
		if ep.timerRunning && c.CurrentTime() >= ep.timerDeadline {
			ep.onTimeout()
		}
	default:
		panic("Connection cannot handle event type " +
			reflect.TypeOf(e).String())
	}

	return nil
}

// deliver runs one segment through the link: it stamps the wire size, draws
// the loss trial, and schedules the arrival at the peer. A lost segment
// produces no arrival event at all. An arrival is never scheduled before an
// earlier segment's arrival at the same endpoint, so a short segment sent
// right after a long one does not overtake it.
func (c *Connection) deliver(src, dst EndpointID, seg renosim.Segment) {
	seg.WireSize = int(seg.Len) + headerBytes

	now := c.CurrentTime()
	arrival := now + c.link.XmitDelay(seg.WireSize) + c.link.PropDelay
	dropped := c.link.Lost()

	c.totalPacketsSent++
	if dropped {
		c.totalPacketsDropped++
		return
	}

	if arrival < c.lastArrival[dst] {
		arrival = c.lastArrival[dst]
	}
	c.lastArrival[dst] = arrival

	msg := &renosim.SegmentMsg{Segment: seg}
	msg.SendTime = now
	msg.RecvTime = arrival
	msg.TrafficBytes = seg.WireSize

	c.Schedule(segmentArrivalEvent{
		time:    arrival,
		handler: c,
		dst:     dst,
		msg:     msg,
	})
}
