package tcpflow

import (
	"gitlab.com/akita/akita/v3/sim"

	"github.com/sarchlab/renosim"
)

// EndpointID identifies one side of the connection.
type EndpointID int

// The two sides of a connection.
const (
	// EndpointA is the client and the sender of the bulk data.
	EndpointA EndpointID = iota
	// EndpointB is the server; it echoes cumulative ACKs.
	EndpointB
)

// Peer returns the other side.
func (id EndpointID) Peer() EndpointID {
	if id == EndpointA {
		return EndpointB
	}
	return EndpointA
}

func (id EndpointID) String() string {
	if id == EndpointA {
		return "A"
	}
	return "B"
}

// An Endpoint holds the sender and receiver state of one side of the
// connection. The connection owns both endpoints; an endpoint reaches its
// peer through the connection.
type Endpoint struct {
	id   EndpointID
	conn *Connection

	// Receiver state.
	rcvNxt uint32

	// Sender state.
	iss      uint32
	sndUna   uint32
	sndNxt   uint32
	cwnd     uint32
	ssthresh uint32
	dupacks  uint32
	mss      uint32
	rwnd     uint32

	established bool
	finSent     bool
	finAcked    bool

	// Retransmission timer. A single logical timer per endpoint; stale
	// scheduled fires are invalidated by deadline comparison.
	rto           sim.VTimeInSec
	timerRunning  bool
	timerDeadline sim.VTimeInSec

	// Application byte budget. Only A sends data.
	appBytesTotal int
	appBytesSent  int

	// Counters.
	retransmits       int
	totalSegmentsSent int
	totalAcksReceived int
}

// startClient opens the connection by sending the SYN. The SYN consumes one
// unit of sequence space.
func (ep *Endpoint) startClient() {
	ep.sendSegment(ep.iss, 0, renosim.FlagSYN)
	ep.sndNxt = ep.iss + 1
	ep.armTimer()
}

// onSegment processes one arriving segment.
func (ep *Endpoint) onSegment(seg renosim.Segment) {
	if seg.Flags.Has(renosim.FlagSYN) && !seg.Flags.Has(renosim.FlagACK) {
		// Passive open: reply SYN-ACK with our ISN.
		ep.rcvNxt = seg.Seq + 1
		out := renosim.Segment{
			Seq:   serverISN,
			Ack:   ep.rcvNxt,
			Flags: renosim.FlagSYN | renosim.FlagACK,
		}
		ep.conn.deliver(ep.id, ep.id.Peer(), out)
		return
	}

	if seg.Flags.Has(renosim.FlagACK) && !ep.established {
		// Handshake completes when the SYN-ACK arrives at A or when A's
		// final ACK arrives at B. The ACK number is accepted by
		// construction here, not through the new-ACK path below.
		ep.established = true
		if ep.id == EndpointA {
			ep.rcvNxt = seg.Seq + 1
			finalAck := renosim.Segment{
				Seq:   ep.sndNxt,
				Ack:   ep.rcvNxt,
				Flags: renosim.FlagACK,
			}
			ep.conn.deliver(ep.id, EndpointB, finalAck)
			ep.trySendData()
		}
		return
	}

	if ep.id == EndpointB {
		if seg.Seq == ep.rcvNxt {
			ep.rcvNxt += uint32(seg.Len)
			if seg.Flags.Has(renosim.FlagFIN) {
				ep.rcvNxt++
			}
		}
		// Cumulative ACK regardless of ordering; out-of-order data is
		// dropped and the duplicate ACK drives fast retransmit at A.
		ack := renosim.Segment{
			Seq:   serverISN,
			Ack:   ep.rcvNxt,
			Flags: renosim.FlagACK,
		}
		ep.conn.deliver(ep.id, EndpointA, ack)
		return
	}

	if seg.Flags.Has(renosim.FlagACK) {
		ep.onAck(seg)
	}
}

// onAck classifies an ACK at the sender as new, duplicate, or stale.
func (ep *Endpoint) onAck(seg renosim.Segment) {
	switch {
	case seg.Ack > ep.sndUna:
		ep.onNewAck(seg)
	case seg.Ack == ep.sndUna && ep.sndUna < ep.sndNxt:
		ep.onDupAck()
	default:
		// Stale ACK, ignore.
	}
}

func (ep *Endpoint) onNewAck(seg renosim.Segment) {
	ep.totalAcksReceived++
	ep.sndUna = seg.Ack
	ep.dupacks = 0

	if ep.cwnd < ep.ssthresh {
		// Slow start.
		ep.cwnd += ep.mss
	} else {
		// Congestion avoidance, roughly one MSS per RTT.
		ep.cwnd += ep.mss * ep.mss / maxU32(1, ep.cwnd)
	}

	ep.cancelTimer()
	if ep.sndUna < ep.sndNxt {
		ep.armTimer()
	}
	ep.trySendData()

	if ep.finSent && seg.Ack == ep.sndNxt {
		ep.finAcked = true
	}
}

func (ep *Endpoint) onDupAck() {
	ep.dupacks++

	if ep.dupacks == 3 {
		// Fast retransmit.
		ep.ssthresh = maxU32(2*ep.mss, ep.cwnd/2)
		ep.cwnd = ep.ssthresh + 3*ep.mss
		ep.retransmits++
		ep.sendSegment(ep.sndUna, uint16(ep.mss), renosim.FlagNone)
		ep.armTimer()
	} else if ep.dupacks > 3 {
		// Window inflation keeps new data flowing during recovery. The
		// next new ACK resumes normal growth without deflating.
		ep.cwnd += ep.mss
		ep.trySendData()
	}
}

// trySendData sends as much as the window allows, then the FIN once the
// application budget is drained.
func (ep *Endpoint) trySendData() {
	if ep.id != EndpointA || !ep.established {
		return
	}

	for {
		flight := ep.sndNxt - ep.sndUna
		allowed := minU32(ep.cwnd, ep.rwnd)
		if flight >= allowed {
			return
		}

		switch {
		case ep.appBytesSent < ep.appBytesTotal:
			can := minU32(allowed-flight, ep.mss)
			remaining := minU32(
				ep.mss, uint32(ep.appBytesTotal-ep.appBytesSent))
			length := minU32(can, remaining)
			if length == 0 {
				return
			}
			ep.sendSegment(ep.sndNxt, uint16(length), renosim.FlagNone)
			if !ep.timerRunning {
				ep.armTimer()
			}
			ep.sndNxt += length
			ep.appBytesSent += int(length)
		case !ep.finSent:
			// All data queued; FIN consumes one unit of sequence space.
			ep.sendSegment(ep.sndNxt, 0, renosim.FlagFIN)
			ep.sndNxt++
			ep.finSent = true
			if !ep.timerRunning {
				ep.armTimer()
			}
		default:
			return
		}
	}
}

// sendSegment hands a freshly built segment to the connection for delivery.
func (ep *Endpoint) sendSegment(seq uint32, length uint16, fl renosim.Flags) {
	seg := renosim.Segment{Seq: seq, Len: length, Flags: fl}
	if fl.Has(renosim.FlagACK) {
		seg.Ack = ep.rcvNxt
	}

	if ep.id == EndpointA {
		ep.totalSegmentsSent++
	}

	ep.conn.deliver(ep.id, ep.id.Peer(), seg)
}

// armTimer records a new deadline and schedules a fire for it. Any earlier
// scheduled fire is left in the queue; its deadline no longer matches, so
// it validates as stale.
func (ep *Endpoint) armTimer() {
	ep.timerRunning = true
	ep.timerDeadline = ep.conn.CurrentTime() + ep.rto
	ep.conn.Schedule(rtoFireEvent{
		time:     ep.timerDeadline,
		handler:  ep.conn,
		endpoint: ep.id,
	})
}

// cancelTimer clears the running flag. No queue surgery; the pending fire
// becomes a no-op.
func (ep *Endpoint) cancelTimer() {
	ep.timerRunning = false
}

// onTimeout collapses the window to one MSS, backs off the RTO, and
// retransmits the oldest unacknowledged segment.
func (ep *Endpoint) onTimeout() {
	ep.ssthresh = maxU32(2*ep.mss, ep.cwnd/2)
	ep.cwnd = ep.mss
	ep.rto = minTime(maxRTO, ep.rto*2)
	ep.dupacks = 0
	ep.retransmits++

	outstanding := ep.sndNxt - ep.sndUna
	length := ep.mss
	if outstanding != 0 && outstanding < length {
		length = outstanding
	}
	ep.sendSegment(ep.sndUna, uint16(length), renosim.FlagNone)
	ep.armTimer()
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func minTime(a, b sim.VTimeInSec) sim.VTimeInSec {
	if a < b {
		return a
	}
	return b
}
