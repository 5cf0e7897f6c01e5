// Package renosim provides a discrete-event simulator of a single TCP
// connection over a lossy point-to-point link.
package renosim

import "gitlab.com/akita/akita/v3/sim"

// Flags is a bitset of the TCP control flags a segment can carry.
type Flags uint8

// The flags modeled by the simulator.
const (
	FlagSYN Flags = 1 << iota
	FlagACK
	FlagFIN
)

// FlagNone is the empty flag set, carried by plain data segments.
const FlagNone Flags = 0

// Has reports whether any flag in mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask != 0
}

// A Segment is one TCP segment on the wire. Segments are value types; once
// handed to the link for delivery they are never mutated.
type Segment struct {
	Seq   uint32
	Ack   uint32
	Flags Flags

	// Len is the payload length in bytes, header excluded.
	Len uint16

	// WireSize is payload plus header bytes. It is filled in by the
	// connection at delivery time and only affects serialization delay.
	WireSize int
}

// SeqSpace returns the amount of sequence-number space the segment consumes.
// SYN and FIN each consume one unit in addition to the payload.
func (s Segment) SeqSpace() uint32 {
	n := uint32(s.Len)
	if s.Flags.Has(FlagSYN) {
		n++
	}
	if s.Flags.Has(FlagFIN) {
		n++
	}
	return n
}

// A SegmentMsg represents one segment in flight between the two endpoints.
type SegmentMsg struct {
	sim.MsgMeta
	Segment Segment
}

// Meta returns the meta data of the message.
func (m *SegmentMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}
