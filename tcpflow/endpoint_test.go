package tcpflow

import (
	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gitlab.com/akita/akita/v3/sim"

	"github.com/sarchlab/renosim"
	"github.com/sarchlab/renosim/linkmodel"
)

var _ = Describe("Endpoint", func() {
	var (
		mockCtrl *gomock.Controller
		tt       *MockTimeTeller
		es       *MockEventScheduler
		conn     *Connection
		a, b     *Endpoint

		scheduled []sim.Event
	)

	arrivals := func() []segmentArrivalEvent {
		var out []segmentArrivalEvent
		for _, e := range scheduled {
			if evt, ok := e.(segmentArrivalEvent); ok {
				out = append(out, evt)
			}
		}
		return out
	}

	timerFires := func() []rtoFireEvent {
		var out []rtoFireEvent
		for _, e := range scheduled {
			if evt, ok := e.(rtoFireEvent); ok {
				out = append(out, evt)
			}
		}
		return out
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		tt = NewMockTimeTeller(mockCtrl)
		es = NewMockEventScheduler(mockCtrl)

		link := linkmodel.NewLink(10e6, 0.025, 0, linkmodel.DefaultSeed)
		conn = NewConnection(tt, es, link, 10000)
		a = conn.Endpoint(EndpointA)
		b = conn.Endpoint(EndpointB)

		scheduled = nil
		tt.EXPECT().CurrentTime().Return(sim.VTimeInSec(0.0)).AnyTimes()
		es.EXPECT().
			Schedule(gomock.Any()).
			Do(func(e sim.Event) { scheduled = append(scheduled, e) }).
			AnyTimes()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("handshake", func() {
		It("should open with a SYN and arm the timer", func() {
			a.startClient()

			Expect(a.sndNxt).To(Equal(uint32(1001)))
			Expect(a.timerRunning).To(BeTrue())
			Expect(a.timerDeadline).To(Equal(sim.VTimeInSec(1.0)))

			segs := arrivals()
			Expect(segs).To(HaveLen(1))
			Expect(segs[0].dst).To(Equal(EndpointB))
			Expect(segs[0].msg.Segment.Seq).To(Equal(uint32(1000)))
			Expect(segs[0].msg.Segment.Flags).To(Equal(renosim.FlagSYN))
			Expect(timerFires()).To(HaveLen(1))
		})

		It("should answer a SYN with a SYN-ACK", func() {
			b.onSegment(renosim.Segment{Seq: 1000, Flags: renosim.FlagSYN})

			Expect(b.rcvNxt).To(Equal(uint32(1001)))
			Expect(b.established).To(BeFalse())

			segs := arrivals()
			Expect(segs).To(HaveLen(1))
			Expect(segs[0].dst).To(Equal(EndpointA))
			Expect(segs[0].msg.Segment.Seq).To(Equal(uint32(5000)))
			Expect(segs[0].msg.Segment.Ack).To(Equal(uint32(1001)))
			Expect(segs[0].msg.Segment.Flags).To(
				Equal(renosim.FlagSYN | renosim.FlagACK))
		})

		It("should complete the handshake at A and start the flow", func() {
			a.sndNxt = 1001
			a.sndUna = 1001

			a.onSegment(renosim.Segment{
				Seq:   5000,
				Ack:   1001,
				Flags: renosim.FlagSYN | renosim.FlagACK,
			})

			Expect(a.established).To(BeTrue())
			Expect(a.rcvNxt).To(Equal(uint32(5001)))

			segs := arrivals()
			// Final ACK first, then the first window of data.
			Expect(len(segs)).To(BeNumerically(">=", 2))
			Expect(segs[0].msg.Segment.Flags).To(Equal(renosim.FlagACK))
			Expect(segs[0].msg.Segment.Ack).To(Equal(uint32(5001)))
			Expect(segs[1].msg.Segment.Flags).To(Equal(renosim.FlagNone))
			Expect(segs[1].msg.Segment.Seq).To(Equal(uint32(1001)))
			Expect(segs[1].msg.Segment.Len).To(Equal(uint16(1000)))
			Expect(a.appBytesSent).To(Equal(1000))
		})

		It("should mark B established on the final ACK", func() {
			b.rcvNxt = 1001

			b.onSegment(renosim.Segment{
				Seq:   1001,
				Ack:   5001,
				Flags: renosim.FlagACK,
			})

			Expect(b.established).To(BeTrue())
			Expect(arrivals()).To(BeEmpty())
		})
	})

	Context("receiver data path", func() {
		BeforeEach(func() {
			b.established = true
			b.rcvNxt = 1001
		})

		It("should advance rcvNxt and ACK in-order data", func() {
			b.onSegment(renosim.Segment{Seq: 1001, Len: 1000})

			Expect(b.rcvNxt).To(Equal(uint32(2001)))

			segs := arrivals()
			Expect(segs).To(HaveLen(1))
			Expect(segs[0].msg.Segment.Flags).To(Equal(renosim.FlagACK))
			Expect(segs[0].msg.Segment.Seq).To(Equal(uint32(5000)))
			Expect(segs[0].msg.Segment.Ack).To(Equal(uint32(2001)))
		})

		It("should drop out-of-order data but still ACK cumulatively", func() {
			b.onSegment(renosim.Segment{Seq: 3001, Len: 1000})

			Expect(b.rcvNxt).To(Equal(uint32(1001)))

			segs := arrivals()
			Expect(segs).To(HaveLen(1))
			Expect(segs[0].msg.Segment.Ack).To(Equal(uint32(1001)))
		})

		It("should count the FIN in sequence space", func() {
			b.onSegment(renosim.Segment{Seq: 1001, Flags: renosim.FlagFIN})

			Expect(b.rcvNxt).To(Equal(uint32(1002)))
		})
	})

	Context("sender ACK handling", func() {
		BeforeEach(func() {
			a.established = true
			a.rcvNxt = 5001
			a.sndUna = 1001
			a.sndNxt = 3001
			a.appBytesSent = 2000
			a.timerRunning = true
			a.timerDeadline = 1.0
		})

		It("should grow cwnd by one MSS per new ACK in slow start", func() {
			a.cwnd = 2000
			a.ssthresh = 65535

			a.onSegment(renosim.Segment{
				Seq: 5000, Ack: 2001, Flags: renosim.FlagACK})

			Expect(a.cwnd).To(Equal(uint32(3000)))
			Expect(a.sndUna).To(Equal(uint32(2001)))
			Expect(a.totalAcksReceived).To(Equal(1))
		})

		It("should grow cwnd by mss^2/cwnd in congestion avoidance", func() {
			a.cwnd = 8000
			a.ssthresh = 4000

			a.onSegment(renosim.Segment{
				Seq: 5000, Ack: 2001, Flags: renosim.FlagACK})

			Expect(a.cwnd).To(Equal(uint32(8000 + 1000*1000/8000)))
		})

		It("should re-arm the timer while data is outstanding", func() {
			a.cwnd = 1000

			a.onSegment(renosim.Segment{
				Seq: 5000, Ack: 2001, Flags: renosim.FlagACK})

			Expect(a.timerRunning).To(BeTrue())
			Expect(timerFires()).To(HaveLen(1))
		})

		It("should leave the timer idle when everything is ACKed", func() {
			a.cwnd = 1000
			a.appBytesSent = a.appBytesTotal
			a.finSent = true

			a.onSegment(renosim.Segment{
				Seq: 5000, Ack: 3001, Flags: renosim.FlagACK})

			Expect(a.timerRunning).To(BeFalse())
			Expect(a.finAcked).To(BeTrue())
		})

		It("should ignore stale ACKs", func() {
			a.cwnd = 2000
			before := *a

			a.onSegment(renosim.Segment{
				Seq: 5000, Ack: 900, Flags: renosim.FlagACK})

			Expect(a.cwnd).To(Equal(before.cwnd))
			Expect(a.sndUna).To(Equal(before.sndUna))
			Expect(a.dupacks).To(Equal(before.dupacks))
		})

		It("should fast-retransmit on the third duplicate ACK", func() {
			a.cwnd = 8000

			dup := renosim.Segment{Seq: 5000, Ack: 1001, Flags: renosim.FlagACK}
			a.onSegment(dup)
			a.onSegment(dup)
			Expect(a.retransmits).To(Equal(0))

			a.onSegment(dup)

			Expect(a.dupacks).To(Equal(uint32(3)))
			Expect(a.ssthresh).To(Equal(uint32(4000)))
			Expect(a.cwnd).To(Equal(uint32(7000)))
			Expect(a.retransmits).To(Equal(1))

			segs := arrivals()
			Expect(segs).To(HaveLen(1))
			Expect(segs[0].msg.Segment.Seq).To(Equal(uint32(1001)))
			Expect(segs[0].msg.Segment.Len).To(Equal(uint16(1000)))
			Expect(a.timerRunning).To(BeTrue())
		})

		It("should keep ssthresh at two MSS minimum", func() {
			a.cwnd = 1000

			dup := renosim.Segment{Seq: 5000, Ack: 1001, Flags: renosim.FlagACK}
			a.onSegment(dup)
			a.onSegment(dup)
			a.onSegment(dup)

			Expect(a.ssthresh).To(Equal(uint32(2000)))
			Expect(a.cwnd).To(Equal(uint32(5000)))
		})

		It("should inflate cwnd past the third duplicate ACK", func() {
			a.cwnd = 8000

			dup := renosim.Segment{Seq: 5000, Ack: 1001, Flags: renosim.FlagACK}
			for i := 0; i < 4; i++ {
				a.onSegment(dup)
			}

			Expect(a.dupacks).To(Equal(uint32(4)))
			Expect(a.cwnd).To(Equal(uint32(8000)))
		})

		It("should reset dupacks on the next new ACK without deflating", func() {
			a.cwnd = 8000

			dup := renosim.Segment{Seq: 5000, Ack: 1001, Flags: renosim.FlagACK}
			a.onSegment(dup)
			a.onSegment(dup)
			a.onSegment(dup)
			inflated := a.cwnd

			a.onSegment(renosim.Segment{
				Seq: 5000, Ack: 2001, Flags: renosim.FlagACK})

			Expect(a.dupacks).To(Equal(uint32(0)))
			Expect(a.cwnd).To(BeNumerically(">", inflated))
		})
	})

	Context("window-bounded sending", func() {
		BeforeEach(func() {
			a.established = true
			a.sndUna = 1001
			a.sndNxt = 1001
		})

		It("should send up to the window and stop", func() {
			a.cwnd = 3000

			a.trySendData()

			Expect(arrivals()).To(HaveLen(3))
			Expect(a.sndNxt - a.sndUna).To(Equal(uint32(3000)))
			Expect(a.appBytesSent).To(Equal(3000))
		})

		It("should clip the last segment to the remaining budget", func() {
			a.cwnd = 65535
			a.appBytesTotal = 2500

			a.trySendData()

			segs := arrivals()
			// Two full segments, the 500-byte tail, and the FIN.
			Expect(segs).To(HaveLen(4))
			Expect(segs[2].msg.Segment.Len).To(Equal(uint16(500)))
			Expect(segs[3].msg.Segment.Flags).To(Equal(renosim.FlagFIN))
			Expect(a.finSent).To(BeTrue())
			Expect(a.sndNxt).To(Equal(uint32(1001 + 2500 + 1)))
		})

		It("should send the FIN immediately with a zero byte budget", func() {
			a.cwnd = 1000
			a.appBytesTotal = 0

			a.trySendData()

			segs := arrivals()
			Expect(segs).To(HaveLen(1))
			Expect(segs[0].msg.Segment.Flags).To(Equal(renosim.FlagFIN))
			Expect(segs[0].msg.Segment.Len).To(Equal(uint16(0)))
			Expect(a.finSent).To(BeTrue())
		})

		It("should not send before the handshake completes", func() {
			a.established = false

			a.trySendData()

			Expect(arrivals()).To(BeEmpty())
		})
	})
})
