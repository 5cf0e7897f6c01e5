package renosim

import (
	"encoding/csv"
	"io"
	"strconv"

	"gitlab.com/akita/akita/v3/sim"
)

// A RunResult holds the readable counters of one finished run.
type RunResult struct {
	// Completed is true when all data and the FIN were acknowledged before
	// the watchdog deadline.
	Completed bool

	// FinishTime is the virtual time at which the completion probe found the
	// connection closed, or, for a run that did not complete, the virtual
	// time at which the scheduler stopped.
	FinishTime sim.VTimeInSec

	AppBytes     int
	AppBytesSent int

	Retransmits  int
	SegmentsSent int
	AcksReceived int

	PacketsSent    int
	PacketsDropped int

	Cwnd     uint32
	Ssthresh uint32
	RTO      sim.VTimeInSec
}

// ThroughputBps returns the achieved application throughput in bits per
// second, or zero for an instantaneous run.
func (r RunResult) ThroughputBps() float64 {
	if r.FinishTime <= 0 {
		return 0
	}
	return float64(r.AppBytesSent) * 8 / float64(r.FinishTime)
}

// LossRate returns the fraction of deliveries the link dropped.
func (r RunResult) LossRate() float64 {
	if r.PacketsSent == 0 {
		return 0
	}
	return float64(r.PacketsDropped) / float64(r.PacketsSent)
}

var resultCSVHeader = []string{
	"trial", "completed", "finish_time_s", "app_bytes", "app_bytes_sent",
	"retransmits", "segments_sent", "acks_received",
	"packets_sent", "packets_dropped", "throughput_bps",
	"cwnd", "ssthresh", "rto_s",
}

// WriteResultsCSV writes one row per trial to w.
func WriteResultsCSV(w io.Writer, results []RunResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(resultCSVHeader); err != nil {
		return err
	}

	for i, r := range results {
		row := []string{
			strconv.Itoa(i),
			strconv.FormatBool(r.Completed),
			strconv.FormatFloat(float64(r.FinishTime), 'f', 6, 64),
			strconv.Itoa(r.AppBytes),
			strconv.Itoa(r.AppBytesSent),
			strconv.Itoa(r.Retransmits),
			strconv.Itoa(r.SegmentsSent),
			strconv.Itoa(r.AcksReceived),
			strconv.Itoa(r.PacketsSent),
			strconv.Itoa(r.PacketsDropped),
			strconv.FormatFloat(r.ThroughputBps(), 'f', 1, 64),
			strconv.FormatUint(uint64(r.Cwnd), 10),
			strconv.FormatUint(uint64(r.Ssthresh), 10),
			strconv.FormatFloat(float64(r.RTO), 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
