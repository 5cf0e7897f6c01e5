package tcpflow

import (
	"reflect"

	"gitlab.com/akita/akita/v3/sim"

	"github.com/sarchlab/renosim"
	"github.com/sarchlab/renosim/eventsim"
	"github.com/sarchlab/renosim/linkmodel"
)

// Defaults for the termination machinery.
const (
	defaultCheckInterval = sim.VTimeInSec(0.05)
	defaultTimeCap       = sim.VTimeInSec(300)
)

// A Config describes one simulated connection.
type Config struct {
	BandwidthBps float64
	PropDelay    sim.VTimeInSec
	LossProb     float64
	AppBytes     int

	// Seed fixes the link loss process. Zero selects
	// linkmodel.DefaultSeed.
	Seed int64

	// CheckInterval is the cadence of the termination probe. Zero selects
	// the default of 50 ms.
	CheckInterval sim.VTimeInSec

	// TimeCap is the watchdog deadline in virtual time. Zero selects the
	// default of 300 s.
	TimeCap sim.VTimeInSec
}

// A Simulation wires an engine, a link, and a connection together and runs
// the connection until it closes or the watchdog deadline passes.
type Simulation struct {
	engine *eventsim.SerialEngine
	conn   *Connection
	cfg    Config

	finished   bool
	finishTime sim.VTimeInSec
}

// NewSimulation creates a Simulation from the given configuration.
func NewSimulation(cfg Config) *Simulation {
	if cfg.Seed == 0 {
		cfg.Seed = linkmodel.DefaultSeed
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.TimeCap == 0 {
		cfg.TimeCap = defaultTimeCap
	}

	engine := eventsim.NewSerialEngine()
	link := linkmodel.NewLink(
		cfg.BandwidthBps, cfg.PropDelay, cfg.LossProb, cfg.Seed)
	conn := NewConnection(engine, engine, link, cfg.AppBytes)

	return &Simulation{
		engine: engine,
		conn:   conn,
		cfg:    cfg,
	}
}

// Connection returns the simulated connection.
func (s *Simulation) Connection() *Connection {
	return s.conn
}

// Start seeds the client SYN and the first completion check at t=0. The
// main program should still call Run to run the simulation.
func (s *Simulation) Start() {
	s.engine.Schedule(clientStartEvent{time: 0, handler: s.conn})
	s.engine.Schedule(completionCheckEvent{time: 0, handler: s})
}

// Run dispatches events until the connection closes and the queue drains,
// or until the next event lies past the watchdog deadline.
func (s *Simulation) Run() error {
	return s.engine.RunUntil(s.cfg.TimeCap)
}

// Handle dispatches the simulation's own events.
func (s *Simulation) Handle(e sim.Event) error {
	switch e := e.(type) {
	case completionCheckEvent:
		s.checkCompletion(e)
	default:
		panic("Simulation cannot handle event type " +
			reflect.TypeOf(e).String())
	}

	return nil
}

// checkCompletion stops re-scheduling the probe once the connection is done
// or past the deadline; the queue then drains on its own. The finish time is
// recorded here, before stale timer fires advance the clock any further.
func (s *Simulation) checkCompletion(e completionCheckEvent) {
	if s.done() {
		s.finished = true
		s.finishTime = s.engine.CurrentTime()
		return
	}
	if s.engine.CurrentTime() > s.cfg.TimeCap {
		return
	}

	s.engine.Schedule(completionCheckEvent{
		time:    e.time + s.cfg.CheckInterval,
		handler: s,
	})
}

func (s *Simulation) done() bool {
	a := &s.conn.a
	return a.finSent && a.finAcked && a.sndUna == a.sndNxt
}

// Result reports the readable counters of the run.
func (s *Simulation) Result() renosim.RunResult {
	a := &s.conn.a

	finishTime := s.engine.CurrentTime()
	if s.finished {
		finishTime = s.finishTime
	}

	return renosim.RunResult{
		Completed:      s.done(),
		FinishTime:     finishTime,
		AppBytes:       a.appBytesTotal,
		AppBytesSent:   a.appBytesSent,
		Retransmits:    a.retransmits,
		SegmentsSent:   a.totalSegmentsSent,
		AcksReceived:   a.totalAcksReceived,
		PacketsSent:    s.conn.totalPacketsSent,
		PacketsDropped: s.conn.totalPacketsDropped,
		Cwnd:           a.cwnd,
		Ssthresh:       a.ssthresh,
		RTO:            a.rto,
	}
}
