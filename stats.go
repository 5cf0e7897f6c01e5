package renosim

import "math"

// A Metric accumulates summary statistics of one quantity over repeated
// trials using Welford's online algorithm.
type Metric struct {
	n        int
	mean, m2 float64
	min, max float64
}

// Add folds one observation into the metric.
func (m *Metric) Add(x float64) {
	m.n++
	if m.n == 1 {
		m.min, m.max = x, x
	} else {
		m.min = math.Min(m.min, x)
		m.max = math.Max(m.max, x)
	}

	delta := x - m.mean
	m.mean += delta / float64(m.n)
	m.m2 += delta * (x - m.mean)
}

// Count returns the number of observations.
func (m *Metric) Count() int { return m.n }

// Mean returns the sample mean.
func (m *Metric) Mean() float64 { return m.mean }

// StdDev returns the sample standard deviation, or zero for fewer than two
// observations.
func (m *Metric) StdDev() float64 {
	if m.n < 2 {
		return 0
	}
	return math.Sqrt(m.m2 / float64(m.n-1))
}

// Min returns the smallest observation.
func (m *Metric) Min() float64 { return m.min }

// Max returns the largest observation.
func (m *Metric) Max() float64 { return m.max }

// A Summary aggregates per-run results across trials.
type Summary struct {
	Trials    int
	Completed int

	FinishTime     Metric
	ThroughputMbps Metric
	Retransmits    Metric
	PacketsDropped Metric
}

// Add folds one run into the summary. Incomplete runs count toward Trials
// but only completed runs contribute to the timing metrics.
func (s *Summary) Add(r RunResult) {
	s.Trials++
	s.Retransmits.Add(float64(r.Retransmits))
	s.PacketsDropped.Add(float64(r.PacketsDropped))

	if !r.Completed {
		return
	}

	s.Completed++
	s.FinishTime.Add(float64(r.FinishTime))
	s.ThroughputMbps.Add(r.ThroughputBps() / 1e6)
}
