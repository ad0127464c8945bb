// Package metrics provides per-episode scalar metrics observed once
// per control tick.
package metrics

import "math"

// TrackingError accumulates the mean Euclidean distance between the
// commanded joint targets and the actual joint positions.
type TrackingError struct {
	sum   float64
	count int
}

func NewTrackingError() *TrackingError { return &TrackingError{} }

func (m *TrackingError) Name() string { return "tracking_error" }

func (m *TrackingError) Observe(q, qd, u []float64, t float64) {
	if len(u) != len(q) {
		return
	}
	s := 0.0
	for i := range q {
		d := u[i] - q[i]
		s += d * d
	}
	m.sum += math.Sqrt(s)
	m.count++
}

func (m *TrackingError) Value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

func (m *TrackingError) Reset() {
	m.sum = 0
	m.count = 0
}

// ControlEffort integrates the squared deviation of the commanded
// targets from the current pose over time, a proxy for actuation cost
// under position servos.
type ControlEffort struct {
	total float64
	prevT float64
	first bool
}

func NewControlEffort() *ControlEffort { return &ControlEffort{first: true} }

func (m *ControlEffort) Name() string { return "control_effort" }

func (m *ControlEffort) Observe(q, qd, u []float64, t float64) {
	if m.first {
		m.prevT = t
		m.first = false
		return
	}
	dt := t - m.prevT
	m.prevT = t
	if dt <= 0 || len(u) != len(q) {
		return
	}
	s := 0.0
	for i := range q {
		d := u[i] - q[i]
		s += d * d
	}
	m.total += s * dt
}

func (m *ControlEffort) Value() float64 { return m.total }

func (m *ControlEffort) Reset() {
	m.total = 0
	m.prevT = 0
	m.first = true
}
