// Package metrics summarizes control ticks into scalar figures.
package metrics

import "github.com/san-kum/wholebody/internal/control"

// Metric observes every tick's telemetry.
type Metric interface {
	Name() string
	Observe(t control.Telemetry)
	Value() float64
	Reset()
}

// Standard returns the metrics recorded for every run.
func Standard() []Metric {
	return []Metric{
		NewTorqueEffort(),
		NewPeakTorque(),
		NewIterations(),
		NewContactForce(),
		NewFailures(),
		NewOverruns(),
		NewStability(0.5),
	}
}

// mean is the running average shared by the averaging metrics.
type mean struct {
	sum     float64
	samples int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.samples++
}

func (m *mean) value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *mean) reset() { *m = mean{} }
