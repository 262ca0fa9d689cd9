package metrics

import (
	"math"

	"github.com/san-kum/wholebody/internal/control"
)

// TorqueEffort is the mean over ticks of Σ|τ| across actuated joints.
type TorqueEffort struct {
	m mean
}

func NewTorqueEffort() *TorqueEffort { return &TorqueEffort{} }

func (c *TorqueEffort) Name() string { return "torque_effort" }

func (c *TorqueEffort) Observe(t control.Telemetry) {
	sum := 0.0
	for _, tau := range t.Torques {
		sum += math.Abs(tau)
	}
	c.m.add(sum)
}

func (c *TorqueEffort) Value() float64 { return c.m.value() }
func (c *TorqueEffort) Reset()         { c.m.reset() }

// PeakTorque is the largest |τ| seen on any joint.
type PeakTorque struct {
	peak float64
}

func NewPeakTorque() *PeakTorque { return &PeakTorque{} }

func (p *PeakTorque) Name() string { return "peak_torque" }

func (p *PeakTorque) Observe(t control.Telemetry) {
	for _, tau := range t.Torques {
		p.peak = math.Max(p.peak, math.Abs(tau))
	}
}

func (p *PeakTorque) Value() float64 { return p.peak }
func (p *PeakTorque) Reset()         { p.peak = 0 }
