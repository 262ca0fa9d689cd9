package metrics

import (
	"math"

	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/model"
)

// ContactForce is the mean total vertical contact force per tick.
type ContactForce struct {
	m mean
}

func NewContactForce() *ContactForce { return &ContactForce{} }

func (c *ContactForce) Name() string { return "contact_force" }

func (c *ContactForce) Observe(t control.Telemetry) {
	sum := 0.0
	for _, w := range t.ContactWrenches {
		sum += w.Linear.Z
	}
	c.m.add(sum)
}

func (c *ContactForce) Value() float64 { return c.m.value() }
func (c *ContactForce) Reset()         { c.m.reset() }

// Stability is the fraction of ticks in which the floating base stays
// within maxTilt radians of upright.
type Stability struct {
	maxTilt    float64
	violations int
	samples    int
}

func NewStability(maxTilt float64) *Stability {
	return &Stability{maxTilt: maxTilt}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(t control.Telemetry) {
	s.samples++
	for _, j := range t.Joints {
		if j.Kind != model.Floating {
			continue
		}
		// angle between the base z axis and world z
		tilt := math.Acos(math.Max(-1, math.Min(1, j.Pose.Rotation[2][2])))
		if tilt > s.maxTilt {
			s.violations++
		}
		break
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
