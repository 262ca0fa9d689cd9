package sim

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/spatial"
)

// PlantMode selects how the simulated robot responds to the controller.
type PlantMode int

const (
	// Kinematic integrates the accelerations the controller solved for.
	Kinematic PlantMode = iota
	// Dynamic integrates forward dynamics under the commanded torques and
	// the contact wrenches of the solution, plus any pushes.
	Dynamic
)

func (p PlantMode) String() string {
	if p == Dynamic {
		return "dynamic"
	}
	return "kinematic"
}

func ParsePlantMode(s string) (PlantMode, error) {
	switch s {
	case "kinematic", "":
		return Kinematic, nil
	case "dynamic":
		return Dynamic, nil
	}
	return 0, errors.Errorf("sim: unknown plant mode %q", s)
}

func (p PlantMode) MarshalYAML() (interface{}, error) { return p.String(), nil }

func (p *PlantMode) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParsePlantMode(value.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ContactEvent switches a contact body in or out of contact at Time.
type ContactEvent struct {
	Time      float64 `yaml:"time"`
	Body      string  `yaml:"body"`
	InContact bool    `yaml:"in_contact"`
}

// Push applies a world-origin wrench to Body during [Start, Start+Duration).
// Only the dynamic plant feels it.
type Push struct {
	Start    float64        `yaml:"start"`
	Duration float64        `yaml:"duration"`
	Body     string         `yaml:"body"`
	Wrench   spatial.Vector `yaml:"-"`
}

func (p Push) active(t float64) bool { return t >= p.Start && t < p.Start+p.Duration }

// PoseTask feeds PD's command to the controller every tick from Start on.
type PoseTask struct {
	Start float64
	PD    *control.PD
}

type Config struct {
	Duration   float64
	Period     time.Duration
	Plant      PlantMode
	Integrator string
	Seed       int64
	// VelocityNoise adds zero-mean gaussian noise of this deviation to the
	// joint velocities every tick.
	VelocityNoise float64
	ValidateState bool
	// Realtime paces the ticks against the wall clock instead of running
	// as fast as the solver allows.
	Realtime bool
}

func DefaultConfig() Config {
	return Config{
		Duration:      2,
		Period:        5 * time.Millisecond,
		Plant:         Kinematic,
		Integrator:    "semi-implicit",
		ValidateState: true,
	}
}

// Result is the trace of one run, one row per tick.
type Result struct {
	Times         []float64
	Joints        []string
	Torques       [][]float64
	ContactForces map[string][]float64
	BaseHeight    []float64
	Iterations    []int
	Metrics       map[string]float64
	StepsTaken    int
	Failures      int
	Halted        bool
	Errors        []error
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
