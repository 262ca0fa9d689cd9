// Package command turns task-space objective commands into the weighted
// Jacobian rows consumed by the whole-body optimizer.
package command

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"

	"github.com/san-kum/wholebody/internal/spatial"
)

var (
	ErrBadSelection  = errors.New("command: invalid selection")
	ErrBadWeight     = errors.New("command: invalid weight")
	ErrUnknownTarget = errors.New("command: target not in model")
	ErrBadCommand    = errors.New("command: malformed command")
)

// Hard marks a command as an equality constraint. A zero weight (no weight
// given) is hard as well.
var Hard = math.Inf(1)

// IsHard reports whether weight w makes a command a hard equality.
func IsHard(w float64) bool { return w == 0 || math.IsInf(w, 1) }

// Command is one of SpatialAcceleration, SpatialVelocity, JointAcceleration,
// PrivilegedConfiguration or ContactForceWeight.
type Command interface {
	// ID names the objective; a newer command with the same ID replaces the old one.
	ID() string
	command()
}

// SpatialAcceleration asks for the acceleration of EndEffector relative to
// Base, as a spatial vector expressed in Frame. An empty Base is the
// elevator and an empty Frame is the end effector's body frame.
type SpatialAcceleration struct {
	Name        string
	Base        string
	EndEffector string
	Frame       string
	Desired     spatial.Vector
	Selection   Selection
	Weight      float64
	// Weights optionally scales each selected row.
	Weights []float64
}

// SpatialVelocity asks for a relative twist; it is converted to the
// acceleration that reaches it in one control period.
type SpatialVelocity struct {
	Name        string
	Base        string
	EndEffector string
	Frame       string
	Desired     spatial.Vector
	Selection   Selection
	Weight      float64
	Weights     []float64
}

// JointAcceleration asks for the accelerations of named one-DoF joints.
type JointAcceleration struct {
	Name    string
	Joints  []string
	Desired []float64
	Weight  float64
}

// PrivilegedConfiguration pulls one-DoF joints towards Q with a PD law. It
// is always soft. Empty Joints means every one-DoF joint in model order.
type PrivilegedConfiguration struct {
	Name   string
	Joints []string
	Q      []float64
	Kp, Kd float64
	Weight float64
}

// ContactForceWeight sets the rho regularization weight of a contact body.
type ContactForceWeight struct {
	Name   string
	Body   string
	Weight float64
}

func (c SpatialAcceleration) ID() string     { return c.Name }
func (c SpatialVelocity) ID() string         { return c.Name }
func (c JointAcceleration) ID() string       { return c.Name }
func (c PrivilegedConfiguration) ID() string { return c.Name }
func (c ContactForceWeight) ID() string      { return c.Name }

func (SpatialAcceleration) command()     {}
func (SpatialVelocity) command()         {}
func (JointAcceleration) command()       {}
func (PrivilegedConfiguration) command() {}
func (ContactForceWeight) command()      {}

const DefaultPrivilegedWeight = 0.01

// Orientation controls the angular acceleration of body relative to world,
// as used for the head, chest and pelvis.
func Orientation(id, body string, desired r3.Vector, weight float64) SpatialAcceleration {
	return SpatialAcceleration{
		Name:        id,
		EndEffector: body,
		Desired:     spatial.Vector{Angular: desired},
		Selection:   AngularAxes(),
		Weight:      weight,
	}
}

// Translation controls the linear rows of body relative to world.
func Translation(id, body string, desired r3.Vector, weight float64) SpatialAcceleration {
	return SpatialAcceleration{
		Name:        id,
		EndEffector: body,
		Desired:     spatial.Vector{Linear: desired},
		Selection:   LinearAxes(),
		Weight:      weight,
	}
}

// Limb controls all six rows of a hand or foot relative to base.
func Limb(id, base, endEffector string, desired spatial.Vector, weight float64) SpatialAcceleration {
	return SpatialAcceleration{
		Name:        id,
		Base:        base,
		EndEffector: endEffector,
		Desired:     desired,
		Selection:   AllAxes(),
		Weight:      weight,
	}
}

// NoSlip holds a supporting body still: zero acceleration on all axes, hard.
func NoSlip(id, body string) SpatialAcceleration {
	return Limb(id, "", body, spatial.Vector{}, Hard)
}

func Privileged(id string, q []float64, kp, kd, weight float64) PrivilegedConfiguration {
	return PrivilegedConfiguration{Name: id, Q: q, Kp: kp, Kd: kd, Weight: weight}
}
