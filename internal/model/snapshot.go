package model

import (
	"github.com/pkg/errors"

	"github.com/san-kum/wholebody/internal/spatial"
)

// JointState is a copy of one joint's mutable state.
type JointState struct {
	Name            string
	Kind            JointKind
	Q, Qd, Qdd, Tau float64
	Pose            spatial.Transform
	Twist           spatial.Vector
	Accel           spatial.Vector
	Wrench          spatial.Vector
}

// Snapshot copies the joint state, for telemetry readers that must not see a
// tick in progress.
func (m *Model) Snapshot() []JointState {
	out := make([]JointState, len(m.joints))
	for i := range m.joints {
		j := &m.joints[i]
		out[i] = JointState{
			Name: j.Name, Kind: j.Kind,
			Q: j.Q, Qd: j.Qd, Qdd: j.Qdd, Tau: j.Tau,
			Pose: j.Pose, Twist: j.Twist, Accel: j.Accel, Wrench: j.Wrench,
		}
	}
	return out
}

// Restore writes a snapshot taken from a model with the same joints.
func (m *Model) Restore(s []JointState) error {
	if len(s) != len(m.joints) {
		return errors.Wrapf(ErrDimensionMismatch, "snapshot has %d joints, model %d", len(s), len(m.joints))
	}
	for i := range s {
		j := &m.joints[i]
		if s[i].Name != j.Name {
			return errors.Wrapf(ErrUnknownJoint, "snapshot joint %q at %d, model has %q", s[i].Name, i, j.Name)
		}
		j.Q, j.Qd, j.Qdd, j.Tau = s[i].Q, s[i].Qd, s[i].Qdd, s[i].Tau
		j.Pose, j.Twist, j.Accel, j.Wrench = s[i].Pose, s[i].Twist, s[i].Accel, s[i].Wrench
	}
	m.touch()
	return nil
}

// Clone returns an independent deep copy of the model.
func (m *Model) Clone() *Model {
	c := *m
	c.bodies = make([]RigidBody, len(m.bodies))
	for i, b := range m.bodies {
		b.Children = append([]JointID(nil), b.Children...)
		c.bodies[i] = b
	}
	c.joints = append([]Joint(nil), m.joints...)
	c.frames = append([]frame(nil), m.frames...)
	c.bodyByName = cloneMap(m.bodyByName)
	c.jointByName = cloneMap(m.jointByName)
	c.frameByName = cloneMap(m.frameByName)
	c.twists = append([]spatial.Vector(nil), m.twists...)
	c.inertias = append([]spatial.Inertia(nil), m.inertias...)
	c.product = append([]spatial.Vector(nil), m.product...)
	c.subspace = make([][]spatial.Vector, len(m.subspace))
	for i, s := range m.subspace {
		c.subspace[i] = append([]spatial.Vector(nil), s...)
	}
	return &c
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
