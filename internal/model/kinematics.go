package model

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/wholebody/internal/spatial"
)

var unitAxes = [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}

// UpdateKinematics recomputes every frame's transform to world, every joint's
// motion subspace and every body's twist and world inertia from the current
// joint state. Frames and joints are stored parent before child, so one pass
// in index order is a top-down traversal.
func (m *Model) UpdateKinematics() {
	for i := 1; i < len(m.frames); i++ {
		f := &m.frames[i]
		if f.joint != noJoint {
			f.local = m.joints[f.joint].motion()
		}
		f.toWorld = m.frames[f.parent].toWorld.Compose(f.local)
	}

	m.twists[Elevator] = spatial.Vector{}
	for ji := range m.joints {
		j := &m.joints[ji]
		before := m.frames[j.before].toWorld
		succ := &m.bodies[j.Successor]
		after := m.frames[succ.frame].toWorld

		s := m.subspace[ji]
		var vj spatial.Vector
		switch j.Kind {
		case Revolute:
			w := before.ApplyVector(j.Axis)
			s[0] = spatial.Vector{Angular: w, Linear: after.Translation.Cross(w)}
			vj = s[0].Scale(j.Qd)
		case Prismatic:
			s[0] = spatial.Vector{Linear: before.ApplyVector(j.Axis)}
			vj = s[0].Scale(j.Qd)
		case Floating:
			p := after.Translation
			for k, e := range unitAxes {
				s[k] = spatial.Vector{Angular: e, Linear: p.Cross(e)}
				s[3+k] = spatial.Vector{Linear: e}
			}
			vj = spatial.Vector{Angular: j.Twist.Angular, Linear: j.Twist.Linear.Add(p.Cross(j.Twist.Angular))}
		}

		m.twists[j.Successor] = m.twists[j.Predecessor].Add(vj)
		if j.Kind == Floating {
			// the angular columns depend on the base position
			m.product[ji] = spatial.Vector{Linear: j.Twist.Linear.Cross(j.Twist.Angular)}
		} else {
			m.product[ji] = m.twists[j.Successor].CrossMotion(vj)
		}

		m.inertias[j.Successor] = spatial.Inertia{
			Mass:       succ.Mass,
			CoM:        after.ApplyPoint(succ.CoM),
			Rotational: after.Rotation.Conjugate(succ.Inertia),
		}
	}
	m.kinGen = m.stateGen
}

func (m *Model) checkFresh() error {
	if !m.KinematicsFresh() {
		return ErrStaleKinematics
	}
	return nil
}

// FrameTransform returns the cached transform from frame id to world.
func (m *Model) FrameTransform(id FrameID) (spatial.Transform, error) {
	if id < 0 || int(id) >= len(m.frames) {
		return spatial.Transform{}, errors.Wrapf(ErrUnknownFrame, "frame %d", id)
	}
	if err := m.checkFresh(); err != nil {
		return spatial.Transform{}, err
	}
	return m.frames[id].toWorld, nil
}

// TransformBetween returns the transform mapping coordinates of frame `from`
// into frame `to`.
func (m *Model) TransformBetween(from, to FrameID) (spatial.Transform, error) {
	a, err := m.FrameTransform(from)
	if err != nil {
		return spatial.Transform{}, err
	}
	b, err := m.FrameTransform(to)
	if err != nil {
		return spatial.Transform{}, err
	}
	return b.Inverse().Compose(a), nil
}

// BodyTransform returns the body frame's pose in world.
func (m *Model) BodyTransform(id BodyID) (spatial.Transform, error) {
	if !m.validBody(id) {
		return spatial.Transform{}, errors.Wrapf(ErrUnknownBody, "body %d", id)
	}
	return m.FrameTransform(m.bodies[id].frame)
}

// Twist returns the body's twist relative to world in world-origin coordinates.
func (m *Model) Twist(id BodyID) (spatial.Vector, error) {
	if !m.validBody(id) {
		return spatial.Vector{}, errors.Wrapf(ErrUnknownBody, "body %d", id)
	}
	if err := m.checkFresh(); err != nil {
		return spatial.Vector{}, err
	}
	return m.twists[id], nil
}

// SpatialInertia returns the body inertia in world coordinates.
func (m *Model) SpatialInertia(id BodyID) spatial.Inertia { return m.inertias[id] }

// MotionSubspace returns the joint's columns of the world-origin Jacobian.
func (m *Model) MotionSubspace(id JointID) []spatial.Vector { return m.subspace[id] }

// VelocityProduct returns Ṡq̇ for the joint (acceleration at zero q̈, no gravity).
func (m *Model) VelocityProduct(id JointID) spatial.Vector { return m.product[id] }

// CenterOfMass returns the whole-model CoM and total mass.
func (m *Model) CenterOfMass() (r3.Vector, float64, error) {
	if err := m.checkFresh(); err != nil {
		return r3.Vector{}, 0, err
	}
	var total spatial.Inertia
	for i := 1; i < len(m.bodies); i++ {
		total = total.Add(m.inertias[i])
	}
	return total.CoM, total.Mass, nil
}
