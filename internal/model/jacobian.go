package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/spatial"
)

// Path returns the joints between endEffector and base, end effector first.
// base must be an ancestor of endEffector.
func (m *Model) Path(base, endEffector BodyID) ([]JointID, error) {
	if !m.validBody(base) {
		return nil, errors.Wrapf(ErrUnknownBody, "base %d", base)
	}
	if !m.validBody(endEffector) {
		return nil, errors.Wrapf(ErrUnknownBody, "end effector %d", endEffector)
	}
	var path []JointID
	for b := endEffector; b != base; {
		if b == Elevator {
			return nil, errors.Wrapf(ErrDisconnectedBodies, "%q is not an ancestor of %q",
				m.bodies[base].Name, m.bodies[endEffector].Name)
		}
		j := m.bodies[b].Parent
		path = append(path, j)
		b = m.joints[j].Predecessor
	}
	return path, nil
}

// Jacobian returns the 6×N geometric Jacobian mapping generalized velocities
// to the twist of endEffector relative to base, expressed in frame
// expressedIn (World gives world-origin coordinates).
func (m *Model) Jacobian(base, endEffector BodyID, expressedIn FrameID) (*mat.Dense, error) {
	if err := m.checkFresh(); err != nil {
		return nil, err
	}
	path, err := m.Path(base, endEffector)
	if err != nil {
		return nil, err
	}
	tf, err := m.FrameTransform(expressedIn)
	if err != nil {
		return nil, err
	}

	jac := mat.NewDense(spatial.Size, m.dofs, nil)
	for _, ji := range path {
		idx := m.joints[ji].index
		for k, col := range m.subspace[ji] {
			if expressedIn != World {
				col = spatial.MotionIn(tf, col)
			}
			for r, v := range col.Slice() {
				jac.Set(r, idx+k, v)
			}
		}
	}
	return jac, nil
}

// ConvectiveTerm returns J̇q̇ for the same pair and frame as Jacobian: the
// relative spatial acceleration of endEffector with respect to base when q̈ = 0.
func (m *Model) ConvectiveTerm(base, endEffector BodyID, expressedIn FrameID) (spatial.Vector, error) {
	if err := m.checkFresh(); err != nil {
		return spatial.Vector{}, err
	}
	path, err := m.Path(base, endEffector)
	if err != nil {
		return spatial.Vector{}, err
	}
	tf, err := m.FrameTransform(expressedIn)
	if err != nil {
		return spatial.Vector{}, err
	}
	var sum spatial.Vector
	for _, ji := range path {
		sum = sum.Add(m.product[ji])
	}
	if expressedIn != World {
		sum = spatial.MotionIn(tf, sum)
	}
	return sum, nil
}

// RelativeTwist returns the twist of endEffector relative to base in frame expressedIn.
func (m *Model) RelativeTwist(base, endEffector BodyID, expressedIn FrameID) (spatial.Vector, error) {
	if _, err := m.Path(base, endEffector); err != nil {
		return spatial.Vector{}, err
	}
	tf, err := m.FrameTransform(expressedIn)
	if err != nil {
		return spatial.Vector{}, err
	}
	v := m.twists[endEffector].Sub(m.twists[base])
	if expressedIn != World {
		v = spatial.MotionIn(tf, v)
	}
	return v, nil
}
