package model

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/spatial"
)

// DefaultGravity is the world gravity vector.
var DefaultGravity = r3.Vector{Z: -9.81}

type frame struct {
	name    string
	parent  FrameID
	local   spatial.Transform
	toWorld spatial.Transform
	// joint drives local for body frames; noJoint for fixed frames.
	joint JointID
}

// Model is a floating-base rigid-body tree with an arena of reference frames.
//
// Joint state must be changed through the setters so the state generation
// advances; kinematic and dynamic quantities computed for an older
// generation are refused.
type Model struct {
	name    string
	gravity r3.Vector

	bodies []RigidBody
	joints []Joint
	frames []frame

	bodyByName  map[string]BodyID
	jointByName map[string]JointID
	frameByName map[string]FrameID

	dofs int

	stateGen uint64
	kinGen   uint64

	twists   []spatial.Vector
	inertias []spatial.Inertia
	subspace [][]spatial.Vector
	product  []spatial.Vector
}

func (m *Model) Name() string          { return m.name }
func (m *Model) Gravity() r3.Vector    { return m.gravity }
func (m *Model) DoF() int              { return m.dofs }
func (m *Model) NumBodies() int        { return len(m.bodies) }
func (m *Model) NumJoints() int        { return len(m.joints) }
func (m *Model) Generation() uint64    { return m.stateGen }
func (m *Model) KinematicsFresh() bool { return m.kinGen == m.stateGen }

func (m *Model) SetGravity(g r3.Vector) {
	m.gravity = g
	m.touch()
}

// Touch marks the state as changed after direct writes to Joint fields.
func (m *Model) Touch() { m.touch() }

func (m *Model) touch() { m.stateGen++ }

// Body returns the body with the given id. The elevator is id 0.
func (m *Model) Body(id BodyID) *RigidBody { return &m.bodies[id] }

// Joint returns the joint with the given id. Joints are stored parent before child.
func (m *Model) Joint(id JointID) *Joint { return &m.joints[id] }

func (m *Model) BodyByName(name string) (BodyID, bool) {
	id, ok := m.bodyByName[name]
	return id, ok
}

func (m *Model) JointByName(name string) (JointID, bool) {
	id, ok := m.jointByName[name]
	return id, ok
}

func (m *Model) FrameByName(name string) (FrameID, bool) {
	id, ok := m.frameByName[name]
	return id, ok
}

func (m *Model) FrameName(id FrameID) string { return m.frames[id].name }

func (m *Model) validBody(id BodyID) bool { return id >= 0 && int(id) < len(m.bodies) }

// ParentBody returns the predecessor of body id, or false for the elevator.
func (m *Model) ParentBody(id BodyID) (BodyID, bool) {
	if !m.validBody(id) || m.bodies[id].Parent == noJoint {
		return 0, false
	}
	return m.joints[m.bodies[id].Parent].Predecessor, true
}

// FloatingJoints lists the floating joints (normally one).
func (m *Model) FloatingJoints() []JointID {
	var out []JointID
	for i := range m.joints {
		if m.joints[i].Kind == Floating {
			out = append(out, JointID(i))
		}
	}
	return out
}

// ActuatedIndices lists the generalized coordinate indices of all one-DoF joints.
func (m *Model) ActuatedIndices() []int {
	out := make([]int, 0, m.dofs)
	for i := range m.joints {
		if m.joints[i].Kind != Floating {
			out = append(out, m.joints[i].index)
		}
	}
	return out
}

// UnactuatedIndices lists the coordinates owned by floating joints.
func (m *Model) UnactuatedIndices() []int {
	var out []int
	for i := range m.joints {
		if m.joints[i].Kind == Floating {
			for k := 0; k < 6; k++ {
				out = append(out, m.joints[i].index+k)
			}
		}
	}
	return out
}

// AddFixedFrame adds a frame rigidly attached to parent (e.g. a sole frame).
func (m *Model) AddFixedFrame(name string, parent FrameID, local spatial.Transform) (FrameID, error) {
	if parent < 0 || int(parent) >= len(m.frames) {
		return 0, errors.Wrapf(ErrUnknownFrame, "parent of %q", name)
	}
	if _, dup := m.frameByName[name]; dup {
		return 0, errors.Wrapf(ErrInvalidModel, "duplicate frame %q", name)
	}
	id := FrameID(len(m.frames))
	f := frame{name: name, parent: parent, local: local, joint: noJoint}
	f.toWorld = m.frames[parent].toWorld.Compose(local)
	m.frames = append(m.frames, f)
	m.frameByName[name] = id
	return id, nil
}

func (m *Model) SetJointPosition(id JointID, q float64) {
	m.joints[id].Q = q
	m.touch()
}

func (m *Model) SetJointVelocity(id JointID, qd float64) {
	m.joints[id].Qd = qd
	m.touch()
}

func (m *Model) SetFloatingPose(id JointID, pose spatial.Transform) {
	m.joints[id].Pose = pose
	m.touch()
}

func (m *Model) SetFloatingTwist(id JointID, twist spatial.Vector) {
	m.joints[id].Twist = twist
	m.touch()
}

// Velocities returns the generalized velocity vector.
func (m *Model) Velocities() *mat.VecDense {
	v := mat.NewVecDense(m.dofs, nil)
	for i := range m.joints {
		j := &m.joints[i]
		if j.Kind == Floating {
			for k, x := range j.Twist.Slice() {
				v.SetVec(j.index+k, x)
			}
			continue
		}
		v.SetVec(j.index, j.Qd)
	}
	return v
}

func (m *Model) SetVelocities(v mat.Vector) error {
	if v.Len() != m.dofs {
		return errors.Wrapf(ErrDimensionMismatch, "velocities: got %d, want %d", v.Len(), m.dofs)
	}
	for i := range m.joints {
		j := &m.joints[i]
		if j.Kind == Floating {
			j.Twist = spatial.FromSlice(sliceOf(v, j.index, 6))
			continue
		}
		j.Qd = v.AtVec(j.index)
	}
	m.touch()
	return nil
}

// Accelerations returns the desired generalized accelerations stored in the joints.
func (m *Model) Accelerations() *mat.VecDense {
	a := mat.NewVecDense(m.dofs, nil)
	for i := range m.joints {
		j := &m.joints[i]
		if j.Kind == Floating {
			for k, x := range j.Accel.Slice() {
				a.SetVec(j.index+k, x)
			}
			continue
		}
		a.SetVec(j.index, j.Qdd)
	}
	return a
}

// SetAccelerations stores desired accelerations. Kinematics do not depend on
// them, so the state generation is unchanged.
func (m *Model) SetAccelerations(a mat.Vector) error {
	if a.Len() != m.dofs {
		return errors.Wrapf(ErrDimensionMismatch, "accelerations: got %d, want %d", a.Len(), m.dofs)
	}
	for i := range m.joints {
		j := &m.joints[i]
		if j.Kind == Floating {
			j.Accel = spatial.FromSlice(sliceOf(a, j.index, 6))
			continue
		}
		j.Qdd = a.AtVec(j.index)
	}
	return nil
}

// SetTorques stores generalized forces; floating entries go to Joint.Wrench.
func (m *Model) SetTorques(tau mat.Vector) error {
	if tau.Len() != m.dofs {
		return errors.Wrapf(ErrDimensionMismatch, "torques: got %d, want %d", tau.Len(), m.dofs)
	}
	for i := range m.joints {
		j := &m.joints[i]
		if j.Kind == Floating {
			j.Wrench = spatial.FromSlice(sliceOf(tau, j.index, 6))
			continue
		}
		j.Tau = tau.AtVec(j.index)
	}
	return nil
}

func sliceOf(v mat.Vector, from, n int) []float64 {
	out := make([]float64, n)
	for k := range out {
		out[k] = v.AtVec(from + k)
	}
	return out
}
