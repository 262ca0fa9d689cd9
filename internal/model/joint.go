package model

import (
	"github.com/golang/geo/r3"

	"github.com/san-kum/wholebody/internal/spatial"
)

type (
	BodyID  int
	JointID int
	FrameID int
)

const (
	// Elevator is the fixed body attached to the world; every tree hangs off it.
	Elevator BodyID = 0
	// World is the root of the frame arena.
	World FrameID = 0

	noJoint JointID = -1
)

// JointKind is the closed set of joint types.
type JointKind int

const (
	Revolute JointKind = iota
	Prismatic
	Floating
)

func (k JointKind) String() string {
	switch k {
	case Revolute:
		return "revolute"
	case Prismatic:
		return "prismatic"
	case Floating:
		return "floating"
	}
	return "unknown"
}

// DoF returns the number of generalized coordinates of the joint kind.
func (k JointKind) DoF() int {
	if k == Floating {
		return 6
	}
	return 1
}

// Joint connects a predecessor body to its successor.
//
// One-DoF joints use Q/Qd/Qdd/Tau. The floating joint uses Pose (base pose in
// world), Twist (angular velocity in world, linear velocity of the base
// origin in world), Accel and Wrench with the same layout.
type Joint struct {
	Name string
	Kind JointKind

	// Axis is a unit vector in the joint frame.
	Axis r3.Vector
	// Offset places the joint frame in the predecessor body frame.
	Offset spatial.Transform

	Predecessor BodyID
	Successor   BodyID

	Lower, Upper float64
	Damping      float64
	EffortLimit  float64

	Q, Qd, Qdd, Tau float64

	Pose   spatial.Transform
	Twist  spatial.Vector
	Accel  spatial.Vector
	Wrench spatial.Vector

	index  int
	before FrameID
}

// Index is the offset of the joint's first coordinate in generalized vectors.
func (j *Joint) Index() int { return j.index }

func (j *Joint) DoF() int { return j.Kind.DoF() }

// BeforeFrame is the joint frame fixed in the predecessor body.
func (j *Joint) BeforeFrame() FrameID { return j.before }

// InLimits reports whether a one-DoF joint position lies within its limits.
// Joints with Lower >= Upper are unlimited.
func (j *Joint) InLimits() bool {
	if j.Kind == Floating || j.Lower >= j.Upper {
		return true
	}
	return j.Q >= j.Lower && j.Q <= j.Upper
}

// motion returns the joint transform (after frame relative to before frame).
func (j *Joint) motion() spatial.Transform {
	switch j.Kind {
	case Revolute:
		return spatial.Transform{Rotation: spatial.AxisAngle(j.Axis, j.Q)}
	case Prismatic:
		return spatial.Transform{Rotation: spatial.Identity(), Translation: j.Axis.Mul(j.Q)}
	case Floating:
		return j.Pose
	}
	panic("model: unknown joint kind")
}

// RigidBody is one link of the tree.
type RigidBody struct {
	Name string
	Mass float64
	// CoM is the centre-of-mass offset in the body frame.
	CoM r3.Vector
	// Inertia is taken about the CoM, in the body frame.
	Inertia spatial.Rotation

	Parent   JointID
	Children []JointID

	frame    FrameID
	comFrame FrameID
}

// Frame is the body frame (coincides with the parent joint's after frame).
func (b *RigidBody) Frame() FrameID { return b.frame }

func (b *RigidBody) CoMFrame() FrameID { return b.comFrame }
