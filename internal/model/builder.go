package model

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/wholebody/internal/spatial"
)

// BodySpec describes a body's mass properties.
type BodySpec struct {
	Name    string
	Mass    float64
	CoM     r3.Vector
	Inertia spatial.Rotation
}

// JointSpec describes the joint that attaches a new body to Parent.
type JointSpec struct {
	Name        string
	Kind        JointKind
	Parent      BodyID
	Offset      spatial.Transform
	Axis        r3.Vector
	Lower       float64
	Upper       float64
	Damping     float64
	EffortLimit float64
}

// Builder assembles a Model. Bodies must be added parent first, so the body
// graph is a tree by construction.
type Builder struct {
	m   *Model
	err error
}

func NewBuilder(name string) *Builder {
	m := &Model{
		name:        name,
		gravity:     DefaultGravity,
		bodyByName:  map[string]BodyID{"elevator": Elevator},
		jointByName: map[string]JointID{},
		frameByName: map[string]FrameID{"world": World},
	}
	m.bodies = []RigidBody{{Name: "elevator", Parent: noJoint, frame: World, comFrame: World}}
	m.frames = []frame{{name: "world", parent: World, local: spatial.IdentityTransform(), toWorld: spatial.IdentityTransform(), joint: noJoint}}
	return &Builder{m: m}
}

func (b *Builder) Gravity(g r3.Vector) *Builder {
	b.m.gravity = g
	return b
}

// AddFloatingBase attaches a 6-DoF floating body to the elevator.
func (b *Builder) AddFloatingBase(jointName string, body BodySpec) BodyID {
	return b.Add(JointSpec{Name: jointName, Kind: Floating, Parent: Elevator, Offset: spatial.IdentityTransform()}, body)
}

func (b *Builder) AddRevolute(jointName string, parent BodyID, offset spatial.Transform, axis r3.Vector, body BodySpec) BodyID {
	return b.Add(JointSpec{Name: jointName, Kind: Revolute, Parent: parent, Offset: offset, Axis: axis}, body)
}

func (b *Builder) AddPrismatic(jointName string, parent BodyID, offset spatial.Transform, axis r3.Vector, body BodySpec) BodyID {
	return b.Add(JointSpec{Name: jointName, Kind: Prismatic, Parent: parent, Offset: offset, Axis: axis}, body)
}

// Add attaches a body through the given joint and returns the new body id.
// Errors are collected and reported by Build.
func (b *Builder) Add(js JointSpec, bs BodySpec) BodyID {
	m := b.m
	if err := b.check(js, bs); err != nil {
		b.err = multierr.Append(b.err, err)
		return -1
	}

	jid := JointID(len(m.joints))
	bid := BodyID(len(m.bodies))

	axis := js.Axis
	if js.Kind != Floating {
		axis = axis.Normalize()
	}
	j := Joint{
		Name:        js.Name,
		Kind:        js.Kind,
		Axis:        axis,
		Offset:      js.Offset,
		Predecessor: js.Parent,
		Successor:   bid,
		Lower:       js.Lower,
		Upper:       js.Upper,
		Damping:     js.Damping,
		EffortLimit: js.EffortLimit,
		Pose:        spatial.IdentityTransform(),
		index:       m.dofs,
	}
	if j.Offset == (spatial.Transform{}) {
		j.Offset = spatial.IdentityTransform()
	}

	before := b.frame(js.Name+"_before", m.bodies[js.Parent].frame, j.Offset, noJoint)
	j.before = before
	bodyFrame := b.frame(bs.Name, before, spatial.IdentityTransform(), jid)
	comFrame := b.frame(bs.Name+"_com", bodyFrame, spatial.Transform{Rotation: spatial.Identity(), Translation: bs.CoM}, noJoint)

	m.joints = append(m.joints, j)
	m.jointByName[js.Name] = jid
	m.bodies = append(m.bodies, RigidBody{
		Name:     bs.Name,
		Mass:     bs.Mass,
		CoM:      bs.CoM,
		Inertia:  bs.Inertia,
		Parent:   jid,
		frame:    bodyFrame,
		comFrame: comFrame,
	})
	m.bodyByName[bs.Name] = bid
	m.bodies[js.Parent].Children = append(m.bodies[js.Parent].Children, jid)
	m.dofs += js.Kind.DoF()
	return bid
}

func (b *Builder) check(js JointSpec, bs BodySpec) error {
	m := b.m
	var err error
	if !m.validBody(js.Parent) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidModel, "joint %q: unknown parent body %d", js.Name, js.Parent))
	}
	if js.Name == "" || bs.Name == "" {
		err = multierr.Append(err, errors.Wrap(ErrInvalidModel, "joint and body names must be set"))
	}
	if _, dup := m.jointByName[js.Name]; dup {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidModel, "duplicate joint %q", js.Name))
	}
	if _, dup := m.bodyByName[bs.Name]; dup {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidModel, "duplicate body %q", bs.Name))
	}
	if bs.Mass < 0 || math.IsNaN(bs.Mass) || math.IsInf(bs.Mass, 0) {
		err = multierr.Append(err, errors.Wrapf(ErrInvalidModel, "body %q: invalid mass %v", bs.Name, bs.Mass))
	}
	switch js.Kind {
	case Revolute, Prismatic:
		if js.Axis.Norm() < 1e-12 {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidModel, "joint %q: axis must be non-zero", js.Name))
		}
	case Floating:
		if js.Parent != Elevator {
			err = multierr.Append(err, errors.Wrapf(ErrInvalidModel, "floating joint %q must attach to the elevator", js.Name))
		}
	default:
		err = multierr.Append(err, errors.Wrapf(ErrInvalidModel, "joint %q: unknown kind %d", js.Name, js.Kind))
	}
	return err
}

func (b *Builder) frame(name string, parent FrameID, local spatial.Transform, joint JointID) FrameID {
	m := b.m
	if _, dup := m.frameByName[name]; dup {
		b.err = multierr.Append(b.err, errors.Wrapf(ErrInvalidModel, "duplicate frame %q", name))
	}
	id := FrameID(len(m.frames))
	m.frames = append(m.frames, frame{name: name, parent: parent, local: local, joint: joint})
	m.frameByName[name] = id
	return id
}

// AddFixedFrame adds a frame rigidly attached to a body frame.
func (b *Builder) AddFixedFrame(name string, body BodyID, local spatial.Transform) FrameID {
	if !b.m.validBody(body) {
		b.err = multierr.Append(b.err, errors.Wrapf(ErrInvalidModel, "frame %q: unknown body %d", name, body))
		return World
	}
	return b.frame(name, b.m.bodies[body].frame, local, noJoint)
}

// Build validates the tree and returns the model with kinematics up to date.
func (b *Builder) Build() (*Model, error) {
	if b.err != nil {
		return nil, b.err
	}
	m := b.m
	if len(m.joints) == 0 {
		return nil, errors.Wrap(ErrInvalidModel, "model has no joints")
	}
	m.twists = make([]spatial.Vector, len(m.bodies))
	m.inertias = make([]spatial.Inertia, len(m.bodies))
	m.product = make([]spatial.Vector, len(m.joints))
	m.subspace = make([][]spatial.Vector, len(m.joints))
	for i := range m.joints {
		m.subspace[i] = make([]spatial.Vector, m.joints[i].DoF())
	}
	m.touch()
	m.UpdateKinematics()
	b.m = nil
	return m, nil
}
