package robots

import (
	"github.com/golang/geo/r3"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

const (
	LegThigh = 0.4
	LegShank = 0.4
	LegFoot  = 0.5
)

// TwoLinkLeg is a floating pelvis on one leg: hip and knee pitch joints and
// a flat foot rigidly attached to the shank. The foot stands on the ground
// with the knee bent and its sole centred under the whole-body CoM.
func TwoLinkLeg() (*Robot, error) {
	b := model.NewBuilder("two-link-leg")
	pelvis := b.AddFloatingBase("root", model.BodySpec{
		Name: "pelvis", Mass: 6, CoM: r3.Vector{X: 0.03, Z: 0.05}, Inertia: box(6, 0.2, 0.3, 0.15),
	})
	thigh := b.Add(model.JointSpec{
		Name: "hip", Kind: model.Revolute, Parent: pelvis, Axis: r3.Vector{Y: 1},
		Lower: -2, Upper: 2, Damping: 0.1, EffortLimit: 300,
	}, model.BodySpec{
		Name: "thigh", Mass: 3, CoM: r3.Vector{X: 0.01, Z: -LegThigh / 2}, Inertia: box(3, 0.08, 0.08, LegThigh),
	})
	shank := b.Add(model.JointSpec{
		Name: "knee", Kind: model.Revolute, Parent: thigh, Offset: spatial.Translation(0, 0, -LegThigh),
		Axis: r3.Vector{Y: 1}, Lower: -2.5, Upper: 0, Damping: 0.1, EffortLimit: 300,
	}, model.BodySpec{
		Name: "shank", Mass: 2, CoM: r3.Vector{Z: -LegShank / 2}, Inertia: box(2, 0.06, 0.06, LegShank),
	})
	m, err := b.Build()
	if err != nil {
		return nil, err
	}

	r := &Robot{
		Name:    "two-link-leg",
		Model:   m,
		Nominal: []float64{0.4, -0.8},
	}
	r.ApplyNominal()
	// keep the foot flat: pitch the pelvis back by the sum of the joint angles
	root := m.FloatingJoints()[0]
	m.SetFloatingPose(root, spatial.Transform{
		Rotation: spatial.AxisAngle(r3.Vector{Y: 1}, -(r.Nominal[0] + r.Nominal[1])),
	})
	m.UpdateKinematics()
	soleID, err := centreSole(m, shank)
	if err != nil {
		return nil, err
	}
	if err := placeOnGround(m, []model.FrameID{soleID}); err != nil {
		return nil, err
	}

	r.Contacts = []contact.PlaneBody{{
		Body: shank, SoleFrame: soleID, Points: footPoints(LegFoot, 0.1), Friction: 0.8,
	}}
	r.Commands = []command.Command{
		command.NoSlip("foot_support", "shank"),
		command.Privileged("posture", r.Nominal, 50, 10, 1),
		command.ContactForceWeight{Name: "foot_rho", Body: "shank", Weight: 1e-5},
	}
	return r, nil
}

// centreSole adds the shank's sole frame at ankle height, directly below the
// whole-body CoM in the current pose.
func centreSole(m *model.Model, shank model.BodyID) (model.FrameID, error) {
	com, _, err := m.CenterOfMass()
	if err != nil {
		return 0, err
	}
	tf, err := m.BodyTransform(shank)
	if err != nil {
		return 0, err
	}
	ankle := tf.ApplyPoint(r3.Vector{Z: -LegShank})
	local := tf.Inverse().ApplyPoint(r3.Vector{X: com.X, Y: com.Y, Z: ankle.Z})
	return m.AddFixedFrame("shank_sole", m.Body(shank).Frame(), spatial.Transform{
		Rotation: spatial.Identity(), Translation: local,
	})
}
