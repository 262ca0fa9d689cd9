package robots

import (
	"github.com/golang/geo/r3"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

var (
	xAxis = r3.Vector{X: 1}
	yAxis = r3.Vector{Y: 1}
	zAxis = r3.Vector{Z: 1}
)

type bipedBuilder struct {
	b       *model.Builder
	nominal []float64
}

func (bb *bipedBuilder) joint(name string, parent model.BodyID, offset spatial.Transform, axis r3.Vector,
	lower, upper, effort, q float64, body model.BodySpec) model.BodyID {
	bb.nominal = append(bb.nominal, q)
	return bb.b.Add(model.JointSpec{
		Name: name, Kind: model.Revolute, Parent: parent, Offset: offset, Axis: axis,
		Lower: lower, Upper: upper, Damping: 0.5, EffortLimit: effort,
	}, body)
}

func link(name string, mass, x, y, z float64, com r3.Vector) model.BodySpec {
	return model.BodySpec{Name: name, Mass: mass, CoM: com, Inertia: box(mass, x, y, z)}
}

// Biped is a humanoid lower body with a yawing chest and a head, optionally
// with two-joint arms. Each leg has hip yaw, roll and pitch, a knee, and
// ankle pitch and roll. It stands on both feet with the knees bent.
func Biped(arms bool) (*Robot, error) {
	name := "biped"
	if arms {
		name = "biped-arms"
	}
	bb := &bipedBuilder{b: model.NewBuilder(name)}
	pelvis := bb.b.AddFloatingBase("root", link("pelvis", 8, 0.2, 0.3, 0.15, r3.Vector{}))
	chest := bb.joint("waist", pelvis, spatial.Translation(0, 0, 0.1), zAxis, -1, 1, 150, 0,
		link("chest", 15, 0.25, 0.35, 0.4, r3.Vector{Z: 0.2}))
	bb.joint("neck", chest, spatial.Translation(0, 0, 0.45), yAxis, -0.8, 0.8, 30, 0,
		link("head", 4, 0.18, 0.18, 0.2, r3.Vector{Z: 0.1}))

	var feet []model.BodyID
	for _, side := range []struct {
		prefix string
		y      float64
	}{{"l", 0.1}, {"r", -0.1}} {
		p := side.prefix + "_"
		yaw := bb.joint(p+"hip_yaw", pelvis, spatial.Translation(0, side.y, -0.1), zAxis, -0.6, 0.6, 100, 0,
			link(p+"hip_yaw_link", 1, 0.05, 0.05, 0.05, r3.Vector{}))
		roll := bb.joint(p+"hip_roll", yaw, spatial.IdentityTransform(), xAxis, -0.5, 0.5, 200, 0,
			link(p+"hip_roll_link", 1, 0.05, 0.05, 0.05, r3.Vector{}))
		thigh := bb.joint(p+"hip_pitch", roll, spatial.IdentityTransform(), yAxis, -2, 1, 250, -0.4,
			link(p+"thigh", 6, 0.1, 0.1, 0.4, r3.Vector{Z: -0.2}))
		shin := bb.joint(p+"knee", thigh, spatial.Translation(0, 0, -0.4), yAxis, 0, 2.5, 250, 0.8,
			link(p+"shin", 3, 0.08, 0.08, 0.4, r3.Vector{Z: -0.2}))
		ankle := bb.joint(p+"ankle_pitch", shin, spatial.Translation(0, 0, -0.4), yAxis, -1, 1, 150, -0.4,
			link(p+"ankle_link", 0.5, 0.04, 0.04, 0.04, r3.Vector{}))
		foot := bb.joint(p+"ankle_roll", ankle, spatial.IdentityTransform(), xAxis, -0.5, 0.5, 100, 0,
			link(p+"foot", 1.2, 0.22, 0.1, 0.06, r3.Vector{X: 0.03, Z: -0.04}))
		bb.b.AddFixedFrame(p+"sole", foot, spatial.Translation(0.03, 0, -0.07))
		feet = append(feet, foot)
	}
	if arms {
		for _, side := range []struct {
			prefix string
			y      float64
		}{{"l", 0.22}, {"r", -0.22}} {
			p := side.prefix + "_"
			upper := bb.joint(p+"shoulder", chest, spatial.Translation(0, side.y, 0.35), yAxis, -3, 1, 60, 0.2,
				link(p+"upper_arm", 2, 0.07, 0.07, 0.28, r3.Vector{Z: -0.14}))
			bb.joint(p+"elbow", upper, spatial.Translation(0, 0, -0.28), yAxis, -2.5, 0, 40, -0.4,
				link(p+"forearm", 1.5, 0.06, 0.06, 0.26, r3.Vector{Z: -0.13}))
		}
	}

	m, err := bb.b.Build()
	if err != nil {
		return nil, err
	}
	r := &Robot{Name: name, Model: m, Nominal: bb.nominal}
	r.ApplyNominal()

	var soleIDs []model.FrameID
	for _, foot := range feet {
		footName := m.Body(foot).Name
		id, err := sole(m, footName[:2]+"sole")
		if err != nil {
			return nil, err
		}
		soleIDs = append(soleIDs, id)
		r.Contacts = append(r.Contacts, contact.PlaneBody{
			Body: foot, SoleFrame: id, Points: footPoints(0.22, 0.1), Friction: 0.8,
		})
	}
	if err := placeOnGround(m, soleIDs); err != nil {
		return nil, err
	}

	r.Commands = []command.Command{
		command.NoSlip("l_foot_support", "l_foot"),
		command.NoSlip("r_foot_support", "r_foot"),
		command.Orientation("pelvis_orientation", "pelvis", r3.Vector{}, 10),
		command.Translation("pelvis_height", "pelvis", r3.Vector{}, 10),
		command.Orientation("chest_orientation", "chest", r3.Vector{}, 5),
		command.Orientation("head_orientation", "head", r3.Vector{}, 1),
		command.Privileged("posture", r.Nominal, 50, 10, command.DefaultPrivilegedWeight),
		command.ContactForceWeight{Name: "l_foot_rho", Body: "l_foot", Weight: 1e-5},
		command.ContactForceWeight{Name: "r_foot_rho", Body: "r_foot", Weight: 1e-5},
	}
	return r, nil
}
