package robots

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

// RandomChain builds a floating base with two branches of links joints
// each. Joint kinds, axes, offsets and mass properties are drawn from rng,
// and so is the state: base pose and twist, joint positions and velocities.
// The last body of each branch carries a sole frame and four contact points.
func RandomChain(rng *rand.Rand, links int) (*Robot, error) {
	if links < 1 {
		links = 1
	}
	b := model.NewBuilder(fmt.Sprintf("random-chain-%d", links))
	base := b.AddFloatingBase("root", randomBody(rng, "base"))
	var leaves []model.BodyID
	for branch := 0; branch < 2; branch++ {
		parent := base
		for i := 0; i < links; i++ {
			kind := model.Revolute
			if rng.Float64() < 0.2 {
				kind = model.Prismatic
			}
			parent = b.Add(model.JointSpec{
				Name:        fmt.Sprintf("j%d_%d", branch, i),
				Kind:        kind,
				Parent:      parent,
				Offset:      spatial.Transform{Rotation: randomRotation(rng), Translation: randomVector(rng, 0.3)},
				Axis:        randomVector(rng, 1),
				Damping:     rng.Float64() * 0.2,
				EffortLimit: 0,
			}, randomBody(rng, fmt.Sprintf("link%d_%d", branch, i)))
		}
		leaves = append(leaves, parent)
	}
	var soles []string
	for i, leaf := range leaves {
		name := fmt.Sprintf("sole%d", i)
		b.AddFixedFrame(name, leaf, spatial.Transform{Rotation: randomRotation(rng), Translation: randomVector(rng, 0.1)})
		soles = append(soles, name)
	}
	m, err := b.Build()
	if err != nil {
		return nil, err
	}

	r := &Robot{Name: m.Name(), Model: m}
	for i := 0; i < m.NumJoints(); i++ {
		id := model.JointID(i)
		if m.Joint(id).Kind == model.Floating {
			m.SetFloatingPose(id, spatial.Transform{Rotation: randomRotation(rng), Translation: randomVector(rng, 1)})
			m.SetFloatingTwist(id, spatial.Vector{Angular: randomVector(rng, 1), Linear: randomVector(rng, 1)})
			continue
		}
		q := rng.Float64()*2 - 1
		r.Nominal = append(r.Nominal, q)
		m.SetJointPosition(id, q)
		m.SetJointVelocity(id, rng.Float64()*2-1)
	}
	m.UpdateKinematics()

	for i, leaf := range leaves {
		f, err := sole(m, soles[i])
		if err != nil {
			return nil, err
		}
		r.Contacts = append(r.Contacts, contact.PlaneBody{
			Body: leaf, SoleFrame: f, Points: footPoints(0.2, 0.1), Friction: 0.5 + rng.Float64(),
		})
	}
	return r, nil
}

func randomBody(rng *rand.Rand, name string) model.BodySpec {
	mass := 0.5 + 4*rng.Float64()
	rot := randomRotation(rng)
	principal := spatial.Diagonal(0.01+0.1*rng.Float64(), 0.01+0.1*rng.Float64(), 0.01+0.1*rng.Float64())
	return model.BodySpec{
		Name:    name,
		Mass:    mass,
		CoM:     randomVector(rng, 0.2),
		Inertia: rot.Conjugate(principal),
	}
}

// randomVector returns a vector with components uniform in [-scale, scale].
func randomVector(rng *rand.Rand, scale float64) r3.Vector {
	return r3.Vector{
		X: scale * (2*rng.Float64() - 1),
		Y: scale * (2*rng.Float64() - 1),
		Z: scale * (2*rng.Float64() - 1),
	}
}

func randomRotation(rng *rand.Rand) spatial.Rotation {
	axis := randomVector(rng, 1)
	if axis.Norm() < 1e-6 {
		axis = r3.Vector{Z: 1}
	}
	return spatial.AxisAngle(axis, math.Pi*(2*rng.Float64()-1))
}
