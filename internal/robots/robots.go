// Package robots builds the model presets used by the simulator, the CLI and
// the tests: a single-support two-link leg, random floating trees and a biped.
package robots

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

// Robot is a model together with its contact bodies and the commands that
// keep it standing.
type Robot struct {
	Name     string
	Model    *model.Model
	Contacts []contact.PlaneBody
	// Nominal holds the standing position of every one-DoF joint, in joint order.
	Nominal  []float64
	Commands []command.Command
}

// ContactNames returns the names of the contact bodies.
func (r *Robot) ContactNames() []string {
	out := make([]string, len(r.Contacts))
	for i, c := range r.Contacts {
		out[i] = r.Model.Body(c.Body).Name
	}
	return out
}

// ApplyNominal writes Nominal into the joints and zeroes all velocities.
func (r *Robot) ApplyNominal() {
	m := r.Model
	k := 0
	for i := 0; i < m.NumJoints(); i++ {
		id := model.JointID(i)
		if m.Joint(id).Kind == model.Floating {
			m.SetFloatingTwist(id, spatial.Vector{})
			continue
		}
		m.SetJointPosition(id, r.Nominal[k])
		m.SetJointVelocity(id, 0)
		k++
	}
	m.UpdateKinematics()
}

// footPoints returns the corners of a length×width rectangle centred on the sole origin.
func footPoints(length, width float64) []r3.Vector {
	x, y := length/2, width/2
	return []r3.Vector{{X: x, Y: y}, {X: x, Y: -y}, {X: -x, Y: y}, {X: -x, Y: -y}}
}

// box returns the rotational inertia of a solid box about its centre.
func box(mass, x, y, z float64) spatial.Rotation {
	k := mass / 12
	return spatial.Diagonal(k*(y*y+z*z), k*(x*x+z*z), k*(x*x+y*y))
}

// placeOnGround moves the floating base vertically so the lowest sole frame
// lies at z = 0.
func placeOnGround(m *model.Model, soles []model.FrameID) error {
	floating := m.FloatingJoints()
	if len(floating) == 0 {
		return nil
	}
	root := floating[0]
	m.UpdateKinematics()
	lowest := math.Inf(1)
	for _, f := range soles {
		tf, err := m.FrameTransform(f)
		if err != nil {
			return err
		}
		lowest = math.Min(lowest, tf.Translation.Z)
	}
	pose := m.Joint(root).Pose
	pose.Translation.Z -= lowest
	m.SetFloatingPose(root, pose)
	m.UpdateKinematics()
	return nil
}

func sole(m *model.Model, name string) (model.FrameID, error) {
	id, ok := m.FrameByName(name)
	if !ok {
		return 0, errors.Wrapf(model.ErrUnknownFrame, "%q", name)
	}
	return id, nil
}
