package control

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

// PD tracks a target pose for one body and emits the desired acceleration
// as a SpatialAcceleration command in the body frame.
type PD struct {
	Name   string
	Body   string
	Kp     float64
	Kd     float64
	Weight float64
	Target spatial.Transform
	// Selection limits the tracked axes; empty means all six.
	Selection command.Selection
}

func NewPD(name, body string, kp, kd, weight float64, target spatial.Transform) *PD {
	return &PD{Name: name, Body: body, Kp: kp, Kd: kd, Weight: weight, Target: target}
}

// Command computes kp·error − kd·twist with both expressed in the body
// frame. The orientation error uses the skew part of the relative rotation,
// which is accurate for errors well below a quarter turn.
func (p *PD) Command(m *model.Model) (command.SpatialAcceleration, error) {
	id, ok := m.BodyByName(p.Body)
	if !ok {
		return command.SpatialAcceleration{}, errors.Wrapf(model.ErrUnknownBody, "%q", p.Body)
	}
	cur, err := m.BodyTransform(id)
	if err != nil {
		return command.SpatialAcceleration{}, err
	}
	twist, err := m.RelativeTwist(model.Elevator, id, m.Body(id).Frame())
	if err != nil {
		return command.SpatialAcceleration{}, err
	}

	rt := cur.Rotation.Transpose()
	rel := rt.Mul(p.Target.Rotation)
	angular := r3.Vector{
		X: 0.5 * (rel[2][1] - rel[1][2]),
		Y: 0.5 * (rel[0][2] - rel[2][0]),
		Z: 0.5 * (rel[1][0] - rel[0][1]),
	}
	linear := rt.Apply(p.Target.Translation.Sub(cur.Translation))
	errVec := spatial.Vector{Angular: angular, Linear: linear}

	sel := p.Selection
	if len(sel) == 0 {
		sel = command.AllAxes()
	}
	return command.SpatialAcceleration{
		Name:        p.Name,
		EndEffector: p.Body,
		Desired:     errVec.Scale(p.Kp).Sub(twist.Scale(p.Kd)),
		Selection:   sel,
		Weight:      p.Weight,
	}, nil
}

// GetParams returns tunable parameters for live adjustment
func (p *PD) GetParams() map[string]float64 {
	return map[string]float64{
		"Kp":     p.Kp,
		"Kd":     p.Kd,
		"Weight": p.Weight,
		"Z":      p.Target.Translation.Z,
	}
}

// SetParam adjusts a parameter by name
func (p *PD) SetParam(name string, value float64) error {
	switch name {
	case "Kp":
		p.Kp = value
	case "Kd":
		p.Kd = value
	case "Weight":
		p.Weight = value
	case "Z":
		p.Target.Translation.Z = value
	default:
		return errors.Wrapf(ErrBadConfig, "unknown parameter %q", name)
	}
	return nil
}
