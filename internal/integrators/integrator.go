// Package integrators advances a model's joint state in time from
// generalized accelerations.
package integrators

import (
	"errors"
	"sort"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

var (
	ErrUnknownIntegrator = errors.New("integrators: unknown integrator")
	ErrInvalidState      = errors.New("integrators: invalid state (NaN or Inf detected)")
)

// AccelFunc returns q̈ for the model's current state. Kinematics are fresh
// when it is called.
type AccelFunc func(m *model.Model) (*mat.VecDense, error)

type Integrator interface {
	Name() string
	Step(m *model.Model, accel AccelFunc, dt float64) error
}

var registry = map[string]func() Integrator{
	"euler":         func() Integrator { return NewEuler() },
	"semi-implicit": func() Integrator { return NewSemiImplicit() },
	"verlet":        func() Integrator { return NewVerlet() },
}

func New(name string) (Integrator, error) {
	f, ok := registry[name]
	if !ok {
		return nil, pkgerrors.Wrapf(ErrUnknownIntegrator, "%q", name)
	}
	return f(), nil
}

func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func evaluate(m *model.Model, accel AccelFunc) (*mat.VecDense, error) {
	m.UpdateKinematics()
	a, err := accel(m)
	if err != nil {
		return nil, err
	}
	if a.Len() != m.DoF() {
		return nil, pkgerrors.Wrapf(model.ErrDimensionMismatch, "accelerations: got %d, want %d", a.Len(), m.DoF())
	}
	if floats.HasNaN(a.RawVector().Data) {
		return nil, ErrInvalidState
	}
	return a, nil
}

// advance moves positions along the generalized velocity qd for dt. The
// floating base rotates about its world-frame angular velocity.
func advance(m *model.Model, qd mat.Vector, dt float64) {
	for i := 0; i < m.NumJoints(); i++ {
		id := model.JointID(i)
		j := m.Joint(id)
		k := j.Index()
		if j.Kind != model.Floating {
			m.SetJointPosition(id, j.Q+qd.AtVec(k)*dt)
			continue
		}
		v := spatial.FromSlice([]float64{
			qd.AtVec(k), qd.AtVec(k + 1), qd.AtVec(k + 2),
			qd.AtVec(k + 3), qd.AtVec(k + 4), qd.AtVec(k + 5),
		})
		pose := j.Pose
		pose.Rotation = spatial.Exp(v.Angular.Mul(dt)).Mul(pose.Rotation)
		pose.Translation = pose.Translation.Add(v.Linear.Mul(dt))
		m.SetFloatingPose(id, pose)
	}
}

func finish(m *model.Model, qd *mat.VecDense) error {
	if floats.HasNaN(qd.RawVector().Data) {
		return ErrInvalidState
	}
	if err := m.SetVelocities(qd); err != nil {
		return err
	}
	m.UpdateKinematics()
	return nil
}
