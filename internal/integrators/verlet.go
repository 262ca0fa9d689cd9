package integrators

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/model"
)

// Verlet is velocity Verlet: positions take the half-step velocity, and the
// velocity update averages the accelerations at both ends of the step.
type Verlet struct {
	scratch *mat.VecDense
}

func NewVerlet() *Verlet { return &Verlet{} }

func (v *Verlet) Name() string { return "verlet" }

func (v *Verlet) Step(m *model.Model, accel AccelFunc, dt float64) error {
	a, err := evaluate(m, accel)
	if err != nil {
		return err
	}
	qd := m.Velocities()
	if v.scratch == nil || v.scratch.Len() != qd.Len() {
		v.scratch = mat.NewVecDense(qd.Len(), nil)
	}
	half := v.scratch
	half.AddScaledVec(qd, 0.5*dt, a)
	advance(m, half, dt)
	if err := m.SetVelocities(half); err != nil {
		return err
	}

	next, err := evaluate(m, accel)
	if err != nil {
		return err
	}
	qd.AddScaledVec(half, 0.5*dt, next)
	return finish(m, qd)
}
