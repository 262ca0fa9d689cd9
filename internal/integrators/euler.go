package integrators

import "github.com/san-kum/wholebody/internal/model"

// Euler is the explicit method: positions move with the old velocity.
type Euler struct{}

func NewEuler() *Euler { return &Euler{} }

func (e *Euler) Name() string { return "euler" }

func (e *Euler) Step(m *model.Model, accel AccelFunc, dt float64) error {
	a, err := evaluate(m, accel)
	if err != nil {
		return err
	}
	qd := m.Velocities()
	advance(m, qd, dt)
	qd.AddScaledVec(qd, dt, a)
	return finish(m, qd)
}

// SemiImplicit updates velocities first and moves positions with the new
// velocity, which keeps energy bounded for stiff contact-free motion.
type SemiImplicit struct{}

func NewSemiImplicit() *SemiImplicit { return &SemiImplicit{} }

func (s *SemiImplicit) Name() string { return "semi-implicit" }

func (s *SemiImplicit) Step(m *model.Model, accel AccelFunc, dt float64) error {
	a, err := evaluate(m, accel)
	if err != nil {
		return err
	}
	qd := m.Velocities()
	qd.AddScaledVec(qd, dt, a)
	advance(m, qd, dt)
	return finish(m, qd)
}
