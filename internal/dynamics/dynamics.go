// Package dynamics computes the joint-space mass matrix, bias forces and
// inverse dynamics of a model with the composite-rigid-body and
// recursive Newton-Euler algorithms in world-origin coordinates.
package dynamics

import (
	"errors"
	"math"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

var (
	ErrStaleDynamics      = errors.New("dynamics: mass matrix and bias are stale, call Compute")
	ErrSingularMassMatrix = errors.New("dynamics: mass matrix is not positive definite")
	ErrNumerical          = errors.New("dynamics: non-finite result")
)

// Calculator owns the scratch space for one model. It is not safe for
// concurrent use.
type Calculator struct {
	model *model.Model

	mass *mat.SymDense
	bias *mat.VecDense
	chol mat.Cholesky
	gen  uint64
	ok   bool

	accels    []spatial.Vector
	forces    []spatial.Vector
	composite []spatial.Inertia
}

func New(m *model.Model) *Calculator {
	n := m.DoF()
	return &Calculator{
		model:     m,
		mass:      mat.NewSymDense(n, nil),
		bias:      mat.NewVecDense(n, nil),
		accels:    make([]spatial.Vector, m.NumBodies()),
		forces:    make([]spatial.Vector, m.NumBodies()),
		composite: make([]spatial.Inertia, m.NumBodies()),
	}
}

func (c *Calculator) Model() *model.Model { return c.model }

// Compute refreshes M(q) and the bias C(q, q̇) + g(q) from the model's
// current kinematics.
func (c *Calculator) Compute() error {
	m := c.model
	if !m.KinematicsFresh() {
		return model.ErrStaleKinematics
	}
	c.ok = false
	c.crba()
	if err := c.rnea(nil, nil, true, c.bias); err != nil {
		return err
	}
	for i := 0; i < m.DoF(); i++ {
		for j := 0; j <= i; j++ {
			if v := c.mass.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return pkgerrors.Wrapf(ErrNumerical, "mass matrix entry (%d,%d)", i, j)
			}
		}
	}
	if !c.chol.Factorize(c.mass) {
		return ErrSingularMassMatrix
	}
	c.gen, c.ok = m.Generation(), true
	return nil
}

func (c *Calculator) fresh() error {
	if !c.ok || c.gen != c.model.Generation() {
		return ErrStaleDynamics
	}
	return nil
}

// MassMatrix returns M(q). The matrix is owned by the calculator and is
// overwritten by the next Compute.
func (c *Calculator) MassMatrix() (*mat.SymDense, error) {
	if err := c.fresh(); err != nil {
		return nil, err
	}
	return c.mass, nil
}

// Bias returns C(q, q̇)q̇ + g(q), the generalized force needed for q̈ = 0.
func (c *Calculator) Bias() (*mat.VecDense, error) {
	if err := c.fresh(); err != nil {
		return nil, err
	}
	return c.bias, nil
}

// InverseDynamics returns τ = M q̈ + C + g − Σ Jᵀ F_ext and stores it in the
// joints. External wrenches are world-origin wrenches applied to the keyed
// bodies.
func (c *Calculator) InverseDynamics(qdd mat.Vector, external map[model.BodyID]spatial.Vector) (*mat.VecDense, error) {
	m := c.model
	if !m.KinematicsFresh() {
		return nil, model.ErrStaleKinematics
	}
	if qdd != nil && qdd.Len() != m.DoF() {
		return nil, pkgerrors.Wrapf(model.ErrDimensionMismatch, "qdd: got %d, want %d", qdd.Len(), m.DoF())
	}
	tau := mat.NewVecDense(m.DoF(), nil)
	if err := c.rnea(qdd, external, true, tau); err != nil {
		return nil, err
	}
	if err := m.SetTorques(tau); err != nil {
		return nil, err
	}
	return tau, nil
}

// GravityCompensation returns g(q), the torque holding the model still
// against gravity.
func (c *Calculator) GravityCompensation() (*mat.VecDense, error) {
	m := c.model
	if !m.KinematicsFresh() {
		return nil, model.ErrStaleKinematics
	}
	tau := mat.NewVecDense(m.DoF(), nil)
	if err := c.rnea(nil, nil, false, tau); err != nil {
		return nil, err
	}
	return tau, nil
}

// ForwardDynamics solves M q̈ = τ − C − g + Σ Jᵀ F_ext for q̈.
func (c *Calculator) ForwardDynamics(tau mat.Vector, external map[model.BodyID]spatial.Vector) (*mat.VecDense, error) {
	if err := c.fresh(); err != nil {
		return nil, err
	}
	m := c.model
	if tau.Len() != m.DoF() {
		return nil, pkgerrors.Wrapf(model.ErrDimensionMismatch, "tau: got %d, want %d", tau.Len(), m.DoF())
	}
	rhs := mat.NewVecDense(m.DoF(), nil)
	if err := c.rnea(nil, external, true, rhs); err != nil {
		return nil, err
	}
	rhs.SubVec(tau, rhs)
	qdd := mat.NewVecDense(m.DoF(), nil)
	if err := c.chol.SolveVecTo(qdd, rhs); err != nil {
		return nil, pkgerrors.Wrap(ErrSingularMassMatrix, err.Error())
	}
	return qdd, nil
}

// KineticEnergy returns ½ q̇ᵀ M q̇.
func (c *Calculator) KineticEnergy() (float64, error) {
	if err := c.fresh(); err != nil {
		return 0, err
	}
	qd := c.model.Velocities()
	return 0.5 * mat.Inner(qd, c.mass, qd), nil
}

// crba fills the mass matrix. With world-origin subspaces the entry for
// joint a above joint i is S_aᵀ (Ic_i S_i), no frame changes needed.
func (c *Calculator) crba() {
	m := c.model
	for b := 1; b < m.NumBodies(); b++ {
		c.composite[b] = m.SpatialInertia(model.BodyID(b))
	}
	for ji := m.NumJoints() - 1; ji >= 0; ji-- {
		j := m.Joint(model.JointID(ji))
		if j.Predecessor != model.Elevator {
			c.composite[j.Predecessor] = c.composite[j.Predecessor].Add(c.composite[j.Successor])
		}
	}

	for ji := 0; ji < m.NumJoints(); ji++ {
		j := m.Joint(model.JointID(ji))
		ic := c.composite[j.Successor]
		for k, s := range m.MotionSubspace(model.JointID(ji)) {
			f := ic.Apply(s)
			col := j.Index() + k
			for a := model.JointID(ji); ; {
				ja := m.Joint(a)
				for l, sa := range m.MotionSubspace(a) {
					row := ja.Index() + l
					if row <= col {
						c.mass.SetSym(row, col, sa.Dot(f))
					}
				}
				if ja.Predecessor == model.Elevator {
					break
				}
				a = m.Body(ja.Predecessor).Parent
			}
		}
	}
}

// rnea writes Σ Sᵀ F into out. A nil qdd means zero acceleration; without
// velocity the twists and velocity products are treated as zero. Gravity
// enters as an upward acceleration of the elevator.
func (c *Calculator) rnea(qdd mat.Vector, external map[model.BodyID]spatial.Vector, velocity bool, out *mat.VecDense) error {
	m := c.model
	c.accels[model.Elevator] = spatial.Vector{Linear: m.Gravity().Mul(-1)}
	c.forces[model.Elevator] = spatial.Vector{}

	for ji := 0; ji < m.NumJoints(); ji++ {
		id := model.JointID(ji)
		j := m.Joint(id)
		a := c.accels[j.Predecessor]
		if qdd != nil {
			for k, s := range m.MotionSubspace(id) {
				a = a.Add(s.Scale(qdd.AtVec(j.Index() + k)))
			}
		}
		if velocity {
			a = a.Add(m.VelocityProduct(id))
		}
		inertia := m.SpatialInertia(j.Successor)
		f := inertia.Apply(a)
		if velocity {
			v, err := m.Twist(j.Successor)
			if err != nil {
				return err
			}
			f = f.Add(v.CrossForce(inertia.Apply(v)))
		}
		if w, ok := external[j.Successor]; ok {
			f = f.Sub(w)
		}
		c.accels[j.Successor] = a
		c.forces[j.Successor] = f
	}

	for ji := m.NumJoints() - 1; ji >= 0; ji-- {
		id := model.JointID(ji)
		j := m.Joint(id)
		f := c.forces[j.Successor]
		for k, s := range m.MotionSubspace(id) {
			v := s.Dot(f)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return pkgerrors.Wrapf(ErrNumerical, "joint %q", j.Name)
			}
			out.SetVec(j.Index()+k, v)
		}
		if j.Predecessor != model.Elevator {
			c.forces[j.Predecessor] = c.forces[j.Predecessor].Add(f)
		}
	}
	return nil
}
