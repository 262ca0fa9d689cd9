package wholebody

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/dynamics"
	"github.com/san-kum/wholebody/internal/model"
)

// DynamicsMatrix holds the per-tick linear map from (q̈, rho) to generalized
// force, τ = M q̈ + C − JᵀQ rho, so torques are one matrix-vector product.
type DynamicsMatrix struct {
	model    *model.Model
	dynamics *dynamics.Calculator
	contacts *contact.Calculator

	mass *mat.SymDense
	bias *mat.VecDense
	jtq  *mat.Dense

	actuated   []int
	unactuated []int
	gen        uint64
	ok         bool
}

func NewDynamicsMatrix(m *model.Model, dyn *dynamics.Calculator, contacts *contact.Calculator) *DynamicsMatrix {
	return &DynamicsMatrix{
		model:      m,
		dynamics:   dyn,
		contacts:   contacts,
		actuated:   m.ActuatedIndices(),
		unactuated: m.UnactuatedIndices(),
	}
}

// Compute refreshes M, C and JᵀQ together for the current state.
func (d *DynamicsMatrix) Compute() error {
	d.ok = false
	if err := d.dynamics.Compute(); err != nil {
		return err
	}
	if err := d.contacts.ComputeMatrices(); err != nil {
		return err
	}
	var err error
	if d.mass, err = d.dynamics.MassMatrix(); err != nil {
		return err
	}
	if d.bias, err = d.dynamics.Bias(); err != nil {
		return err
	}
	if d.jtq, err = d.contacts.ContactJacobianTranspose(); err != nil {
		return err
	}
	d.gen, d.ok = d.model.Generation(), true
	return nil
}

func (d *DynamicsMatrix) fresh() error {
	if !d.ok || d.gen != d.model.Generation() {
		return dynamics.ErrStaleDynamics
	}
	return nil
}

func (d *DynamicsMatrix) ActuatedIndices() []int   { return d.actuated }
func (d *DynamicsMatrix) UnactuatedIndices() []int { return d.unactuated }
func (d *DynamicsMatrix) RhoSize() int             { return d.contacts.RhoSize() }

// row returns [M_i, −(JᵀQ)_i] and C_i for generalized coordinate i.
func (d *DynamicsMatrix) row(i int) ([]float64, float64) {
	n, r := d.model.DoF(), d.contacts.RhoSize()
	out := make([]float64, n+r)
	for j := 0; j < n; j++ {
		out[j] = d.mass.At(i, j)
	}
	for k := 0; k < r; k++ {
		out[n+k] = -d.jtq.At(i, k)
	}
	return out, d.bias.AtVec(i)
}

// GeneralizedForces returns M q̈ + C − JᵀQ rho for every coordinate.
func (d *DynamicsMatrix) GeneralizedForces(qdd, rho mat.Vector) (*mat.VecDense, error) {
	if err := d.fresh(); err != nil {
		return nil, err
	}
	n, r := d.model.DoF(), d.contacts.RhoSize()
	if qdd.Len() != n {
		return nil, errors.Wrapf(model.ErrDimensionMismatch, "qdd: got %d, want %d", qdd.Len(), n)
	}
	if rho != nil && rho.Len() != r {
		return nil, errors.Wrapf(contact.ErrRhoSize, "got %d, want %d", rho.Len(), r)
	}
	tau := mat.NewVecDense(n, nil)
	tau.MulVec(d.mass, qdd)
	tau.AddVec(tau, d.bias)
	if r > 0 && rho != nil {
		var f mat.VecDense
		f.MulVec(d.jtq, rho)
		tau.SubVec(tau, &f)
	}
	return tau, nil
}

// JointTorques returns the actuated rows of GeneralizedForces, ordered as
// ActuatedIndices.
func (d *DynamicsMatrix) JointTorques(qdd, rho mat.Vector) (*mat.VecDense, error) {
	return d.pick(qdd, rho, d.actuated)
}

// FloatingBaseResidual returns the unactuated rows, which vanish for a
// dynamically consistent (q̈, rho).
func (d *DynamicsMatrix) FloatingBaseResidual(qdd, rho mat.Vector) (*mat.VecDense, error) {
	return d.pick(qdd, rho, d.unactuated)
}

func (d *DynamicsMatrix) pick(qdd, rho mat.Vector, idx []int) (*mat.VecDense, error) {
	tau, err := d.GeneralizedForces(qdd, rho)
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return &mat.VecDense{}, nil
	}
	out := mat.NewVecDense(len(idx), nil)
	for i, k := range idx {
		out.SetVec(i, tau.AtVec(k))
	}
	return out, nil
}
