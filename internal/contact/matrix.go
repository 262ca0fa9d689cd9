package contact

import (
	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

// ComputeMatrices builds Q (6·bodies × rho) in world-origin wrench
// coordinates and Σ Jᵀ·Q (N × rho). Bodies without active points keep their
// rows and columns as zero blocks.
func (c *Calculator) ComputeMatrices() error {
	m := c.model
	if c.rhoSize == 0 {
		c.q, c.jtq = nil, nil
		c.gen, c.ok = m.Generation(), true
		return nil
	}

	q := mat.NewDense(spatial.Size*len(c.bodies), c.rhoSize, nil)
	jtq := mat.NewDense(m.DoF(), c.rhoSize, nil)
	var tmp mat.Dense
	for i, pb := range c.bodies {
		sole, err := m.FrameTransform(pb.SoleFrame)
		if err != nil {
			return err
		}
		jac, err := m.Jacobian(model.Elevator, pb.Body, model.World)
		if err != nil {
			return pkgerrors.Wrapf(err, "contact body %q", m.Body(pb.Body).Name)
		}
		row := spatial.Size * i
		for p, pt := range pb.Points {
			if !c.active[i][p] {
				continue
			}
			at := sole.ApplyPoint(pt)
			for k, b := range c.basis[i] {
				f := sole.ApplyVector(b)
				w := spatial.Vector{Angular: at.Cross(f), Linear: f}
				col := c.offsets[i] + p*pb.BasisPerPoint + k
				for r, v := range w.Slice() {
					q.Set(row+r, col, v)
				}
			}
		}
		block := q.Slice(row, row+spatial.Size, 0, c.rhoSize)
		tmp.Reset()
		tmp.Mul(jac.T(), block)
		jtq.Add(jtq, &tmp)
	}
	c.q, c.jtq = q, jtq
	c.gen, c.ok = m.Generation(), true
	return nil
}

func (c *Calculator) fresh() error {
	if !c.ok || c.gen != c.model.Generation() {
		return ErrStaleMatrices
	}
	return nil
}

// Q returns the wrench matrix; nil when no rho variables exist.
func (c *Calculator) Q() (*mat.Dense, error) {
	if err := c.fresh(); err != nil {
		return nil, err
	}
	return c.q, nil
}

// ContactJacobianTranspose returns Σ Jcᵀ·Qc, the generalized force per unit rho.
func (c *Calculator) ContactJacobianTranspose() (*mat.Dense, error) {
	if err := c.fresh(); err != nil {
		return nil, err
	}
	return c.jtq, nil
}

// WrenchesFromRho evaluates Q·rho per body. Every registered body gets an
// entry, zero when it has no active points.
func (c *Calculator) WrenchesFromRho(rho mat.Vector) (map[model.BodyID]spatial.Vector, error) {
	if err := c.fresh(); err != nil {
		return nil, err
	}
	if rho.Len() != c.rhoSize {
		return nil, pkgerrors.Wrapf(ErrRhoSize, "got %d, want %d", rho.Len(), c.rhoSize)
	}
	out := make(map[model.BodyID]spatial.Vector, len(c.bodies))
	for i, pb := range c.bodies {
		w := make([]float64, spatial.Size)
		for r := range w {
			row := spatial.Size*i + r
			for k := 0; k < c.rhoSize; k++ {
				w[r] += c.q.At(row, k) * rho.AtVec(k)
			}
		}
		out[pb.Body] = spatial.FromSlice(w)
	}
	return out, nil
}

// WrenchInSoleFrame expresses a world-origin contact wrench in the body's sole frame.
func (c *Calculator) WrenchInSoleFrame(id model.BodyID, w spatial.Vector) (spatial.Vector, error) {
	i, ok := c.BodyIndex(id)
	if !ok {
		return spatial.Vector{}, pkgerrors.Wrapf(ErrInvalidContact, "body %d is not a contact body", id)
	}
	sole, err := c.model.FrameTransform(c.bodies[i].SoleFrame)
	if err != nil {
		return spatial.Vector{}, err
	}
	return spatial.ForceIn(sole, w), nil
}
