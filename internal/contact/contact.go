// Package contact maps discretized contact-force bases ("rho") at contact
// points on plane bodies to the wrenches they exert.
package contact

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"
	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/model"
)

const (
	DefaultBasisPerPoint = 4
	DefaultFriction      = 0.7
)

var (
	ErrInvalidContact = errors.New("contact: invalid contact body")
	ErrStaleMatrices  = errors.New("contact: matrices are stale, call ComputeMatrices")
	ErrRhoSize        = errors.New("contact: rho vector has the wrong size")
)

// PlaneBody is a body that may touch the environment through a set of
// points lying in its sole frame. The sole frame's +z is the contact normal.
type PlaneBody struct {
	Body          model.BodyID
	SoleFrame     model.FrameID
	Points        []r3.Vector
	Friction      float64
	BasisPerPoint int
	// MaxRho bounds each rho coefficient; 0 leaves it unbounded.
	MaxRho float64
}

// Basis returns n unit force directions approximating the friction cone of
// coefficient mu around +z. Basis k leans towards the tangential direction at
// angle 2πk/n from +x, so n = 4 gives the ±x, ±y cardinal directions.
func Basis(mu float64, n int) []r3.Vector {
	out := make([]r3.Vector, n)
	for k := range out {
		theta := 2 * math.Pi * float64(k) / float64(n)
		out[k] = r3.Vector{X: mu * math.Cos(theta), Y: mu * math.Sin(theta), Z: 1}.Normalize()
	}
	return out
}

// Calculator builds Q (wrench = Q·rho) for a fixed set of contact bodies.
// Rho indices depend only on the registered bodies and their nominal point
// counts, so they stay stable while contact states change.
type Calculator struct {
	model  *model.Model
	bodies []PlaneBody
	active [][]bool
	basis  [][]r3.Vector

	offsets []int
	rhoSize int

	q   *mat.Dense
	jtq *mat.Dense
	gen uint64
	ok  bool
}

func NewCalculator(m *model.Model, bodies []PlaneBody) (*Calculator, error) {
	c := &Calculator{model: m}
	seen := map[model.BodyID]bool{}
	for _, pb := range bodies {
		if pb.BasisPerPoint == 0 {
			pb.BasisPerPoint = DefaultBasisPerPoint
		}
		if pb.Friction == 0 {
			pb.Friction = DefaultFriction
		}
		if err := validate(m, pb); err != nil {
			return nil, err
		}
		if seen[pb.Body] {
			return nil, pkgerrors.Wrapf(ErrInvalidContact, "body %q registered twice", m.Body(pb.Body).Name)
		}
		seen[pb.Body] = true

		pb.Points = append([]r3.Vector(nil), pb.Points...)
		c.offsets = append(c.offsets, c.rhoSize)
		c.rhoSize += len(pb.Points) * pb.BasisPerPoint
		c.bodies = append(c.bodies, pb)
		c.basis = append(c.basis, Basis(pb.Friction, pb.BasisPerPoint))
		act := make([]bool, len(pb.Points))
		for i := range act {
			act[i] = true
		}
		c.active = append(c.active, act)
	}
	return c, nil
}

func validate(m *model.Model, pb PlaneBody) error {
	if pb.Body <= model.Elevator || int(pb.Body) >= m.NumBodies() {
		return pkgerrors.Wrapf(ErrInvalidContact, "unknown body %d", pb.Body)
	}
	if _, err := m.FrameTransform(pb.SoleFrame); err != nil {
		return pkgerrors.Wrapf(ErrInvalidContact, "body %q: %v", m.Body(pb.Body).Name, err)
	}
	if len(pb.Points) == 0 {
		return pkgerrors.Wrapf(ErrInvalidContact, "body %q has no contact points", m.Body(pb.Body).Name)
	}
	if pb.Friction < 0 || math.IsNaN(pb.Friction) {
		return pkgerrors.Wrapf(ErrInvalidContact, "body %q: friction %v", m.Body(pb.Body).Name, pb.Friction)
	}
	if pb.BasisPerPoint < 3 {
		return pkgerrors.Wrapf(ErrInvalidContact, "body %q: need at least 3 basis vectors, got %d", m.Body(pb.Body).Name, pb.BasisPerPoint)
	}
	return nil
}

func (c *Calculator) RhoSize() int         { return c.rhoSize }
func (c *Calculator) NumBodies() int       { return len(c.bodies) }
func (c *Calculator) Bodies() []PlaneBody  { return c.bodies }
func (c *Calculator) Body(i int) PlaneBody { return c.bodies[i] }
func (c *Calculator) Offset(i int) int     { return c.offsets[i] }

// BodyIndex returns the block index of a registered body.
func (c *Calculator) BodyIndex(id model.BodyID) (int, bool) {
	for i := range c.bodies {
		if c.bodies[i].Body == id {
			return i, true
		}
	}
	return 0, false
}

// SetActive sets which of a body's points touch the environment this tick.
// A nil slice marks all points inactive.
func (c *Calculator) SetActive(id model.BodyID, active []bool) error {
	i, ok := c.BodyIndex(id)
	if !ok {
		return pkgerrors.Wrapf(ErrInvalidContact, "body %d is not a contact body", id)
	}
	if active != nil && len(active) != len(c.bodies[i].Points) {
		return pkgerrors.Wrapf(ErrInvalidContact, "body %q: %d flags for %d points",
			c.model.Body(id).Name, len(active), len(c.bodies[i].Points))
	}
	for p := range c.active[i] {
		c.active[i][p] = active != nil && active[p]
	}
	c.ok = false
	return nil
}

// SetInContact marks every point of a body active or inactive.
func (c *Calculator) SetInContact(id model.BodyID, inContact bool) error {
	i, ok := c.BodyIndex(id)
	if !ok {
		return pkgerrors.Wrapf(ErrInvalidContact, "body %d is not a contact body", id)
	}
	flags := make([]bool, len(c.bodies[i].Points))
	for p := range flags {
		flags[p] = inContact
	}
	return c.SetActive(id, flags)
}

// ActivePoints returns the number of points in contact on block i.
func (c *Calculator) ActivePoints(i int) int {
	n := 0
	for _, a := range c.active[i] {
		if a {
			n++
		}
	}
	return n
}

// InactiveRho lists rho indices belonging to points out of contact.
func (c *Calculator) InactiveRho() []int {
	var out []int
	for i, pb := range c.bodies {
		for p, a := range c.active[i] {
			if a {
				continue
			}
			for k := 0; k < pb.BasisPerPoint; k++ {
				out = append(out, c.offsets[i]+p*pb.BasisPerPoint+k)
			}
		}
	}
	return out
}

// RhoBlock returns the contact block owning rho index k.
func (c *Calculator) RhoBlock(k int) int {
	for i := len(c.offsets) - 1; i >= 0; i-- {
		if k >= c.offsets[i] {
			return i
		}
	}
	return 0
}

// MaxRho returns the upper bound of each rho coefficient (0 when unbounded).
func (c *Calculator) MaxRho() []float64 {
	out := make([]float64, c.rhoSize)
	for i, pb := range c.bodies {
		n := len(pb.Points) * pb.BasisPerPoint
		for k := 0; k < n; k++ {
			out[c.offsets[i]+k] = pb.MaxRho
		}
	}
	return out
}
