package contact_test

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

var corners = []r3.Vector{
	{X: 0.1, Y: 0.05}, {X: 0.1, Y: -0.05}, {X: -0.1, Y: 0.05}, {X: -0.1, Y: -0.05},
}

func footModel(t *testing.T) (*model.Model, model.BodyID, model.FrameID) {
	t.Helper()
	b := model.NewBuilder("foot")
	foot := b.AddFloatingBase("root", model.BodySpec{Name: "foot", Mass: 1, Inertia: spatial.Diagonal(0.01, 0.01, 0.01)})
	sole := b.AddFixedFrame("foot_sole", foot, spatial.Translation(0, 0, -0.05))
	m, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m.SetFloatingPose(m.FloatingJoints()[0], spatial.Transform{
		Rotation:    spatial.AxisAngle(r3.Vector{Z: 1}, 0.3),
		Translation: r3.Vector{X: 0.4, Y: 0.2, Z: 0.05},
	})
	m.UpdateKinematics()
	return m, foot, sole
}

func TestBasis(t *testing.T) {
	g := NewWithT(t)
	mu := 0.5
	basis := contact.Basis(mu, 4)

	g.Expect(basis).To(HaveLen(4))
	g.Expect(basis[0].X).To(BeNumerically(">", 0))
	g.Expect(basis[1].Y).To(BeNumerically(">", 0))
	g.Expect(basis[2].X).To(BeNumerically("<", 0))
	g.Expect(basis[3].Y).To(BeNumerically("<", 0))
	for _, b := range basis {
		g.Expect(b.Norm()).To(BeNumerically("~", 1, 1e-12))
		g.Expect(math.Atan2(math.Hypot(b.X, b.Y), b.Z)).To(BeNumerically("~", math.Atan(mu), 1e-12))
	}
}

func TestUniformRhoGivesVerticalForce(t *testing.T) {
	g := NewWithT(t)
	m, foot, sole := footModel(t)
	c, err := contact.NewCalculator(m, []contact.PlaneBody{{Body: foot, SoleFrame: sole, Points: corners, Friction: 1}})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.RhoSize()).To(Equal(16))
	g.Expect(c.ComputeMatrices()).To(Succeed())

	rho := mat.NewVecDense(16, nil)
	for i := 0; i < 16; i++ {
		rho.SetVec(i, 2)
	}
	wrenches, err := c.WrenchesFromRho(rho)
	g.Expect(err).NotTo(HaveOccurred())
	w := wrenches[foot]
	g.Expect(w.Linear.X).To(BeNumerically("~", 0, 1e-12))
	g.Expect(w.Linear.Y).To(BeNumerically("~", 0, 1e-12))
	g.Expect(w.Linear.Z).To(BeNumerically("~", 16*2/math.Sqrt2, 1e-12))

	// a symmetric vertical load acts through the sole centre
	local, err := c.WrenchInSoleFrame(foot, w)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(local.Angular.Norm()).To(BeNumerically("~", 0, 1e-12))
	g.Expect(local.Linear.Z).To(BeNumerically("~", w.Linear.Z, 1e-12))
}

func TestContactJacobianTranspose(t *testing.T) {
	g := NewWithT(t)
	m, foot, sole := footModel(t)
	c, err := contact.NewCalculator(m, []contact.PlaneBody{{Body: foot, SoleFrame: sole, Points: corners}})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.ComputeMatrices()).To(Succeed())

	rho := mat.NewVecDense(c.RhoSize(), nil)
	for i := 0; i < c.RhoSize(); i++ {
		rho.SetVec(i, float64(i%5)*0.3)
	}
	jtq, err := c.ContactJacobianTranspose()
	g.Expect(err).NotTo(HaveOccurred())
	var got mat.VecDense
	got.MulVec(jtq, rho)

	wrenches, err := c.WrenchesFromRho(rho)
	g.Expect(err).NotTo(HaveOccurred())
	jac, err := m.Jacobian(model.Elevator, foot, model.World)
	g.Expect(err).NotTo(HaveOccurred())
	var want mat.VecDense
	want.MulVec(jac.T(), mat.NewVecDense(spatial.Size, wrenches[foot].Slice()))
	for i := 0; i < m.DoF(); i++ {
		g.Expect(got.AtVec(i)).To(BeNumerically("~", want.AtVec(i), 1e-12))
	}
}

func TestInactiveBodyKeepsIndices(t *testing.T) {
	g := NewWithT(t)
	b := model.NewBuilder("feet")
	pelvis := b.AddFloatingBase("root", model.BodySpec{Name: "pelvis", Mass: 5, Inertia: spatial.Diagonal(0.1, 0.1, 0.1)})
	left := b.AddRevolute("l_hip", pelvis, spatial.Translation(0, 0.1, -0.5), r3.Vector{Y: 1},
		model.BodySpec{Name: "l_foot", Mass: 1, Inertia: spatial.Diagonal(0.01, 0.01, 0.01)})
	right := b.AddRevolute("r_hip", pelvis, spatial.Translation(0, -0.1, -0.5), r3.Vector{Y: 1},
		model.BodySpec{Name: "r_foot", Mass: 1, Inertia: spatial.Diagonal(0.01, 0.01, 0.01)})
	ls := b.AddFixedFrame("l_sole", left, spatial.IdentityTransform())
	rs := b.AddFixedFrame("r_sole", right, spatial.IdentityTransform())
	m, err := b.Build()
	g.Expect(err).NotTo(HaveOccurred())

	c, err := contact.NewCalculator(m, []contact.PlaneBody{
		{Body: left, SoleFrame: ls, Points: corners},
		{Body: right, SoleFrame: rs, Points: corners},
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(c.SetInContact(left, false)).To(Succeed())
	g.Expect(c.ComputeMatrices()).To(Succeed())

	g.Expect(c.RhoSize()).To(Equal(32))
	idx, ok := c.BodyIndex(right)
	g.Expect(ok).To(BeTrue())
	g.Expect(idx).To(Equal(1))
	g.Expect(c.Offset(idx)).To(Equal(16))
	g.Expect(c.InactiveRho()).To(HaveLen(16))
	g.Expect(c.InactiveRho()[15]).To(Equal(15))

	q, err := c.Q()
	g.Expect(err).NotTo(HaveOccurred())
	r, cols := q.Dims()
	g.Expect(r).To(Equal(12))
	g.Expect(cols).To(Equal(32))
	for i := 0; i < 6; i++ {
		for k := 0; k < 32; k++ {
			g.Expect(q.At(i, k)).To(BeZero())
		}
	}
	g.Expect(mat.Norm(q.Slice(6, 12, 16, 32), 1)).To(BeNumerically(">", 0))

	wrenches, err := c.WrenchesFromRho(mat.NewVecDense(32, nil))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(wrenches).To(HaveKey(left))
	g.Expect(wrenches).To(HaveKey(right))
}

func TestCalculatorErrors(t *testing.T) {
	g := NewWithT(t)
	m, foot, sole := footModel(t)

	_, err := contact.NewCalculator(m, []contact.PlaneBody{{Body: foot, SoleFrame: sole}})
	g.Expect(errors.Is(err, contact.ErrInvalidContact)).To(BeTrue())

	_, err = contact.NewCalculator(m, []contact.PlaneBody{{Body: model.BodyID(9), SoleFrame: sole, Points: corners}})
	g.Expect(errors.Is(err, contact.ErrInvalidContact)).To(BeTrue())

	_, err = contact.NewCalculator(m, []contact.PlaneBody{{Body: foot, SoleFrame: sole, Points: corners, BasisPerPoint: 2}})
	g.Expect(errors.Is(err, contact.ErrInvalidContact)).To(BeTrue())

	c, err := contact.NewCalculator(m, []contact.PlaneBody{{Body: foot, SoleFrame: sole, Points: corners}})
	g.Expect(err).NotTo(HaveOccurred())
	_, err = c.Q()
	g.Expect(errors.Is(err, contact.ErrStaleMatrices)).To(BeTrue())

	g.Expect(c.ComputeMatrices()).To(Succeed())
	_, err = c.WrenchesFromRho(mat.NewVecDense(3, nil))
	g.Expect(errors.Is(err, contact.ErrRhoSize)).To(BeTrue())

	m.SetJointPosition(0, 0)
	_, err = c.Q()
	g.Expect(errors.Is(err, contact.ErrStaleMatrices)).To(BeTrue())
}
