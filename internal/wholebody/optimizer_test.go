package wholebody_test

import (
	"errors"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/dynamics"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/qp"
	"github.com/san-kum/wholebody/internal/robots"
	"github.com/san-kum/wholebody/internal/spatial"
	"github.com/san-kum/wholebody/internal/wholebody"
)

type rig struct {
	model    *model.Model
	dyn      *dynamics.Calculator
	contacts *contact.Calculator
	matrix   *wholebody.DynamicsMatrix
	opt      *wholebody.Optimizer
	agg      *command.Aggregator
}

func newRig(m *model.Model, bodies []contact.PlaneBody) *rig {
	dyn := dynamics.New(m)
	contacts, err := contact.NewCalculator(m, bodies)
	Expect(err).NotTo(HaveOccurred())
	matrix := wholebody.NewDynamicsMatrix(m, dyn, contacts)
	solver, err := qp.New(qp.ActiveSetName, qp.DefaultConfig())
	Expect(err).NotTo(HaveOccurred())
	opt, err := wholebody.NewOptimizer(matrix, solver, wholebody.DefaultSettings(), nil)
	Expect(err).NotTo(HaveOccurred())
	return &rig{
		model:    m,
		dyn:      dyn,
		contacts: contacts,
		matrix:   matrix,
		opt:      opt,
		agg:      command.NewAggregator(m, 0.01, nil),
	}
}

func (r *rig) set(cmds ...command.Command) command.Set {
	set, err := r.agg.Aggregate(cmds)
	Expect(err).NotTo(HaveOccurred())
	Expect(set.Dropped).NotTo(HaveOccurred())
	return set
}

func (r *rig) solve(cmds ...command.Command) (*wholebody.Solution, error) {
	return r.opt.Compute(r.set(cmds...))
}

// referenceTorques runs recursive Newton-Euler with the contact wrenches as
// external forces and keeps the actuated rows.
func (r *rig) referenceTorques(qdd mat.Vector, wrenches map[model.BodyID]spatial.Vector) []float64 {
	tau, err := r.dyn.InverseDynamics(qdd, wrenches)
	Expect(err).NotTo(HaveOccurred())
	var out []float64
	for _, i := range r.model.ActuatedIndices() {
		out = append(out, tau.AtVec(i))
	}
	return out
}

func rowCount(a *mat.Dense) int {
	if a == nil {
		return 0
	}
	r, _ := a.Dims()
	return r
}

func fixedArm() *model.Model {
	b := model.NewBuilder("arm")
	upper := b.AddRevolute("shoulder", model.Elevator, spatial.IdentityTransform(), r3.Vector{Y: 1},
		model.BodySpec{Name: "upper", Mass: 2, CoM: r3.Vector{X: 0.2}, Inertia: spatial.Diagonal(0.01, 0.03, 0.03)})
	b.AddRevolute("elbow", upper, spatial.Translation(0.4, 0, 0), r3.Vector{Y: 1},
		model.BodySpec{Name: "fore", Mass: 1, CoM: r3.Vector{X: 0.15}, Inertia: spatial.Diagonal(0.005, 0.01, 0.01)})
	m, err := b.Build()
	Expect(err).NotTo(HaveOccurred())
	m.SetJointPosition(0, 0.3)
	m.SetJointPosition(1, -0.7)
	m.UpdateKinematics()
	return m
}

var _ = Describe("DynamicsMatrix", func() {
	DescribeTable("matches recursive Newton-Euler with contact wrenches",
		func(seed int64, links int) {
			rng := rand.New(rand.NewSource(seed))
			robot, err := robots.RandomChain(rng, links)
			Expect(err).NotTo(HaveOccurred())
			r := newRig(robot.Model, robot.Contacts)
			Expect(r.matrix.Compute()).To(Succeed())

			n, k := robot.Model.DoF(), r.contacts.RhoSize()
			qdd := mat.NewVecDense(n, nil)
			for i := 0; i < n; i++ {
				qdd.SetVec(i, 4*rng.Float64()-2)
			}
			rho := mat.NewVecDense(k, nil)
			for i := 0; i < k; i++ {
				rho.SetVec(i, 50*rng.Float64())
			}

			got, err := r.matrix.JointTorques(qdd, rho)
			Expect(err).NotTo(HaveOccurred())
			wrenches, err := r.contacts.WrenchesFromRho(rho)
			Expect(err).NotTo(HaveOccurred())
			want := r.referenceTorques(qdd, wrenches)

			Expect(got.Len()).To(Equal(len(want)))
			for i := range want {
				Expect(got.AtVec(i)).To(BeNumerically("~", want[i], 1e-6*(1+math.Abs(want[i]))))
			}
		},
		Entry("short chains", int64(1), 1),
		Entry("two-link branches", int64(2), 2),
		Entry("long branches", int64(3), 5),
		Entry("another draw", int64(42), 4),
	)

	It("refuses a stale state", func() {
		robot, err := robots.TwoLinkLeg()
		Expect(err).NotTo(HaveOccurred())
		r := newRig(robot.Model, robot.Contacts)
		Expect(r.matrix.Compute()).To(Succeed())
		robot.Model.SetJointPosition(1, -0.5)
		robot.Model.UpdateKinematics()

		_, err = r.matrix.JointTorques(mat.NewVecDense(robot.Model.DoF(), nil), nil)
		Expect(err).To(MatchError(dynamics.ErrStaleDynamics))
		_, err = r.opt.Assemble(command.Set{})
		Expect(err).To(MatchError(dynamics.ErrStaleDynamics))
	})
})

var _ = Describe("Optimizer", func() {
	It("holds a fixed-base arm with gravity torques when nothing is commanded", func() {
		arm := fixedArm()
		r := newRig(arm, nil)

		sol, err := r.solve()
		Expect(err).NotTo(HaveOccurred())
		Expect(sol.Status).To(Equal(qp.Optimal))
		Expect(floats.Norm(sol.Qdd.RawVector().Data, math.Inf(1))).To(BeNumerically("<", 1e-9))
		Expect(sol.Rho.Len()).To(Equal(0))

		gravity, err := r.dyn.GravityCompensation()
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < arm.DoF(); i++ {
			Expect(sol.Torques.AtVec(i)).To(BeNumerically("~", gravity.AtVec(i), 1e-6))
		}
	})

	It("balances a standing leg with analytic gravity moments", func() {
		leg, err := robots.TwoLinkLeg()
		Expect(err).NotTo(HaveOccurred())
		m := leg.Model
		r := newRig(m, leg.Contacts)

		sol, err := r.solve(
			command.NoSlip("support", "shank"),
			command.JointAcceleration{Name: "hold", Joints: []string{"hip", "knee"}, Desired: []float64{0, 0}, Weight: command.Hard},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(floats.Norm(sol.Qdd.RawVector().Data, math.Inf(1))).To(BeNumerically("<", 1e-6))

		grav := m.Gravity()
		com := func(name string) (r3.Vector, float64) {
			id, ok := m.BodyByName(name)
			Expect(ok).To(BeTrue())
			tf, err := m.FrameTransform(m.Body(id).CoMFrame())
			Expect(err).NotTo(HaveOccurred())
			return tf.Translation, m.Body(id).Mass
		}
		jointFrame := func(child string) spatial.Transform {
			id, _ := m.BodyByName(child)
			tf, err := m.FrameTransform(m.Body(id).Frame())
			Expect(err).NotTo(HaveOccurred())
			return tf
		}
		moment := func(joint spatial.Transform, bodies ...string) float64 {
			axis := joint.ApplyVector(r3.Vector{Y: 1})
			total := 0.0
			for _, b := range bodies {
				c, mass := com(b)
				total += axis.Dot(c.Sub(joint.Translation).Cross(grav.Mul(mass)))
			}
			return total
		}
		hip := moment(jointFrame("thigh"), "pelvis")
		knee := moment(jointFrame("shank"), "pelvis", "thigh")

		Expect(sol.Joints).To(Equal(m.ActuatedIndices()))
		Expect(sol.Torques.AtVec(0)).To(BeNumerically("~", hip, 1e-6))
		Expect(sol.Torques.AtVec(1)).To(BeNumerically("~", knee, 1e-6))
		Expect(math.Abs(hip)).To(BeNumerically(">", 1e-3))

		_, total, err := m.CenterOfMass()
		Expect(err).NotTo(HaveOccurred())
		shank, _ := m.BodyByName("shank")
		Expect(sol.ContactWrenches[shank].Linear.Z).To(BeNumerically("~", -total*grav.Z, 1e-6))
		Expect(sol.ContactWrenches[shank].Linear.X).To(BeNumerically("~", 0, 1e-6))

		// the sole is centred under the CoM, so the pressure centre is its origin
		local, err := r.contacts.WrenchInSoleFrame(shank, sol.ContactWrenches[shank])
		Expect(err).NotTo(HaveOccurred())
		Expect(local.Linear.Z).To(BeNumerically("~", -total*grav.Z, 1e-6))
		Expect(local.Angular.X).To(BeNumerically("~", 0, 1e-6))
		Expect(local.Angular.Y).To(BeNumerically("~", 0, 1e-6))
		Expect(sol.Rho.RawVector().Data).To(HaveEach(BeNumerically(">=", 0)))
	})

	It("agrees with recursive Newton-Euler on the biped", func() {
		biped, err := robots.Biped(true)
		Expect(err).NotTo(HaveOccurred())
		r := newRig(biped.Model, biped.Contacts)

		sol, err := r.solve(biped.Commands...)
		Expect(err).NotTo(HaveOccurred())
		want := r.referenceTorques(sol.Qdd, sol.ContactWrenches)
		for i := range want {
			Expect(sol.Torques.AtVec(i)).To(BeNumerically("~", want[i], 1e-6*(1+math.Abs(want[i]))))
		}

		residual, err := r.matrix.FloatingBaseResidual(sol.Qdd, sol.Rho)
		Expect(err).NotTo(HaveOccurred())
		Expect(floats.Norm(residual.RawVector().Data, math.Inf(1))).To(BeNumerically("<", 1e-6))
	})

	It("never returns negative contact coefficients", func() {
		biped, err := robots.Biped(false)
		Expect(err).NotTo(HaveOccurred())
		r := newRig(biped.Model, biped.Contacts)
		// lean the desired chest motion to load one foot more than the other
		cmds := append(biped.Commands, command.Translation("push", "chest", r3.Vector{Y: 0.5}, 5))

		sol, err := r.solve(cmds...)
		Expect(err).NotTo(HaveOccurred())
		Expect(sol.Rho.RawVector().Data).To(HaveEach(BeNumerically(">=", 0)))

		up := 0.0
		for _, w := range sol.ContactWrenches {
			up += w.Linear.Z
		}
		Expect(up).To(BeNumerically(">", 0))
	})

	It("leaves inactive contact bodies without force", func() {
		biped, err := robots.Biped(false)
		Expect(err).NotTo(HaveOccurred())
		r := newRig(biped.Model, biped.Contacts)
		right, _ := biped.Model.BodyByName("r_foot")
		Expect(r.contacts.SetInContact(right, false)).To(Succeed())

		// only the left foot is held
		sol, err := r.solve(biped.Commands[0], biped.Commands[2], biped.Commands[6])
		Expect(err).NotTo(HaveOccurred())
		Expect(sol.ContactWrenches[right]).To(Equal(spatial.Vector{}))
		Expect(sol.Rho.Len()).To(Equal(r.contacts.RhoSize()))
	})

	It("adds no rows for an empty selection", func() {
		leg, err := robots.TwoLinkLeg()
		Expect(err).NotTo(HaveOccurred())
		r := newRig(leg.Model, leg.Contacts)
		Expect(r.matrix.Compute()).To(Succeed())

		bare, err := r.opt.Assemble(r.set())
		Expect(err).NotTo(HaveOccurred())
		masked, err := r.opt.Assemble(r.set(command.SpatialAcceleration{
			Name: "masked", EndEffector: "shank", Weight: command.Hard,
		}))
		Expect(err).NotTo(HaveOccurred())
		Expect(rowCount(masked.Aeq)).To(Equal(rowCount(bare.Aeq)))
		Expect(mat.Equal(masked.H, bare.H)).To(BeTrue())

		partial, err := r.opt.Assemble(r.set(command.SpatialAcceleration{
			Name: "partial", EndEffector: "shank", Selection: command.Selection{command.LinearZ, command.AngularY}, Weight: command.Hard,
		}))
		Expect(err).NotTo(HaveOccurred())
		Expect(rowCount(partial.Aeq)).To(Equal(rowCount(bare.Aeq) + 2))
	})

	It("reports conflicting hard commands as infeasible", func() {
		leg, err := robots.TwoLinkLeg()
		Expect(err).NotTo(HaveOccurred())
		r := newRig(leg.Model, leg.Contacts)

		sol, err := r.solve(
			command.JointAcceleration{Name: "up", Joints: []string{"knee"}, Desired: []float64{1}, Weight: command.Hard},
			command.JointAcceleration{Name: "down", Joints: []string{"knee"}, Desired: []float64{-1}, Weight: command.Hard},
		)
		Expect(sol).To(BeNil())
		Expect(err).To(MatchError(wholebody.ErrInfeasible))
		var infeasible *wholebody.InfeasibleError
		Expect(errors.As(err, &infeasible)).To(BeTrue())
		Expect(infeasible.Reason).To(Equal(wholebody.ReasonInfeasible))
		Expect(infeasible.Status).To(Equal(qp.Infeasible))
	})

	It("reports an exhausted solver as a timeout", func() {
		biped, err := robots.Biped(false)
		Expect(err).NotTo(HaveOccurred())
		m := biped.Model
		dyn := dynamics.New(m)
		contacts, err := contact.NewCalculator(m, biped.Contacts)
		Expect(err).NotTo(HaveOccurred())
		solver := qp.NewActiveSet(qp.Config{MaxIterations: 1})
		opt, err := wholebody.NewOptimizer(wholebody.NewDynamicsMatrix(m, dyn, contacts), solver, wholebody.DefaultSettings(), nil)
		Expect(err).NotTo(HaveOccurred())

		set, err := command.NewAggregator(m, 0.01, nil).Aggregate(biped.Commands)
		Expect(err).NotTo(HaveOccurred())
		_, err = opt.Compute(set)
		var infeasible *wholebody.InfeasibleError
		Expect(errors.As(err, &infeasible)).To(BeTrue())
		Expect(infeasible.Reason).To(Equal(wholebody.ReasonTimeout))
		Expect(opt.Phase()).To(Equal(wholebody.Solve))
	})

	It("rejects invalid settings", func() {
		leg, err := robots.TwoLinkLeg()
		Expect(err).NotTo(HaveOccurred())
		r := newRig(leg.Model, leg.Contacts)
		solver, _ := qp.New(qp.ActiveSetName, qp.DefaultConfig())

		s := wholebody.DefaultSettings()
		s.Tikhonov = 0
		_, err = wholebody.NewOptimizer(r.matrix, solver, s, nil)
		Expect(err).To(MatchError(wholebody.ErrBadSettings))
		_, err = wholebody.NewOptimizer(r.matrix, nil, wholebody.DefaultSettings(), nil)
		Expect(err).To(MatchError(wholebody.ErrBadSettings))
	})
})
