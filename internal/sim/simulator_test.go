package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"
	"go.uber.org/multierr"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/dynamics"
	"github.com/san-kum/wholebody/internal/integrators"
	"github.com/san-kum/wholebody/internal/metrics"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/qp"
	"github.com/san-kum/wholebody/internal/robots"
	"github.com/san-kum/wholebody/internal/wholebody"
)

func newLegSimulator(t *testing.T) *Simulator {
	t.Helper()
	s, err := legFactory(0)
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}
	return s
}

func legFactory(int64) (*Simulator, error) {
	robot, err := robots.TwoLinkLeg()
	if err != nil {
		return nil, err
	}
	contacts, err := contact.NewCalculator(robot.Model, robot.Contacts)
	if err != nil {
		return nil, err
	}
	solver, err := qp.New(qp.ActiveSetName, qp.DefaultConfig())
	if err != nil {
		return nil, err
	}
	matrix := wholebody.NewDynamicsMatrix(robot.Model, dynamics.New(robot.Model), contacts)
	opt, err := wholebody.NewOptimizer(matrix, solver, wholebody.DefaultSettings(), nil)
	if err != nil {
		return nil, err
	}
	return New(Parts{Robot: robot, Optimizer: opt, Control: control.DefaultConfig()})
}

func shortRun() Config {
	cfg := DefaultConfig()
	cfg.Duration = 0.1
	return cfg
}

func TestSimulatorRun(t *testing.T) {
	g := NewWithT(t)
	s := newLegSimulator(t)
	s.AddMetric(metrics.NewIterations())

	result, err := s.Run(context.Background(), shortRun())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(result.StepsTaken).To(Equal(20))
	g.Expect(result.Times).To(HaveLen(20))
	g.Expect(result.Times[0]).To(Equal(0.0))
	g.Expect(result.Times[1]).To(BeNumerically("~", 0.005, 1e-12))
	g.Expect(result.Torques).To(HaveLen(20))
	g.Expect(result.Joints).To(Equal([]string{"hip", "knee"}))
	g.Expect(result.ContactForces).To(HaveKey("shank"))
	g.Expect(result.BaseHeight).To(HaveLen(20))
	g.Expect(result.Metrics).To(HaveKey("qp_iterations"))
	g.Expect(result.Halted).To(BeFalse())
}

func TestSimulatorRunIsRepeatable(t *testing.T) {
	g := NewWithT(t)
	s := newLegSimulator(t)

	first, err := s.Run(context.Background(), shortRun())
	g.Expect(err).NotTo(HaveOccurred())
	second, err := s.Run(context.Background(), shortRun())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(second.BaseHeight).To(Equal(first.BaseHeight))
	g.Expect(second.Torques).To(Equal(first.Torques))
}

func TestSimulatorInvalidConfig(t *testing.T) {
	s := newLegSimulator(t)

	tests := []struct {
		name string
		cfg  func(*Config)
	}{
		{"zero duration", func(c *Config) { c.Duration = 0 }},
		{"negative duration", func(c *Config) { c.Duration = -1 }},
		{"zero period", func(c *Config) { c.Period = 0 }},
		{"period mismatch", func(c *Config) { c.Period = time.Millisecond }},
		{"negative noise", func(c *Config) { c.VelocityNoise = -0.1 }},
		{"unknown integrator", func(c *Config) { c.Integrator = "rk4" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := shortRun()
			tt.cfg(&cfg)
			if _, err := s.Run(context.Background(), cfg); err == nil {
				t.Error("expected error for invalid config")
			}
		})
	}
}

func TestSimulatorContactEvent(t *testing.T) {
	g := NewWithT(t)
	s := newLegSimulator(t)
	s.AddEvent(ContactEvent{Time: 0.05, Body: "shank", InContact: false})

	result, err := s.Run(context.Background(), shortRun())
	g.Expect(err).NotTo(HaveOccurred())
	forces := result.ContactForces["shank"]
	g.Expect(forces).To(HaveLen(result.StepsTaken))
	for i, f := range forces {
		if result.Times[i] >= 0.05 {
			g.Expect(f).To(BeZero(), "tick %d", i)
		}
	}
}

func TestSimulatorTrajectory(t *testing.T) {
	g := NewWithT(t)
	s := newLegSimulator(t)
	tr, err := command.NewTrajectory(
		command.Waypoint{Time: 0, Command: command.Orientation("pelvis_hold", "pelvis", r3.Vector{}, 1)},
		command.Waypoint{Time: 0.05, Command: command.Orientation("pelvis_hold", "pelvis", r3.Vector{}, 4)},
	)
	g.Expect(err).NotTo(HaveOccurred())
	s.AddTrajectory(tr)
	version := s.Board().Version()

	_, err = s.Run(context.Background(), shortRun())
	g.Expect(err).NotTo(HaveOccurred())
	// one submit per waypoint, not per tick
	g.Expect(s.Board().Version()).To(Equal(version + 2))

	var found bool
	for _, c := range s.Board().Commands() {
		if c.ID() == "pelvis_hold" {
			found = true
			g.Expect(c.(command.SpatialAcceleration).Weight).To(Equal(4.0))
		}
	}
	g.Expect(found).To(BeTrue())
}

func TestSimulatorContextCancel(t *testing.T) {
	g := NewWithT(t)
	s := newLegSimulator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Run(ctx, shortRun())
	g.Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	g.Expect(result.StepsTaken).To(BeZero())
}

func TestEnsemble(t *testing.T) {
	g := NewWithT(t)
	cfg := shortRun()
	cfg.VelocityNoise = 1e-3

	results, err := NewEnsemble(legFactory, 3, 10).Run(context.Background(), cfg)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(3))
	for _, r := range results {
		g.Expect(r).NotTo(BeNil())
		g.Expect(r.StepsTaken).To(Equal(20))
	}

	boom := errors.New("boom")
	failing := func(seed int64) (*Simulator, error) {
		if seed%2 == 0 {
			return nil, boom
		}
		return legFactory(seed)
	}
	results, err = NewEnsemble(failing, 3, 0).Run(context.Background(), cfg)
	g.Expect(multierr.Errors(err)).To(HaveLen(2))
	g.Expect(errors.Is(err, boom)).To(BeTrue())
	g.Expect(results[0]).To(BeNil())
	g.Expect(results[1]).NotTo(BeNil())
}

func TestPlantDynamicFreeFall(t *testing.T) {
	g := NewWithT(t)
	robot, err := robots.TwoLinkLeg()
	g.Expect(err).NotTo(HaveOccurred())
	contacts, err := contact.NewCalculator(robot.Model, robot.Contacts)
	g.Expect(err).NotTo(HaveOccurred())

	p := NewPlant(robot.Model)
	cfg := DefaultConfig()
	cfg.Plant = Dynamic
	g.Expect(p.Configure(cfg)).To(Succeed())

	ctx := context.Background()
	g.Expect(p.ReadState(ctx, robot.Model, contacts)).To(Succeed())
	g.Expect(p.Time()).To(Equal(0.0))

	p.OnTick(control.Telemetry{Fallback: true, Torques: []float64{0, 0}})
	p.SetContact("shank", false)
	g.Expect(p.ReadState(ctx, robot.Model, contacts)).To(Succeed())
	g.Expect(p.Time()).To(BeNumerically("~", 0.005, 1e-12))
	g.Expect(contacts.ActivePoints(0)).To(BeZero())

	// a chain at rest without torques falls as one body
	dt := cfg.Period.Seconds()
	gz := robot.Model.Gravity().Z
	root := robot.Model.Joint(robot.Model.FloatingJoints()[0])
	g.Expect(root.Twist.Linear.Z).To(BeNumerically("~", gz*dt, 1e-9))
	for _, j := range robot.Model.Snapshot() {
		if j.Kind != model.Floating {
			g.Expect(math.Abs(j.Qd)).To(BeNumerically("<", 1e-9))
		}
	}

	p.SetContact("hand", true)
	err = p.ReadState(ctx, robot.Model, contacts)
	g.Expect(errors.Is(err, model.ErrUnknownBody)).To(BeTrue())
}

func TestPlantKinematic(t *testing.T) {
	g := NewWithT(t)
	robot, err := robots.TwoLinkLeg()
	g.Expect(err).NotTo(HaveOccurred())
	contacts, err := contact.NewCalculator(robot.Model, robot.Contacts)
	g.Expect(err).NotTo(HaveOccurred())
	m := robot.Model
	knee, _ := m.JointByName("knee")

	p := NewPlant(m)
	ctx := context.Background()
	g.Expect(p.ReadState(ctx, m, contacts)).To(Succeed())

	qdd := m.Accelerations()
	qdd.Zero()
	qdd.SetVec(m.Joint(knee).Index(), 2)
	g.Expect(m.SetAccelerations(qdd)).To(Succeed())
	p.OnTick(control.Telemetry{})
	g.Expect(p.ReadState(ctx, m, contacts)).To(Succeed())
	g.Expect(m.Joint(knee).Qd).To(BeNumerically("~", 2*0.005, 1e-12))

	// fallback ticks coast
	p.OnTick(control.Telemetry{Fallback: true})
	g.Expect(p.ReadState(ctx, m, contacts)).To(Succeed())
	g.Expect(m.Joint(knee).Qd).To(BeNumerically("~", 2*0.005, 1e-12))
}

func TestParsePlantMode(t *testing.T) {
	g := NewWithT(t)
	mode, err := ParsePlantMode("dynamic")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(mode).To(Equal(Dynamic))
	g.Expect(mode.String()).To(Equal("dynamic"))

	mode, err = ParsePlantMode("")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(mode).To(Equal(Kinematic))

	_, err = ParsePlantMode("hybrid")
	g.Expect(err).To(HaveOccurred())
	g.Expect(integrators.Names()).To(ContainElement(DefaultConfig().Integrator))
}

func TestSimulatorPoseTask(t *testing.T) {
	g := NewWithT(t)
	s := newLegSimulator(t)
	m := s.Robot().Model
	pelvis, _ := m.BodyByName("pelvis")
	here, err := m.BodyTransform(pelvis)
	g.Expect(err).NotTo(HaveOccurred())

	lift := here
	lift.Translation.Z += 0.05
	s.AddPoseTask(PoseTask{Start: 0.05, PD: control.NewPD("pelvis_pose", "pelvis", 50, 10, 1, lift)})
	s.AddPoseTask(PoseTask{Start: 0, PD: control.NewPD("pelvis_pose", "pelvis", 50, 10, 1, here)})
	version := s.Board().Version()

	result, err := s.Run(context.Background(), shortRun())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(result.Errors).To(BeEmpty())
	// one submit per tick
	g.Expect(s.Board().Version()).To(Equal(version + uint64(result.StepsTaken)))

	var found bool
	for _, c := range s.Board().Commands() {
		if c.ID() == "pelvis_pose" {
			found = true
			g.Expect(c.(command.SpatialAcceleration).EndEffector).To(Equal("pelvis"))
		}
	}
	g.Expect(found).To(BeTrue())
}
