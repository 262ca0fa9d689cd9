package experiment

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/config"
	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/dynamics"
	"github.com/san-kum/wholebody/internal/qp"
	"github.com/san-kum/wholebody/internal/robots"
	"github.com/san-kum/wholebody/internal/sim"
	"github.com/san-kum/wholebody/internal/wholebody"
)

// Experiment wires a robot, solver, control loop and plant from a config.
type Experiment struct {
	cfg       *config.Config
	registry  *Registry
	logger    *zap.SugaredLogger
	simulator *sim.Simulator
}

func New(cfg *config.Config, registry *Registry, logger *zap.SugaredLogger) *Experiment {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Experiment{cfg: cfg, registry: registry, logger: logger}
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// Setup builds the simulator for the configured seed.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	s, err := e.Factory()(e.cfg.Seed)
	if err != nil {
		return err
	}
	for _, m := range e.registry.DefaultMetrics() {
		s.AddMetric(m)
	}
	e.simulator = s
	return nil
}

// Pipeline is a robot with its optimizer, before a control loop is built.
type Pipeline struct {
	Robot     *robots.Robot
	Optimizer *wholebody.Optimizer
	Dynamics  *dynamics.Calculator
}

// Build assembles robot, contacts, matrices, solver and optimizer.
func (e *Experiment) Build(seed int64) (*Pipeline, error) {
	robot, err := e.registry.GetRobot(e.cfg.Robot, seed)
	if err != nil {
		return nil, err
	}
	robot.Model.SetGravity(e.cfg.GravityVector())
	robot.Model.UpdateKinematics()
	e.cfg.ApplyContact(robot.Contacts)

	contacts, err := contact.NewCalculator(robot.Model, robot.Contacts)
	if err != nil {
		return nil, err
	}
	solver, err := qp.New(e.cfg.Solver.Backend, e.cfg.QP())
	if err != nil {
		return nil, err
	}
	dyn := dynamics.New(robot.Model)
	opt, err := wholebody.NewOptimizer(wholebody.NewDynamicsMatrix(robot.Model, dyn, contacts), solver, e.cfg.Settings(), e.logger.Named("wholebody"))
	if err != nil {
		return nil, err
	}
	return &Pipeline{Robot: robot, Optimizer: opt, Dynamics: dyn}, nil
}

// Factory builds independent simulators, one per seed.
func (e *Experiment) Factory() sim.Factory {
	return func(seed int64) (*sim.Simulator, error) {
		p, err := e.Build(seed)
		if err != nil {
			return nil, err
		}
		cc, err := e.cfg.Control()
		if err != nil {
			return nil, err
		}
		return sim.New(sim.Parts{Robot: p.Robot, Optimizer: p.Optimizer, Control: cc, Logger: e.logger.Named("control")})
	}
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, ErrNotSetup
	}
	sc, err := e.cfg.Sim()
	if err != nil {
		return nil, err
	}
	e.logger.Infow("running", "robot", e.cfg.Robot, "solver", e.cfg.Solver.Backend, "plant", sc.Plant, "duration", sc.Duration)
	return e.simulator.Run(ctx, sc)
}

// Simulator returns the underlying simulator for adding observers.
func (e *Experiment) Simulator() *sim.Simulator {
	return e.simulator
}

// Report compares one solved tick against recursive inverse dynamics.
type Report struct {
	Robot      string
	DoF        int
	RhoSize    int
	Objectives int
	Iterations int
	Status     qp.Status
	// MaxTorqueError is the largest gap between the solved torques and
	// RNEA under the solved accelerations and contact wrenches.
	MaxTorqueError float64
	// FloatingResidual is the largest generalized force on unactuated rows.
	FloatingResidual float64
	TotalNormalForce float64
	Weight           float64
	Dropped          error
}

// Check solves a single tick from the robot's standing state.
func (e *Experiment) Check() (*Report, error) {
	p, err := e.Build(e.cfg.Seed)
	if err != nil {
		return nil, err
	}
	m := p.Robot.Model
	set, err := command.NewAggregator(m, e.cfg.Period, e.logger).Aggregate(p.Robot.Commands)
	if err != nil {
		return nil, err
	}
	sol, err := p.Optimizer.Compute(set)
	if err != nil {
		return nil, errors.Wrapf(err, "solving %s", e.cfg.Robot)
	}

	want, err := p.Dynamics.InverseDynamics(sol.Qdd, sol.ContactWrenches)
	if err != nil {
		return nil, err
	}
	_, mass, err := m.CenterOfMass()
	if err != nil {
		return nil, err
	}
	r := &Report{
		Robot:      e.cfg.Robot,
		DoF:        m.DoF(),
		RhoSize:    p.Optimizer.Contacts().RhoSize(),
		Objectives: len(set.Objectives),
		Iterations: sol.Iterations,
		Status:     sol.Status,
		Weight:     mass * math.Abs(m.Gravity().Z),
		Dropped:    set.Dropped,
	}
	for k, i := range sol.Joints {
		r.MaxTorqueError = math.Max(r.MaxTorqueError, math.Abs(sol.Torques.AtVec(k)-want.AtVec(i)))
	}
	r.FloatingResidual = maxAbsAt(sol.Generalized, m.UnactuatedIndices())
	for _, w := range sol.ContactWrenches {
		r.TotalNormalForce += w.Linear.Z
	}
	return r, nil
}

func maxAbsAt(v mat.Vector, idx []int) float64 {
	out := 0.0
	for _, i := range idx {
		out = math.Max(out, math.Abs(v.AtVec(i)))
	}
	return out
}
