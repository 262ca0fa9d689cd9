package control

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/qp"
	"github.com/san-kum/wholebody/internal/spatial"
	"github.com/san-kum/wholebody/internal/wholebody"
)

// Fallback is the torque policy for a tick without a solution.
type Fallback int

const (
	// FallbackHold repeats the last good torques.
	FallbackHold Fallback = iota
	FallbackZero
)

func (f Fallback) String() string {
	if f == FallbackZero {
		return "zero"
	}
	return "hold"
}

func ParseFallback(s string) (Fallback, error) {
	switch s {
	case "hold", "":
		return FallbackHold, nil
	case "zero":
		return FallbackZero, nil
	}
	return 0, errors.Wrapf(ErrBadConfig, "unknown fallback %q", s)
}

func (f Fallback) MarshalYAML() (interface{}, error) { return f.String(), nil }

func (f *Fallback) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseFallback(value.Value)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

const DefaultPeriod = 5 * time.Millisecond

type Config struct {
	Period   time.Duration
	Fallback Fallback
	// MaxFailures halts the output after that many consecutive failed
	// ticks; 0 never halts.
	MaxFailures int
	// Behaviors maps joint names to drive modes; absent joints are torque controlled.
	Behaviors map[string]JointBehavior
}

func DefaultConfig() Config {
	return Config{Period: DefaultPeriod, Fallback: FallbackHold, MaxFailures: 10}
}

func (c Config) Validate() error {
	if c.Period <= 0 {
		return errors.Wrapf(ErrBadConfig, "period %v must be positive", c.Period)
	}
	if c.MaxFailures < 0 {
		return errors.Wrapf(ErrBadConfig, "max failures %d", c.MaxFailures)
	}
	return nil
}

// StateSource writes the measured joint state and contact flags into the
// model and contact calculator at the start of a tick.
type StateSource interface {
	ReadState(ctx context.Context, m *model.Model, contacts *contact.Calculator) error
}

type Observer interface {
	OnTick(t Telemetry)
}

// Telemetry is the published record of one tick.
type Telemetry struct {
	Tick    uint64
	Time    time.Time
	Elapsed time.Duration
	Overrun bool

	Joints []model.JointState
	// Torques and Qdd are ordered as JointNames (actuated joints).
	JointNames      []string
	Torques         []float64
	Qdd             []float64
	ContactWrenches map[string]spatial.Vector

	Iterations int
	Status     qp.Status
	Fallback   bool
	Err        error
	// Dropped lists commands skipped while aggregating.
	Dropped error
}

type Deps struct {
	Model     *model.Model
	Optimizer *wholebody.Optimizer
	Board     *CommandBoard
	Source    StateSource
	Output    OutputWriter
	Logger    *zap.SugaredLogger
}

// Loop owns the model for its lifetime; only the control goroutine touches it.
type Loop struct {
	model    *model.Model
	contacts *contact.Calculator
	opt      *wholebody.Optimizer
	agg      *command.Aggregator
	board    *CommandBoard
	source   StateSource
	output   OutputWriter
	logger   *zap.SugaredLogger
	cfg      Config

	joints []model.JointID
	names  []string

	tick     uint64
	lastTau  []float64
	failures int

	halted    atomic.Bool
	overruns  atomic.Uint64
	failed    atomic.Uint64
	telemetry Latest[Telemetry]
	observers []Observer
}

// New validates the configuration and the commands already on the board;
// a command naming something absent from the model is a setup error here.
func New(d Deps, cfg Config) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if d.Model == nil || d.Optimizer == nil || d.Board == nil || d.Source == nil || d.Output == nil {
		return nil, errors.Wrap(ErrBadConfig, "model, optimizer, board, source and output are required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if err := command.Validate(d.Model, d.Board.Commands()); err != nil {
		return nil, err
	}
	for name := range cfg.Behaviors {
		if _, ok := d.Model.JointByName(name); !ok {
			return nil, errors.Wrapf(model.ErrUnknownJoint, "behavior for %q", name)
		}
	}
	l := &Loop{
		model:    d.Model,
		contacts: d.Optimizer.Contacts(),
		opt:      d.Optimizer,
		agg:      command.NewAggregator(d.Model, cfg.Period.Seconds(), d.Logger),
		board:    d.Board,
		source:   d.Source,
		output:   d.Output,
		logger:   d.Logger,
		cfg:      cfg,
	}
	for i := 0; i < d.Model.NumJoints(); i++ {
		j := d.Model.Joint(model.JointID(i))
		if j.Kind == model.Floating {
			continue
		}
		l.joints = append(l.joints, model.JointID(i))
		l.names = append(l.names, j.Name)
	}
	l.lastTau = make([]float64, len(l.joints))
	return l, nil
}

func (l *Loop) AddObserver(o Observer) { l.observers = append(l.observers, o) }

func (l *Loop) Telemetry() *Latest[Telemetry] { return &l.telemetry }
func (l *Loop) Overruns() uint64              { return l.overruns.Load() }
func (l *Loop) Failures() uint64              { return l.failed.Load() }
func (l *Loop) Halted() bool                  { return l.halted.Load() }
func (l *Loop) Config() Config                { return l.cfg }

// Run ticks every period until ctx is done or the output halts.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			err := l.Step(ctx, now)
			if l.Halted() {
				return stderrors.Join(ErrHalted, err)
			}
		}
	}
}

// Step runs one synchronous tick: state, kinematics, dynamics and contact
// matrices, command aggregation, QP, torque back-solve, output. A failed
// tick writes fallback torques and returns *TickError.
func (l *Loop) Step(ctx context.Context, now time.Time) error {
	if l.Halted() {
		return ErrHalted
	}
	start := time.Now()
	l.tick++
	tel := Telemetry{Tick: l.tick, Time: now, JointNames: l.names}

	sol, stage, err := l.solve(ctx, &tel)
	var out LowLevelOutput
	if err == nil {
		out = l.fromSolution(now, sol)
		copy(l.lastTau, sol.Torques.RawVector().Data)
		l.failures = 0
	} else {
		l.failures++
		l.failed.Inc()
		out = l.fallback(now)
		tel.Err = err
		tel.Fallback = true
		var infeasible *wholebody.InfeasibleError
		if errors.As(err, &infeasible) {
			tel.Status, tel.Iterations = infeasible.Status, infeasible.Iterations
		}
		l.logger.Warnw("tick failed", "tick", l.tick, "stage", stage, "fallback", l.cfg.Fallback, "error", err)
	}
	tel.Torques = make([]float64, len(out.Joints))
	for i, j := range out.Joints {
		tel.Torques[i] = j.Tau
	}
	tel.Joints = l.model.Snapshot()

	if werr := l.output.Write(out); werr != nil {
		l.halt(werr)
		err, stage = werr, StageOutput
		tel.Err = werr
	} else if err != nil && l.cfg.MaxFailures > 0 && l.failures >= l.cfg.MaxFailures {
		l.halt(errors.Wrapf(err, "%d consecutive failed ticks", l.failures))
	}

	tel.Elapsed = time.Since(start)
	if tel.Elapsed > l.cfg.Period {
		tel.Overrun = true
		l.overruns.Inc()
		l.logger.Warnw("tick overran its period", "tick", l.tick, "elapsed", tel.Elapsed, "period", l.cfg.Period)
	}
	l.telemetry.Publish(tel)
	for _, o := range l.observers {
		o.OnTick(tel)
	}

	if err != nil {
		return &TickError{Tick: l.tick, Stage: stage, Fallback: l.cfg.Fallback, Wrapped: err}
	}
	return nil
}

func (l *Loop) solve(ctx context.Context, tel *Telemetry) (*wholebody.Solution, Stage, error) {
	if err := l.source.ReadState(ctx, l.model, l.contacts); err != nil {
		return nil, StageState, err
	}
	l.model.UpdateKinematics()

	set, err := l.agg.Aggregate(l.board.Commands())
	if err != nil {
		return nil, StageCommands, err
	}
	tel.Dropped = set.Dropped

	sol, err := l.opt.Compute(set)
	if err != nil {
		return nil, StageSolve, err
	}
	tel.Qdd = make([]float64, len(l.joints))
	for i, id := range l.joints {
		tel.Qdd[i] = sol.Qdd.AtVec(l.model.Joint(id).Index())
	}
	tel.Iterations, tel.Status = sol.Iterations, sol.Status
	tel.ContactWrenches = make(map[string]spatial.Vector, len(sol.ContactWrenches))
	for id, w := range sol.ContactWrenches {
		tel.ContactWrenches[l.model.Body(id).Name] = w
	}
	return sol, 0, nil
}

func (l *Loop) fromSolution(now time.Time, sol *wholebody.Solution) LowLevelOutput {
	dt := l.cfg.Period.Seconds()
	out := LowLevelOutput{Tick: l.tick, Time: now, Joints: make([]JointOutput, len(l.joints))}
	for i, id := range l.joints {
		j := l.model.Joint(id)
		b := l.cfg.Behaviors[j.Name]
		qdd := sol.Qdd.AtVec(j.Index())
		out.Joints[i] = JointOutput{
			Name: j.Name,
			Mode: b.Mode,
			Q:    j.Q + j.Qd*dt + 0.5*qdd*dt*dt,
			Qd:   j.Qd + qdd*dt,
			Qdd:  qdd,
			Tau:  sol.Torques.AtVec(i),
			Kp:   b.Kp,
			Kd:   b.Kd,
		}
	}
	return out
}

// fallback holds position with the policy's torques.
func (l *Loop) fallback(now time.Time) LowLevelOutput {
	out := LowLevelOutput{Tick: l.tick, Time: now, Joints: make([]JointOutput, len(l.joints)), Fallback: true}
	for i, id := range l.joints {
		j := l.model.Joint(id)
		b := l.cfg.Behaviors[j.Name]
		tau := 0.0
		if l.cfg.Fallback == FallbackHold {
			tau = l.lastTau[i]
		}
		out.Joints[i] = JointOutput{Name: j.Name, Mode: b.Mode, Q: j.Q, Tau: tau, Kp: b.Kp, Kd: b.Kd}
	}
	return out
}

func (l *Loop) halt(reason error) {
	if l.halted.Swap(true) {
		return
	}
	l.logger.Errorw("halting output", "tick", l.tick, "error", reason)
	l.output.Halt(reason)
}
