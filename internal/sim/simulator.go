package sim

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/integrators"
	"github.com/san-kum/wholebody/internal/metrics"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/robots"
	"github.com/san-kum/wholebody/internal/wholebody"
)

// Parts are what a simulator wires into its control loop.
type Parts struct {
	Robot     *robots.Robot
	Optimizer *wholebody.Optimizer
	Control   control.Config
	Logger    *zap.SugaredLogger
}

// Simulator closes the control loop around a simulated plant, ticking in
// simulated time as fast as the solver allows.
type Simulator struct {
	robot   *robots.Robot
	board   *control.CommandBoard
	plant   *Plant
	loop    *control.Loop
	output  *control.Recorder
	initial []model.JointState

	metrics      []metrics.Metric
	observers    []control.Observer
	trajectories []*command.Trajectory
	events       []ContactEvent
	poses        []PoseTask

	result *Result
}

func New(p Parts) (*Simulator, error) {
	if p.Robot == nil || p.Optimizer == nil {
		return nil, errors.New("sim: robot and optimizer are required")
	}
	s := &Simulator{
		robot:   p.Robot,
		board:   control.NewCommandBoard(),
		plant:   NewPlant(p.Robot.Model),
		output:  control.NewRecorder(1),
		initial: p.Robot.Model.Snapshot(),
	}
	s.board.Submit(p.Robot.Commands...)
	loop, err := control.New(control.Deps{
		Model:     p.Robot.Model,
		Optimizer: p.Optimizer,
		Board:     s.board,
		Source:    s.plant,
		Output:    s.output,
		Logger:    p.Logger,
	}, p.Control)
	if err != nil {
		return nil, err
	}
	loop.AddObserver(s.plant)
	loop.AddObserver(s)
	s.loop = loop
	return s, nil
}

func (s *Simulator) Board() *control.CommandBoard { return s.board }
func (s *Simulator) Loop() *control.Loop          { return s.loop }
func (s *Simulator) Plant() *Plant                { return s.plant }
func (s *Simulator) Robot() *robots.Robot         { return s.robot }

func (s *Simulator) AddMetric(m metrics.Metric)          { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o control.Observer)      { s.observers = append(s.observers, o) }
func (s *Simulator) AddTrajectory(t *command.Trajectory) { s.trajectories = append(s.trajectories, t) }

// AddPoseTask starts pose tracking at p.Start. A later task with the same
// PD name takes over from an earlier one.
func (s *Simulator) AddPoseTask(p PoseTask) {
	s.poses = append(s.poses, p)
	sort.SliceStable(s.poses, func(i, j int) bool { return s.poses[i].Start < s.poses[j].Start })
}

// AddEvent schedules a contact change; events are applied in time order.
func (s *Simulator) AddEvent(e ContactEvent) {
	s.events = append(s.events, e)
	sort.SliceStable(s.events, func(i, j int) bool { return s.events[i].Time < s.events[j].Time })
}

// Run restores the initial state and ticks the loop until cfg.Duration of
// simulated time has passed. It stops early when the output halts or the
// state blows up.
func (s *Simulator) Run(ctx context.Context, cfg Config, pushes ...Push) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := s.robot.Model.Restore(s.initial); err != nil {
		return nil, err
	}
	s.robot.Model.UpdateKinematics()
	if err := s.plant.Configure(cfg); err != nil {
		return nil, err
	}
	for _, p := range pushes {
		s.plant.AddPush(p)
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	period := s.loop.Config().Period
	dt := period.Seconds()
	steps := int(math.Round(cfg.Duration / dt))
	s.result = &Result{
		Times:         make([]float64, 0, steps),
		Torques:       make([][]float64, 0, steps),
		ContactForces: make(map[string][]float64),
		Metrics:       make(map[string]float64),
	}
	result := s.result
	defer func() { s.result = nil }()

	current := make([]int, len(s.trajectories))
	for i := range current {
		current[i] = -1
	}
	next := 0
	epoch := time.Unix(0, 0)
	if cfg.Realtime {
		epoch = time.Now()
	}

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		t := float64(i) * dt
		now := epoch.Add(time.Duration(i) * period)
		if cfg.Realtime {
			if err := sleepUntil(ctx, now); err != nil {
				return result, err
			}
		}

		for k, tr := range s.trajectories {
			if idx := tr.Index(t); idx >= 0 && idx != current[k] {
				current[k] = idx
				s.board.Submit(tr.At(idx).Command)
			}
		}
		if err := s.submitPoses(t); err != nil {
			result.Errors = append(result.Errors, SimError{Time: t, Step: i, Message: err.Error()})
		}
		for ; next < len(s.events) && s.events[next].Time <= t; next++ {
			s.plant.SetContact(s.events[next].Body, s.events[next].InContact)
		}

		err := s.loop.Step(ctx, now)
		result.StepsTaken++
		if err != nil {
			result.Errors = append(result.Errors, SimError{Time: t, Step: i, Message: err.Error()})
			if cfg.ValidateState && errors.Is(err, integrators.ErrInvalidState) {
				break
			}
		}
		if s.loop.Halted() {
			result.Halted = true
			break
		}
	}

	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

// submitPoses recomputes the active pose commands from the last tick's
// state, like a planner running one tick behind the controller.
func (s *Simulator) submitPoses(t float64) error {
	active := map[string]*control.PD{}
	for _, p := range s.poses {
		if p.Start > t {
			break
		}
		active[p.PD.Name] = p.PD
	}
	if len(active) == 0 {
		return nil
	}
	m := s.robot.Model
	if !m.KinematicsFresh() {
		m.UpdateKinematics()
	}
	names := lo.Keys(active)
	sort.Strings(names)
	for _, name := range names {
		c, err := active[name].Command(m)
		if err != nil {
			return err
		}
		s.board.Submit(c)
	}
	return nil
}

func sleepUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OnTick records one row of the result.
func (s *Simulator) OnTick(t control.Telemetry) {
	for _, m := range s.metrics {
		m.Observe(t)
	}
	for _, o := range s.observers {
		o.OnTick(t)
	}
	r := s.result
	if r == nil {
		return
	}
	if r.Joints == nil {
		r.Joints = append([]string(nil), t.JointNames...)
	}
	r.Times = append(r.Times, s.plant.Time())
	r.Torques = append(r.Torques, append([]float64(nil), t.Torques...))
	r.Iterations = append(r.Iterations, t.Iterations)
	if t.Fallback {
		r.Failures++
	}
	for _, name := range s.robot.ContactNames() {
		r.ContactForces[name] = append(r.ContactForces[name], t.ContactWrenches[name].Linear.Z)
	}
	height := 0.0
	for _, j := range t.Joints {
		if j.Kind == model.Floating {
			height = j.Pose.Translation.Z
			break
		}
	}
	r.BaseHeight = append(r.BaseHeight, height)
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Duration <= 0 {
		return errors.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Period <= 0 {
		return errors.Errorf("period must be positive, got %v", cfg.Period)
	}
	if cfg.Period != s.loop.Config().Period {
		return errors.Errorf("period %v differs from the control period %v", cfg.Period, s.loop.Config().Period)
	}
	if cfg.VelocityNoise < 0 {
		return errors.Errorf("velocity noise must not be negative, got %f", cfg.VelocityNoise)
	}
	return nil
}
