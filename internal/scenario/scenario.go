// Package scenario loads scripted runs: time-stamped command waypoints,
// contact events and pushes applied to a simulated robot, standing in for
// a motion planner.
package scenario

import (
	"context"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/sim"
	"github.com/san-kum/wholebody/internal/spatial"
)

var ErrBadScenario = errors.New("scenario: invalid scenario")

// Scenario defines a scripted simulation.
type Scenario struct {
	Name          string             `yaml:"name"`
	Description   string             `yaml:"description"`
	Robot         string             `yaml:"robot"`
	Duration      float64            `yaml:"duration"`
	Plant         sim.PlantMode      `yaml:"plant"`
	Runs          int                `yaml:"runs"`
	Seed          int64              `yaml:"seed"`
	VelocityNoise float64            `yaml:"velocity_noise"`
	Waypoints     []Waypoint         `yaml:"waypoints"`
	Events        []sim.ContactEvent `yaml:"events"`
	Pushes        []Push             `yaml:"pushes"`
}

// Waypoint is one command becoming active at Time. Type is one of
// orientation, translation, spatial, velocity, no_slip, joints, posture,
// contact_weight or pose. A pose waypoint tracks a body pose with PD gains
// every tick instead of holding one fixed command.
type Waypoint struct {
	Time    float64   `yaml:"time"`
	Type    string    `yaml:"type"`
	ID      string    `yaml:"id"`
	Body    string    `yaml:"body"`
	Base    string    `yaml:"base"`
	Frame   string    `yaml:"frame"`
	Joints  []string  `yaml:"joints"`
	Axes    []string  `yaml:"axes"`
	Desired []float64 `yaml:"desired"`
	Weight  float64   `yaml:"weight"`
	Hard    bool      `yaml:"hard"`
	Kp      float64   `yaml:"kp"`
	Kd      float64   `yaml:"kd"`
}

// Push is a force (and optional torque) applied at a world point.
type Push struct {
	Start    float64    `yaml:"start"`
	Duration float64    `yaml:"duration"`
	Body     string     `yaml:"body"`
	Force    [3]float64 `yaml:"force"`
	Torque   [3]float64 `yaml:"torque"`
	Point    [3]float64 `yaml:"point"`
}

// Wrench returns the push as a world-origin wrench.
func (p Push) Wrench() spatial.Vector {
	f := r3.Vector{X: p.Force[0], Y: p.Force[1], Z: p.Force[2]}
	at := r3.Vector{X: p.Point[0], Y: p.Point[1], Z: p.Point[2]}
	tau := r3.Vector{X: p.Torque[0], Y: p.Torque[1], Z: p.Torque[2]}
	return spatial.Vector{Angular: tau.Add(at.Cross(f)), Linear: f}
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return sc, nil
}

func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Wrap(ErrBadScenario, err.Error())
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Scenario) Validate() error {
	if s.Duration <= 0 {
		return errors.Wrapf(ErrBadScenario, "duration must be positive, got %f", s.Duration)
	}
	if s.Runs < 0 || s.VelocityNoise < 0 {
		return errors.Wrap(ErrBadScenario, "runs and velocity noise must not be negative")
	}
	for i, wp := range s.Waypoints {
		var err error
		if wp.Type == "pose" {
			_, err = wp.PoseTask()
		} else {
			_, err = wp.Command()
		}
		if err != nil {
			return errors.Wrapf(err, "waypoint %d", i)
		}
	}
	for i, p := range s.Pushes {
		if p.Body == "" || p.Duration <= 0 {
			return errors.Wrapf(ErrBadScenario, "push %d needs a body and a positive duration", i)
		}
	}
	return nil
}

// Command builds the waypoint's command.
func (w Waypoint) Command() (command.Command, error) {
	if w.ID == "" {
		return nil, errors.Wrap(ErrBadScenario, "waypoint without id")
	}
	weight := w.Weight
	if w.Hard {
		weight = command.Hard
	} else if weight <= 0 && w.Type != "no_slip" {
		return nil, errors.Wrapf(ErrBadScenario, "%s: weight must be positive or hard must be set", w.ID)
	}

	switch w.Type {
	case "orientation", "translation":
		v, err := vec3(w.Desired)
		if err != nil {
			return nil, errors.Wrap(err, w.ID)
		}
		c := command.Orientation(w.ID, w.Body, v, weight)
		if w.Type == "translation" {
			c = command.Translation(w.ID, w.Body, v, weight)
		}
		return w.spatial(c)
	case "spatial", "velocity":
		if len(w.Desired) != 6 {
			return nil, errors.Wrapf(ErrBadScenario, "%s: spatial targets need 6 values, got %d", w.ID, len(w.Desired))
		}
		cmd, err := w.spatial(command.SpatialAcceleration{
			Name: w.ID, EndEffector: w.Body, Desired: spatial.FromSlice(w.Desired),
			Selection: command.AllAxes(), Weight: weight,
		})
		if err != nil || w.Type == "spatial" {
			return cmd, err
		}
		sa := cmd.(command.SpatialAcceleration)
		return command.SpatialVelocity{
			Name: sa.Name, Base: sa.Base, EndEffector: sa.EndEffector, Frame: sa.Frame,
			Desired: sa.Desired, Selection: sa.Selection, Weight: sa.Weight,
		}, nil
	case "no_slip":
		return command.NoSlip(w.ID, w.Body), nil
	case "joints":
		return command.JointAcceleration{Name: w.ID, Joints: w.Joints, Desired: w.Desired, Weight: weight}, nil
	case "posture":
		c := command.Privileged(w.ID, w.Desired, w.Kp, w.Kd, weight)
		c.Joints = w.Joints
		return c, nil
	case "contact_weight":
		return command.ContactForceWeight{Name: w.ID, Body: w.Body, Weight: weight}, nil
	}
	return nil, errors.Wrapf(ErrBadScenario, "%s: unknown command type %q", w.ID, w.Type)
}

// PoseTask builds a pose waypoint's tracker. Desired is a world position,
// optionally followed by a rotation vector.
func (w Waypoint) PoseTask() (sim.PoseTask, error) {
	if w.ID == "" || w.Body == "" {
		return sim.PoseTask{}, errors.Wrap(ErrBadScenario, "pose waypoint needs an id and a body")
	}
	if w.Kp <= 0 || w.Kd < 0 {
		return sim.PoseTask{}, errors.Wrapf(ErrBadScenario, "%s: pose gains need kp > 0 and kd >= 0", w.ID)
	}
	weight := w.Weight
	if w.Hard {
		weight = command.Hard
	} else if weight <= 0 {
		return sim.PoseTask{}, errors.Wrapf(ErrBadScenario, "%s: weight must be positive or hard must be set", w.ID)
	}

	target := spatial.IdentityTransform()
	switch len(w.Desired) {
	case 6:
		rv := r3.Vector{X: w.Desired[3], Y: w.Desired[4], Z: w.Desired[5]}
		target.Rotation = spatial.Exp(rv)
		fallthrough
	case 3:
		target.Translation = r3.Vector{X: w.Desired[0], Y: w.Desired[1], Z: w.Desired[2]}
	default:
		return sim.PoseTask{}, errors.Wrapf(ErrBadScenario, "%s: pose targets need 3 or 6 values, got %d", w.ID, len(w.Desired))
	}

	pd := control.NewPD(w.ID, w.Body, w.Kp, w.Kd, weight, target)
	c, err := w.spatial(command.SpatialAcceleration{Selection: command.AllAxes()})
	if err != nil {
		return sim.PoseTask{}, err
	}
	pd.Selection = c.(command.SpatialAcceleration).Selection
	return sim.PoseTask{Start: w.Time, PD: pd}, nil
}

func (w Waypoint) spatial(c command.SpatialAcceleration) (command.Command, error) {
	c.Base, c.Frame = w.Base, w.Frame
	if len(w.Axes) > 0 {
		sel := make(command.Selection, len(w.Axes))
		for i, name := range w.Axes {
			a, err := command.ParseAxis(name)
			if err != nil {
				return nil, errors.Wrap(err, w.ID)
			}
			sel[i] = a
		}
		c.Selection = sel
	}
	return c, nil
}

func vec3(v []float64) (r3.Vector, error) {
	switch len(v) {
	case 0:
		return r3.Vector{}, nil
	case 3:
		return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
	}
	return r3.Vector{}, errors.Wrapf(ErrBadScenario, "expected 3 values, got %d", len(v))
}

// Trajectories groups the waypoints by objective ID, in order of first
// appearance.
func (s *Scenario) Trajectories() ([]*command.Trajectory, error) {
	wps := lo.Reject(s.Waypoints, func(w Waypoint, _ int) bool { return w.Type == "pose" })
	ids := lo.Uniq(lo.Map(wps, func(w Waypoint, _ int) string { return w.ID }))
	out := make([]*command.Trajectory, 0, len(ids))
	for _, id := range ids {
		var group []command.Waypoint
		for _, w := range wps {
			if w.ID != id {
				continue
			}
			c, err := w.Command()
			if err != nil {
				return nil, err
			}
			group = append(group, command.Waypoint{Time: w.Time, Command: c})
		}
		tr, err := command.NewTrajectory(group...)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

// Apply checks the scenario's commands against the simulator's robot and
// schedules its trajectories and events.
func (s *Scenario) Apply(simulator *sim.Simulator) error {
	trs, err := s.Trajectories()
	if err != nil {
		return err
	}
	var cmds []command.Command
	for _, tr := range trs {
		for i := 0; i < tr.Len(); i++ {
			cmds = append(cmds, tr.At(i).Command)
		}
	}
	m := simulator.Robot().Model
	if err := command.Validate(m, cmds); err != nil {
		return errors.Wrapf(err, "scenario %q", s.Name)
	}
	for _, e := range s.Events {
		if _, ok := m.BodyByName(e.Body); !ok {
			return errors.Wrapf(ErrBadScenario, "event for unknown body %q", e.Body)
		}
	}
	var poses []sim.PoseTask
	for _, w := range s.Waypoints {
		if w.Type != "pose" {
			continue
		}
		p, err := w.PoseTask()
		if err != nil {
			return err
		}
		if _, ok := m.BodyByName(p.PD.Body); !ok {
			return errors.Wrapf(model.ErrUnknownBody, "pose %s: %q", p.PD.Name, p.PD.Body)
		}
		poses = append(poses, p)
	}

	for _, tr := range trs {
		simulator.AddTrajectory(tr)
	}
	for _, e := range s.Events {
		simulator.AddEvent(e)
	}
	for _, p := range poses {
		simulator.AddPoseTask(p)
	}
	return nil
}

// SimPushes converts the pushes to world-origin wrenches.
func (s *Scenario) SimPushes() []sim.Push {
	return lo.Map(s.Pushes, func(p Push, _ int) sim.Push {
		return sim.Push{Start: p.Start, Duration: p.Duration, Body: p.Body, Wrench: p.Wrench()}
	})
}

// Config overlays the scenario's settings on base.
func (s *Scenario) Config(base sim.Config) sim.Config {
	base.Duration = s.Duration
	base.Plant = s.Plant
	base.Seed = s.Seed
	base.VelocityNoise = s.VelocityNoise
	return base
}

// Run executes the scenario Runs times (at least once) from seeds Seed,
// Seed+1, ... with simulators from factory.
func Run(ctx context.Context, sc *Scenario, factory sim.Factory, base sim.Config, logger *zap.SugaredLogger) ([]*sim.Result, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	runs := lo.Max([]int{sc.Runs, 1})
	logger.Infow("running scenario", "name", sc.Name, "robot", sc.Robot, "runs", runs, "duration", sc.Duration)

	results, err := sim.NewEnsemble(func(seed int64) (*sim.Simulator, error) {
		s, err := factory(seed)
		if err != nil {
			return nil, err
		}
		return s, sc.Apply(s)
	}, runs, sc.Seed).Run(ctx, sc.Config(base), sc.SimPushes()...)
	if err != nil {
		return results, errors.Wrapf(err, "scenario %q", sc.Name)
	}
	return results, nil
}
