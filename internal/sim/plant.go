package sim

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/dynamics"
	"github.com/san-kum/wholebody/internal/integrators"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

// Plant stands in for the robot: it is the control loop's state source and
// moves the model between ticks.
type Plant struct {
	model *model.Model
	dyn   *dynamics.Calculator
	integ integrators.Integrator
	mode  PlantMode
	dt    float64
	rng   *rand.Rand
	noise float64

	time     float64
	started  bool
	fallback bool
	torques  []float64
	wrenches map[string]spatial.Vector
	pending  map[string]bool
	pushes   []Push
}

// NewPlant drives m with the default configuration until Configure is
// called.
func NewPlant(m *model.Model) *Plant {
	p := &Plant{model: m, dyn: dynamics.New(m), pending: map[string]bool{}}
	if err := p.Configure(DefaultConfig()); err != nil {
		panic(err)
	}
	return p
}

// Configure selects integrator, plant mode and noise, and rewinds the
// plant clock.
func (p *Plant) Configure(cfg Config) error {
	integ, err := integrators.New(cfg.Integrator)
	if err != nil {
		return err
	}
	if cfg.Period <= 0 {
		return errors.Errorf("sim: period must be positive, got %v", cfg.Period)
	}
	p.integ = integ
	p.mode = cfg.Plant
	p.dt = cfg.Period.Seconds()
	p.rng = rand.New(rand.NewSource(cfg.Seed))
	p.noise = cfg.VelocityNoise
	p.time = 0
	p.started = false
	p.fallback = false
	p.torques = p.torques[:0]
	p.wrenches = nil
	p.pushes = nil
	return nil
}

// Time is the simulated time of the current state.
func (p *Plant) Time() float64 { return p.time }

// SetContact queues a contact change for the next tick.
func (p *Plant) SetContact(body string, inContact bool) { p.pending[body] = inContact }

func (p *Plant) AddPush(push Push) { p.pushes = append(p.pushes, push) }

// ReadState advances the model by one period (except on the first tick)
// and applies queued contact changes.
func (p *Plant) ReadState(ctx context.Context, m *model.Model, contacts *contact.Calculator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.started {
		if err := p.integ.Step(m, p.acceleration, p.dt); err != nil {
			return errors.Wrapf(err, "plant at t=%.4f", p.time)
		}
		p.time += p.dt
	}
	p.started = true

	if p.noise > 0 {
		qd := m.Velocities()
		for i := 0; i < qd.Len(); i++ {
			qd.SetVec(i, qd.AtVec(i)+p.noise*p.rng.NormFloat64())
		}
		if err := m.SetVelocities(qd); err != nil {
			return err
		}
	}

	for name, in := range p.pending {
		id, ok := m.BodyByName(name)
		if !ok {
			return errors.Wrapf(model.ErrUnknownBody, "contact event for %q", name)
		}
		if err := contacts.SetInContact(id, in); err != nil {
			return err
		}
		delete(p.pending, name)
	}
	return nil
}

func (p *Plant) acceleration(m *model.Model) (*mat.VecDense, error) {
	if p.mode == Kinematic {
		if p.fallback {
			return mat.NewVecDense(m.DoF(), nil), nil
		}
		return m.Accelerations(), nil
	}

	if err := p.dyn.Compute(); err != nil {
		return nil, err
	}
	tau := mat.NewVecDense(m.DoF(), nil)
	for k, i := range m.ActuatedIndices() {
		if k < len(p.torques) {
			tau.SetVec(i, p.torques[k])
		}
	}
	ext := map[model.BodyID]spatial.Vector{}
	for name, w := range p.wrenches {
		if id, ok := m.BodyByName(name); ok {
			ext[id] = ext[id].Add(w)
		}
	}
	for _, push := range p.pushes {
		if !push.active(p.time) {
			continue
		}
		if id, ok := m.BodyByName(push.Body); ok {
			ext[id] = ext[id].Add(push.Wrench)
		}
	}
	return p.dyn.ForwardDynamics(tau, ext)
}

// OnTick keeps the torques and contact wrenches the dynamic plant applies
// until the next tick. A fallback tick has no contact solution.
func (p *Plant) OnTick(t control.Telemetry) {
	p.fallback = t.Fallback
	p.torques = append(p.torques[:0], t.Torques...)
	if t.Fallback {
		p.wrenches = nil
		return
	}
	p.wrenches = t.ContactWrenches
}
