package config

import (
	"os"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/integrators"
	"github.com/san-kum/wholebody/internal/qp"
	"github.com/san-kum/wholebody/internal/sim"
	"github.com/san-kum/wholebody/internal/wholebody"
)

const (
	DefaultRobot       = "biped"
	DefaultPeriod      = 0.005
	DefaultDuration    = 2.0
	DefaultMaxFailures = 10
	DefaultGravity     = -9.81
)

var ErrInvalid = errors.New("config: invalid configuration")

type Config struct {
	Robot      string  `yaml:"robot"`
	Integrator string  `yaml:"integrator"`
	Plant      string  `yaml:"plant"`
	Period     float64 `yaml:"period"`
	Duration   float64 `yaml:"duration"`
	Seed       int64   `yaml:"seed"`
	// Gravity is in world coordinates, z up.
	Gravity       [3]float64 `yaml:"gravity"`
	VelocityNoise float64    `yaml:"velocity_noise"`

	Fallback    string                          `yaml:"fallback"`
	MaxFailures int                             `yaml:"max_failures"`
	Behaviors   map[string]control.JointBehavior `yaml:"behaviors,omitempty"`

	Solver    SolverConfig    `yaml:"solver"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Contact   ContactConfig   `yaml:"contact"`
}

type SolverConfig struct {
	Backend              string  `yaml:"backend"`
	MaxIterations        int     `yaml:"max_iterations"`
	Tolerance            float64 `yaml:"tolerance"`
	FeasibilityTolerance float64 `yaml:"feasibility_tolerance"`
}

type OptimizerConfig struct {
	Tikhonov             float64 `yaml:"tikhonov"`
	RhoWeight            float64 `yaml:"rho_weight"`
	MaxJointAcceleration float64 `yaml:"max_joint_acceleration"`
	TorqueLimits         bool    `yaml:"torque_limits"`
	RhoTolerance         float64 `yaml:"rho_tolerance"`
}

// ContactConfig overrides the robot's contact bodies; zero keeps the
// robot's own values.
type ContactConfig struct {
	Friction      float64 `yaml:"friction"`
	BasisPerPoint int     `yaml:"basis_per_point"`
	MaxRho        float64 `yaml:"max_rho"`
}

func DefaultConfig() *Config {
	return &Config{
		Robot:       DefaultRobot,
		Integrator:  "semi-implicit",
		Plant:       "kinematic",
		Period:      DefaultPeriod,
		Duration:    DefaultDuration,
		Gravity:     [3]float64{0, 0, DefaultGravity},
		Fallback:    "hold",
		MaxFailures: DefaultMaxFailures,
		Solver: SolverConfig{
			Backend:              qp.ActiveSetName,
			MaxIterations:        qp.DefaultMaxIterations,
			Tolerance:            qp.DefaultTolerance,
			FeasibilityTolerance: qp.DefaultFeasibilityTolerance,
		},
		Optimizer: OptimizerConfig{
			Tikhonov:     wholebody.DefaultTikhonov,
			RhoWeight:    wholebody.DefaultRhoWeight,
			TorqueLimits: true,
			RhoTolerance: wholebody.DefaultRhoTolerance,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings no run could start with.
func (c *Config) Validate() error {
	if c.Period <= 0 {
		return errors.Wrapf(ErrInvalid, "period must be positive, got %v", c.Period)
	}
	if c.Duration <= 0 {
		return errors.Wrapf(ErrInvalid, "duration must be positive, got %v", c.Duration)
	}
	if c.MaxFailures < 0 || c.VelocityNoise < 0 {
		return errors.Wrap(ErrInvalid, "max failures and velocity noise must not be negative")
	}
	if _, err := qp.New(c.Solver.Backend, c.QP()); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if _, err := integrators.New(c.Integrator); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if _, err := control.ParseFallback(c.Fallback); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if _, err := sim.ParsePlantMode(c.Plant); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if err := c.Settings().Validate(); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if c.Contact.Friction < 0 || c.Contact.BasisPerPoint < 0 || c.Contact.MaxRho < 0 {
		return errors.Wrap(ErrInvalid, "contact overrides must not be negative")
	}
	if c.Contact.BasisPerPoint > 0 && c.Contact.BasisPerPoint < 3 {
		return errors.Wrapf(ErrInvalid, "basis per point %d cannot span a friction cone", c.Contact.BasisPerPoint)
	}
	return nil
}

func (c *Config) PeriodDuration() time.Duration {
	return time.Duration(c.Period * float64(time.Second))
}

func (c *Config) GravityVector() r3.Vector {
	return r3.Vector{X: c.Gravity[0], Y: c.Gravity[1], Z: c.Gravity[2]}
}

func (c *Config) QP() qp.Config {
	return qp.Config{
		MaxIterations:        c.Solver.MaxIterations,
		Tolerance:            c.Solver.Tolerance,
		FeasibilityTolerance: c.Solver.FeasibilityTolerance,
	}
}

func (c *Config) Settings() wholebody.Settings {
	return wholebody.Settings{
		Tikhonov:             c.Optimizer.Tikhonov,
		RhoWeight:            c.Optimizer.RhoWeight,
		MaxJointAcceleration: c.Optimizer.MaxJointAcceleration,
		TorqueLimits:         c.Optimizer.TorqueLimits,
		RhoTolerance:         c.Optimizer.RhoTolerance,
	}
}

func (c *Config) Control() (control.Config, error) {
	fb, err := control.ParseFallback(c.Fallback)
	if err != nil {
		return control.Config{}, err
	}
	return control.Config{
		Period:      c.PeriodDuration(),
		Fallback:    fb,
		MaxFailures: c.MaxFailures,
		Behaviors:   c.Behaviors,
	}, nil
}

func (c *Config) Sim() (sim.Config, error) {
	mode, err := sim.ParsePlantMode(c.Plant)
	if err != nil {
		return sim.Config{}, err
	}
	return sim.Config{
		Duration:      c.Duration,
		Period:        c.PeriodDuration(),
		Plant:         mode,
		Integrator:    c.Integrator,
		Seed:          c.Seed,
		VelocityNoise: c.VelocityNoise,
		ValidateState: true,
	}, nil
}

// ApplyContact writes the overrides into the robot's contact bodies.
func (c *Config) ApplyContact(bodies []contact.PlaneBody) {
	for i := range bodies {
		if c.Contact.Friction > 0 {
			bodies[i].Friction = c.Contact.Friction
		}
		if c.Contact.BasisPerPoint > 0 {
			bodies[i].BasisPerPoint = c.Contact.BasisPerPoint
		}
		if c.Contact.MaxRho > 0 {
			bodies[i].MaxRho = c.Contact.MaxRho
		}
	}
}
