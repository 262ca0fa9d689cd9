package experiment

import (
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/wholebody/internal/metrics"
	"github.com/san-kum/wholebody/internal/qp"
	"github.com/san-kum/wholebody/internal/robots"
)

var (
	ErrUnknownRobot = errors.New("experiment: unknown robot")
	ErrNotSetup     = errors.New("experiment: not set up")
)

// RobotFunc builds a fresh robot; seed only matters for random robots.
type RobotFunc func(seed int64) (*robots.Robot, error)

type Registry struct {
	robots map[string]RobotFunc
}

func NewRegistry() *Registry {
	r := &Registry{robots: make(map[string]RobotFunc)}

	r.robots["leg"] = func(int64) (*robots.Robot, error) { return robots.TwoLinkLeg() }
	r.robots["biped"] = func(int64) (*robots.Robot, error) { return robots.Biped(false) }
	r.robots["biped_arms"] = func(int64) (*robots.Robot, error) { return robots.Biped(true) }
	r.robots["random"] = func(seed int64) (*robots.Robot, error) {
		return robots.RandomChain(rand.New(rand.NewSource(seed)), 3)
	}
	return r
}

// Register adds or replaces a robot constructor.
func (r *Registry) Register(name string, f RobotFunc) { r.robots[name] = f }

func (r *Registry) GetRobot(name string, seed int64) (*robots.Robot, error) {
	fn, ok := r.robots[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRobot, "%q", name)
	}
	return fn(seed)
}

func (r *Registry) ListRobots() []string {
	names := make([]string, 0, len(r.robots))
	for name := range r.robots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListSolvers() []string { return qp.Names() }

func (r *Registry) DefaultMetrics() []metrics.Metric { return metrics.Standard() }
