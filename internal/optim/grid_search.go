// Package optim sweeps controller settings over a grid and ranks them by a
// run metric.
package optim

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/wholebody/internal/config"
	"github.com/san-kum/wholebody/internal/experiment"
)

var ErrUnknownParam = errors.New("optim: unknown parameter")

// setters are the config fields a sweep may vary.
var setters = map[string]func(*config.Config, float64){
	"tikhonov":               func(c *config.Config, v float64) { c.Optimizer.Tikhonov = v },
	"rho_weight":             func(c *config.Config, v float64) { c.Optimizer.RhoWeight = v },
	"max_joint_acceleration": func(c *config.Config, v float64) { c.Optimizer.MaxJointAcceleration = v },
	"friction":               func(c *config.Config, v float64) { c.Contact.Friction = v },
	"max_rho":                func(c *config.Config, v float64) { c.Contact.MaxRho = v },
	"velocity_noise":         func(c *config.Config, v float64) { c.VelocityNoise = v },
	"solver_tolerance":       func(c *config.Config, v float64) { c.Solver.Tolerance = v },
}

// Params lists the parameter names a grid accepts.
func Params() []string {
	names := lo.Keys(setters)
	sort.Strings(names)
	return names
}

// Trial is one grid point and the metric it scored.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	logger     *zap.SugaredLogger
}

func NewGridSearch(params []string, ranges [][]float64, logger *zap.SugaredLogger) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, errors.Errorf("optim: %d parameters but %d ranges", len(params), len(ranges))
	}
	for i, p := range params {
		if _, ok := setters[p]; !ok {
			return nil, errors.Wrapf(ErrUnknownParam, "%q (known: %v)", p, Params())
		}
		if len(ranges[i]) == 0 {
			return nil, errors.Errorf("optim: no values for %q", p)
		}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &GridSearch{paramNames: params, ranges: ranges, logger: logger}, nil
}

// Search runs every grid point from base and returns the trials sorted by
// ascending score; the first is the best. Grid points that fail to set up
// or run score +Inf and their errors are combined.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, registry *experiment.Registry, metricName string) ([]Trial, error) {
	var trials []Trial
	g.searchRecursive(ctx, 0, map[string]float64{}, func(params map[string]float64) {
		trials = append(trials, g.trial(ctx, base, registry, metricName, params))
	})

	sort.SliceStable(trials, func(i, j int) bool { return trials[i].Score < trials[j].Score })
	errs := lo.FilterMap(trials, func(t Trial, _ int) (error, bool) { return t.Err, t.Err != nil })
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return trials, multierr.Combine(errs...)
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, visit func(map[string]float64)) {
	if ctx.Err() != nil {
		return
	}
	if depth == len(g.paramNames) {
		visit(current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.searchRecursive(ctx, depth+1, newParams, visit)
	}
}

func (g *GridSearch) trial(ctx context.Context, base *config.Config, registry *experiment.Registry, metricName string, params map[string]float64) Trial {
	t := Trial{Params: params, Score: math.Inf(1)}
	cfg := *base
	for name, v := range params {
		setters[name](&cfg, v)
	}

	exp := experiment.New(&cfg, registry, nil)
	if err := exp.Setup(); err != nil {
		t.Err = errors.Wrapf(err, "%v", params)
		return t
	}
	result, err := exp.Run(ctx)
	if err != nil {
		t.Err = errors.Wrapf(err, "%v", params)
		return t
	}
	val, ok := result.Metrics[metricName]
	if !ok {
		t.Err = errors.Errorf("optim: run has no metric %q", metricName)
		return t
	}
	if result.Halted {
		val = math.Inf(1)
	}
	t.Score = val
	g.logger.Debugw("trial", "params", params, metricName, val)
	return t
}
