package sim

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Factory builds an independent simulator (own model, solver, loop) for
// one ensemble member.
type Factory func(seed int64) (*Simulator, error)

// Ensemble runs the same scenario under different seeds concurrently.
type Ensemble struct {
	factory   Factory
	numRuns   int
	seedStart int64
}

func NewEnsemble(f Factory, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{factory: f, numRuns: numRuns, seedStart: seedStart}
}

// Run returns every member's result; failed members leave a nil slot and
// their errors are combined.
func (e *Ensemble) Run(ctx context.Context, cfg Config, pushes ...Push) ([]*Result, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			cfgCopy := cfg
			cfgCopy.Seed = e.seedStart + int64(idx)

			sim, err := e.factory(cfgCopy.Seed)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "run %d", idx)
				return
			}
			results[idx], err = sim.Run(ctx, cfgCopy, pushes...)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "run %d", idx)
			}
		}(i)
	}

	wg.Wait()
	return results, multierr.Combine(errs...)
}
