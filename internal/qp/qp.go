// Package qp solves convex quadratic programs
//
//	minimize   ½ xᵀHx + fᵀx
//	subject to Aeq·x = beq
//	           Aineq·x ≤ bineq
//
// behind a small Solver interface so backends can be swapped by name.
package qp

import (
	"errors"
	"sort"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrBadProblem    = errors.New("qp: malformed problem")
	ErrUnknownSolver = errors.New("qp: unknown solver")
	ErrUnsupported   = errors.New("qp: solver not supported on this build")
)

// Problem holds the QP data. Aeq/Beq and Aineq/Bineq may be nil when there
// are no constraints of that kind.
type Problem struct {
	H     *mat.SymDense
	F     *mat.VecDense
	Aeq   *mat.Dense
	Beq   *mat.VecDense
	Aineq *mat.Dense
	Bineq *mat.VecDense
}

func (p *Problem) Size() int { return p.F.Len() }

func (p *Problem) Validate() error {
	if p == nil || p.H == nil || p.F == nil {
		return pkgerrors.Wrap(ErrBadProblem, "cost is not set")
	}
	n := p.F.Len()
	if p.H.SymmetricDim() != n {
		return pkgerrors.Wrapf(ErrBadProblem, "H is %d×%d, f has %d entries", p.H.SymmetricDim(), p.H.SymmetricDim(), n)
	}
	if err := checkRows("equality", p.Aeq, p.Beq, n); err != nil {
		return err
	}
	return checkRows("inequality", p.Aineq, p.Bineq, n)
}

func checkRows(kind string, a *mat.Dense, b *mat.VecDense, n int) error {
	if a == nil && b == nil {
		return nil
	}
	if a == nil || b == nil {
		return pkgerrors.Wrapf(ErrBadProblem, "%s matrix and vector must both be set", kind)
	}
	r, c := a.Dims()
	if c != n || r != b.Len() {
		return pkgerrors.Wrapf(ErrBadProblem, "%s rows are %d×%d with %d bounds, want %d columns", kind, r, c, b.Len(), n)
	}
	return nil
}

func rows(a *mat.Dense) int {
	if a == nil {
		return 0
	}
	r, _ := a.Dims()
	return r
}

// Status is the verdict of a solve.
type Status int

const (
	Optimal Status = iota
	Infeasible
	MaxIterations
	NotPositiveDefinite
	Numerical
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case MaxIterations:
		return "max-iterations"
	case NotPositiveDefinite:
		return "not-positive-definite"
	case Numerical:
		return "numerical"
	}
	return "unknown"
}

// Result is the outcome of a solve. X is only meaningful when Status is
// Optimal, or MaxIterations for backends that keep a feasible iterate.
type Result struct {
	X          *mat.VecDense
	Status     Status
	Iterations int
}

// Solver is a QP backend. The error return is reserved for malformed
// problems; solver verdicts are reported through Result.Status.
type Solver interface {
	Name() string
	Solve(p *Problem) (Result, error)
}

const (
	DefaultMaxIterations        = 200
	DefaultTolerance            = 1e-9
	DefaultFeasibilityTolerance = 1e-6
)

type Config struct {
	MaxIterations int
	// Tolerance bounds the step and multiplier tests.
	Tolerance float64
	// FeasibilityTolerance bounds constraint violation.
	FeasibilityTolerance float64
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:        DefaultMaxIterations,
		Tolerance:            DefaultTolerance,
		FeasibilityTolerance: DefaultFeasibilityTolerance,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	if c.FeasibilityTolerance <= 0 {
		c.FeasibilityTolerance = DefaultFeasibilityTolerance
	}
	return c
}

const (
	ActiveSetName = "active-set"
	NLoptName     = "nlopt"
)

var registry = map[string]func(Config) Solver{
	ActiveSetName: func(c Config) Solver { return NewActiveSet(c) },
	NLoptName:     func(c Config) Solver { return NewNLopt(c) },
}

// New returns the backend registered under name.
func New(name string, cfg Config) (Solver, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, pkgerrors.Wrapf(ErrUnknownSolver, "%q", name)
	}
	return ctor(cfg.withDefaults()), nil
}

// Names lists the registered backends.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
