//go:build !no_cgo

package qp

import (
	"math"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"
)

// NLopt solves the QP with NLopt's SLSQP, with the evaluation budget set to
// MaxIterations.
type NLopt struct {
	cfg Config
}

func NewNLopt(cfg Config) *NLopt { return &NLopt{cfg: cfg.withDefaults()} }

func (s *NLopt) Name() string { return NLoptName }

func (s *NLopt) Solve(p *Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	var chol mat.Cholesky
	if !chol.Factorize(p.H) {
		return Result{Status: NotPositiveDefinite}, nil
	}
	// SLSQP does not report inconsistent equalities reliably.
	if _, _, status := reduceEqualities(p.Aeq, p.Beq, s.cfg.FeasibilityTolerance); status != Optimal {
		return Result{Status: status}, nil
	}

	n := p.Size()
	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(n))
	if err != nil {
		return Result{}, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	evals := 0
	objective := func(x, gradient []float64) float64 {
		evals++
		xv := mat.NewVecDense(n, x)
		var hx mat.VecDense
		hx.MulVec(p.H, xv)
		for i := range gradient {
			gradient[i] = hx.AtVec(i) + p.F.AtVec(i)
		}
		return 0.5*mat.Dot(xv, &hx) + mat.Dot(p.F, xv)
	}

	err = multierr.Combine(
		opt.SetMinObjective(objective),
		opt.SetMaxEval(s.cfg.MaxIterations),
		opt.SetFtolRel(s.cfg.Tolerance),
		opt.SetXtolRel(s.cfg.Tolerance),
	)
	if m := rows(p.Aeq); m > 0 {
		err = multierr.Append(err, opt.AddEqualityMConstraint(linear(p.Aeq, p.Beq), tolerances(m, s.cfg.FeasibilityTolerance)))
	}
	if m := rows(p.Aineq); m > 0 {
		err = multierr.Append(err, opt.AddInequalityMConstraint(linear(p.Aineq, p.Bineq), tolerances(m, s.cfg.FeasibilityTolerance)))
	}
	if err != nil {
		return Result{}, errors.Wrap(err, "nlopt setup")
	}

	xs, _, err := opt.Optimize(make([]float64, n))
	res := Result{Iterations: evals}
	if err != nil {
		res.Status = Numerical
		return res, nil
	}
	x := mat.NewVecDense(n, xs)
	if !feasible(p, x, s.cfg.FeasibilityTolerance) {
		res.Status = Infeasible
		return res, nil
	}
	res.X = x
	if opt.LastStatus() == "MAXEVAL_REACHED" {
		res.Status = MaxIterations
		return res, nil
	}
	res.Status = Optimal
	return res, nil
}

// linear evaluates A·x − b with gradient A, row major.
func linear(a *mat.Dense, b *mat.VecDense) nlopt.Mfunc {
	m, n := a.Dims()
	return func(result, x, gradient []float64) {
		for i := 0; i < m; i++ {
			v := -b.AtVec(i)
			for j := 0; j < n; j++ {
				v += a.At(i, j) * x[j]
				if len(gradient) > 0 {
					gradient[i*n+j] = a.At(i, j)
				}
			}
			result[i] = v
		}
	}
}

func tolerances(m int, tol float64) []float64 {
	out := make([]float64, m)
	for i := range out {
		out[i] = tol
	}
	return out
}

func feasible(p *Problem, x *mat.VecDense, tol float64) bool {
	if rows(p.Aeq) > 0 {
		var r mat.VecDense
		r.MulVec(p.Aeq, x)
		r.SubVec(&r, p.Beq)
		if mat.Norm(&r, math.Inf(1)) > tol*(1+mat.Norm(p.Beq, math.Inf(1))) {
			return false
		}
	}
	return rows(p.Aineq) == 0 || violation(p.Aineq, p.Bineq, x) <= tol
}
