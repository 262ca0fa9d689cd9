package qp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	rankTolerance = 1e-10
	blockTol      = 1e-12
)

// ActiveSet is a primal active-set method. Equality rows are reduced to an
// orthonormal, consistent set first; a feasible start comes from the simplex
// method when the minimum-norm point violates an inequality.
type ActiveSet struct {
	cfg Config
}

func NewActiveSet(cfg Config) *ActiveSet { return &ActiveSet{cfg: cfg.withDefaults()} }

func (s *ActiveSet) Name() string { return ActiveSetName }

func (s *ActiveSet) Solve(p *Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	var chol mat.Cholesky
	if !chol.Factorize(p.H) {
		return Result{Status: NotPositiveDefinite}, nil
	}
	eq, e, status := reduceEqualities(p.Aeq, p.Beq, s.cfg.FeasibilityTolerance)
	if status != Optimal {
		return Result{Status: status}, nil
	}
	x, status := s.feasiblePoint(eq, e, p.Aineq, p.Bineq, p.Size())
	if status != Optimal {
		return Result{Status: status}, nil
	}
	return s.iterate(p, eq, x), nil
}

// reduceEqualities replaces A·x = b by the equivalent Vrᵀx = Σr⁻¹Urᵀb built
// from the SVD of A. Rows of b outside the range of A make the problem infeasible.
func reduceEqualities(a *mat.Dense, b *mat.VecDense, feasTol float64) (*mat.Dense, *mat.VecDense, Status) {
	if rows(a) == 0 {
		return nil, nil, Optimal
	}
	m, n := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, nil, Numerical
	}
	sv := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	r := 0
	for r < len(sv) && sv[r] > rankTolerance*math.Max(1, sv[0]) {
		r++
	}

	ub := make([]float64, r)
	proj := mat.NewVecDense(m, nil)
	for i := 0; i < r; i++ {
		ui := u.ColView(i)
		ub[i] = mat.Dot(ui, b)
		proj.AddScaledVec(proj, ub[i], ui)
	}
	proj.SubVec(b, proj)
	if mat.Norm(proj, 2) > feasTol*(1+mat.Norm(b, 2)) {
		return nil, nil, Infeasible
	}
	if r == 0 {
		return nil, nil, Optimal
	}

	eq := mat.NewDense(r, n, nil)
	e := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < n; j++ {
			eq.Set(i, j, v.At(j, i))
		}
		e.SetVec(i, ub[i]/sv[i])
	}
	return eq, e, Optimal
}

func (s *ActiveSet) feasiblePoint(eq *mat.Dense, e *mat.VecDense, g *mat.Dense, h *mat.VecDense, n int) (*mat.VecDense, Status) {
	x := mat.NewVecDense(n, nil)
	if eq != nil {
		x.MulVec(eq.T(), e)
	}
	if rows(g) == 0 || violation(g, h, x) <= s.cfg.FeasibilityTolerance {
		return x, Optimal
	}
	return s.phaseOne(eq, e, g, h, n)
}

// phaseOne finds a feasible point with lp.Simplex on the standard form
// [E −E 0; G −G I]·[x⁺; x⁻; slack] = [e; h], minimizing Σ x⁺ + x⁻.
// Variables that appear in no constraint are left at zero.
func (s *ActiveSet) phaseOne(eq *mat.Dense, e *mat.VecDense, g *mat.Dense, h *mat.VecDense, n int) (*mat.VecDense, Status) {
	ne, ni := rows(eq), rows(g)
	var used []int
	for j := 0; j < n; j++ {
		if columnUsed(eq, j) || columnUsed(g, j) {
			used = append(used, j)
		}
	}
	nu := len(used)
	a := mat.NewDense(ne+ni, 2*nu+ni, nil)
	b := make([]float64, ne+ni)
	c := make([]float64, 2*nu+ni)
	for k, j := range used {
		c[k], c[nu+k] = 1, 1
		for i := 0; i < ne; i++ {
			a.Set(i, k, eq.At(i, j))
			a.Set(i, nu+k, -eq.At(i, j))
		}
		for i := 0; i < ni; i++ {
			a.Set(ne+i, k, g.At(i, j))
			a.Set(ne+i, nu+k, -g.At(i, j))
		}
	}
	for i := 0; i < ne; i++ {
		b[i] = e.AtVec(i)
	}
	for i := 0; i < ni; i++ {
		a.Set(ne+i, 2*nu+i, 1)
		b[ne+i] = h.AtVec(i)
	}

	_, z, err := lp.Simplex(c, a, b, s.cfg.Tolerance, nil)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return nil, Infeasible
	case err != nil:
		return nil, Numerical
	}
	x := mat.NewVecDense(n, nil)
	for k, j := range used {
		x.SetVec(j, z[k]-z[nu+k])
	}
	return x, Optimal
}

func columnUsed(a *mat.Dense, j int) bool {
	for i := 0; i < rows(a); i++ {
		if a.At(i, j) != 0 {
			return true
		}
	}
	return false
}

// violation returns max(G·x − h, 0).
func violation(g *mat.Dense, h *mat.VecDense, x *mat.VecDense) float64 {
	var gx mat.VecDense
	gx.MulVec(g, x)
	worst := 0.0
	for i := 0; i < gx.Len(); i++ {
		worst = math.Max(worst, gx.AtVec(i)-h.AtVec(i))
	}
	return worst
}

func (s *ActiveSet) iterate(p *Problem, eq *mat.Dense, x *mat.VecDense) Result {
	n := p.Size()
	g, h := p.Aineq, p.Bineq
	inWorking := make([]bool, rows(g))
	var working []int
	grad := mat.NewVecDense(n, nil)
	row := make([]float64, n)

	for it := 1; it <= s.cfg.MaxIterations; it++ {
		grad.MulVec(p.H, x)
		grad.AddVec(grad, p.F)
		step, lambda, ok := solveKKT(p.H, grad, eq, g, working)
		if !ok {
			return Result{Status: Numerical, Iterations: it}
		}

		if floats.Norm(step.RawVector().Data, math.Inf(1)) <= s.cfg.Tolerance*(1+floats.Norm(x.RawVector().Data, math.Inf(1))) {
			mult := lambda[rows(eq):]
			if len(mult) == 0 || floats.Min(mult) >= -s.cfg.Tolerance {
				return Result{X: x, Status: Optimal, Iterations: it}
			}
			drop := floats.MinIdx(mult)
			inWorking[working[drop]] = false
			working = append(working[:drop], working[drop+1:]...)
			continue
		}

		alpha, block := 1.0, -1
		for i := 0; i < rows(g); i++ {
			if inWorking[i] {
				continue
			}
			mat.Row(row, i, g)
			gp := floats.Dot(row, step.RawVector().Data)
			if gp <= blockTol {
				continue
			}
			slack := math.Max(h.AtVec(i)-floats.Dot(row, x.RawVector().Data), 0)
			if a := slack / gp; a < alpha {
				alpha, block = a, i
			}
		}
		x.AddScaledVec(x, alpha, step)
		if block >= 0 {
			inWorking[block] = true
			working = append(working, block)
		}
	}
	return Result{X: x, Status: MaxIterations, Iterations: s.cfg.MaxIterations}
}

// solveKKT solves [H Aᵀ; A 0][p; λ] = [−g; 0] where A stacks the equality
// rows and the working inequality rows.
func solveKKT(hess *mat.SymDense, grad *mat.VecDense, eq *mat.Dense, g *mat.Dense, working []int) (*mat.VecDense, []float64, bool) {
	n := grad.Len()
	ne := rows(eq)
	k := ne + len(working)
	kkt := mat.NewDense(n+k, n+k, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			kkt.Set(i, j, hess.At(i, j))
		}
	}
	constraint := func(r int) []float64 {
		if r < ne {
			return eq.RawRowView(r)
		}
		return g.RawRowView(working[r-ne])
	}
	for r := 0; r < k; r++ {
		for j, v := range constraint(r) {
			kkt.Set(n+r, j, v)
			kkt.Set(j, n+r, v)
		}
	}
	rhs := mat.NewVecDense(n+k, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, -grad.AtVec(i))
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, nil, false
		}
	}
	data := sol.RawVector().Data
	if floats.HasNaN(data) || math.IsInf(floats.Max(data), 0) || math.IsInf(floats.Min(data), 0) {
		return nil, nil, false
	}
	step := mat.NewVecDense(n, append([]float64(nil), data[:n]...))
	return step, append([]float64(nil), data[n:]...), true
}
