// Package wholebody assembles and solves the whole-body quadratic program
// over joint accelerations and contact force coefficients, and recovers the
// joint torques that realize its solution.
package wholebody

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/command"
	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/qp"
	"github.com/san-kum/wholebody/internal/spatial"
)

// Phase is the optimizer's position in its per-tick state machine.
type Phase int

const (
	Initialize Phase = iota
	Assemble
	Solve
	Extract
)

func (p Phase) String() string {
	switch p {
	case Initialize:
		return "initialize"
	case Assemble:
		return "assemble"
	case Solve:
		return "solve"
	case Extract:
		return "extract"
	}
	return "unknown"
}

const (
	DefaultTikhonov     = 1e-6
	DefaultRhoWeight    = 1e-5
	DefaultRhoTolerance = 1e-6
)

type Settings struct {
	// Tikhonov regularizes q̈ so the cost is positive definite.
	Tikhonov float64
	// RhoWeight regularizes contact coefficients of bodies without a
	// ContactForceWeight command.
	RhoWeight float64
	// MaxJointAcceleration bounds |q̈| of actuated joints; 0 disables it.
	MaxJointAcceleration float64
	// TorqueLimits bounds actuated torques by each joint's EffortLimit.
	TorqueLimits bool
	// RhoTolerance is how negative a solved rho may be before the tick fails.
	RhoTolerance float64
}

func DefaultSettings() Settings {
	return Settings{
		Tikhonov:     DefaultTikhonov,
		RhoWeight:    DefaultRhoWeight,
		TorqueLimits: true,
		RhoTolerance: DefaultRhoTolerance,
	}
}

func (s Settings) Validate() error {
	switch {
	case !(s.Tikhonov > 0) || math.IsInf(s.Tikhonov, 0):
		return errors.Wrapf(ErrBadSettings, "tikhonov %v must be positive", s.Tikhonov)
	case !(s.RhoWeight > 0) || math.IsInf(s.RhoWeight, 0):
		return errors.Wrapf(ErrBadSettings, "rho weight %v must be positive", s.RhoWeight)
	case s.MaxJointAcceleration < 0:
		return errors.Wrapf(ErrBadSettings, "max joint acceleration %v", s.MaxJointAcceleration)
	case s.RhoTolerance < 0:
		return errors.Wrapf(ErrBadSettings, "rho tolerance %v", s.RhoTolerance)
	}
	return nil
}

// Solution is one tick's control output.
type Solution struct {
	Qdd *mat.VecDense
	Rho *mat.VecDense
	// Torques holds the actuated joint torques, ordered as Joints.
	Torques *mat.VecDense
	Joints  []int
	// Generalized is the full τ including the (ideally zero) floating rows.
	Generalized     *mat.VecDense
	ContactWrenches map[model.BodyID]spatial.Vector
	Iterations      int
	Status          qp.Status
}

// Optimizer runs Initialize → Assemble → Solve → Extract once per tick.
// Nothing but the model's joint state carries over between ticks.
type Optimizer struct {
	model    *model.Model
	contacts *contact.Calculator
	matrix   *DynamicsMatrix
	solver   qp.Solver
	settings Settings
	logger   *zap.SugaredLogger
	phase    Phase
}

func NewOptimizer(matrix *DynamicsMatrix, solver qp.Solver, settings Settings, logger *zap.SugaredLogger) (*Optimizer, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if solver == nil {
		return nil, errors.Wrap(ErrBadSettings, "no solver")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Optimizer{
		model:    matrix.model,
		contacts: matrix.contacts,
		matrix:   matrix,
		solver:   solver,
		settings: settings,
		logger:   logger,
	}, nil
}

func (o *Optimizer) Phase() Phase                  { return o.phase }
func (o *Optimizer) Matrix() *DynamicsMatrix       { return o.matrix }
func (o *Optimizer) Settings() Settings            { return o.settings }
func (o *Optimizer) Contacts() *contact.Calculator { return o.contacts }

// Compute runs one tick. Kinematics must be up to date. A solver verdict
// other than optimal is returned as *InfeasibleError and no solution.
func (o *Optimizer) Compute(set command.Set) (*Solution, error) {
	o.phase = Initialize
	if err := o.matrix.Compute(); err != nil {
		return nil, err
	}

	o.phase = Assemble
	problem, err := o.Assemble(set)
	if err != nil {
		return nil, err
	}

	o.phase = Solve
	res, err := o.solver.Solve(problem)
	if err != nil {
		return nil, errors.Wrapf(err, "%s solver", o.solver.Name())
	}
	if res.Status != qp.Optimal {
		o.logger.Debugw("qp failed", "status", res.Status, "iterations", res.Iterations)
		return nil, &InfeasibleError{Reason: reasonFor(res.Status), Status: res.Status, Iterations: res.Iterations}
	}

	o.phase = Extract
	return o.extract(res)
}

// Assemble builds the QP for x = [q̈; rho] from the aggregated commands.
// Compute (or Matrix().Compute) must have run for the current state.
func (o *Optimizer) Assemble(set command.Set) (*qp.Problem, error) {
	if err := o.matrix.fresh(); err != nil {
		return nil, err
	}
	n, r := o.model.DoF(), o.contacts.RhoSize()
	size := n + r

	h := mat.NewSymDense(size, nil)
	f := mat.NewVecDense(size, nil)
	var eqRows [][]float64
	var eqRHS []float64

	for _, obj := range set.Objectives {
		_, cols := obj.J.Dims()
		if cols != n {
			return nil, errors.Wrapf(model.ErrDimensionMismatch, "objective %q has %d columns, want %d", obj.Name, cols, n)
		}
		for i := 0; i < obj.Rows(); i++ {
			row := obj.J.RawRowView(i)
			b := obj.B.AtVec(i)
			if obj.Hard {
				full := make([]float64, size)
				copy(full, row)
				eqRows = append(eqRows, full)
				eqRHS = append(eqRHS, b)
				continue
			}
			w := obj.Weights[i]
			for a, va := range row {
				if va == 0 {
					continue
				}
				f.SetVec(a, f.AtVec(a)-w*va*b)
				for c := a; c < n; c++ {
					if row[c] != 0 {
						h.SetSym(a, c, h.At(a, c)+w*va*row[c])
					}
				}
			}
		}
	}
	for i := 0; i < n; i++ {
		h.SetSym(i, i, h.At(i, i)+o.settings.Tikhonov)
	}
	for k := 0; k < r; k++ {
		w, ok := set.RhoWeights[o.contacts.Body(o.contacts.RhoBlock(k)).Body]
		if !ok {
			w = o.settings.RhoWeight
		}
		h.SetSym(n+k, n+k, h.At(n+k, n+k)+w)
	}

	// the floating base is driven only by contact forces
	for _, i := range o.matrix.UnactuatedIndices() {
		row, c := o.matrix.row(i)
		eqRows = append(eqRows, row)
		eqRHS = append(eqRHS, -c)
	}

	var inRows [][]float64
	var inRHS []float64
	addIneq := func(row []float64, b float64) {
		inRows = append(inRows, row)
		inRHS = append(inRHS, b)
	}
	unit := func(i int, sign float64) []float64 {
		row := make([]float64, size)
		row[i] = sign
		return row
	}
	for k := 0; k < r; k++ {
		addIneq(unit(n+k, -1), 0)
	}
	for _, k := range o.contacts.InactiveRho() {
		addIneq(unit(n+k, 1), 0)
	}
	for k, limit := range o.contacts.MaxRho() {
		if limit > 0 {
			addIneq(unit(n+k, 1), limit)
		}
	}
	if a := o.settings.MaxJointAcceleration; a > 0 {
		for _, i := range o.matrix.ActuatedIndices() {
			addIneq(unit(i, 1), a)
			addIneq(unit(i, -1), a)
		}
	}
	if o.settings.TorqueLimits {
		for ji := 0; ji < o.model.NumJoints(); ji++ {
			j := o.model.Joint(model.JointID(ji))
			if j.Kind == model.Floating || j.EffortLimit <= 0 {
				continue
			}
			row, c := o.matrix.row(j.Index())
			addIneq(row, j.EffortLimit-c)
			neg := make([]float64, size)
			floats.ScaleTo(neg, -1, row)
			addIneq(neg, j.EffortLimit+c)
		}
	}

	p := &qp.Problem{H: h, F: f}
	p.Aeq, p.Beq = stack(eqRows, eqRHS, size)
	p.Aineq, p.Bineq = stack(inRows, inRHS, size)
	return p, nil
}

func stack(rows [][]float64, rhs []float64, cols int) (*mat.Dense, *mat.VecDense) {
	if len(rows) == 0 {
		return nil, nil
	}
	a := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		a.SetRow(i, row)
	}
	return a, mat.NewVecDense(len(rhs), rhs)
}

func (o *Optimizer) extract(res qp.Result) (*Solution, error) {
	n, r := o.model.DoF(), o.contacts.RhoSize()
	x := res.X.RawVector().Data
	if floats.HasNaN(x) {
		return nil, &InfeasibleError{Reason: ReasonNumerical, Status: qp.Numerical, Iterations: res.Iterations}
	}
	qdd := mat.NewVecDense(n, append([]float64(nil), x[:n]...))
	var rho *mat.VecDense
	if r > 0 {
		rho = mat.NewVecDense(r, append([]float64(nil), x[n:]...))
		for k := 0; k < r; k++ {
			v := rho.AtVec(k)
			if v < -o.settings.RhoTolerance {
				return nil, &InfeasibleError{
					Reason: ReasonNumerical, Status: res.Status, Iterations: res.Iterations,
					Wrapped: errors.Wrapf(ErrNegativeRho, "rho[%d] = %v", k, v),
				}
			}
			if v < 0 {
				rho.SetVec(k, 0)
			}
		}
	} else {
		rho = &mat.VecDense{}
	}

	var rhoArg mat.Vector
	if r > 0 {
		rhoArg = rho
	}
	generalized, err := o.matrix.GeneralizedForces(qdd, rhoArg)
	if err != nil {
		return nil, err
	}
	torques, err := o.matrix.JointTorques(qdd, rhoArg)
	if err != nil {
		return nil, err
	}
	wrenches := map[model.BodyID]spatial.Vector{}
	if r > 0 {
		if wrenches, err = o.contacts.WrenchesFromRho(rho); err != nil {
			return nil, err
		}
	}
	if err := o.model.SetAccelerations(qdd); err != nil {
		return nil, err
	}
	if err := o.model.SetTorques(generalized); err != nil {
		return nil, err
	}
	return &Solution{
		Qdd:             qdd,
		Rho:             rho,
		Torques:         torques,
		Joints:          o.matrix.ActuatedIndices(),
		Generalized:     generalized,
		ContactWrenches: wrenches,
		Iterations:      res.Iterations,
		Status:          res.Status,
	}, nil
}
