package command

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

// Objective is one command in canonical form: rows J·q̈ ≈ B. Hard objectives
// become equality constraints; soft ones add Σ wᵢ(Jᵢq̈ − Bᵢ)² to the cost.
type Objective struct {
	Name    string
	J       *mat.Dense
	B       *mat.VecDense
	Weights []float64
	Hard    bool
}

func (o Objective) Rows() int { return o.B.Len() }

// Set is the aggregated result of one tick's commands.
type Set struct {
	Objectives []Objective
	RhoWeights map[model.BodyID]float64
	// Dropped collects the reasons commands were skipped.
	Dropped error
}

// Aggregator normalizes commands against one model. It reads kinematics,
// so UpdateKinematics must run first.
type Aggregator struct {
	model  *model.Model
	dt     float64
	logger *zap.SugaredLogger
}

// NewAggregator returns an aggregator for a control loop with period dt
// seconds. A nil logger discards warnings.
func NewAggregator(m *model.Model, dt float64, logger *zap.SugaredLogger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Aggregator{model: m, dt: dt, logger: logger}
}

// Aggregate converts cmds into objectives. Malformed commands and commands
// naming parts absent from the model are dropped with a warning. The error
// is reserved for model state problems that invalidate the whole tick.
func (a *Aggregator) Aggregate(cmds []Command) (Set, error) {
	set := Set{RhoWeights: map[model.BodyID]float64{}}
	for _, c := range cmds {
		if c == nil {
			set.Dropped = multierr.Append(set.Dropped, errors.Wrap(ErrBadCommand, "nil command"))
			continue
		}
		obj, err := a.objective(c, &set)
		if errors.Is(err, model.ErrStaleKinematics) {
			return Set{}, err
		}
		if err != nil {
			a.logger.Warnw("dropping command", "id", c.ID(), "error", err)
			set.Dropped = multierr.Append(set.Dropped, errors.Wrapf(err, "command %q", c.ID()))
			continue
		}
		if obj != nil {
			set.Objectives = append(set.Objectives, *obj)
		}
	}
	return set, nil
}

func (a *Aggregator) objective(c Command, set *Set) (*Objective, error) {
	switch c := c.(type) {
	case SpatialAcceleration:
		return a.spatialRows(c.Name, c.Base, c.EndEffector, c.Frame, c.Selection, c.Weight, c.Weights,
			func(model.BodyID, model.BodyID, model.FrameID) (spatial.Vector, error) {
				return c.Desired, nil
			})
	case SpatialVelocity:
		if a.dt <= 0 {
			return nil, errors.Wrap(ErrBadCommand, "velocity command needs a positive control period")
		}
		return a.spatialRows(c.Name, c.Base, c.EndEffector, c.Frame, c.Selection, c.Weight, c.Weights,
			func(base, ee model.BodyID, frame model.FrameID) (spatial.Vector, error) {
				cur, err := a.model.RelativeTwist(base, ee, frame)
				if err != nil {
					return spatial.Vector{}, err
				}
				return c.Desired.Sub(cur).Scale(1 / a.dt), nil
			})
	case JointAcceleration:
		return a.jointRows(c)
	case PrivilegedConfiguration:
		return a.privilegedRows(c)
	case ContactForceWeight:
		body, ok := a.model.BodyByName(c.Body)
		if !ok || body == model.Elevator {
			return nil, errors.Wrapf(ErrUnknownTarget, "body %q", c.Body)
		}
		if !(c.Weight > 0) || math.IsInf(c.Weight, 0) {
			return nil, errors.Wrapf(ErrBadWeight, "rho weight %v", c.Weight)
		}
		set.RhoWeights[body] = c.Weight
		return nil, nil
	}
	return nil, errors.Wrapf(ErrBadCommand, "unsupported command %T", c)
}

type desiredFunc func(base, ee model.BodyID, frame model.FrameID) (spatial.Vector, error)

func (a *Aggregator) spatialRows(id, baseName, eeName, frameName string, sel Selection, weight float64, weights []float64, desired desiredFunc) (*Objective, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if len(sel) == 0 {
		return nil, nil
	}
	rowWeights, hard, err := objectiveWeights(weight, weights, len(sel))
	if err != nil {
		return nil, err
	}
	base, ee, frame, err := resolveSpatial(a.model, baseName, eeName, frameName)
	if err != nil {
		return nil, err
	}

	jac, err := a.model.Jacobian(base, ee, frame)
	if err != nil {
		return nil, err
	}
	conv, err := a.model.ConvectiveTerm(base, ee, frame)
	if err != nil {
		return nil, err
	}
	want, err := desired(base, ee, frame)
	if err != nil {
		return nil, err
	}
	if !want.IsValid() {
		return nil, errors.Wrap(ErrBadCommand, "desired value is not finite")
	}

	n := a.model.DoF()
	obj := &Objective{
		Name:    id,
		J:       mat.NewDense(len(sel), n, nil),
		B:       mat.NewVecDense(len(sel), nil),
		Weights: rowWeights,
		Hard:    hard,
	}
	for i, ax := range sel {
		obj.J.SetRow(i, mat.Row(nil, int(ax), jac))
		obj.B.SetVec(i, want.At(int(ax))-conv.At(int(ax)))
	}
	return obj, nil
}

func (a *Aggregator) jointRows(c JointAcceleration) (*Objective, error) {
	if len(c.Joints) != len(c.Desired) {
		return nil, errors.Wrapf(ErrBadCommand, "%d joints, %d accelerations", len(c.Joints), len(c.Desired))
	}
	if len(c.Joints) == 0 {
		return nil, nil
	}
	rowWeights, hard, err := objectiveWeights(c.Weight, nil, len(c.Joints))
	if err != nil {
		return nil, err
	}
	idx, err := jointIndices(a.model, c.Joints)
	if err != nil {
		return nil, err
	}
	obj := &Objective{
		Name:    c.Name,
		J:       mat.NewDense(len(idx), a.model.DoF(), nil),
		B:       mat.NewVecDense(len(idx), append([]float64(nil), c.Desired...)),
		Weights: rowWeights,
		Hard:    hard,
	}
	for i, k := range idx {
		obj.J.Set(i, k, 1)
	}
	return obj, nil
}

func (a *Aggregator) privilegedRows(c PrivilegedConfiguration) (*Objective, error) {
	m := a.model
	ids := make([]model.JointID, 0, m.NumJoints())
	if len(c.Joints) == 0 {
		for i := 0; i < m.NumJoints(); i++ {
			if m.Joint(model.JointID(i)).Kind != model.Floating {
				ids = append(ids, model.JointID(i))
			}
		}
	} else {
		for _, name := range c.Joints {
			id, ok := m.JointByName(name)
			if !ok {
				return nil, errors.Wrapf(ErrUnknownTarget, "joint %q", name)
			}
			ids = append(ids, id)
		}
	}
	if len(c.Q) != len(ids) {
		return nil, errors.Wrapf(ErrBadCommand, "%d positions for %d joints", len(c.Q), len(ids))
	}
	if c.Kp < 0 || c.Kd < 0 {
		return nil, errors.Wrapf(ErrBadCommand, "negative gains kp=%v kd=%v", c.Kp, c.Kd)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	w := c.Weight
	if IsHard(w) {
		w = DefaultPrivilegedWeight
	}
	if w < 0 || math.IsNaN(w) {
		return nil, errors.Wrapf(ErrBadWeight, "weight %v", c.Weight)
	}

	obj := &Objective{
		Name:    c.Name,
		J:       mat.NewDense(len(ids), m.DoF(), nil),
		B:       mat.NewVecDense(len(ids), nil),
		Weights: lo.Times(len(ids), func(int) float64 { return w }),
	}
	for i, id := range ids {
		j := m.Joint(id)
		if j.Kind == model.Floating {
			return nil, errors.Wrapf(ErrBadCommand, "joint %q is floating", j.Name)
		}
		obj.J.Set(i, j.Index(), 1)
		obj.B.SetVec(i, c.Kp*(c.Q[i]-j.Q)-c.Kd*j.Qd)
	}
	return obj, nil
}

// objectiveWeights returns per-row weights, or hard = true.
func objectiveWeights(weight float64, rows []float64, n int) ([]float64, bool, error) {
	if math.IsNaN(weight) || weight < 0 {
		return nil, false, errors.Wrapf(ErrBadWeight, "weight %v", weight)
	}
	if IsHard(weight) {
		return nil, true, nil
	}
	if rows != nil && len(rows) != n {
		return nil, false, errors.Wrapf(ErrBadWeight, "%d row weights for %d rows", len(rows), n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = weight
		if rows != nil {
			if !(rows[i] >= 0) || math.IsInf(rows[i], 0) {
				return nil, false, errors.Wrapf(ErrBadWeight, "row %d weight %v", i, rows[i])
			}
			out[i] *= rows[i]
		}
	}
	return out, false, nil
}

func resolveSpatial(m *model.Model, baseName, eeName, frameName string) (model.BodyID, model.BodyID, model.FrameID, error) {
	base := model.Elevator
	if baseName != "" {
		id, ok := m.BodyByName(baseName)
		if !ok {
			return 0, 0, 0, errors.Wrapf(ErrUnknownTarget, "base body %q", baseName)
		}
		base = id
	}
	if eeName == "" {
		return 0, 0, 0, errors.Wrap(ErrBadCommand, "end effector not set")
	}
	ee, ok := m.BodyByName(eeName)
	if !ok {
		return 0, 0, 0, errors.Wrapf(ErrUnknownTarget, "end effector %q", eeName)
	}
	frame := m.Body(ee).Frame()
	if frameName != "" {
		id, ok := m.FrameByName(frameName)
		if !ok {
			return 0, 0, 0, errors.Wrapf(ErrUnknownTarget, "frame %q", frameName)
		}
		frame = id
	}
	return base, ee, frame, nil
}

func jointIndices(m *model.Model, names []string) ([]int, error) {
	out := make([]int, 0, len(names))
	for _, name := range names {
		id, ok := m.JointByName(name)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownTarget, "joint %q", name)
		}
		j := m.Joint(id)
		if j.Kind == model.Floating {
			return nil, errors.Wrapf(ErrBadCommand, "joint %q is floating", name)
		}
		out = append(out, j.Index())
	}
	return out, nil
}

// Validate checks commands once at setup. Unlike Aggregate it treats every
// problem as fatal, including body pairs that are not connected through the tree.
func Validate(m *model.Model, cmds []Command) error {
	var err error
	for _, c := range cmds {
		err = multierr.Append(err, validateOne(m, c))
	}
	return err
}

func validateOne(m *model.Model, c Command) error {
	check := func(base, ee, frame string, sel Selection, weight float64, weights []float64) error {
		if err := sel.Validate(); err != nil {
			return err
		}
		if _, _, err := objectiveWeights(weight, weights, len(sel)); err != nil {
			return err
		}
		b, e, _, err := resolveSpatial(m, base, ee, frame)
		if err != nil {
			return err
		}
		_, err = m.Path(b, e)
		return err
	}
	var err error
	switch c := c.(type) {
	case nil:
		return errors.Wrap(ErrBadCommand, "nil command")
	case SpatialAcceleration:
		err = check(c.Base, c.EndEffector, c.Frame, c.Selection, c.Weight, c.Weights)
	case SpatialVelocity:
		err = check(c.Base, c.EndEffector, c.Frame, c.Selection, c.Weight, c.Weights)
	case JointAcceleration:
		if len(c.Joints) != len(c.Desired) {
			err = errors.Wrapf(ErrBadCommand, "%d joints, %d accelerations", len(c.Joints), len(c.Desired))
		} else {
			_, err = jointIndices(m, c.Joints)
		}
	case PrivilegedConfiguration:
		if len(c.Joints) > 0 {
			_, err = jointIndices(m, c.Joints)
		}
	case ContactForceWeight:
		if _, ok := m.BodyByName(c.Body); !ok {
			err = errors.Wrapf(ErrUnknownTarget, "body %q", c.Body)
		}
	}
	if err != nil {
		return errors.Wrapf(err, "command %q", c.ID())
	}
	return nil
}
