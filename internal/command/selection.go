package command

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/spatial"
)

// Axis is one row of a spatial vector, angular first.
type Axis int

const (
	AngularX Axis = iota
	AngularY
	AngularZ
	LinearX
	LinearY
	LinearZ
)

var axisNames = [...]string{"wx", "wy", "wz", "x", "y", "z"}

func (a Axis) String() string {
	if a < 0 || int(a) >= len(axisNames) {
		return "invalid"
	}
	return axisNames[a]
}

// ParseAxis is the inverse of Axis.String.
func ParseAxis(s string) (Axis, error) {
	for i, n := range axisNames {
		if n == s {
			return Axis(i), nil
		}
	}
	return 0, errors.Wrapf(ErrBadSelection, "unknown axis %q", s)
}

// Selection picks rows of a spatial vector. Each entry is a one-hot row of
// a selection matrix.
type Selection []Axis

func AllAxes() Selection     { return Selection{AngularX, AngularY, AngularZ, LinearX, LinearY, LinearZ} }
func AngularAxes() Selection { return Selection{AngularX, AngularY, AngularZ} }
func LinearAxes() Selection  { return Selection{LinearX, LinearY, LinearZ} }

func (s Selection) Validate() error {
	if len(s) > spatial.Size {
		return errors.Wrapf(ErrBadSelection, "%d rows, at most %d", len(s), spatial.Size)
	}
	for i, a := range s {
		if a < AngularX || a > LinearZ {
			return errors.Wrapf(ErrBadSelection, "row %d: axis %d", i, a)
		}
	}
	return nil
}

// Matrix returns the k×6 selection matrix, nil for an empty selection.
func (s Selection) Matrix() *mat.Dense {
	if len(s) == 0 {
		return nil
	}
	out := mat.NewDense(len(s), spatial.Size, nil)
	for i, a := range s {
		out.Set(i, int(a), 1)
	}
	return out
}

// SelectionFromMatrix converts a dense selection matrix with at most six
// one-hot rows over six columns.
func SelectionFromMatrix(m mat.Matrix) (Selection, error) {
	r, c := m.Dims()
	if c != spatial.Size {
		return nil, errors.Wrapf(ErrBadSelection, "%d columns, want %d", c, spatial.Size)
	}
	if r > spatial.Size {
		return nil, errors.Wrapf(ErrBadSelection, "%d rows, at most %d", r, spatial.Size)
	}
	sel := make(Selection, 0, r)
	for i := 0; i < r; i++ {
		axis := -1
		for j := 0; j < c; j++ {
			switch v := m.At(i, j); v {
			case 0:
			case 1:
				if axis >= 0 {
					return nil, errors.Wrapf(ErrBadSelection, "row %d selects more than one axis", i)
				}
				axis = j
			default:
				return nil, errors.Wrapf(ErrBadSelection, "row %d has entry %v", i, v)
			}
		}
		if axis < 0 {
			return nil, errors.Wrapf(ErrBadSelection, "row %d is empty", i)
		}
		sel = append(sel, Axis(axis))
	}
	return sel, nil
}
