package spatial

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Rotation is a row-major 3x3 matrix. It also stores symmetric rotational
// inertia tensors.
type Rotation [3][3]float64

func Identity() Rotation {
	return Rotation{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// AxisAngle returns the rotation of angle radians about axis (Rodrigues).
func AxisAngle(axis r3.Vector, angle float64) Rotation {
	n := axis.Norm()
	if n == 0 {
		return Identity()
	}
	a := axis.Mul(1 / n)
	s, c := math.Sin(angle), math.Cos(angle)
	t := 1 - c
	return Rotation{
		{t*a.X*a.X + c, t*a.X*a.Y - s*a.Z, t*a.X*a.Z + s*a.Y},
		{t*a.X*a.Y + s*a.Z, t*a.Y*a.Y + c, t*a.Y*a.Z - s*a.X},
		{t*a.X*a.Z - s*a.Y, t*a.Y*a.Z + s*a.X, t*a.Z*a.Z + c},
	}
}

// Exp maps a rotation vector (axis scaled by angle) to a rotation.
func Exp(w r3.Vector) Rotation {
	return AxisAngle(w, w.Norm())
}

// FromQuat converts a (not necessarily normalised) quaternion.
func FromQuat(q quat.Number) Rotation {
	n := quat.Abs(q)
	if n == 0 {
		return Identity()
	}
	q = quat.Scale(1/n, q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return Rotation{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// Quat returns the unit quaternion of a proper rotation.
func (r Rotation) Quat() quat.Number {
	tr := r[0][0] + r[1][1] + r[2][2]
	var q quat.Number
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = quat.Number{Real: s / 4, Imag: (r[2][1] - r[1][2]) / s, Jmag: (r[0][2] - r[2][0]) / s, Kmag: (r[1][0] - r[0][1]) / s}
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := math.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		q = quat.Number{Real: (r[2][1] - r[1][2]) / s, Imag: s / 4, Jmag: (r[0][1] + r[1][0]) / s, Kmag: (r[0][2] + r[2][0]) / s}
	case r[1][1] > r[2][2]:
		s := math.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		q = quat.Number{Real: (r[0][2] - r[2][0]) / s, Imag: (r[0][1] + r[1][0]) / s, Jmag: s / 4, Kmag: (r[1][2] + r[2][1]) / s}
	default:
		s := math.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		q = quat.Number{Real: (r[1][0] - r[0][1]) / s, Imag: (r[0][2] + r[2][0]) / s, Jmag: (r[1][2] + r[2][1]) / s, Kmag: s / 4}
	}
	return q
}

func (r Rotation) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r[0][0]*v.X + r[0][1]*v.Y + r[0][2]*v.Z,
		Y: r[1][0]*v.X + r[1][1]*v.Y + r[1][2]*v.Z,
		Z: r[2][0]*v.X + r[2][1]*v.Y + r[2][2]*v.Z,
	}
}

func (r Rotation) Mul(o Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += r[i][k] * o[k][j]
			}
		}
	}
	return out
}

func (r Rotation) Transpose() Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[j][i]
		}
	}
	return out
}

func (r Rotation) Add(o Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r[i][j] + o[i][j]
		}
	}
	return out
}

// Conjugate returns r·m·rᵀ, used to rotate inertia tensors.
func (r Rotation) Conjugate(m Rotation) Rotation {
	return r.Mul(m).Mul(r.Transpose())
}

// Diagonal returns a diagonal matrix.
func Diagonal(x, y, z float64) Rotation {
	return Rotation{{x, 0, 0}, {0, y, 0}, {0, 0, z}}
}
