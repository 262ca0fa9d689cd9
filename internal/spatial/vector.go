package spatial

import (
	"math"

	"github.com/golang/geo/r3"
)

// Size is the number of components of a spatial vector.
const Size = 6

// Vector is a spatial motion or force vector.
type Vector struct {
	Angular r3.Vector
	Linear  r3.Vector
}

func (v Vector) Add(o Vector) Vector {
	return Vector{Angular: v.Angular.Add(o.Angular), Linear: v.Linear.Add(o.Linear)}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{Angular: v.Angular.Sub(o.Angular), Linear: v.Linear.Sub(o.Linear)}
}

func (v Vector) Scale(s float64) Vector {
	return Vector{Angular: v.Angular.Mul(s), Linear: v.Linear.Mul(s)}
}

// Dot is the scalar product; for a motion and a force vector it is power.
func (v Vector) Dot(o Vector) float64 {
	return v.Angular.Dot(o.Angular) + v.Linear.Dot(o.Linear)
}

// CrossMotion is the motion cross product v ×m m.
func (v Vector) CrossMotion(m Vector) Vector {
	return Vector{
		Angular: v.Angular.Cross(m.Angular),
		Linear:  v.Linear.Cross(m.Angular).Add(v.Angular.Cross(m.Linear)),
	}
}

// CrossForce is the force cross product v ×f f.
func (v Vector) CrossForce(f Vector) Vector {
	return Vector{
		Angular: v.Angular.Cross(f.Angular).Add(v.Linear.Cross(f.Linear)),
		Linear:  v.Angular.Cross(f.Linear),
	}
}

// At returns component i, angular components first.
func (v Vector) At(i int) float64 {
	switch i {
	case 0:
		return v.Angular.X
	case 1:
		return v.Angular.Y
	case 2:
		return v.Angular.Z
	case 3:
		return v.Linear.X
	case 4:
		return v.Linear.Y
	case 5:
		return v.Linear.Z
	}
	panic("spatial: component index out of range")
}

func (v Vector) Slice() []float64 {
	return []float64{v.Angular.X, v.Angular.Y, v.Angular.Z, v.Linear.X, v.Linear.Y, v.Linear.Z}
}

// FromSlice builds a vector from the first six entries of s.
func FromSlice(s []float64) Vector {
	return Vector{
		Angular: r3.Vector{X: s[0], Y: s[1], Z: s[2]},
		Linear:  r3.Vector{X: s[3], Y: s[4], Z: s[5]},
	}
}

// Unit returns the basis vector along component i.
func Unit(i int) Vector {
	s := make([]float64, Size)
	s[i] = 1
	return FromSlice(s)
}

func (v Vector) IsValid() bool {
	for _, x := range v.Slice() {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// ShiftForce returns the moment of wrench w about point p (instead of the origin).
func ShiftForce(w Vector, p r3.Vector) Vector {
	return Vector{Angular: w.Angular.Sub(p.Cross(w.Linear)), Linear: w.Linear}
}

// LinearVelocityAt returns the velocity of point p for twist v.
func LinearVelocityAt(v Vector, p r3.Vector) r3.Vector {
	return v.Linear.Add(v.Angular.Cross(p))
}
