package spatial

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Transform maps child coordinates to parent coordinates: p_parent = R·p_child + T.
type Transform struct {
	Rotation    Rotation
	Translation r3.Vector
}

func IdentityTransform() Transform {
	return Transform{Rotation: Identity()}
}

func Translation(x, y, z float64) Transform {
	return Transform{Rotation: Identity(), Translation: r3.Vector{X: x, Y: y, Z: z}}
}

// Compose returns t∘child.
func (t Transform) Compose(child Transform) Transform {
	return Transform{
		Rotation:    t.Rotation.Mul(child.Rotation),
		Translation: t.ApplyPoint(child.Translation),
	}
}

func (t Transform) Inverse() Transform {
	rt := t.Rotation.Transpose()
	return Transform{Rotation: rt, Translation: rt.Apply(t.Translation).Mul(-1)}
}

func (t Transform) ApplyPoint(p r3.Vector) r3.Vector {
	return t.Rotation.Apply(p).Add(t.Translation)
}

func (t Transform) ApplyVector(v r3.Vector) r3.Vector {
	return t.Rotation.Apply(v)
}

// MotionIn re-expresses a world-origin twist in the coordinates of frame t
// (t being the frame's transform to world).
func MotionIn(t Transform, v Vector) Vector {
	rt := t.Rotation.Transpose()
	return Vector{
		Angular: rt.Apply(v.Angular),
		Linear:  rt.Apply(LinearVelocityAt(v, t.Translation)),
	}
}

// ForceIn re-expresses a world-origin wrench in the coordinates of frame t.
func ForceIn(t Transform, w Vector) Vector {
	rt := t.Rotation.Transpose()
	shifted := ShiftForce(w, t.Translation)
	return Vector{Angular: rt.Apply(shifted.Angular), Linear: rt.Apply(w.Linear)}
}

// ForceFrom converts a wrench expressed in frame t back to world-origin coordinates.
func ForceFrom(t Transform, w Vector) Vector {
	f := t.Rotation.Apply(w.Linear)
	n := t.Rotation.Apply(w.Angular).Add(t.Translation.Cross(f))
	return Vector{Angular: n, Linear: f}
}

// MotionMatrix is the 6x6 matrix of MotionIn, for re-expressing Jacobians.
func MotionMatrix(t Transform) *mat.Dense {
	x := mat.NewDense(Size, Size, nil)
	for j := 0; j < Size; j++ {
		col := MotionIn(t, Unit(j)).Slice()
		for i := 0; i < Size; i++ {
			x.Set(i, j, col[i])
		}
	}
	return x
}
