package spatial

import "github.com/golang/geo/r3"

// Inertia is a rigid-body inertia with CoM and rotational inertia (about the
// CoM) expressed in world coordinates.
type Inertia struct {
	Mass       float64
	CoM        r3.Vector
	Rotational Rotation
}

// Apply returns the momentum I·v of a body moving with twist v.
func (in Inertia) Apply(v Vector) Vector {
	f := LinearVelocityAt(v, in.CoM).Mul(in.Mass)
	n := in.Rotational.Apply(v.Angular).Add(in.CoM.Cross(f))
	return Vector{Angular: n, Linear: f}
}

// Add combines two inertias into the inertia of the rigidly joined pair.
func (in Inertia) Add(o Inertia) Inertia {
	m := in.Mass + o.Mass
	if m == 0 {
		return Inertia{Rotational: in.Rotational.Add(o.Rotational)}
	}
	com := in.CoM.Mul(in.Mass).Add(o.CoM.Mul(o.Mass)).Mul(1 / m)
	rot := in.Rotational.Add(parallelAxis(in.Mass, in.CoM.Sub(com)))
	rot = rot.Add(o.Rotational).Add(parallelAxis(o.Mass, o.CoM.Sub(com)))
	return Inertia{Mass: m, CoM: com, Rotational: rot}
}

// parallelAxis is m(|d|²I − ddᵀ).
func parallelAxis(m float64, d r3.Vector) Rotation {
	n2 := d.Norm2()
	return Rotation{
		{m * (n2 - d.X*d.X), -m * d.X * d.Y, -m * d.X * d.Z},
		{-m * d.Y * d.X, m * (n2 - d.Y*d.Y), -m * d.Y * d.Z},
		{-m * d.Z * d.X, -m * d.Z * d.Y, m * (n2 - d.Z*d.Z)},
	}
}
