package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/wholebody/internal/dynamics"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

func arm(t *testing.T) *model.Model {
	b := model.NewBuilder("arm")
	upper := b.AddRevolute("shoulder", model.Elevator, spatial.IdentityTransform(), r3.Vector{Y: 1},
		model.BodySpec{Name: "upper", Mass: 1, CoM: r3.Vector{X: 0.2}, Inertia: spatial.Diagonal(0.01, 0.01, 0.01)})
	b.AddPrismatic("slide", upper, spatial.Translation(0.4, 0, 0), r3.Vector{X: 1},
		model.BodySpec{Name: "fore", Mass: 1, Inertia: spatial.Diagonal(0.01, 0.01, 0.01)})
	m, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return m
}

func box(t *testing.T) *model.Model {
	b := model.NewBuilder("box")
	b.AddFloatingBase("root", model.BodySpec{Name: "box", Mass: 2, Inertia: spatial.Diagonal(0.1, 0.2, 0.3)})
	m, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return m
}

func constant(values ...float64) AccelFunc {
	return func(*model.Model) (*mat.VecDense, error) {
		return mat.NewVecDense(len(values), append([]float64(nil), values...)), nil
	}
}

func TestConstantAcceleration(t *testing.T) {
	const (
		dt    = 0.01
		steps = 100
		acc   = 2.0
	)
	n := float64(steps)
	tests := []struct {
		name string
		want float64
	}{
		{"euler", acc * dt * dt * n * (n - 1) / 2},
		{"semi-implicit", acc * dt * dt * n * (n + 1) / 2},
		{"verlet", 0.5 * acc * (dt * n) * (dt * n)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			integ, err := New(tt.name)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			if integ.Name() != tt.name {
				t.Errorf("expected name %s, got %s", tt.name, integ.Name())
			}
			m := arm(t)
			for i := 0; i < steps; i++ {
				if err := integ.Step(m, constant(acc, -acc), dt); err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
			}
			if got := m.Joint(0).Q; math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected q %v, got %v", tt.want, got)
			}
			if got := m.Joint(1).Q; math.Abs(got+tt.want) > 1e-9 {
				t.Errorf("expected q %v, got %v", -tt.want, got)
			}
			if got := m.Joint(0).Qd; math.Abs(got-acc*dt*n) > 1e-9 {
				t.Errorf("expected qd %v, got %v", acc*dt*n, got)
			}
			if !m.KinematicsFresh() {
				t.Error("expected fresh kinematics after a step")
			}
		})
	}
}

func TestFreeFall(t *testing.T) {
	g := NewWithT(t)
	m := box(t)
	dyn := dynamics.New(m)
	fall := func(m *model.Model) (*mat.VecDense, error) {
		if err := dyn.Compute(); err != nil {
			return nil, err
		}
		return dyn.ForwardDynamics(mat.NewVecDense(m.DoF(), nil), nil)
	}

	integ := NewVerlet()
	for i := 0; i < 50; i++ {
		g.Expect(integ.Step(m, fall, 0.01)).To(Succeed())
	}
	j := m.Joint(0)
	g.Expect(j.Pose.Translation.Z).To(BeNumerically("~", 0.5*m.Gravity().Z*0.25, 1e-9))
	g.Expect(j.Twist.Linear.Z).To(BeNumerically("~", m.Gravity().Z*0.5, 1e-9))
	g.Expect(j.Twist.Angular.Norm()).To(BeNumerically("~", 0, 1e-12))
}

func TestFloatingRotation(t *testing.T) {
	g := NewWithT(t)
	m := box(t)
	m.SetFloatingPose(0, spatial.Transform{Rotation: spatial.AxisAngle(r3.Vector{X: 1}, 0.3), Translation: r3.Vector{X: 1}})
	m.SetFloatingTwist(0, spatial.Vector{Angular: r3.Vector{Z: 2}})

	integ := NewSemiImplicit()
	for i := 0; i < 100; i++ {
		g.Expect(integ.Step(m, constant(0, 0, 0, 0, 0, 0), 0.005)).To(Succeed())
	}
	want := spatial.AxisAngle(r3.Vector{Z: 1}, 1).Mul(spatial.AxisAngle(r3.Vector{X: 1}, 0.3))
	got := m.Joint(0).Pose
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			g.Expect(got.Rotation[r][c]).To(BeNumerically("~", want[r][c], 1e-9))
		}
	}
	// the base origin does not move: its own velocity is zero
	g.Expect(got.Translation.X).To(BeNumerically("~", 1, 1e-12))
}

func TestStepRejectsBadAccelerations(t *testing.T) {
	tests := []struct {
		name  string
		accel AccelFunc
		want  error
	}{
		{"nan", constant(math.NaN(), 0), ErrInvalidState},
		{"short", constant(1), model.ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := arm(t)
			if err := NewEuler().Step(m, tt.accel, 0.01); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if q := m.Joint(0).Q; q != 0 {
				t.Errorf("expected untouched state, got q = %v", q)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	want := []string{"euler", "semi-implicit", "verlet"}
	got := Names()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
	if _, err := New("rk4"); !errors.Is(err, ErrUnknownIntegrator) {
		t.Errorf("expected ErrUnknownIntegrator, got %v", err)
	}
}

func BenchmarkSemiImplicit(b *testing.B) {
	bb := model.NewBuilder("bench")
	bb.AddFloatingBase("root", model.BodySpec{Name: "box", Mass: 1, Inertia: spatial.Diagonal(1, 1, 1)})
	m, _ := bb.Build()
	integ := NewSemiImplicit()
	acc := constant(0, 0, 1, 0, 0, -9.81)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = integ.Step(m, acc, 0.001)
	}
}
