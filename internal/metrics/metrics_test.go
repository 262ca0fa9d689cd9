package metrics

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/model"
	"github.com/san-kum/wholebody/internal/spatial"
)

func base(tilt float64) []model.JointState {
	return []model.JointState{{
		Name: "root", Kind: model.Floating,
		Pose: spatial.Transform{Rotation: spatial.AxisAngle(r3.Vector{X: 1}, tilt)},
	}}
}

func TestMetrics(t *testing.T) {
	ticks := []control.Telemetry{
		{Torques: []float64{1, -2}, Iterations: 4, ContactWrenches: map[string]spatial.Vector{
			"l": {Linear: r3.Vector{Z: 100}}, "r": {Linear: r3.Vector{Z: 50}},
		}, Joints: base(0.1)},
		{Torques: []float64{-3, 0}, Iterations: 2, Fallback: true, Overrun: true, Joints: base(1.0)},
	}
	tests := []struct {
		metric Metric
		want   float64
	}{
		{NewTorqueEffort(), 3},
		{NewPeakTorque(), 3},
		{NewIterations(), 3},
		{NewContactForce(), 75},
		{NewFailures(), 1},
		{NewOverruns(), 1},
		{NewStability(0.5), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.metric.Name(), func(t *testing.T) {
			for _, tick := range ticks {
				tt.metric.Observe(tick)
			}
			if got := tt.metric.Value(); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestReset(t *testing.T) {
	for _, m := range Standard() {
		m.Observe(control.Telemetry{Torques: []float64{5}, Iterations: 3, Fallback: true, Overrun: true, Joints: base(2)})
		m.Reset()
		want := 0.0
		if m.Name() == "stability" {
			want = 1
		}
		if got := m.Value(); got != want {
			t.Errorf("%s: expected %v after reset, got %v", m.Name(), want, got)
		}
	}
}
