package experiment

import (
	"context"
	"errors"
	"testing"

	"gonum.org/v1/gonum/floats"

	. "github.com/onsi/gomega"

	"github.com/san-kum/wholebody/internal/config"
	"github.com/san-kum/wholebody/internal/qp"
)

func TestRegistry(t *testing.T) {
	g := NewWithT(t)
	r := NewRegistry()
	g.Expect(r.ListRobots()).To(Equal([]string{"biped", "biped_arms", "leg", "random"}))
	g.Expect(r.ListSolvers()).To(ContainElement(qp.ActiveSetName))

	_, err := r.GetRobot("quadruped", 0)
	g.Expect(errors.Is(err, ErrUnknownRobot)).To(BeTrue())

	a, err := r.GetRobot("random", 5)
	g.Expect(err).NotTo(HaveOccurred())
	b, err := r.GetRobot("random", 5)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(a.Model.Snapshot()).To(Equal(b.Model.Snapshot()))
}

func TestCheck(t *testing.T) {
	for _, robot := range []string{"leg", "biped"} {
		t.Run(robot, func(t *testing.T) {
			g := NewWithT(t)
			cfg := config.DefaultConfig()
			cfg.Robot = robot

			report, err := New(cfg, NewRegistry(), nil).Check()
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(report.Status).To(Equal(qp.Optimal))
			g.Expect(report.MaxTorqueError).To(BeNumerically("<", 1e-6))
			g.Expect(report.FloatingResidual).To(BeNumerically("<", 1e-6))
			g.Expect(report.Dropped).NotTo(HaveOccurred())
		})
	}
}

func TestExperimentRun(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.Robot = "leg"
	cfg.Duration = 0.05
	e := New(cfg, NewRegistry(), nil)

	_, err := e.Run(context.Background())
	g.Expect(errors.Is(err, ErrNotSetup)).To(BeTrue())

	g.Expect(e.Setup()).To(Succeed())
	result, err := e.Run(context.Background())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(result.StepsTaken).To(Equal(10))
	g.Expect(result.Metrics).To(HaveKey("torque_effort"))
	g.Expect(e.Simulator()).NotTo(BeNil())
}

func TestSetupRejectsBadConfig(t *testing.T) {
	g := NewWithT(t)
	cfg := config.DefaultConfig()
	cfg.Robot = "quadruped"
	g.Expect(errors.Is(New(cfg, NewRegistry(), nil).Setup(), ErrUnknownRobot)).To(BeTrue())

	cfg = config.DefaultConfig()
	cfg.Period = 0
	g.Expect(errors.Is(New(cfg, NewRegistry(), nil).Setup(), config.ErrInvalid)).To(BeTrue())
}

func TestLegStandHoldsHeight(t *testing.T) {
	for _, plant := range []string{"kinematic", "dynamic"} {
		t.Run(plant, func(t *testing.T) {
			cfg := *config.GetPreset("leg", "stand")
			cfg.Plant = plant
			cfg.Duration = 1
			e := New(&cfg, NewRegistry(), nil)
			if err := e.Setup(); err != nil {
				t.Fatalf("setup: %v", err)
			}
			result, err := e.Run(context.Background())
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if result.StepsTaken != 200 {
				t.Errorf("expected 200 steps, got %d", result.StepsTaken)
			}
			if result.Failures != 0 || result.Halted {
				t.Errorf("expected no failed ticks, got %d (halted %v): %v", result.Failures, result.Halted, result.Errors)
			}
			if drift := floats.Max(result.BaseHeight) - floats.Min(result.BaseHeight); drift > 1e-3 {
				t.Errorf("expected steady base height, drifted %v", drift)
			}
		})
	}
}
