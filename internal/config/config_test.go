package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/san-kum/wholebody/internal/contact"
	"github.com/san-kum/wholebody/internal/control"
	"github.com/san-kum/wholebody/internal/sim"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Robot != DefaultRobot {
		t.Errorf("expected robot %s, got %s", DefaultRobot, cfg.Robot)
	}
	if cfg.Period <= 0 {
		t.Error("period should be positive")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if got := cfg.PeriodDuration(); got != 5*time.Millisecond {
		t.Errorf("expected 5ms, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"zero period", func(c *Config) { c.Period = 0 }},
		{"negative duration", func(c *Config) { c.Duration = -1 }},
		{"zero tikhonov", func(c *Config) { c.Optimizer.Tikhonov = 0 }},
		{"unknown solver", func(c *Config) { c.Solver.Backend = "osqp" }},
		{"unknown integrator", func(c *Config) { c.Integrator = "rk45" }},
		{"unknown fallback", func(c *Config) { c.Fallback = "panic" }},
		{"unknown plant", func(c *Config) { c.Plant = "soft" }},
		{"thin cone", func(c *Config) { c.Contact.BasisPerPoint = 2 }},
		{"negative noise", func(c *Config) { c.VelocityNoise = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.edit(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	g := NewWithT(t)
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := DefaultConfig()
	cfg.Robot = "leg"
	cfg.Fallback = "zero"
	cfg.Behaviors = map[string]control.JointBehavior{"knee": {Mode: control.ModePosition, Kp: 100, Kd: 5}}
	g.Expect(Save(path, cfg)).To(Succeed())

	loaded, err := Load(path)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(loaded).To(Equal(cfg))

	cc, err := loaded.Control()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(cc.Fallback).To(Equal(control.FallbackZero))
	g.Expect(cc.Behaviors["knee"].Mode).To(Equal(control.ModePosition))

	sc, err := loaded.Sim()
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(sc.Plant).To(Equal(sim.Kinematic))
	g.Expect(sc.Period).To(Equal(cc.Period))
}

func TestApplyContact(t *testing.T) {
	g := NewWithT(t)
	cfg := DefaultConfig()
	cfg.Contact.Friction = 0.3
	bodies := []contact.PlaneBody{{Friction: 0.8, BasisPerPoint: 4}}
	cfg.ApplyContact(bodies)
	g.Expect(bodies[0].Friction).To(Equal(0.3))
	g.Expect(bodies[0].BasisPerPoint).To(Equal(4))
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("biped", "dynamic")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Plant != "dynamic" {
		t.Errorf("expected dynamic plant, got %s", cfg.Plant)
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("biped", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "stand")
	if cfg != nil {
		t.Error("expected nil for nonexistent robot")
	}
}

func TestPresetsValidate(t *testing.T) {
	for robot, presets := range Presets {
		for name, cfg := range presets {
			if cfg.Robot != robot {
				t.Errorf("%s/%s: robot %s", robot, name, cfg.Robot)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("%s/%s: %v", robot, name, err)
			}
		}
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("leg")
	if len(presets) != 3 || presets[0] != "coarse" {
		t.Errorf("expected sorted leg presets, got %v", presets)
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent robot")
	}
}
