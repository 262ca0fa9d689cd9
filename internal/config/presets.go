package config

import "sort"

func preset(robot string, edit func(*Config)) *Config {
	c := DefaultConfig()
	c.Robot = robot
	if edit != nil {
		edit(c)
	}
	return c
}

var Presets = map[string]map[string]*Config{
	"leg": {
		"stand": preset("leg", nil),
		"coarse": preset("leg", func(c *Config) {
			c.Period = 0.01
			c.Contact.BasisPerPoint = 3
		}),
		"slippery": preset("leg", func(c *Config) { c.Contact.Friction = 0.2 }),
	},
	"biped": {
		"stand": preset("biped", nil),
		"dynamic": preset("biped", func(c *Config) {
			c.Plant = "dynamic"
			c.Period = 0.002
		}),
		"nlopt": preset("biped", func(c *Config) { c.Solver.Backend = "nlopt" }),
		"noisy": preset("biped", func(c *Config) {
			c.VelocityNoise = 0.01
			c.Fallback = "zero"
		}),
	},
	"biped_arms": {
		"stand": preset("biped_arms", nil),
		"limited": preset("biped_arms", func(c *Config) { c.Optimizer.MaxJointAcceleration = 50 }),
	},
	"random": {
		"chain": preset("random", func(c *Config) {
			c.Duration = 0.5
			c.Seed = 1
		}),
	},
}

func GetPreset(robot, preset string) *Config {
	robotPresets, ok := Presets[robot]
	if !ok {
		return nil
	}
	cfg, ok := robotPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(robot string) []string {
	robotPresets, ok := Presets[robot]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(robotPresets))
	for name := range robotPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
