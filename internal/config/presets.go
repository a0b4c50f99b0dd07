package config

import (
	"fmt"
	"sort"
	"time"
)

var Presets = map[string]*Config{
	"shallow": preset(func(c *Config) {
		c.Controller.TargetDepth = 10
		c.Mission.Duration = 15 * time.Minute
		c.Mission.StopOnSurface = true
	}),
	"standard": preset(func(c *Config) {
		c.Mission.StopOnSurface = true
	}),
	"deep": preset(func(c *Config) {
		c.Controller.TargetDepth = 150
		c.Controller.DescentRate = 0.2
		c.Controller.AscentRate = 0.2
		c.Controller.CommandedEngines = 3
		c.Mission.Duration = 2 * time.Hour
		c.Mission.StopOnSurface = true
	}),
	"noisy": preset(func(c *Config) {
		c.Sensor = SensorConfig{Kind: "noisy", StdDev: 0.05, Dropout: 0.01, Seed: 1}
		c.Mission.StopOnSurface = true
	}),
	// legacy is the early firmware tuning: one commanded engine, the
	// distance-times-interval speed figure, no stop condition.
	"legacy": preset(func(c *Config) {
		c.Controller.SpeedMetric = "legacy"
		c.Controller.CommandedEngines = 1
	}),
}

func preset(apply func(*Config)) *Config {
	c := DefaultConfig()
	apply(c)
	return c
}

// GetPreset returns a copy of the named preset.
func GetPreset(name string) (*Config, error) {
	p, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	c := *p
	return &c, nil
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
