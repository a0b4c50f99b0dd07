package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/buoysim/internal/actuator"
	"github.com/san-kum/buoysim/internal/control"
	"github.com/san-kum/buoysim/internal/logging"
	"github.com/san-kum/buoysim/internal/mission"
	"github.com/san-kum/buoysim/internal/sensor"
	"github.com/san-kum/buoysim/internal/sim"
	"github.com/san-kum/buoysim/internal/telemetry"
	"github.com/san-kum/buoysim/internal/vehicle"
)

var ErrUnknownPreset = errors.New("config: unknown preset")

const DefaultOutput = "buoysim.csv"

type Config struct {
	Vehicle    vehicle.Params   `yaml:"vehicle"`
	Simulator  SimulatorConfig  `yaml:"simulator"`
	Controller ControllerConfig `yaml:"controller"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Mission    MissionConfig    `yaml:"mission"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

type SimulatorConfig struct {
	Period      time.Duration `yaml:"period"`
	LogEvery    int           `yaml:"log_every"`
	RecordEvery int           `yaml:"record_every"`
}

type ControllerConfig struct {
	Period               time.Duration `yaml:"period"`
	EngineUpdateInterval time.Duration `yaml:"engine_update_interval"`
	TargetDepth          float64       `yaml:"target_depth"`
	DescentRate          float64       `yaml:"descent_rate"`
	AscentRate           float64       `yaml:"ascent_rate"`
	CommandedEngines     int           `yaml:"commanded_engines"`
	SpeedMetric          string        `yaml:"speed_metric"`
}

type SensorConfig struct {
	Kind    string  `yaml:"kind"`
	StdDev  float64 `yaml:"stddev"`
	Dropout float64 `yaml:"dropout"`
	Seed    uint64  `yaml:"seed"`
}

type MissionConfig struct {
	InitialExtension float64 `yaml:"initial_extension"`
	// Duration limits the simulated mission; zero runs until stopped.
	Duration      time.Duration `yaml:"duration"`
	StopOnSurface bool          `yaml:"stop_on_surface"`
}

type TelemetryConfig struct {
	// Output is the CSV path; empty disables recording.
	Output     string `yaml:"output"`
	BufferSize int    `yaml:"buffer_size"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"`
}

func DefaultConfig() *Config {
	s := sim.DefaultConfig()
	c := control.DefaultConfig()
	return &Config{
		Vehicle: vehicle.DefaultParams(),
		Simulator: SimulatorConfig{
			Period:      s.Period,
			LogEvery:    s.LogEvery,
			RecordEvery: s.RecordEvery,
		},
		Controller: ControllerConfig{
			Period:               c.Period,
			EngineUpdateInterval: c.EngineUpdateInterval,
			TargetDepth:          c.TargetDepth,
			DescentRate:          c.DescentRate,
			AscentRate:           c.AscentRate,
			CommandedEngines:     c.CommandedEngines,
			SpeedMetric:          string(c.SpeedMetric),
		},
		Sensor:    SensorConfig{Kind: "ideal"},
		Mission:   MissionConfig{InitialExtension: actuator.DefaultExtension},
		Telemetry: TelemetryConfig{Output: DefaultOutput, BufferSize: telemetry.DefaultBufferSize},
		Log:       LogConfig{Level: "info"},
	}
}

func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver reads path on top of base, so keys missing from the file keep
// base's values.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := *base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if err := c.Vehicle.Validate(); err != nil {
		return err
	}
	if err := c.Sim().Validate(); err != nil {
		return err
	}
	if _, err := control.ParseSpeedMetric(c.Controller.SpeedMetric); err != nil {
		return err
	}
	if err := c.Control().Validate(); err != nil {
		return err
	}
	if c.Controller.CommandedEngines > c.Vehicle.Engines {
		return fmt.Errorf("%d commanded engines but only %d fitted", c.Controller.CommandedEngines, c.Vehicle.Engines)
	}
	if _, err := sensor.New(c.SensorOptions()); err != nil {
		return err
	}
	if c.Mission.InitialExtension < 0 || c.Mission.InitialExtension > 1 {
		return fmt.Errorf("initial extension must be in [0,1], got %g", c.Mission.InitialExtension)
	}
	if c.Mission.Duration < 0 {
		return fmt.Errorf("mission duration must not be negative, got %v", c.Mission.Duration)
	}
	if c.Telemetry.BufferSize < 0 {
		return fmt.Errorf("telemetry buffer size must not be negative, got %d", c.Telemetry.BufferSize)
	}
	return nil
}

func (c *Config) Sim() sim.Config {
	return sim.Config{
		Period:      c.Simulator.Period,
		LogEvery:    c.Simulator.LogEvery,
		RecordEvery: c.Simulator.RecordEvery,
	}
}

func (c *Config) Control() control.Config {
	return control.Config{
		Period:               c.Controller.Period,
		EngineUpdateInterval: c.Controller.EngineUpdateInterval,
		TargetDepth:          c.Controller.TargetDepth,
		DescentRate:          c.Controller.DescentRate,
		AscentRate:           c.Controller.AscentRate,
		CommandedEngines:     c.Controller.CommandedEngines,
		SpeedMetric:          control.SpeedMetric(c.Controller.SpeedMetric),
	}
}

func (c *Config) SensorOptions() sensor.Config {
	return sensor.Config{
		Kind:    c.Sensor.Kind,
		StdDev:  c.Sensor.StdDev,
		Dropout: c.Sensor.Dropout,
		Seed:    c.Sensor.Seed,
	}
}

func (c *Config) MissionOptions() mission.Config {
	return mission.Config{
		Vehicle:          c.Vehicle,
		Sim:              c.Sim(),
		Control:          c.Control(),
		Sensor:           c.SensorOptions(),
		InitialExtension: c.Mission.InitialExtension,
		Duration:         c.Mission.Duration,
		StopOnSurface:    c.Mission.StopOnSurface,
	}
}

func (c *Config) Logging() logging.Options {
	return logging.Options{Level: c.Log.Level, JSON: c.Log.JSON}
}
