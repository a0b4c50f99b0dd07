package sim

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNonFinite indicates the integration produced NaN or Inf.
var ErrNonFinite = errors.New("sim: non-finite vehicle state")

// State is one consistent snapshot of the vehicle's true motion. Depth is
// never negative; velocity and acceleration are positive when sinking.
type State struct {
	Depth        float64
	Velocity     float64
	Acceleration float64
	Mass         float64
	Density      float64
	// Elapsed is integrated simulation time in seconds.
	Elapsed float64
	Tick    uint64
	Time    time.Time
}

func (s State) IsValid() bool {
	for _, v := range []float64{s.Depth, s.Velocity, s.Acceleration, s.Mass} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Vehicle is read-only access to the simulator's latest state.
type Vehicle interface {
	Snapshot() State
}

// Observer is called on the simulator goroutine after every tick. The
// extensions slice is reused between ticks; copy it to keep it.
type Observer interface {
	OnStep(s State, extensions []float64)
}

type Config struct {
	Period time.Duration
	// LogEvery emits a diagnostic log entry every n ticks; 0 disables it.
	LogEvery int
	// RecordEvery appends a telemetry row every n ticks; 0 disables it.
	RecordEvery int
}

func DefaultConfig() Config {
	return Config{
		Period:      100 * time.Millisecond,
		LogEvery:    100,
		RecordEvery: 10,
	}
}

func (c Config) Validate() error {
	// steps advance in whole milliseconds
	if c.Period < time.Millisecond {
		return fmt.Errorf("simulator period must be at least 1ms, got %v", c.Period)
	}
	if c.LogEvery < 0 || c.RecordEvery < 0 {
		return fmt.Errorf("report intervals must not be negative")
	}
	return nil
}

type SimError struct {
	Tick    uint64
	Elapsed float64
	Err     error
}

func (e *SimError) Error() string {
	return fmt.Sprintf("tick %d (t=%.1fs): %v", e.Tick, e.Elapsed, e.Err)
}

func (e *SimError) Unwrap() error { return e.Err }
