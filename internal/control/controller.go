package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/san-kum/buoysim/internal/actuator"
	"github.com/san-kum/buoysim/internal/logging"
	"github.com/san-kum/buoysim/internal/sensor"
	"github.com/san-kum/buoysim/internal/sim"
	"github.com/san-kum/buoysim/internal/telemetry"
)

var ErrInvalidTarget = errors.New("control: target depth must be finite and non-negative")

type Config struct {
	Period               time.Duration
	EngineUpdateInterval time.Duration
	TargetDepth          float64
	DescentRate          float64
	AscentRate           float64
	// CommandedEngines is how many engines, from the first, receive each
	// command. Defaults to one.
	CommandedEngines int
	SpeedMetric      SpeedMetric
}

func DefaultConfig() Config {
	return Config{
		Period:               500 * time.Millisecond,
		EngineUpdateInterval: 500 * time.Millisecond,
		TargetDepth:          60,
		DescentRate:          0.1,
		AscentRate:           0.1,
		CommandedEngines:     1,
		SpeedMetric:          Rate,
	}
}

func (c Config) Validate() error {
	if c.Period < time.Millisecond {
		return fmt.Errorf("controller period must be at least 1ms, got %v", c.Period)
	}
	if c.EngineUpdateInterval < 0 {
		return fmt.Errorf("engine update interval must not be negative, got %v", c.EngineUpdateInterval)
	}
	if !validDepth(c.TargetDepth) {
		return ErrInvalidTarget
	}
	if !(c.DescentRate > 0) || !(c.AscentRate > 0) {
		return fmt.Errorf("target rates must be positive, got descent=%g ascent=%g", c.DescentRate, c.AscentRate)
	}
	if c.CommandedEngines <= 0 {
		return fmt.Errorf("commanded engines must be positive, got %d", c.CommandedEngines)
	}
	if _, err := ParseSpeedMetric(string(c.SpeedMetric)); err != nil {
		return err
	}
	return nil
}

// Status is the outcome of one control tick.
type Status struct {
	Depth            float64
	Speed            float64
	Sinking          bool
	DepthReached     bool
	OverspeedDescent bool
	OverspeedAscent  bool
	Command          Command
	Err              error
}

// Controller owns the control state. Engine extensions are its only output;
// it never writes vehicle state.
type Controller struct {
	cfg     Config
	engines actuator.Bank
	sensor  sensor.Depth
	vehicle sim.Vehicle
	clock   clock.Clock
	log     zerolog.Logger
	warn    zerolog.Logger
	sink    telemetry.Sink

	target   atomic.Uint64
	reached  atomic.Bool
	commands atomic.Int64

	lastTick     time.Time
	sinceCommand time.Duration
	lastDepth    float64
	sinceSample  time.Duration
}

type Option func(*Controller)

func WithClock(c clock.Clock) Option     { return func(ctl *Controller) { ctl.clock = c } }
func WithLogger(l zerolog.Logger) Option { return func(ctl *Controller) { ctl.log = l } }
func WithSink(s telemetry.Sink) Option   { return func(ctl *Controller) { ctl.sink = s } }

func New(cfg Config, engines actuator.Bank, depth sensor.Depth, v sim.Vehicle, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SpeedMetric == "" {
		cfg.SpeedMetric = Rate
	}
	if !engines.Complete() {
		return nil, errors.New("control: buoyancy engines not initialized")
	}
	if cfg.CommandedEngines > len(engines) {
		return nil, fmt.Errorf("control: %d commanded engines but only %d fitted", cfg.CommandedEngines, len(engines))
	}
	if depth == nil || v == nil {
		return nil, errors.New("control: depth sensor not initialized")
	}

	c := &Controller{
		cfg:     cfg,
		engines: engines,
		sensor:  depth,
		vehicle: v,
		clock:   clock.New(),
		log:     zerolog.Nop(),
		sink:    telemetry.Discard{},
	}
	for _, o := range opts {
		o(c)
	}
	c.warn = logging.Sampled(c.log, 5, 10*time.Second, 100)
	c.target.Store(math.Float64bits(cfg.TargetDepth))
	c.lastTick = c.clock.Now()
	return c, nil
}

func validDepth(d float64) bool {
	return d >= 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}

func (c *Controller) TargetDepth() float64 {
	return math.Float64frombits(c.target.Load())
}

// SetTargetDepth may be called from any goroutine. It does not clear the
// depth-reached latch.
func (c *Controller) SetTargetDepth(d float64) error {
	if !validDepth(d) {
		return ErrInvalidTarget
	}
	c.target.Store(math.Float64bits(d))
	c.log.Info().Float64("target", d).Msg("target depth changed")
	return nil
}

func (c *Controller) DepthReached() bool { return c.reached.Load() }

// Commands is the number of engine commands issued so far.
func (c *Controller) Commands() int64 { return c.commands.Load() }

// Tick runs one control cycle timed by the controller's clock.
func (c *Controller) Tick() Status {
	now := c.clock.Now()
	elapsed := now.Sub(c.lastTick)
	c.lastTick = now
	return c.Update(elapsed)
}

// Update runs one control cycle for the given elapsed time. A failed depth
// read holds the engines and is retried on the next cycle.
func (c *Controller) Update(elapsed time.Duration) Status {
	c.sinceCommand += elapsed
	c.sinceSample += elapsed

	depth, err := c.sensor.Read(c.vehicle)
	if err != nil {
		c.warn.Warn().Err(err).Msg("depth read failed, holding engines")
		return Status{Depth: c.lastDepth, DepthReached: c.reached.Load(), Command: Hold, Err: err}
	}

	seconds := float64(c.sinceSample.Milliseconds()) / 1000
	delta := depth - c.lastDepth
	st := Status{
		Depth:   depth,
		Speed:   c.cfg.SpeedMetric.Speed(delta, seconds),
		Sinking: delta > 0,
	}
	c.lastDepth = depth
	c.sinceSample = 0

	if !c.reached.Load() && depth > c.TargetDepth() {
		c.reached.Store(true)
		c.log.Info().Float64("depth", depth).Float64("target", c.TargetDepth()).Msg("target depth reached")
	}
	st.DepthReached = c.reached.Load()
	st.OverspeedDescent = st.Speed > c.cfg.DescentRate && st.Sinking
	st.OverspeedAscent = st.Speed > c.cfg.AscentRate && !st.Sinking

	st.Command = Hold
	if c.sinceCommand >= c.cfg.EngineUpdateInterval {
		st.Command = Decide(st.DepthReached, st.OverspeedDescent, st.OverspeedAscent)
		c.apply(st.Command)
		c.sinceCommand = 0
		c.log.Debug().
			Stringer("command", st.Command).
			Float64("depth", depth).
			Float64("speed", st.Speed).
			Bool("reached", st.DepthReached).
			Msg("engine command")
	}

	c.sink.Record("target_depth", c.TargetDepth())
	c.sink.Record("depth_reached", st.DepthReached)
	c.sink.Record("speed", st.Speed)
	c.sink.Record("command", st.Command)
	return st
}

func (c *Controller) apply(cmd Command) {
	for i := 0; i < c.cfg.CommandedEngines; i++ {
		switch cmd {
		case Sink:
			c.engines[i].Sink()
		case Ascend:
			c.engines[i].Ascend()
		}
	}
	c.commands.Add(1)
}

// Run ticks every cfg.Period until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.Ticker(c.cfg.Period)
	defer ticker.Stop()

	c.log.Debug().Dur("period", c.cfg.Period).Float64("target", c.TargetDepth()).Msg("controller started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Tick()
		}
	}
}
