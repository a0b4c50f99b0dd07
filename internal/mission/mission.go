// Package mission wires one profiler together: a single engine bank shared
// by the simulator and the controller, the depth sensor between them, and
// the stop conditions that end a run.
package mission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/buoysim/internal/actuator"
	"github.com/san-kum/buoysim/internal/control"
	"github.com/san-kum/buoysim/internal/logging"
	"github.com/san-kum/buoysim/internal/metrics"
	"github.com/san-kum/buoysim/internal/sensor"
	"github.com/san-kum/buoysim/internal/sim"
	"github.com/san-kum/buoysim/internal/telemetry"
	"github.com/san-kum/buoysim/internal/vehicle"
)

var (
	// ErrUnbounded is returned by RunFast when nothing would end the run.
	ErrUnbounded = errors.New("mission: no duration or stop condition")

	errStopped = errors.New("mission: stop condition met")
)

type Config struct {
	Vehicle          vehicle.Params
	Sim              sim.Config
	Control          control.Config
	Sensor           sensor.Config
	InitialExtension float64
	// Duration limits simulated time; zero means no limit.
	Duration time.Duration
	// StopOnSurface ends the mission once the target was reached and the
	// vehicle is back at the surface.
	StopOnSurface bool
}

func DefaultConfig() Config {
	return Config{
		Vehicle:          vehicle.DefaultParams(),
		Sim:              sim.DefaultConfig(),
		Control:          control.DefaultConfig(),
		Sensor:           sensor.Config{Kind: "ideal"},
		InitialExtension: actuator.DefaultExtension,
	}
}

type Mission struct {
	cfg     Config
	clock   clock.Clock
	log     zerolog.Logger
	engines actuator.Bank
	sim     *sim.Simulator
	ctrl    *control.Controller
	metrics *metrics.Set

	sinceControl time.Duration
	status       control.Status
}

type options struct {
	clock clock.Clock
	log   zerolog.Logger
	sink  telemetry.Sink
}

type Option func(*options)

func WithClock(c clock.Clock) Option     { return func(o *options) { o.clock = c } }
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }
func WithSink(s telemetry.Sink) Option   { return func(o *options) { o.sink = s } }

func New(cfg Config, opts ...Option) (*Mission, error) {
	o := options{clock: clock.New(), log: zerolog.Nop(), sink: telemetry.Discard{}}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.InitialExtension < 0 || cfg.InitialExtension > 1 {
		return nil, fmt.Errorf("initial extension must be in [0,1], got %g", cfg.InitialExtension)
	}
	if err := cfg.Vehicle.Validate(); err != nil {
		return nil, err
	}

	depth, err := sensor.New(cfg.Sensor)
	if err != nil {
		return nil, err
	}

	engines := actuator.NewBank(cfg.Vehicle.Engines, cfg.InitialExtension)
	simulator, err := sim.New(cfg.Vehicle, engines, cfg.Sim,
		sim.WithClock(o.clock),
		sim.WithLogger(logging.Component(o.log, "sim")),
		sim.WithSink(o.sink),
	)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	ctrl, err := control.New(cfg.Control, engines, depth, simulator,
		control.WithClock(o.clock),
		control.WithLogger(logging.Component(o.log, "control")),
		control.WithSink(o.sink),
	)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	set := metrics.Default(cfg.Control.TargetDepth, cfg.Control.DescentRate, cfg.Control.AscentRate)
	simulator.AddObserver(set)

	m := &Mission{
		cfg:     cfg,
		clock:   o.clock,
		log:     logging.Component(o.log, "mission"),
		engines: engines,
		sim:     simulator,
		ctrl:    ctrl,
		metrics: set,
	}
	m.log.Info().
		Int("engines", len(engines)).
		Float64("target", cfg.Control.TargetDepth).
		Float64("neutral_extension", cfg.Vehicle.NeutralExtension()).
		Msg("mission configured")
	return m, nil
}

func (m *Mission) Simulator() *sim.Simulator       { return m.sim }
func (m *Mission) Controller() *control.Controller { return m.ctrl }
func (m *Mission) Engines() actuator.Bank          { return m.engines }
func (m *Mission) Metrics() *metrics.Set           { return m.metrics }

// Status is the outcome of the most recent lockstep control cycle.
func (m *Mission) Status() control.Status { return m.status }

// Run drives the simulator and the controller on their own periods until ctx
// is done, a stop condition is met or the simulator fails. Cancellation and
// stop conditions are not errors.
func (m *Mission) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.sim.Run(ctx) })
	g.Go(func() error { return m.ctrl.Run(ctx) })
	g.Go(func() error { return m.monitor(ctx) })

	err := g.Wait()
	if errors.Is(err, errStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (m *Mission) monitor(ctx context.Context) error {
	if m.cfg.Duration == 0 && !m.cfg.StopOnSurface {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := m.clock.Ticker(m.cfg.Sim.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.stop(m.sim.Snapshot()) {
				return errStopped
			}
		}
	}
}

// stop checks the configured stop conditions against a published state.
func (m *Mission) stop(st sim.State) bool {
	if m.cfg.Duration > 0 && st.Elapsed >= m.cfg.Duration.Seconds() {
		m.log.Info().Float64("elapsed", st.Elapsed).Msg("mission time limit reached")
		return true
	}
	if m.cfg.StopOnSurface && m.ctrl.DepthReached() && st.Depth == 0 {
		m.log.Info().Float64("elapsed", st.Elapsed).Msg("vehicle surfaced")
		return true
	}
	return false
}

// Step advances the mission by one simulator period without consulting the
// clock. The controller runs whenever a full controller period has
// accumulated, so a run is reproducible tick for tick.
func (m *Mission) Step() (sim.State, error) {
	period := m.cfg.Sim.Period
	if err := m.sim.Step(float64(period.Milliseconds()) / 1000); err != nil {
		return sim.State{}, err
	}
	m.sinceControl += period
	if m.sinceControl >= m.cfg.Control.Period {
		m.status = m.ctrl.Update(m.sinceControl)
		m.sinceControl = 0
	}
	return m.sim.Snapshot(), nil
}

// RunFast steps the mission as fast as possible until a stop condition is
// met or ctx is done.
func (m *Mission) RunFast(ctx context.Context) error {
	if m.cfg.Duration == 0 && !m.cfg.StopOnSurface {
		return ErrUnbounded
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		st, err := m.Step()
		if err != nil {
			return err
		}
		if m.stop(st) {
			return nil
		}
	}
}

// Result summarises a finished mission.
type Result struct {
	Final    sim.State
	Reached  bool
	Commands int64
	Metrics  map[string]float64
}

func (m *Mission) Result() Result {
	return Result{
		Final:    m.sim.Snapshot(),
		Reached:  m.ctrl.DepthReached(),
		Commands: m.ctrl.Commands(),
		Metrics:  m.metrics.Values(),
	}
}
