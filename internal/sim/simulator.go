package sim

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/san-kum/buoysim/internal/actuator"
	"github.com/san-kum/buoysim/internal/telemetry"
	"github.com/san-kum/buoysim/internal/vehicle"
)

// Simulator integrates the vertical force balance of the profiler. It is the
// only writer of vehicle state and only reads engine extensions. Everything
// except snap is confined to the goroutine calling Tick or Run.
type Simulator struct {
	params  vehicle.Params
	engines actuator.Bank
	cfg     Config
	clock   clock.Clock
	log     zerolog.Logger
	sink    telemetry.Sink

	observers []Observer

	state State
	last  time.Time
	ext   []float64
	cols  []string
	snap  atomic.Pointer[State]
}

type Option func(*Simulator)

func WithClock(c clock.Clock) Option     { return func(s *Simulator) { s.clock = c } }
func WithLogger(l zerolog.Logger) Option { return func(s *Simulator) { s.log = l } }
func WithSink(t telemetry.Sink) Option   { return func(s *Simulator) { s.sink = t } }

// New returns a simulator at rest at the surface. A missing or short engine
// bank is a configuration error.
func New(params vehicle.Params, engines actuator.Bank, cfg Config, opts ...Option) (*Simulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !engines.Complete() {
		return nil, vehicle.ErrNoEngines
	}
	if len(engines) != params.Engines {
		return nil, fmt.Errorf("%w: bank has %d, geometry has %d", vehicle.ErrEngineCount, len(engines), params.Engines)
	}

	s := &Simulator{
		params:  params,
		engines: engines,
		cfg:     cfg,
		clock:   clock.New(),
		log:     zerolog.Nop(),
		sink:    telemetry.Discard{},
	}
	for _, o := range opts {
		o(s)
	}

	s.cols = make([]string, len(engines))
	for i := range s.cols {
		s.cols[i] = "engine_" + strconv.Itoa(i)
	}

	s.last = s.clock.Now()
	s.ext = engines.Extensions(nil)
	if f, err := params.Forces(s.ext); err == nil {
		s.state.Mass = f.Mass
		s.state.Density = f.Mass / params.Volume()
	}
	s.state.Time = s.last
	st := s.state
	s.snap.Store(&st)
	return s, nil
}

func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Params() vehicle.Params { return s.params }

// Snapshot returns the state published by the most recent tick. Safe for
// concurrent use.
func (s *Simulator) Snapshot() State { return *s.snap.Load() }

// SystemMass reports the current mass from live engine extensions without
// touching simulator state.
func (s *Simulator) SystemMass() (float64, error) {
	return s.params.Mass(s.engines.Extensions(nil))
}

func (s *Simulator) SystemVolume() float64 { return s.params.Volume() }

func (s *Simulator) SystemDensity() (float64, error) {
	return s.params.Density(s.engines.Extensions(nil))
}

// Tick advances by the wall time since the previous tick, truncated to whole
// milliseconds.
func (s *Simulator) Tick() error {
	now := s.clock.Now()
	elapsed := now.Sub(s.last)
	s.last = now
	return s.Step(float64(elapsed.Milliseconds()) / 1000)
}

// Step advances the vehicle by dt seconds with one explicit Euler step.
func (s *Simulator) Step(dt float64) error {
	s.ext = s.engines.Extensions(s.ext)
	f, err := s.params.Forces(s.ext)
	if err != nil {
		return &SimError{Tick: s.state.Tick, Elapsed: s.state.Elapsed, Err: err}
	}

	next := s.state
	next.Acceleration = f.Acceleration()
	next.Velocity += next.Acceleration * dt
	next.Depth += next.Velocity * dt

	// resting at the surface; no contact force is modelled
	if next.Depth < 0 {
		next.Depth = 0
		next.Velocity = 0
	}

	next.Mass = f.Mass
	next.Density = f.Mass / s.params.Volume()
	next.Elapsed += dt
	next.Tick++
	next.Time = s.last

	if !next.IsValid() {
		return &SimError{Tick: next.Tick, Elapsed: next.Elapsed, Err: ErrNonFinite}
	}

	s.state = next
	published := next
	s.snap.Store(&published)

	for _, o := range s.observers {
		o.OnStep(next, s.ext)
	}
	s.report(next)
	return nil
}

func (s *Simulator) report(st State) {
	if s.cfg.LogEvery > 0 && st.Tick%uint64(s.cfg.LogEvery) == 0 {
		s.log.Info().
			Uint64("tick", st.Tick).
			Float64("depth", st.Depth).
			Float64("velocity", st.Velocity).
			Float64("acceleration", st.Acceleration).
			Float64("density", st.Density).
			Msg("vehicle state")
	}

	if s.cfg.RecordEvery > 0 && st.Tick%uint64(s.cfg.RecordEvery) == 0 {
		s.sink.Record("time", st.Elapsed)
		s.sink.Record("depth", st.Depth)
		s.sink.Record("velocity", st.Velocity)
		s.sink.Record("acceleration", st.Acceleration)
		s.sink.Record("density", st.Density)
		s.sink.Record("mass", st.Mass)
		for i, e := range s.ext {
			s.sink.Record(s.cols[i], e)
		}
		s.sink.Flush()
	}
}

// Run ticks every cfg.Period until ctx is done. A tick error ends the loop.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.cfg.Period)
	defer ticker.Stop()

	s.log.Debug().Dur("period", s.cfg.Period).Msg("simulator started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(); err != nil {
				s.log.Error().Err(err).Msg("simulator stopped")
				return err
			}
		}
	}
}
