package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/san-kum/buoysim/internal/actuator"
	"github.com/san-kum/buoysim/internal/vehicle"
)

const tol = 1e-12

func newTestSim(t *testing.T, ext float64) (*Simulator, actuator.Bank, *clock.Mock) {
	t.Helper()
	p := vehicle.DefaultParams()
	bank := actuator.NewBank(p.Engines, ext)
	mock := clock.NewMock()
	s, err := New(p, bank, DefaultConfig(), WithClock(mock))
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	return s, bank, mock
}

func TestNewConfigErrors(t *testing.T) {
	p := vehicle.DefaultParams()

	tests := []struct {
		name string
		bank actuator.Bank
		cfg  Config
		want error
	}{
		{"nil bank", nil, DefaultConfig(), vehicle.ErrNoEngines},
		{"nil engine", actuator.Bank{actuator.NewEngine(0.5), nil, actuator.NewEngine(0.5)}, DefaultConfig(), vehicle.ErrNoEngines},
		{"short bank", actuator.NewBank(2, 0.5), DefaultConfig(), vehicle.ErrEngineCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(p, tt.bank, tt.cfg)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := New(p, actuator.NewBank(3, 0.5), Config{}); err == nil {
		t.Error("expected error for zero period")
	}
	if _, err := New(p, actuator.NewBank(3, 0.5), Config{Period: 500 * time.Microsecond}); err == nil {
		t.Error("expected error for a sub-millisecond period")
	}
}

func TestStepClampsAtSurface(t *testing.T) {
	// at half extension the vehicle is lighter than the water it displaces
	s, _, _ := newTestSim(t, 0.5)

	if err := s.Step(0.1); err != nil {
		t.Fatal(err)
	}
	st := s.Snapshot()
	if st.Depth != 0 || st.Velocity != 0 {
		t.Errorf("expected clamp to depth=0 velocity=0, got depth=%g velocity=%g", st.Depth, st.Velocity)
	}
	if st.Acceleration >= 0 {
		t.Errorf("expected upward acceleration, got %g", st.Acceleration)
	}
}

func TestStepExplicitEuler(t *testing.T) {
	s, bank, _ := newTestSim(t, 0.0)
	p := s.Params()

	ext := bank.Extensions(nil)
	mass, err := p.Mass(ext)
	if err != nil {
		t.Fatal(err)
	}
	fg := mass * p.Gravity
	fb := p.WaterDensity * p.Volume() * p.Gravity
	a := (fg - fb) / mass

	dt := 0.1
	v, d := 0.0, 0.0
	for i := 0; i < 5; i++ {
		if err := s.Step(dt); err != nil {
			t.Fatal(err)
		}
		v += a * dt
		d += v * dt

		st := s.Snapshot()
		if math.Abs(st.Acceleration-a) > tol {
			t.Errorf("step %d: acceleration %g, want %g", i, st.Acceleration, a)
		}
		if math.Abs(st.Velocity-v) > tol {
			t.Errorf("step %d: velocity %g, want %g", i, st.Velocity, v)
		}
		if math.Abs(st.Depth-d) > tol {
			t.Errorf("step %d: depth %g, want %g", i, st.Depth, d)
		}
	}
	if s.Snapshot().Tick != 5 {
		t.Errorf("tick = %d, want 5", s.Snapshot().Tick)
	}
}

func TestStepReadsLiveExtensions(t *testing.T) {
	s, bank, _ := newTestSim(t, 0.0)
	if err := s.Step(1); err != nil {
		t.Fatal(err)
	}
	heavy := s.Snapshot().Mass

	for i := 0; i < 10; i++ {
		bank[0].Ascend()
	}
	if err := s.Step(1); err != nil {
		t.Fatal(err)
	}
	if !(s.Snapshot().Mass < heavy) {
		t.Errorf("mass should drop after ascending an engine: %g vs %g", s.Snapshot().Mass, heavy)
	}
}

func TestTickUsesClock(t *testing.T) {
	s, _, mock := newTestSim(t, 0.0)

	mock.Add(250*time.Millisecond + 700*time.Microsecond)
	if err := s.Tick(); err != nil {
		t.Fatal(err)
	}
	st := s.Snapshot()
	if math.Abs(st.Elapsed-0.25) > tol {
		t.Errorf("elapsed = %g, want 0.25 (whole milliseconds)", st.Elapsed)
	}
	if !st.Time.Equal(mock.Now()) {
		t.Errorf("state time %v, want %v", st.Time, mock.Now())
	}
}

func TestQueriesArePure(t *testing.T) {
	s, _, _ := newTestSim(t, 0.5)
	before := s.Snapshot()

	m1, err := s.SystemMass()
	if err != nil {
		t.Fatal(err)
	}
	m2, _ := s.SystemMass()
	d, _ := s.SystemDensity()
	if m1 != m2 || d != m1/s.SystemVolume() {
		t.Errorf("inconsistent queries: %g %g %g", m1, m2, d)
	}
	if s.Snapshot() != before {
		t.Error("queries mutated simulator state")
	}
}

type recordingObserver struct {
	states []State
}

func (r *recordingObserver) OnStep(s State, ext []float64) { r.states = append(r.states, s) }

type memSink struct {
	mu      sync.Mutex
	values  map[string]interface{}
	flushes int
}

func (m *memSink) Record(name string, v interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = map[string]interface{}{}
	}
	m.values[name] = v
}

func (m *memSink) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
}

func TestObserversAndTelemetry(t *testing.T) {
	p := vehicle.DefaultParams()
	sink := &memSink{}
	cfg := DefaultConfig()
	cfg.RecordEvery = 2
	s, err := New(p, actuator.NewBank(3, 0), cfg, WithSink(sink))
	if err != nil {
		t.Fatal(err)
	}
	obs := &recordingObserver{}
	s.AddObserver(obs)

	for i := 0; i < 6; i++ {
		if err := s.Step(0.1); err != nil {
			t.Fatal(err)
		}
	}

	if len(obs.states) != 6 {
		t.Errorf("observer saw %d steps, want 6", len(obs.states))
	}
	if sink.flushes != 3 {
		t.Errorf("flushes = %d, want 3", sink.flushes)
	}
	for _, col := range []string{"time", "depth", "velocity", "acceleration", "density", "mass", "engine_0", "engine_2"} {
		if _, ok := sink.values[col]; !ok {
			t.Errorf("column %q not recorded", col)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, mock := newTestSim(t, 0.0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// let the ticker register before driving the mock clock
	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Tick < 3 && time.Now().Before(deadline) {
		mock.Add(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	if s.Snapshot().Tick < 3 {
		t.Errorf("expected at least 3 ticks, got %d", s.Snapshot().Tick)
	}
}

func TestSnapshotConcurrentWithTicks(t *testing.T) {
	s, bank, _ := newTestSim(t, 0.0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = s.Step(0.1)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			bank[0].Ascend()
			st := s.Snapshot()
			if st.Depth < 0 || !st.IsValid() {
				t.Errorf("inconsistent snapshot %+v", st)
				return
			}
		}
	}()
	wg.Wait()
}

func TestSimError(t *testing.T) {
	err := &SimError{Tick: 7, Elapsed: 0.7, Err: ErrNonFinite}
	if err.Error() != "tick 7 (t=0.7s): sim: non-finite vehicle state" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrNonFinite) {
		t.Error("SimError should unwrap")
	}
}
