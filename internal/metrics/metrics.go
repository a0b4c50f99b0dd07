// Package metrics summarises a profiling mission from the simulator's
// per-tick state.
package metrics

import (
	"sort"
	"sync"

	"github.com/san-kum/buoysim/internal/sim"
)

type Metric interface {
	Name() string
	Observe(s sim.State, extensions []float64)
	Value() float64
	Reset()
}

// Set fans simulator ticks out to its metrics. It is safe to read Values
// while the simulator is observing.
type Set struct {
	mu      sync.Mutex
	metrics []Metric
}

func NewSet(m ...Metric) *Set {
	return &Set{metrics: m}
}

// Default is the set reported after every mission.
func Default(targetDepth, descentRate, ascentRate float64) *Set {
	return NewSet(
		NewMaxDepth(),
		NewMaxSpeed("max_descent_speed", 1),
		NewMaxSpeed("max_ascent_speed", -1),
		NewTimeToDepth(targetDepth),
		NewRateCompliance(descentRate, ascentRate),
		NewEngineTravel(),
	)
}

func (s *Set) Add(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func (s *Set) OnStep(st sim.State, extensions []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		m.Observe(st, extensions)
	}
}

func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metrics {
		m.Reset()
	}
}

func (s *Set) Values() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// Names returns metric names in a stable order for printing.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.metrics))
	for _, m := range s.metrics {
		names = append(names, m.Name())
	}
	sort.Strings(names)
	return names
}
