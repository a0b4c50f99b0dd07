package metrics

import (
	"math"

	"github.com/san-kum/buoysim/internal/sim"
)

type MaxDepth struct {
	max float64
}

func NewMaxDepth() *MaxDepth { return &MaxDepth{} }

func (m *MaxDepth) Name() string { return "max_depth" }

func (m *MaxDepth) Observe(s sim.State, _ []float64) {
	m.max = math.Max(m.max, s.Depth)
}

func (m *MaxDepth) Value() float64 { return m.max }
func (m *MaxDepth) Reset()         { m.max = 0 }

// MaxSpeed tracks the largest velocity in one direction: sign 1 for
// descent, -1 for ascent.
type MaxSpeed struct {
	name string
	sign float64
	max  float64
}

func NewMaxSpeed(name string, sign float64) *MaxSpeed {
	return &MaxSpeed{name: name, sign: sign}
}

func (m *MaxSpeed) Name() string { return m.name }

func (m *MaxSpeed) Observe(s sim.State, _ []float64) {
	m.max = math.Max(m.max, m.sign*s.Velocity)
}

func (m *MaxSpeed) Value() float64 { return m.max }
func (m *MaxSpeed) Reset()         { m.max = 0 }

// TimeToDepth is the simulated time at which depth first exceeded the
// target, or -1 if it never did.
type TimeToDepth struct {
	target  float64
	reached float64
}

func NewTimeToDepth(target float64) *TimeToDepth {
	return &TimeToDepth{target: target, reached: -1}
}

func (m *TimeToDepth) Name() string { return "time_to_target" }

func (m *TimeToDepth) Observe(s sim.State, _ []float64) {
	if m.reached < 0 && s.Depth > m.target {
		m.reached = s.Elapsed
	}
}

func (m *TimeToDepth) Value() float64 { return m.reached }
func (m *TimeToDepth) Reset()         { m.reached = -1 }
