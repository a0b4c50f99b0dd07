package metrics

import (
	"math"

	"github.com/san-kum/buoysim/internal/sim"
)

// EngineTravel sums the extension moved by every engine, a proxy for pump
// energy spent.
type EngineTravel struct {
	prev   []float64
	travel float64
}

func NewEngineTravel() *EngineTravel { return &EngineTravel{} }

func (e *EngineTravel) Name() string { return "engine_travel" }

func (e *EngineTravel) Observe(_ sim.State, extensions []float64) {
	if len(e.prev) == len(extensions) {
		for i, x := range extensions {
			e.travel += math.Abs(x - e.prev[i])
		}
	}
	e.prev = append(e.prev[:0], extensions...)
}

func (e *EngineTravel) Value() float64 { return e.travel }

func (e *EngineTravel) Reset() {
	e.prev = e.prev[:0]
	e.travel = 0
}
