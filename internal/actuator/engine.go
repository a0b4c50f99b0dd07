// Package actuator models the piston-driven buoyancy engines of the profiler.
//
// An [Engine] holds an extension coefficient: 1 is an air-filled chamber
// (maximum displacement), 0 a flooded one. The controller is the only writer;
// the simulator reads extensions to compute mass. Reads and writes are atomic
// per engine, so a reader never observes a partial update.
package actuator

import (
	"math"
	"sync/atomic"
)

const (
	// ExtensionDelta is the fixed step applied by Sink and Ascend.
	ExtensionDelta = 0.01

	DefaultExtension = 0.5
)

type Engine struct {
	bits atomic.Uint64
}

func NewEngine(extension float64) *Engine {
	e := &Engine{}
	e.bits.Store(math.Float64bits(extension))
	return e
}

func (e *Engine) Extension() float64 {
	return math.Float64frombits(e.bits.Load())
}

// Sink floods the chamber by one step. It is a no-op once the extension is
// below ExtensionDelta, so the value never goes negative.
func (e *Engine) Sink() {
	e.update(func(x float64) (float64, bool) {
		if x >= ExtensionDelta {
			return x - ExtensionDelta, true
		}
		return x, false
	})
}

// Ascend empties the chamber by one step. The bound is checked before the
// increment, so the value may settle one step above 1.0 (at most
// 1+ExtensionDelta); further calls are no-ops.
func (e *Engine) Ascend() {
	e.update(func(x float64) (float64, bool) {
		if x <= 1.0 {
			return x + ExtensionDelta, true
		}
		return x, false
	})
}

func (e *Engine) update(fn func(float64) (float64, bool)) {
	for {
		old := e.bits.Load()
		next, ok := fn(math.Float64frombits(old))
		if !ok {
			return
		}
		if e.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

var nan = math.NaN()
