package metrics

import "github.com/san-kum/buoysim/internal/sim"

// RateCompliance is the fraction of submerged ticks spent within the target
// descent and ascent rates.
type RateCompliance struct {
	descent    float64
	ascent     float64
	violations int
	samples    int
}

func NewRateCompliance(descent, ascent float64) *RateCompliance {
	return &RateCompliance{descent: descent, ascent: ascent}
}

func (r *RateCompliance) Name() string { return "rate_compliance" }

func (r *RateCompliance) Observe(s sim.State, _ []float64) {
	if s.Depth == 0 {
		return
	}
	r.samples++
	if s.Velocity > r.descent || -s.Velocity > r.ascent {
		r.violations++
	}
}

func (r *RateCompliance) Value() float64 {
	if r.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(r.violations)/float64(r.samples)
}

func (r *RateCompliance) Reset() {
	r.violations = 0
	r.samples = 0
}
