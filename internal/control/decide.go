package control

import (
	"fmt"
	"math"
)

type Command int

const (
	Hold Command = iota
	Sink
	Ascend
)

func (c Command) String() string {
	switch c {
	case Sink:
		return "sink"
	case Ascend:
		return "ascend"
	default:
		return "hold"
	}
}

// Decide applies the decision table. Only the overspeed flag for the current
// mode matters: descent before the depth is reached, ascent after.
func Decide(depthReached, overspeedDescent, overspeedAscent bool) Command {
	if !depthReached {
		if overspeedDescent {
			return Ascend
		}
		return Sink
	}
	if overspeedAscent {
		return Sink
	}
	return Ascend
}

// SpeedMetric turns a depth change over an interval into the speed compared
// against the target rates.
type SpeedMetric string

const (
	// Rate is |Δdepth| / Δt in m/s.
	Rate SpeedMetric = "rate"
	// Legacy is |Δdepth| · Δt. It is not a rate; recorded missions
	// tuned against it still replay with it.
	Legacy SpeedMetric = "legacy"
)

func ParseSpeedMetric(s string) (SpeedMetric, error) {
	switch SpeedMetric(s) {
	case "", Rate:
		return Rate, nil
	case Legacy:
		return Legacy, nil
	default:
		return "", fmt.Errorf("unknown speed metric: %s", s)
	}
}

func (m SpeedMetric) Speed(delta, seconds float64) float64 {
	d := math.Abs(delta)
	if m == Legacy {
		return d * seconds
	}
	if seconds <= 0 {
		return 0
	}
	return d / seconds
}
