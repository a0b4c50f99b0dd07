// Package sensor provides depth readings derived from the simulator's true
// state.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/buoysim/internal/sim"
)

var (
	ErrNonFinite = errors.New("sensor: non-finite reading")
	ErrDropout   = errors.New("sensor: no reading")
)

// Depth is the depth sensing capability consumed by the controller.
type Depth interface {
	Read(v sim.Vehicle) (float64, error)
}

// Ideal reports the true depth.
type Ideal struct{}

func (Ideal) Read(v sim.Vehicle) (float64, error) {
	return check(v.Snapshot().Depth)
}

// Noisy adds zero-mean Gaussian noise to the true depth and fails a fraction
// of reads outright.
type Noisy struct {
	mu      sync.Mutex
	noise   distuv.Normal
	dropout distuv.Bernoulli
}

type Config struct {
	// Kind is "ideal" or "noisy".
	Kind    string
	StdDev  float64
	Dropout float64
	Seed    uint64
}

func NewNoisy(stddev, dropout float64, seed uint64) (*Noisy, error) {
	if stddev < 0 || math.IsNaN(stddev) {
		return nil, fmt.Errorf("sensor noise must be non-negative, got %g", stddev)
	}
	if dropout < 0 || dropout >= 1 || math.IsNaN(dropout) {
		return nil, fmt.Errorf("sensor dropout must be in [0,1), got %g", dropout)
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Noisy{
		noise:   distuv.Normal{Mu: 0, Sigma: stddev, Src: src},
		dropout: distuv.Bernoulli{P: dropout, Src: src},
	}, nil
}

func (n *Noisy) Read(v sim.Vehicle) (float64, error) {
	depth := v.Snapshot().Depth

	n.mu.Lock()
	drop := n.dropout.P > 0 && n.dropout.Rand() == 1
	noise := 0.0
	if n.noise.Sigma > 0 {
		noise = n.noise.Rand()
	}
	n.mu.Unlock()

	if drop {
		return 0, ErrDropout
	}
	return check(depth + noise)
}

// New builds the sensor named by cfg.Kind.
func New(cfg Config) (Depth, error) {
	switch cfg.Kind {
	case "", "ideal":
		return Ideal{}, nil
	case "noisy":
		return NewNoisy(cfg.StdDev, cfg.Dropout, cfg.Seed)
	default:
		return nil, fmt.Errorf("unknown sensor: %s", cfg.Kind)
	}
}

func check(d float64) (float64, error) {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, ErrNonFinite
	}
	return d, nil
}
