// Package optim tunes mission parameters by exhaustive search.
package optim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/buoysim/internal/mission"
)

// Apply sets one named parameter on a mission config.
type Apply func(cfg *mission.Config, value float64)

// Params maps tunable names to their setters.
var Params = map[string]Apply{
	"descent_rate":      func(c *mission.Config, v float64) { c.Control.DescentRate = v },
	"ascent_rate":       func(c *mission.Config, v float64) { c.Control.AscentRate = v },
	"commanded_engines": func(c *mission.Config, v float64) { c.Control.CommandedEngines = int(v) },
	"initial_extension": func(c *mission.Config, v float64) { c.InitialExtension = v },
}

// Score ranks a finished mission; lower is better.
type Score func(mission.Result) float64

// MetricScore scores by a named metric. Missions that never reached the
// target score +Inf.
func MetricScore(name string, maximize bool) Score {
	return func(r mission.Result) float64 {
		if !r.Reached {
			return math.Inf(1)
		}
		v := r.Metrics[name]
		if maximize {
			return -v
		}
		return v
	}
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d params but %d ranges", len(params), len(ranges))
	}
	for _, p := range params {
		if _, ok := Params[p]; !ok {
			return nil, fmt.Errorf("optim: unknown parameter %q (have %v)", p, names())
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

func names() []string {
	out := make([]string, 0, len(Params))
	for n := range Params {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Search runs one lockstep mission per grid point, starting each from base,
// and returns the best point with its score. base must bound the run with a
// duration or a surface stop. Points whose config is invalid are skipped.
func (g *GridSearch) Search(ctx context.Context, base mission.Config, score Score) (map[string]float64, float64, error) {
	best := math.Inf(1)
	var bestParams map[string]float64

	err := g.searchRecursive(ctx, 0, make(map[string]float64), base, score, &best, &bestParams)
	if err != nil {
		return nil, 0, err
	}
	if bestParams == nil {
		return nil, best, fmt.Errorf("optim: no grid point reached the target")
	}
	return bestParams, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	base mission.Config,
	score Score,
	best *float64,
	bestParams *map[string]float64,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		cfg := base
		for name, v := range current {
			Params[name](&cfg, v)
		}

		m, err := mission.New(cfg)
		if err != nil {
			return nil
		}
		if err := m.RunFast(ctx); err != nil {
			return err
		}

		val := score(m.Result())
		if val < *best {
			*best = val
			*bestParams = make(map[string]float64)
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, base, score, best, bestParams); err != nil {
			return err
		}
	}
	return nil
}
