package mission

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Sweep runs one lockstep mission per config concurrently. Results are in
// config order. Missions share the logger but record no telemetry.
func Sweep(ctx context.Context, cfgs []Config, log zerolog.Logger) ([]Result, error) {
	results := make([]Result, len(cfgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, cfg := range cfgs {
		g.Go(func() error {
			m, err := New(cfg, WithLogger(log.With().Int("run", i).Logger()))
			if err != nil {
				return err
			}
			if err := m.RunFast(ctx); err != nil {
				return err
			}
			results[i] = m.Result()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
