package runner

import (
	"context"
	"time"
)

// Loop runs immediately and then on every tick until ctx is done. Runs never
// overlap: a tick that fires during a long run is dropped by the ticker.
func (r *Runner) Loop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if _, err := r.Run(ctx); err != nil {
		r.Log.Warn().Err(err).Msg("run failed, retrying next tick")
	}
}
