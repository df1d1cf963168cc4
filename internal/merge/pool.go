package merge

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEach calls fn for indexes 0..n-1 with at most jobs calls in flight.
// fn reports its own failures; forEach only returns on cancellation.
func forEach(ctx context.Context, jobs, n int, fn func(ctx context.Context, i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, jobs))

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, i)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
