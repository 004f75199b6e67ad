// Package fanout runs one unit of work per input item and joins the results
// in input order. Both credential exchange paths use it for their concurrent
// per-role and per-account requests.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Map runs fn once per item concurrently and returns the results in the same
// order as items. The first error cancels the shared context and is returned
// alone, results from the remaining items are discarded.
func Map[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	g, ctx := errgroup.WithContext(ctx)
	out := make([]R, len(items))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
