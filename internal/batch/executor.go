package batch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of in-flight remote calls during a
// bulk hydration.
const DefaultConcurrency = 10

// Run executes worker over items with at most concurrency calls in flight.
// Workers share a cursor into items, each pulling the next unclaimed index
// until the list is exhausted or a worker fails.
//
// A worker result of (nil, nil) is a skip: the item is omitted, leaving a
// nil hole at its index so completed results keep original list alignment.
// Any worker error is fatal: remaining work is cancelled and the error is
// returned as the sole result of the whole call. Workers are expected to
// convert per-item failures they can tolerate (a since-deleted message)
// into skips before returning; errors they surface (an expired credential)
// invalidate the whole run.
func Run[T, V any](ctx context.Context, items []T, concurrency int, worker func(ctx context.Context, item T) (*V, error)) ([]*V, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	results := make([]*V, len(items))
	if len(items) == 0 {
		return results, nil
	}

	var cursor atomic.Int64
	g, ctx := errgroup.WithContext(ctx)

	workers := min(concurrency, len(items))
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(items) {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				v, err := worker(ctx, items[i])
				if err != nil {
					return err
				}
				results[i] = v
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
