// Package parallel provides higher-order functions that run a map
// over a slice with bounded concurrency. The aggregator uses
// MapBoundedErrgroup to post-process per-task sample groups
// concurrently, and the coordinator uses MapBoundedSema to fan out
// worker actor placement across hosts at startup with a hard
// concurrency cap independent of worker count.
//
// Context cancellation: if the input context is canceled, both
// functions stop starting new work, wait for in-flight workers to
// exit, then return the context error.
package parallel

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// MapBoundedSema maps list to []R using f, running at most inflight
// calls to f concurrently via a weighted semaphore.
func MapBoundedSema[S ~[]T, T, R any](
	ctx context.Context, list S, f func(int, T) R, inflight int,
) (result []R, err error) {
	result = make([]R, len(list))

	sema := semaphore.NewWeighted(int64(inflight))
	var wg sync.WaitGroup

	for i, v := range list {
		if err = sema.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(i int, v T) {
			defer wg.Done()
			defer sema.Release(1)
			result[i] = f(i, v)
		}(i, v)
	}

	wg.Wait()
	return
}

// MapBoundedErrgroup maps list to []R using f, running at most
// workers calls to f concurrently, coordinated by an errgroup.Group.
func MapBoundedErrgroup[S ~[]T, T, R any](
	ctx context.Context, list S, f func(int, T) R, workers int,
) (result []R, err error) {
	result = make([]R, len(list))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range list {
		i := i
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result[i] = f(i, list[i])
			return ctx.Err()
		})
	}

	return result, g.Wait()
}
