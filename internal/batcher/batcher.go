// Package batcher provides a timed batch middleware: it builds
// batches of items until either they reach a maximum size or a
// maximum interval elapses. The coordinator runs one of these per
// client (fanned out by internal/dispatcher) to batch worker sample
// deliveries before folding them into its raw sample buffer, so one
// slow client never holds up another's batch.
//
// Inspired by https://old.reddit.com/r/golang/comments/v9m37a
// "Looking for examples of a "batch release threshold" pattern"
package batcher

import (
	"sync"
	"time"
)

// Params configures a batcher: Threshold is the maximum batch size,
// Interval is the maximum time to wait before flushing a partial
// batch, and Prealloc controls whether batch slices are preallocated
// at Threshold capacity.
type Params struct {
	Threshold int
	Interval  time.Duration
	Prealloc  bool
}

// Start starts a batcher in its own goroutine. Start increments wg,
// and the batcher exits (and decrements wg) after in is closed.
func Start[T any](in <-chan T, out chan<- []T, wg *sync.WaitGroup, params Params) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		Batch(in, out, params)
	}()
}

// Batch batches up items from in and sends the batches on out. It
// exits after in is closed, closing out as well.
//
// If Prealloc is true, each batch slice is allocated with Threshold
// as capacity, trading memory for fewer reallocations when the
// timeout is rarely hit.
func Batch[T any](in <-chan T, out chan<- []T, params Params) {
	batch(in, out, params, true)
}

func batch[T any](in <-chan T, out chan<- []T, params Params, shouldClose bool) {
	var t *time.Timer

	if shouldClose {
		defer close(out)
	}

	for {
		item, ok := <-in
		if !ok {
			return
		}

		var slice []T
		if params.Prealloc {
			slice = make([]T, 1, params.Threshold)
		} else {
			slice = make([]T, 1)
		}
		slice[0] = item

		if t == nil {
			t = time.NewTimer(params.Interval)
		} else {
			t.Reset(params.Interval)
		}

		running := true
		for running {
			select {
			case <-t.C:
				running = false

			case item, ok := <-in:
				if !ok {
					out <- slice
					t.Stop()
					return
				}

				slice = append(slice, item)
				if len(slice) >= params.Threshold {
					if !t.Stop() {
						<-t.C
					}
					running = false
				}
			}
		}

		out <- slice
	}
}
