package verification

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// pool bounds concurrent CPU-bound work across cycles
type pool struct {
	sem *semaphore.Weighted
}

func newPool(workers int) *pool {
	if workers < 1 {
		workers = 1
	}
	return &pool{sem: semaphore.NewWeighted(int64(workers))}
}

// panicError carries a panic recovered on a worker
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.value)
}

type result[T any] struct {
	value T
	err   error
}

// offload runs fn on a worker slot and waits for it or for ctx. A cancelled caller stops
// waiting at once; the worker finishes in the background and then frees its slot.
func offload[T any](ctx context.Context, p *pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: &panicError{value: r}}
			}
		}()
		v, err := fn()
		done <- result[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
