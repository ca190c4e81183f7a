// Package future provides a minimal generic future used to expose the
// resolver operations in an asynchronous style.
package future

import (
	"context"
)

type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on a new goroutine and returns a future of its result. The
// context is handed to fn so that a cancelled caller can stop the work.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		f.value, f.err = fn(ctx)
	}()

	return f
}

// Resolved returns an already completed future
func Resolved[T any](value T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: value}
	close(f.done)
	return f
}

// Failed returns an already completed future that carries err
func Failed[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future completes or ctx is done. Cancelling ctx only
// stops the wait, the work behind the future keeps running.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then chains fn onto a successful completion of f
func Then[T, U any](ctx context.Context, f *Future[T], fn func(ctx context.Context, value T) (U, error)) *Future[U] {
	return Go(ctx, func(ctx context.Context) (U, error) {
		value, err := f.Await(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(ctx, value)
	})
}
