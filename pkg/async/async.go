// Package async runs best-effort background work detached from the request
// lifecycle. The primary consumer is usage accounting: recording an API key's
// last-used timestamp must never block or fail the response it accounts for.
package async

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by AwaitWithTimeout when the work has not finished.
var ErrTimeout = errors.New("async: await timed out")

// Future tracks a detached computation that only reports an error.
type Future struct {
	err  error
	done chan struct{}
}

// Await blocks until the work completes and returns its error.
func (f *Future) Await() error {
	<-f.done
	return f.err
}

// AwaitWithTimeout waits for completion or gives up after the timeout.
func (f *Future) AwaitWithTimeout(timeout time.Duration) error {
	select {
	case <-f.done:
		return f.err
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// Exec runs fn in a new goroutine. The passed context is detached from
// request cancellation but bounded by the given timeout, so background writes
// outlive the response without leaking forever.
func Exec(timeout time.Duration, fn func(ctx context.Context) error) *Future {
	f := &Future{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		f.err = fn(ctx)
	}()

	return f
}

// Fire runs fn like Exec and reports a failure to onErr instead of returning
// a future. Use it when the caller has no interest in awaiting the result.
func Fire(timeout time.Duration, fn func(ctx context.Context) error, onErr func(error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := fn(ctx); err != nil && onErr != nil {
			onErr(err)
		}
	}()
}
