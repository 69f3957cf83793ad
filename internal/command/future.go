package command

import (
	"context"
	"sync"
)

// Future is a single-assignment Result.
type Future struct {
	once   sync.Once
	done   chan struct{}
	result Result
}

// NewFuture returns an incomplete future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Completed returns a future already holding r.
func Completed(r Result) *Future {
	f := NewFuture()
	f.Complete(r)
	return f
}

// Complete stores r and wakes every waiter. It returns false if the future
// was already complete, in which case r is dropped.
func (f *Future) Complete(r Result) bool {
	completed := false
	f.once.Do(func() {
		f.result = r
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed once the future holds a result.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the stored result and whether the future is complete.
func (f *Future) Result() (Result, bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return Result{}, false
	}
}

// Await blocks until the future completes or ctx is done.
func (f *Future) Await(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
