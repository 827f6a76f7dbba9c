package coalescer

import (
	"context"
	"sync"
)

// Waiter is the handle one caller holds for one request. It settles exactly once, either with
// the result of the batch the request was part of or with the error that batch failed with.
type Waiter[R any] struct {
	once   sync.Once
	done   chan struct{}
	result R
	err    error
}

func newWaiter[R any]() *Waiter[R] {
	return &Waiter[R]{done: make(chan struct{})}
}

func settledWaiter[R any](result R, err error) *Waiter[R] {
	w := newWaiter[R]()
	w.settle(result, err)
	return w
}

// settle returns false if the waiter was already settled.
func (w *Waiter[R]) settle(result R, err error) (settled bool) {
	w.once.Do(func() {
		w.result = result
		w.err = err
		close(w.done)
		settled = true
	})
	return
}

// Done is closed once the waiter is settled.
func (w *Waiter[R]) Done() <-chan struct{} {
	return w.done
}

// Result returns what the waiter was settled with. It should only be called after Done() is
// closed; before that it returns the zero value and a nil error.
func (w *Waiter[R]) Result() (R, error) {
	select {
	case <-w.done:
		return w.result, w.err
	default:
		var zero R
		return zero, nil
	}
}

// Wait blocks until the waiter is settled or the context is done. Giving up on the wait does
// not remove the key from its batch.
func (w *Waiter[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-w.done:
		return w.result, w.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}
