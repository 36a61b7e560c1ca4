package receiver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Future is the eventual result of a start or terminate operation. Any number
// of goroutines may wait on it.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func failedFuture(err error) *Future {
	f := newFuture()
	f.complete(err)
	return f
}

func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the operation has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the operation finishes or ctx ends. Giving up on the
// wait does not cancel the operation.
func (f *Future) Await(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) AwaitWithTimeout(timeout time.Duration) error {
	tmr := time.NewTimer(timeout)
	defer tmr.Stop()
	select {
	case <-f.done:
		return f.err
	case <-tmr.C:
		return ErrAwaitTimeout
	}
}

func (f *Future) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns the operation error, or nil while it is still running.
func (f *Future) Err() error {
	if !f.IsComplete() {
		return nil
	}
	return f.err
}

// operation caches the single future of one kind of lifecycle operation.
type operation struct {
	future atomic.Pointer[Future]
}

// submit returns the cached future or, on first use, the one produced by
// schedule. The unlocked load is the fast path; mu serialises first
// submission and the second load catches a racer that got there first.
func (o *operation) submit(mu *sync.Mutex, schedule func() *Future) *Future {
	if f := o.future.Load(); f != nil {
		return f
	}
	mu.Lock()
	defer mu.Unlock()
	if f := o.future.Load(); f != nil {
		return f
	}
	f := schedule()
	o.future.Store(f)
	return f
}

// schedule runs fn on the receiver's lifecycle worker and returns its future.
// The worker only stops accepting jobs once the receiver is terminated; the
// future then carries rejected().
func (r *Receiver) schedule(name string, fn func(context.Context) error, rejected func() error) *Future {
	f := newFuture()
	err := r.pool.Submit(context.Background(), func(context.Context) {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error(r.ctx, "receiver operation panic", "receiver", r.id, "operation", name, "panic", p)
				f.complete(illegalState("%s panicked: %v", name, p))
			}
		}()
		f.complete(fn(r.ctx))
	})
	if err != nil {
		f.complete(rejected())
	}
	return f
}
