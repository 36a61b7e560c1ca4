package worker

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("worker: pool closed")

// Pool runs submitted jobs on a fixed set of goroutines. With size 1 jobs run
// one after another in submission order.
type Pool struct {
	ch      chan job
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	onPanic func(any)
}

type job struct {
	ctx context.Context
	fn  func(context.Context)
}

type Option func(*Pool)

// WithPanicHandler is called with the recovered value when a job panics.
// The worker goroutine keeps serving jobs afterwards.
func WithPanicHandler(fn func(any)) Option {
	return func(p *Pool) {
		p.onPanic = fn
	}
}

func New(size int, queue int, opts ...Option) *Pool {
	if size <= 0 {
		size = 1
	}
	if queue <= 0 {
		queue = size
	}
	p := &Pool{
		ch: make(chan job, queue),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < size; i++ {
		go func() {
			for j := range p.ch {
				p.run(j)
			}
		}()
	}
	return p
}

func (p *Pool) run(j job) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	j.fn(j.ctx)
}

// Submit enqueues fn. It may be called from inside a running job.
func (p *Pool) Submit(ctx context.Context, fn func(context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case p.ch <- job{ctx: ctx, fn: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs. Jobs already queued still run. Close waits for
// in-progress Submit calls but not for jobs, so a job may close its own pool
// as long as no Submit is blocked on a full queue.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.ch)
	})
}
