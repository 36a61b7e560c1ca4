// Package queue provides a bounded FIFO buffer that reports capacity
// crossings to hooks and lets shutdown code wait for it to drain.
//
// Hooks run synchronously while the queue lock is held by the Put/Get that
// caused the crossing. They must be cheap, must not block and must not call
// back into the same queue. OnFull fires once per transition from below
// capacity to capacity and OnAvailable once per transition back; a caller that
// needs to know whether it is currently paused has to track that itself.
package queue

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

var ErrClosed = errors.New("queue: closed")

type Hooks struct {
	OnFull      func()
	OnAvailable func()
}

type Option func(*options)

type options struct {
	hooks Hooks
}

func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	empty    *sync.Cond
	items    *list.List
	capacity int
	hooks    Hooks
	closed   bool
}

// New creates a queue holding at most capacity items. Zero or a negative
// capacity means unbounded: Put never blocks and hooks never fire.
func New[T any](capacity int, opts ...Option) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	q := &Queue[T]{
		items:    list.New(),
		capacity: capacity,
		hooks:    o.hooks,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	q.empty = sync.NewCond(&q.mu)
	return q
}

// SetHooks replaces the capacity hooks.
func (q *Queue[T]) SetHooks(h Hooks) {
	q.mu.Lock()
	q.hooks = h
	q.mu.Unlock()
}

// Put appends item, blocking while the queue is full. It returns ctx.Err()
// if ctx ends first and ErrClosed once the queue is closed.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed && q.fullLocked() {
		stop := context.AfterFunc(ctx, func() { q.broadcast(q.notFull) })
		defer stop()
	}
	for !q.closed && q.fullLocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}

	q.items.PushBack(item)
	if q.capacity > 0 && q.items.Len() == q.capacity && q.hooks.OnFull != nil {
		q.hooks.OnFull()
	}
	q.notEmpty.Broadcast()
	return nil
}

// Get removes and returns the oldest item, blocking while the queue is empty.
// A closed queue yields ErrClosed even when items remain; those are only
// reachable through Drain.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	return q.GetFunc(ctx, nil)
}

// GetFunc is Get with claim run on the popped item before the queue lock is
// released, so WaitForEmpty never sees the queue empty while the item is
// between the queue and its consumer. claim has the same restrictions as
// the hooks.
func (q *Queue[T]) GetFunc(ctx context.Context, claim func(T)) (T, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed && q.items.Len() == 0 {
		stop := context.AfterFunc(ctx, func() { q.broadcast(q.notEmpty) })
		defer stop()
	}
	for !q.closed && q.items.Len() == 0 {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.notEmpty.Wait()
	}
	if q.closed {
		return zero, ErrClosed
	}
	item := q.popLocked()
	if claim != nil {
		claim(item)
	}
	return item, nil
}

func (q *Queue[T]) TryGet() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.items.Len() == 0 {
		return zero, false
	}
	return q.popLocked(), true
}

func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.items.Front()
	if front == nil {
		return zero, false
	}
	return front.Value.(T), true
}

// WaitForEmpty blocks until the queue is empty and pending reports false, or
// until timeout elapses. A negative timeout waits without bound. It returns
// the unused part of the timeout and whether the condition was met.
//
// pending runs under the queue lock on every wake-up. It must be cheap, free
// of side effects and must not touch the queue. Callers whose pending state
// changes outside the queue call Notify to have it re-evaluated.
func (q *Queue[T]) WaitForEmpty(timeout time.Duration, pending func() bool) (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	bounded := timeout >= 0
	deadline := time.Now().Add(timeout)
	remaining := func() time.Duration {
		if !bounded {
			return timeout
		}
		if left := time.Until(deadline); left > 0 {
			return left
		}
		return 0
	}
	done := func() bool {
		return q.items.Len() == 0 && (pending == nil || !pending())
	}

	if bounded && !done() {
		timer := time.AfterFunc(timeout, func() { q.broadcast(q.empty) })
		defer timer.Stop()
	}
	for !done() {
		if q.closed && q.items.Len() > 0 {
			return remaining(), false
		}
		if bounded && !time.Now().Before(deadline) {
			return 0, false
		}
		q.empty.Wait()
	}
	return remaining(), true
}

// Notify wakes WaitForEmpty callers so they re-check their pending predicate.
func (q *Queue[T]) Notify() {
	q.broadcast(q.empty)
}

// Close wakes every blocked Put, Get and WaitForEmpty. Subsequent Put and Get
// calls fail with ErrClosed. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.empty.Broadcast()
}

// Drain removes and returns every buffered item in FIFO order. It works on a
// closed queue as well.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.items.Len()
	if n == 0 {
		return nil
	}
	wasFull := q.fullLocked()
	out := make([]T, 0, n)
	for e := q.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(T))
	}
	q.items.Init()
	if wasFull && q.hooks.OnAvailable != nil {
		q.hooks.OnAvailable()
	}
	q.notFull.Broadcast()
	q.empty.Broadcast()
	return out
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *Queue[T]) Cap() int {
	return q.capacity
}

func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) popLocked() T {
	wasFull := q.fullLocked()
	front := q.items.Front()
	q.items.Remove(front)
	if wasFull && !q.fullLocked() && q.hooks.OnAvailable != nil {
		q.hooks.OnAvailable()
	}
	q.notFull.Broadcast()
	if q.items.Len() == 0 {
		q.empty.Broadcast()
	}
	return front.Value.(T)
}

func (q *Queue[T]) fullLocked() bool {
	return q.capacity > 0 && q.items.Len() >= q.capacity
}

func (q *Queue[T]) broadcast(c *sync.Cond) {
	q.mu.Lock()
	c.Broadcast()
	q.mu.Unlock()
}
