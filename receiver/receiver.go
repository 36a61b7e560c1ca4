package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/infigaming-com/go-receiver/queue"
	"github.com/infigaming-com/go-receiver/receiver/internal/backoff"
	"github.com/infigaming-com/go-receiver/receiver/internal/worker"
)

// Receiver buffers messages pushed by a Transport and hands them to
// consumers. Start and terminate run on a dedicated single worker, so they
// never overlap, and each is submitted at most once per Receiver.
type Receiver struct {
	id        string
	opts      options
	logger    Logger
	hooks     Hooks
	transport Transport
	flow      FlowController

	queue *queue.Queue[*Message]
	pool  *worker.Pool
	guard *shutdownGuard

	lc          lifecycle
	asked       atomic.Bool
	connected   atomic.Bool
	paused      atomic.Bool
	dispatching atomic.Bool
	inflight    atomic.Int32

	submitMu sync.Mutex
	starting operation
	stopping operation

	ctx    context.Context
	cancel context.CancelFunc
}

// Health is a point-in-time snapshot of a Receiver.
type Health struct {
	ID       string `json:"id"`
	State    State  `json:"state"`
	Buffered int    `json:"buffered"`
	Capacity int    `json:"capacity"`
	Closing  bool   `json:"closing"`
	Paused   bool   `json:"paused"`
}

func New(ctx context.Context, transport Transport, opts ...Option) (*Receiver, error) {
	if transport == nil {
		return nil, illegalArgument("transport required")
	}
	base := defaultOptions()
	for _, opt := range opts {
		opt(&base)
	}
	if err := base.validate(); err != nil {
		return nil, err
	}
	id := base.id
	if id == "" {
		var err error
		if id, err = base.idGenerator.New(); err != nil {
			return nil, fmt.Errorf("receiver: generate id: %w", err)
		}
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &Receiver{
		id:        id,
		opts:      base,
		logger:    base.logger,
		hooks:     base.hooks,
		transport: transport,
		ctx:       rctx,
		cancel:    cancel,
	}
	if fc, ok := transport.(FlowController); ok {
		r.flow = fc
	}
	r.lc.onChange = r.stateChanged
	r.queue = queue.New[*Message](base.capacity, queue.WithHooks(queue.Hooks{
		OnFull:      r.onQueueFull,
		OnAvailable: r.onQueueAvailable,
	}))
	// Start and terminate are the only jobs ever submitted, so a queue of two
	// never blocks Submit.
	r.pool = worker.New(1, 2, worker.WithPanicHandler(func(p any) {
		r.logger.Error(r.ctx, "receiver worker panic", "receiver", r.id, "panic", p)
	}))
	r.guard = &shutdownGuard{
		receiverID: id,
		minGrace:   base.minGrace,
		maxGrace:   base.maxGrace,
		queue:      r.queue,
		pending:    func() bool { return r.inflight.Load() > 0 },
		sink:       base.strandedSink,
		logger:     base.logger,
		hooks:      base.hooks,
	}
	return r, nil
}

func (r *Receiver) ID() string { return r.id }

// Start starts the receiver and waits for the outcome. It fails at once with
// ErrIllegalState when termination was already requested. Cancelling ctx
// stops the wait, not the start.
func (r *Receiver) Start(ctx context.Context) error {
	if r.asked.Load() || r.State() >= StateTerminating {
		return illegalState("cannot start receiver %s in state %s", r.id, r.State())
	}
	return r.StartAsync().Await(ctx)
}

// StartAsync submits the start operation once and returns its future to
// every caller. A failed start is not retried.
func (r *Receiver) StartAsync() *Future {
	return r.starting.submit(&r.submitMu, func() *Future {
		if r.asked.Load() || r.State() >= StateTerminating {
			return failedFuture(illegalState("cannot start receiver %s in state %s", r.id, r.State()))
		}
		return r.schedule("start", r.start, func() error {
			return illegalState("start rejected, receiver %s is %s", r.id, r.State())
		})
	})
}

// Terminate stops the receiver, giving consumers up to grace to drain the
// queue. Messages still buffered afterwards are reported through an
// *IncompleteMessageDeliveryError; the receiver ends up terminated either way.
func (r *Receiver) Terminate(ctx context.Context, grace time.Duration) error {
	if err := r.guard.validate(grace); err != nil {
		return err
	}
	if s := r.State(); s >= StateTerminating {
		return illegalState("cannot terminate receiver %s in state %s", r.id, s)
	}
	return r.TerminateAsync(grace).Await(ctx)
}

// TerminateAsync requests termination and returns the terminate future. An
// out-of-range grace period yields an already failed future and changes
// nothing. Only the grace period of the first accepted call is used.
func (r *Receiver) TerminateAsync(grace time.Duration) *Future {
	if err := r.guard.validate(grace); err != nil {
		return failedFuture(err)
	}
	r.asked.Store(true)
	return r.stopping.submit(&r.submitMu, func() *Future {
		return r.schedule("terminate", func(ctx context.Context) error {
			return r.terminate(ctx, grace)
		}, func() error { return nil })
	})
}

// Receive blocks for the next message. It is available while the receiver
// is starting, started or terminating and no handler was registered with
// ReceiveAsync.
func (r *Receiver) Receive(ctx context.Context) (*Message, error) {
	switch s := r.State(); s {
	case StateNotStarted, StateTerminated:
		return nil, illegalState("cannot receive from receiver %s in state %s", r.id, s)
	}
	if r.dispatching.Load() {
		return nil, illegalState("receiver %s delivers to a handler", r.id)
	}
	msg, err := r.queue.Get(ctx)
	if errors.Is(err, queue.ErrClosed) {
		return nil, illegalState("receiver %s is %s", r.id, r.State())
	}
	return msg, err
}

func (r *Receiver) Health() Health {
	return Health{
		ID:       r.id,
		State:    r.State(),
		Buffered: r.queue.Len(),
		Capacity: r.queue.Cap(),
		Closing:  r.asked.Load(),
		Paused:   r.paused.Load(),
	}
}

func (r *Receiver) String() string {
	return fmt.Sprintf("receiver %s state=%s buffered=%d/%d", r.id, r.State(), r.queue.Len(), r.queue.Cap())
}

func (r *Receiver) start(ctx context.Context) error {
	if prev, ok := r.lc.advance(StateStarting, StateNotStarted); !ok {
		return illegalState("cannot start receiver %s in state %s", r.id, prev)
	}
	if err := r.connect(ctx); err != nil {
		r.queue.Close()
		r.lc.advance(StateTerminated, StateStarting)
		r.release()
		return fmt.Errorf("receiver: connect: %w", err)
	}
	r.connected.Store(true)
	r.lc.advance(StateStarted, StateStarting)
	return nil
}

// connect makes the initial connection, retrying per ConnectRetry. It gives
// up early once termination is requested.
func (r *Receiver) connect(ctx context.Context) error {
	policy := r.opts.connectRetry.normalized()
	bo := backoff.New(backoff.Config{
		Initial: policy.InitialBackoff,
		Max:     policy.MaxBackoff,
		Jitter:  policy.Jitter,
	})
	var err error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			if r.asked.Load() {
				return errors.Join(err, illegalState("receiver %s asked to terminate while connecting", r.id))
			}
			if werr := bo.Wait(ctx); werr != nil {
				return errors.Join(err, werr)
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.opts.connectTimeout)
		err = r.transport.Connect(attemptCtx, inbox{r: r})
		cancel()
		if err == nil {
			return nil
		}
		r.logger.Warn(ctx, "receiver connect failed", "receiver", r.id, "attempt", attempt, "error", err)
		if r.hooks.OnConnectError != nil {
			r.hooks.OnConnectError(ctx, r.id, attempt, err)
		}
	}
	return err
}

func (r *Receiver) terminate(ctx context.Context, grace time.Duration) error {
	if err := r.guard.validate(grace); err != nil {
		return err
	}
	prev, ok := r.lc.advance(StateTerminating, StateNotStarted, StateStarted)
	if !ok {
		if prev == StateTerminated {
			return nil
		}
		return illegalState("cannot terminate receiver %s in state %s", r.id, prev)
	}

	var errs []error
	if prev == StateStarted {
		r.guard.awaitDrain(ctx, grace)
	}
	r.guard.wake()
	if r.connected.Load() {
		dctx, cancel := context.WithTimeout(ctx, r.opts.connectTimeout)
		if err := r.transport.Disconnect(dctx); err != nil {
			errs = append(errs, fmt.Errorf("receiver: disconnect: %w", err))
		}
		cancel()
	}
	if err := r.guard.release(ctx); err != nil {
		errs = append(errs, err)
	}
	r.lc.advance(StateTerminated, StateTerminating)
	r.release()
	return errors.Join(errs...)
}

// release is the last step of the worker's final job.
func (r *Receiver) release() {
	r.pool.Close()
	r.cancel()
}

func (r *Receiver) onQueueFull() {
	r.paused.Store(true)
	if r.flow != nil {
		r.flow.Pause()
	}
	if r.hooks.OnQueueFull != nil {
		r.hooks.OnQueueFull(r.id)
	}
}

func (r *Receiver) onQueueAvailable() {
	r.paused.Store(false)
	if r.flow != nil {
		r.flow.Resume()
	}
	if r.hooks.OnQueueAvailable != nil {
		r.hooks.OnQueueAvailable(r.id)
	}
}

type inbox struct {
	r *Receiver
}

func (in inbox) Put(ctx context.Context, msg *Message) error {
	r := in.r
	if msg == nil {
		return illegalArgument("nil message")
	}
	if r.asked.Load() {
		return illegalState("receiver %s is terminating", r.id)
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	if err := r.queue.Put(ctx, msg); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return illegalState("receiver %s is %s", r.id, r.State())
		}
		return err
	}
	if r.hooks.OnReceive != nil {
		r.hooks.OnReceive(ctx, r.id, msg)
	}
	return nil
}

func (in inbox) Closing() bool { return in.r.asked.Load() }
