package receiver

import (
	"context"
	"fmt"
)

// ReceiveAsync hands every message to h on a dedicated goroutine, one at a
// time and in queue order. Only one handler can be registered per receiver,
// and Receive is unavailable once it is. A running handler counts as
// outstanding work, so Terminate waits for it within the grace period.
func (r *Receiver) ReceiveAsync(h Handler) error {
	if h == nil {
		return illegalArgument("handler required")
	}
	if r.asked.Load() || r.State() >= StateTerminating {
		return illegalState("cannot receive from receiver %s in state %s", r.id, r.State())
	}
	if !r.dispatching.CompareAndSwap(false, true) {
		return illegalState("receiver %s already has a handler", r.id)
	}
	go r.dispatch(h)
	return nil
}

func (r *Receiver) dispatch(h Handler) {
	for {
		msg, err := r.queue.GetFunc(r.ctx, func(*Message) { r.inflight.Add(1) })
		if err != nil {
			r.logger.Debug(r.ctx, "receiver dispatcher stopped", "receiver", r.id, "reason", err.Error())
			return
		}
		r.handle(r.ctx, h, msg)
		r.inflight.Add(-1)
		r.queue.Notify()
	}
}

func (r *Receiver) handle(ctx context.Context, h Handler, msg *Message) {
	defer func() {
		if p := recover(); p != nil {
			r.handlerFailed(ctx, msg, fmt.Errorf("receiver: handler panic: %v", p))
		}
	}()
	if err := h.Handle(ctx, msg); err != nil {
		r.handlerFailed(ctx, msg, err)
	}
}

func (r *Receiver) handlerFailed(ctx context.Context, msg *Message, err error) {
	r.logger.Error(ctx, "receiver handler failed", "receiver", r.id, "message", msg.ID, "error", err)
	if r.hooks.OnHandlerError != nil {
		r.hooks.OnHandlerError(ctx, r.id, msg, err)
	}
}
