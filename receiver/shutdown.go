package receiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/infigaming-com/go-receiver/queue"
)

// shutdownGuard owns the end of a receiver's life: grace period bounds,
// waiting for consumers, and accounting for whatever is left in the queue.
type shutdownGuard struct {
	receiverID string
	minGrace   time.Duration
	maxGrace   time.Duration
	queue      *queue.Queue[*Message]
	pending    func() bool
	sink       StrandedSink
	logger     Logger
	hooks      Hooks
}

func (g *shutdownGuard) validate(grace time.Duration) error {
	if grace < g.minGrace || grace > g.maxGrace {
		return illegalArgument("grace period %s outside [%s, %s]", grace, g.minGrace, g.maxGrace)
	}
	return nil
}

// awaitDrain waits up to grace for the queue to empty with no handler running.
func (g *shutdownGuard) awaitDrain(ctx context.Context, grace time.Duration) bool {
	start := time.Now()
	_, drained := g.queue.WaitForEmpty(grace, g.pending)
	if !drained {
		g.logger.Warn(ctx, "receiver grace period elapsed before drain",
			"receiver", g.receiverID, "grace", grace.String(), "buffered", g.queue.Len())
		return false
	}
	g.logger.Debug(ctx, "receiver drained", "receiver", g.receiverID, "took", time.Since(start).String())
	return true
}

// wake closes the queue so no producer or consumer stays parked on it. The
// capacity hooks are detached first: draining stranded messages later is not
// a consumer freeing space and must not resume a disconnected transport.
func (g *shutdownGuard) wake() {
	g.queue.SetHooks(queue.Hooks{})
	g.queue.Close()
}

// release takes whatever is still buffered. Nothing left means success.
// Otherwise the messages go to the sink, if any, and the caller gets an
// *IncompleteMessageDeliveryError.
func (g *shutdownGuard) release(ctx context.Context) error {
	stranded := g.queue.Drain()
	if len(stranded) == 0 {
		return nil
	}
	incomplete := &IncompleteMessageDeliveryError{ReceiverID: g.receiverID, Count: len(stranded)}
	g.logger.Warn(ctx, "receiver terminated with undelivered messages",
		"receiver", g.receiverID, "count", len(stranded))
	if g.hooks.OnIncompleteDelivery != nil {
		g.hooks.OnIncompleteDelivery(ctx, g.receiverID, len(stranded))
	}
	if g.sink != nil {
		if err := g.sink.Store(ctx, g.receiverID, stranded); err != nil {
			g.logger.Error(ctx, "store stranded messages", "receiver", g.receiverID, "error", err)
			return errors.Join(incomplete, fmt.Errorf("receiver: store stranded messages: %w", err))
		}
	}
	return incomplete
}
