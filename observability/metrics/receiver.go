package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/infigaming-com/go-receiver/receiver"
)

const (
	MetricStateTransitions = "receiver.state.transitions"
	MetricQueueFull        = "receiver.queue.full"
	MetricQueueAvailable   = "receiver.queue.available"
	MetricMessagesReceived = "receiver.messages.received"
	MetricMessageAge       = "receiver.message.age"
	MetricConnectErrors    = "receiver.connect.errors"
	MetricMessagesStranded = "receiver.messages.stranded"
	MetricHandlerErrors    = "receiver.handler.errors"
	MetricQueueBuffered    = "receiver.queue.buffered"
)

// ReceiverHooks returns receiver hooks that record lifecycle and queue
// activity on mc. Recording errors are dropped; metrics never fail delivery.
func ReceiverHooks(mc *MetricExporter) receiver.Hooks {
	count := func(ctx context.Context, name, desc string, n int64, attrs map[string]string) {
		_ = mc.RecordCounter(ctx, name, desc, "1", n, attrs)
	}
	return receiver.Hooks{
		OnStateChange: func(ctx context.Context, id string, from, to receiver.State) {
			count(ctx, MetricStateTransitions, "Receiver lifecycle transitions", 1,
				map[string]string{"receiver": id, "from": from.String(), "to": to.String()})
		},
		OnQueueFull: func(id string) {
			count(context.Background(), MetricQueueFull, "Times the receive queue reached capacity", 1,
				map[string]string{"receiver": id})
		},
		OnQueueAvailable: func(id string) {
			count(context.Background(), MetricQueueAvailable, "Times the receive queue dropped below capacity", 1,
				map[string]string{"receiver": id})
		},
		OnReceive: func(ctx context.Context, id string, msg *receiver.Message) {
			attrs := map[string]string{"receiver": id, "source": msg.Source}
			count(ctx, MetricMessagesReceived, "Messages buffered by the receiver", 1, attrs)
			if !msg.ReceivedAt.IsZero() {
				_ = mc.RecordHistogram(ctx, MetricMessageAge, "Message age when buffered", "ms",
					float64(time.Since(msg.ReceivedAt).Milliseconds()), attrs)
			}
		},
		OnConnectError: func(ctx context.Context, id string, attempt int, _ error) {
			count(ctx, MetricConnectErrors, "Failed initial connection attempts", 1,
				map[string]string{"receiver": id, "attempt": strconv.Itoa(attempt)})
		},
		OnIncompleteDelivery: func(ctx context.Context, id string, n int) {
			count(ctx, MetricMessagesStranded, "Messages left undelivered at termination", int64(n),
				map[string]string{"receiver": id})
		},
		OnHandlerError: func(ctx context.Context, id string, msg *receiver.Message, _ error) {
			count(ctx, MetricHandlerErrors, "Handler failures", 1,
				map[string]string{"receiver": id, "source": msg.Source})
		},
	}
}

// RecordHealth publishes the buffered message count of a receiver.
func RecordHealth(ctx context.Context, mc *MetricExporter, h receiver.Health) error {
	return mc.RecordGauge(ctx, MetricQueueBuffered, "Messages waiting in the receive queue", "1",
		float64(h.Buffered), map[string]string{"receiver": h.ID, "state": h.State.String()})
}
