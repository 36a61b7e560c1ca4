package receiver

import "context"

// Transport connects a Receiver to a broker. Connect and Disconnect run on the
// receiver's lifecycle worker and never concurrently with each other.
//
// The ctx passed to Connect only bounds the connection attempt. Delivery loops
// started by Connect must use their own context and stop in Disconnect.
type Transport interface {
	Connect(ctx context.Context, inbox Inbox) error
	Disconnect(ctx context.Context) error
}

// Inbox is the producer side of a Receiver's queue.
type Inbox interface {
	// Put blocks while the queue is full. It fails with ErrIllegalState once
	// termination was requested.
	Put(ctx context.Context, msg *Message) error
	// Closing reports whether termination was requested. Producers should stop
	// pulling from the broker when it turns true.
	Closing() bool
}

// FlowController is implemented by transports that can pause delivery. Pause
// and Resume are called while the queue lock is held: they must not block and
// must not call back into the Receiver.
type FlowController interface {
	Pause()
	Resume()
}

// StrandedSink keeps messages that were still buffered when a Receiver
// terminated.
type StrandedSink interface {
	Store(ctx context.Context, receiverID string, msgs []*Message) error
}
