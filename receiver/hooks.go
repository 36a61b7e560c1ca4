package receiver

import "context"

type Logger interface {
	Debug(ctx context.Context, msg string, kv ...any)
	Info(ctx context.Context, msg string, kv ...any)
	Warn(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, kv ...any)
}

// Hooks observe a Receiver. OnQueueFull and OnQueueAvailable run under the
// queue lock, the rest run without receiver locks held. All of them may be nil.
type Hooks struct {
	OnStateChange        func(ctx context.Context, receiverID string, from, to State)
	OnQueueFull          func(receiverID string)
	OnQueueAvailable     func(receiverID string)
	OnReceive            func(ctx context.Context, receiverID string, msg *Message)
	OnConnectError       func(ctx context.Context, receiverID string, attempt int, err error)
	OnIncompleteDelivery func(ctx context.Context, receiverID string, count int)
	OnHandlerError       func(ctx context.Context, receiverID string, msg *Message, err error)
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}
