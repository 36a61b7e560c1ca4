package receiver

import (
	"fmt"

	cerrors "github.com/infigaming-com/go-receiver/errors"
)

const (
	ErrCodeIllegalState int64 = 20000 + iota
	ErrCodeIllegalArgument
	ErrCodeIncompleteMessageDelivery
	ErrCodeAwaitTimeout
)

var (
	// ErrIllegalState is returned when an operation is not allowed in the
	// receiver's current state. Match with errors.Is.
	ErrIllegalState = cerrors.New(ErrCodeIllegalState, "receiver: illegal state")

	// ErrIllegalArgument is returned for malformed input such as a grace
	// period outside the configured bounds. Nothing has changed when it is
	// returned, so the call can be retried with corrected input.
	ErrIllegalArgument = cerrors.New(ErrCodeIllegalArgument, "receiver: illegal argument")

	// ErrIncompleteMessageDelivery matches *IncompleteMessageDeliveryError.
	ErrIncompleteMessageDelivery = cerrors.New(ErrCodeIncompleteMessageDelivery, "receiver: incomplete message delivery")

	// ErrAwaitTimeout is returned by Future.AwaitWithTimeout.
	ErrAwaitTimeout = cerrors.New(ErrCodeAwaitTimeout, "receiver: await timeout")
)

func illegalState(format string, args ...any) error {
	return cerrors.Newf(ErrCodeIllegalState, "receiver: "+format, args...)
}

func illegalArgument(format string, args ...any) error {
	return cerrors.Newf(ErrCodeIllegalArgument, "receiver: "+format, args...)
}

// IncompleteMessageDeliveryError reports messages that were still buffered
// when the receiver terminated.
type IncompleteMessageDeliveryError struct {
	ReceiverID string
	Count      int
}

func (e *IncompleteMessageDeliveryError) Error() string {
	return fmt.Sprintf("receiver: incomplete message delivery: %d message(s) left undelivered by receiver %s", e.Count, e.ReceiverID)
}

func (e *IncompleteMessageDeliveryError) Is(target error) bool {
	return target == ErrIncompleteMessageDelivery
}
