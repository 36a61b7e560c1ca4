package receiver

import (
	"context"
	"time"
)

// Message is an inbound item buffered by a Receiver. The transport owns
// broker-level acknowledgement; by the time a Message is queued the receiver
// is responsible for it.
type Message struct {
	ID          string            `json:"id"`
	Source      string            `json:"source,omitempty"`
	Data        []byte            `json:"data,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OrderingKey string            `json:"ordering_key,omitempty"`
	Attempt     int               `json:"attempt,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.Data = append([]byte(nil), m.Data...)
	c.Attributes = cloneMap(m.Attributes)
	return &c
}

type Handler interface {
	Handle(context.Context, *Message) error
}

type HandlerFunc func(context.Context, *Message) error

func (f HandlerFunc) Handle(ctx context.Context, m *Message) error {
	return f(ctx, m)
}

func cloneMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(src))
	for k, v := range src {
		cloned[k] = v
	}
	return cloned
}
