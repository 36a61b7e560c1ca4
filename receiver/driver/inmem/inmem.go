// Package inmem is a Transport backed by a channel. It is meant for tests and
// local runs; nothing survives the process.
package inmem

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/infigaming-com/go-receiver/receiver"
	"github.com/infigaming-com/go-receiver/uid"
)

var ErrNotConnected = errors.New("inmem: not connected")

type Transport struct {
	name   string
	msgs   chan *receiver.Message
	ids    uid.Generator
	resume chan struct{}
	paused atomic.Bool

	connects    atomic.Int32
	disconnects atomic.Int32

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	failN    int
	failErr  error
	rejected []*receiver.Message
}

// New returns a transport named name whose publish buffer holds up to buffer
// messages.
func New(name string, buffer int) *Transport {
	if buffer <= 0 {
		buffer = 64
	}
	return &Transport{
		name:   name,
		msgs:   make(chan *receiver.Message, buffer),
		ids:    uid.NewSequence(name),
		resume: make(chan struct{}, 1),
	}
}

// FailConnects makes the next n Connect calls fail with err.
func (t *Transport) FailConnects(n int, err error) {
	t.mu.Lock()
	t.failN = n
	t.failErr = err
	t.mu.Unlock()
}

// Publish enqueues data for delivery and returns the assigned message ID.
func (t *Transport) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	id := uid.MustNew(t.ids)
	msg := &receiver.Message{
		ID:         id,
		Source:     t.name,
		Data:       append([]byte(nil), data...),
		Attributes: clone(attrs),
		Attempt:    1,
	}
	select {
	case t.msgs <- msg:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Transport) Connect(ctx context.Context, inbox receiver.Inbox) error {
	t.connects.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failN > 0 {
		t.failN--
		return t.failErr
	}
	if t.cancel != nil {
		return errors.New("inmem: already connected")
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(loopCtx, inbox, t.done)
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.disconnects.Add(1)
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return ErrNotConnected
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops pulling from the publish buffer until Resume.
func (t *Transport) Pause() {
	t.paused.Store(true)
}

func (t *Transport) Resume() {
	t.paused.Store(false)
	select {
	case t.resume <- struct{}{}:
	default:
	}
}

func (t *Transport) Paused() bool { return t.paused.Load() }

func (t *Transport) Connects() int { return int(t.connects.Load()) }

func (t *Transport) Disconnects() int { return int(t.disconnects.Load()) }

// Pending is the number of published messages not yet pulled.
func (t *Transport) Pending() int { return len(t.msgs) }

// Rejected returns messages the receiver refused because it was terminating.
// A broker would redeliver them.
func (t *Transport) Rejected() []*receiver.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*receiver.Message(nil), t.rejected...)
}

func (t *Transport) run(ctx context.Context, inbox receiver.Inbox, done chan struct{}) {
	defer close(done)
	for {
		if t.paused.Load() {
			select {
			case <-ctx.Done():
				return
			case <-t.resume:
				continue
			}
		}
		if inbox.Closing() {
			<-ctx.Done()
			return
		}
		select {
		case <-ctx.Done():
			return
		case msg := <-t.msgs:
			msg.ReceivedAt = time.Now()
			if err := inbox.Put(ctx, msg); err != nil {
				t.mu.Lock()
				t.rejected = append(t.rejected, msg)
				t.mu.Unlock()
			}
		}
	}
}

func clone(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
