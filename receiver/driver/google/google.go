package google

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/infigaming-com/go-receiver/receiver"
)

type Config struct {
	ProjectID       string
	Subscription    string
	CredentialsJSON []byte
	Endpoint        string
	UserAgent       string
	Client          *gcppubsub.Client
	Logger          receiver.Logger
	Receive         ReceiveSettings
}

type ReceiveSettings struct {
	NumGoroutines          int
	MaxOutstandingMessages int
	MaxOutstandingBytes    int
	MaxExtension           time.Duration
}

// Transport pulls from one Pub/Sub subscription into a receiver. A message is
// acked once the receiver has buffered it and nacked when the receiver
// refuses it, so Pub/Sub redelivers.
type Transport struct {
	client       *gcppubsub.Client
	ownsClient   bool
	subscription string
	logger       receiver.Logger
	receive      ReceiveSettings

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

func New(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Subscription == "" {
		return nil, errors.New("googlepubsub: subscription required")
	}
	var (
		client *gcppubsub.Client
		err    error
		owns   bool
	)
	if cfg.Client != nil {
		client = cfg.Client
	} else {
		if cfg.ProjectID == "" {
			return nil, errors.New("googlepubsub: project id required when client is not provided")
		}
		opts := make([]option.ClientOption, 0, 3)
		if len(cfg.CredentialsJSON) > 0 {
			opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		}
		if cfg.UserAgent != "" {
			opts = append(opts, option.WithUserAgent(cfg.UserAgent))
		}
		client, err = gcppubsub.NewClient(ctx, cfg.ProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("googlepubsub: create client: %w", err)
		}
		owns = true
	}
	t := &Transport{
		client:       client,
		ownsClient:   owns,
		subscription: cfg.Subscription,
		logger:       cfg.Logger,
		receive:      cfg.Receive,
	}
	if t.logger == nil {
		t.logger = noopLogger{}
	}
	return t, nil
}

// Connect checks that the subscription exists and starts pulling.
func (t *Transport) Connect(ctx context.Context, inbox receiver.Inbox) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return errors.New("googlepubsub: already connected")
	}
	sub := t.client.Subscription(t.subscription)
	ok, err := sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("googlepubsub: check subscription %s: %w", t.subscription, err)
	}
	if !ok {
		return fmt.Errorf("googlepubsub: subscription %s does not exist", t.subscription)
	}
	t.apply(sub)

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	t.cancel, t.done = cancel, done
	go func() {
		done <- sub.Receive(loopCtx, func(msgCtx context.Context, m *gcppubsub.Message) {
			t.deliver(msgCtx, inbox, m)
		})
	}()
	return nil
}

// Disconnect stops pulling and waits for in-flight callbacks.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, fmt.Errorf("googlepubsub: receive: %w", err))
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	if t.ownsClient {
		if err := t.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("googlepubsub: close client: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) apply(sub *gcppubsub.Subscription) {
	settings := sub.ReceiveSettings
	if t.receive.NumGoroutines > 0 {
		settings.NumGoroutines = t.receive.NumGoroutines
	}
	if t.receive.MaxOutstandingMessages > 0 {
		settings.MaxOutstandingMessages = t.receive.MaxOutstandingMessages
	}
	if t.receive.MaxOutstandingBytes > 0 {
		settings.MaxOutstandingBytes = t.receive.MaxOutstandingBytes
	}
	if t.receive.MaxExtension > 0 {
		settings.MaxExtension = t.receive.MaxExtension
	}
	sub.ReceiveSettings = settings
}

func (t *Transport) deliver(ctx context.Context, inbox receiver.Inbox, m *gcppubsub.Message) {
	if inbox.Closing() {
		m.Nack()
		return
	}
	msg := &receiver.Message{
		ID:          m.ID,
		Source:      t.subscription,
		Data:        append([]byte(nil), m.Data...),
		Attributes:  cloneMap(m.Attributes),
		OrderingKey: m.OrderingKey,
		ReceivedAt:  m.PublishTime,
	}
	if m.DeliveryAttempt != nil {
		msg.Attempt = *m.DeliveryAttempt
	}
	if err := inbox.Put(ctx, msg); err != nil {
		t.logger.Debug(ctx, "googlepubsub message refused", "subscription", t.subscription, "id", m.ID, "error", err)
		m.Nack()
		return
	}
	m.Ack()
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

func cloneMap(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
