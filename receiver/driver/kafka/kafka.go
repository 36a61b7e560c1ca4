// Package kafka feeds a receiver from a Kafka consumer group. Offsets are
// marked once the receiver has buffered a record; the consumer group is
// paused while the receiver queue is full.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-receiver/receiver"
)

type Transport struct {
	cfg   config
	group sarama.ConsumerGroup

	mu     sync.Mutex
	used   bool
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts ...Option) (*Transport, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Transport{cfg: cfg}, nil
}

// Connect joins the consumer group and starts consuming. A Transport
// connects once.
func (t *Transport) Connect(ctx context.Context, inbox receiver.Inbox) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.used {
		return errors.New("kafka: transport already connected once")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	group := t.cfg.group
	if group == nil {
		sc, err := newSaramaConfig(t.cfg)
		if err != nil {
			return err
		}
		group, err = sarama.NewConsumerGroup(t.cfg.brokers, t.cfg.groupID, sc)
		if err != nil {
			return fmt.Errorf("kafka: create consumer group: %w", err)
		}
	}
	t.used = true
	t.group = group

	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.logErrors(group)
	go t.consume(loopCtx, group, inbox, t.done)

	t.cfg.lg.Info("kafka consumer connected",
		zap.Strings("brokers", t.cfg.brokers),
		zap.String("group_id", t.cfg.groupID),
		zap.Strings("topics", t.cfg.topics))
	return nil
}

// Disconnect leaves the consumer group.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	cancel, done, group := t.cancel, t.done, t.group
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	if err := group.Close(); err != nil {
		errs = append(errs, fmt.Errorf("kafka: close consumer group: %w", err))
	}
	t.cfg.lg.Info("kafka consumer disconnected", zap.String("group_id", t.cfg.groupID))
	return errors.Join(errs...)
}

// Pause and Resume implement receiver.FlowController. The group is set before
// the first record can reach the receiver.
func (t *Transport) Pause() {
	if t.group != nil {
		t.group.PauseAll()
	}
}

func (t *Transport) Resume() {
	if t.group != nil {
		t.group.ResumeAll()
	}
}

func (t *Transport) consume(ctx context.Context, group sarama.ConsumerGroup, inbox receiver.Inbox, done chan struct{}) {
	defer close(done)
	h := &claimHandler{inbox: inbox, lg: t.cfg.lg}
	for {
		err := group.Consume(ctx, t.cfg.topics, h)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
			return
		}
		if err != nil {
			t.cfg.lg.Error("kafka consume session failed", zap.Error(err), zap.String("group_id", t.cfg.groupID))
		}
		if inbox.Closing() {
			<-ctx.Done()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.cfg.retryBackoff):
		}
	}
}

func (t *Transport) logErrors(group sarama.ConsumerGroup) {
	for err := range group.Errors() {
		t.cfg.lg.Error("kafka consumer group error", zap.Error(err), zap.String("group_id", t.cfg.groupID))
	}
}

type claimHandler struct {
	inbox receiver.Inbox
	lg    *zap.Logger
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim stops at the first record the receiver refuses. The record
// stays unmarked and is delivered again after the next rebalance.
func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case record, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.inbox.Put(session.Context(), toMessage(record)); err != nil {
				h.lg.Debug("kafka record refused",
					zap.String("topic", record.Topic),
					zap.Int32("partition", record.Partition),
					zap.Int64("offset", record.Offset),
					zap.Error(err))
				return nil
			}
			session.MarkMessage(record, "")
		}
	}
}

func toMessage(record *sarama.ConsumerMessage) *receiver.Message {
	attrs := lo.Associate(lo.Compact(record.Headers), func(h *sarama.RecordHeader) (string, string) {
		return string(h.Key), string(h.Value)
	})
	if len(attrs) == 0 {
		attrs = nil
	}
	return &receiver.Message{
		ID:          fmt.Sprintf("%s/%d/%d", record.Topic, record.Partition, record.Offset),
		Source:      record.Topic,
		Data:        append([]byte(nil), record.Value...),
		Attributes:  attrs,
		OrderingKey: string(record.Key),
		Attempt:     1,
		ReceivedAt:  record.Timestamp,
	}
}
