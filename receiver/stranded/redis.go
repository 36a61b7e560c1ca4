// Package stranded keeps messages a receiver could not deliver before it
// terminated, so they can be replayed later.
package stranded

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/infigaming-com/go-receiver/receiver"
)

// RedisSink appends stranded messages to one Redis list per receiver.
type RedisSink struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

type Option func(*RedisSink)

// WithKeyPrefix sets the prefix for list keys.
// Default: "receiver_stranded".
func WithKeyPrefix(p string) Option {
	return func(s *RedisSink) {
		s.keyPrefix = p
	}
}

// WithTTL sets how long a list is kept after its last write. Zero keeps it
// until removed.
// Default: 7 days.
func WithTTL(d time.Duration) Option {
	return func(s *RedisSink) {
		s.ttl = d
	}
}

func NewRedisSink(client *redis.Client, opts ...Option) *RedisSink {
	s := &RedisSink{
		client:    client,
		keyPrefix: "receiver_stranded",
		ttl:       7 * 24 * time.Hour,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store implements receiver.StrandedSink. The messages are appended in one
// transaction, so a failure leaves nothing behind.
func (s *RedisSink) Store(ctx context.Context, receiverID string, msgs []*receiver.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("stranded: encode message %s: %w", m.ID, err)
		}
		values = append(values, b)
	}
	key := s.key(receiverID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stranded: store %d message(s) for %s: %w", len(msgs), receiverID, err)
	}
	return nil
}

// Load returns the stored messages for receiverID, oldest first.
func (s *RedisSink) Load(ctx context.Context, receiverID string) ([]*receiver.Message, error) {
	raw, err := s.client.LRange(ctx, s.key(receiverID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("stranded: load %s: %w", receiverID, err)
	}
	msgs := make([]*receiver.Message, 0, len(raw))
	for _, item := range raw {
		var m receiver.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("stranded: decode message for %s: %w", receiverID, err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

// IDs lists the IDs of the stored messages, oldest first.
func (s *RedisSink) IDs(ctx context.Context, receiverID string) ([]string, error) {
	msgs, err := s.Load(ctx, receiverID)
	if err != nil {
		return nil, err
	}
	return lo.Map(msgs, func(m *receiver.Message, _ int) string { return m.ID }), nil
}

func (s *RedisSink) Remove(ctx context.Context, receiverID string) error {
	if err := s.client.Del(ctx, s.key(receiverID)).Err(); err != nil {
		return fmt.Errorf("stranded: remove %s: %w", receiverID, err)
	}
	return nil
}

func (s *RedisSink) key(receiverID string) string {
	return s.keyPrefix + ":" + receiverID
}
