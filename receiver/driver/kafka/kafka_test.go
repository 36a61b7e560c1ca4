package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/infigaming-com/go-receiver/receiver"
)

type fakeGroup struct {
	sarama.ConsumerGroup

	records  chan *sarama.ConsumerMessage
	errs     chan error
	closeMu  sync.Once
	closed   atomic.Bool
	pauses   atomic.Int32
	resumes  atomic.Int32
	mu       sync.Mutex
	marked   []int64
	sessions atomic.Int32
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{
		records: make(chan *sarama.ConsumerMessage, 16),
		errs:    make(chan error),
	}
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, h sarama.ConsumerGroupHandler) error {
	g.sessions.Add(1)
	sess := &fakeSession{ctx: ctx, group: g}
	if err := h.Setup(sess); err != nil {
		return err
	}
	err := h.ConsumeClaim(sess, &fakeClaim{records: g.records})
	if cerr := h.Cleanup(sess); err == nil {
		err = cerr
	}
	return err
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	g.closeMu.Do(func() {
		g.closed.Store(true)
		close(g.errs)
	})
	return nil
}

func (g *fakeGroup) PauseAll()  { g.pauses.Add(1) }
func (g *fakeGroup) ResumeAll() { g.resumes.Add(1) }

func (g *fakeGroup) Marked() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int64(nil), g.marked...)
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx   context.Context
	group *fakeGroup
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.group.mu.Lock()
	s.group.marked = append(s.group.marked, msg.Offset)
	s.group.mu.Unlock()
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	records chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.records }

func record(offset int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:     "orders",
		Partition: 3,
		Offset:    offset,
		Key:       []byte("customer-7"),
		Value:     []byte(value),
		Timestamp: time.Unix(1700000000, 0),
		Headers: []*sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte("order.created")},
			nil,
		},
	}
}

func TestTransportDeliversAndMarks(t *testing.T) {
	ctx := context.Background()
	group := newFakeGroup()
	tr, err := New(WithTopics("orders"), WithConsumerGroup(group), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	r, err := receiver.New(ctx, tr)
	require.NoError(t, err)
	require.NoError(t, r.Start(ctx))

	group.records <- record(10, "a")
	group.records <- record(11, "b")

	for _, want := range []string{"a", "b"} {
		msg, err := r.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(msg.Data))
		assert.Equal(t, "orders", msg.Source)
		assert.Equal(t, "customer-7", msg.OrderingKey)
		assert.Equal(t, map[string]string{"type": "order.created"}, msg.Attributes)
	}
	assert.Eventually(t, func() bool { return len(group.Marked()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{10, 11}, group.Marked())

	require.NoError(t, r.Terminate(ctx, time.Second))
	assert.True(t, group.closed.Load())
}

func TestTransportPausesGroupWhenQueueFull(t *testing.T) {
	ctx := context.Background()
	group := newFakeGroup()
	tr, err := New(WithTopics("orders"), WithConsumerGroup(group))
	require.NoError(t, err)

	r, err := receiver.New(ctx, tr, receiver.WithQueueCapacity(1))
	require.NoError(t, err)
	require.NoError(t, r.Start(ctx))

	group.records <- record(1, "a")
	assert.Eventually(t, func() bool { return group.pauses.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err = r.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), group.resumes.Load())
	require.NoError(t, r.Terminate(ctx, 0))
}

func TestRefusedRecordIsNotMarked(t *testing.T) {
	ctx := context.Background()
	group := newFakeGroup()
	tr, err := New(WithTopics("orders"), WithConsumerGroup(group))
	require.NoError(t, err)

	r, err := receiver.New(ctx, tr)
	require.NoError(t, err)
	require.NoError(t, r.Start(ctx))

	f := r.TerminateAsync(time.Second)
	group.records <- record(5, "late")
	require.NoError(t, f.AwaitWithTimeout(time.Second))
	assert.Empty(t, group.Marked())
}

func TestConnectOnce(t *testing.T) {
	tr, err := New(WithTopics("orders"), WithConsumerGroup(newFakeGroup()))
	require.NoError(t, err)
	require.NoError(t, tr.Connect(context.Background(), nopInbox{}))
	assert.Error(t, tr.Connect(context.Background(), nopInbox{}))
	require.NoError(t, tr.Disconnect(context.Background()))
	require.NoError(t, tr.Disconnect(context.Background()))
}

func TestNewValidates(t *testing.T) {
	_, err := New()
	assert.Error(t, err)

	_, err = New(WithTopics("orders"), WithGroupID(""))
	assert.Error(t, err)

	_, err = New(WithTopics("orders"), WithBrokers())
	assert.Error(t, err)
}

func TestNewSaramaConfig(t *testing.T) {
	cfg := defaultConfig()
	sc, err := newSaramaConfig(cfg)
	require.NoError(t, err)
	assert.False(t, sc.Net.SASL.Enable)
	assert.Equal(t, sarama.OffsetNewest, sc.Consumer.Offsets.Initial)

	WithSaslPlain("user", "secret")(&cfg)
	WithOffsetReset(OffsetResetOldest)(&cfg)
	sc, err = newSaramaConfig(cfg)
	require.NoError(t, err)
	assert.True(t, sc.Net.TLS.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypePlaintext), sc.Net.SASL.Mechanism)
	assert.Equal(t, "user", sc.Net.SASL.User)
	assert.Equal(t, sarama.OffsetOldest, sc.Consumer.Offsets.Initial)

	WithGmkAuth()(&cfg)
	sc, err = newSaramaConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeOAuth), sc.Net.SASL.Mechanism)
	assert.IsType(t, &gmkTokenProvider{}, sc.Net.SASL.TokenProvider)
}

func TestToMessage(t *testing.T) {
	msg := toMessage(&sarama.ConsumerMessage{Topic: "orders", Partition: 0, Offset: 42, Value: []byte("x")})
	assert.Equal(t, "orders/0/42", msg.ID)
	assert.Nil(t, msg.Attributes)
	assert.Empty(t, msg.OrderingKey)
}

type nopInbox struct{}

func (nopInbox) Put(context.Context, *receiver.Message) error { return nil }
func (nopInbox) Closing() bool                                { return false }
