package google_test

import (
	"context"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/infigaming-com/go-receiver/receiver"
	"github.com/infigaming-com/go-receiver/receiver/driver/google"
)

func newTestClient(t *testing.T) *gcppubsub.Client {
	t.Helper()
	ctx := context.Background()
	server := pstest.NewServer()
	t.Cleanup(func() { server.Close() })

	conn, err := grpc.DialContext(ctx, server.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client, err := gcppubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestReceiverOverPubSub(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	topic, err := client.CreateTopic(ctx, "orders-topic")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "orders-sub", gcppubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	transport, err := google.New(ctx, google.Config{
		Client:       client,
		Subscription: "orders-sub",
		Receive:      google.ReceiveSettings{NumGoroutines: 1, MaxOutstandingMessages: 10},
	})
	require.NoError(t, err)

	r, err := receiver.New(ctx, transport)
	require.NoError(t, err)
	require.NoError(t, r.Start(ctx))

	_, err = topic.Publish(ctx, &gcppubsub.Message{
		Data:       []byte(`{"id":"42"}`),
		Attributes: map[string]string{"type": "order.created"},
	}).Get(ctx)
	require.NoError(t, err)

	recvCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg, err := r.Receive(recvCtx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"42"}`, string(msg.Data))
	assert.Equal(t, "order.created", msg.Attributes["type"])
	assert.Equal(t, "orders-sub", msg.Source)
	assert.NotEmpty(t, msg.ID)

	require.NoError(t, r.Terminate(ctx, time.Second))
	assert.True(t, r.IsTerminated())
}

func TestConnectFailsForMissingSubscription(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	transport, err := google.New(ctx, google.Config{Client: client, Subscription: "missing"})
	require.NoError(t, err)

	r, err := receiver.New(ctx, transport)
	require.NoError(t, err)
	err = r.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
	assert.True(t, r.IsTerminated())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := google.New(context.Background(), google.Config{})
	assert.Error(t, err)

	_, err = google.New(context.Background(), google.Config{Subscription: "orders-sub"})
	assert.Error(t, err)
}
