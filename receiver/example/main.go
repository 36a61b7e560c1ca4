package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-receiver/logging"
	"github.com/infigaming-com/go-receiver/observability/metrics"
	"github.com/infigaming-com/go-receiver/receiver"
	"github.com/infigaming-com/go-receiver/receiver/driver/google"
	"github.com/infigaming-com/go-receiver/receiver/driver/inmem"
	"github.com/infigaming-com/go-receiver/receiver/driver/kafka"
	"github.com/infigaming-com/go-receiver/receiver/stranded"
	"github.com/infigaming-com/go-receiver/uid"
)

type exampleConfig struct {
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic         string   `env:"KAFKA_TOPIC" envDefault:"test-topic"`
	KafkaGroup         string   `env:"KAFKA_GROUP" envDefault:"example-receiver"`
	KafkaUsername      string   `env:"KAFKA_USERNAME"`
	KafkaPassword      string   `env:"KAFKA_PASSWORD"`
	KafkaGmk           bool     `env:"KAFKA_GMK"`
	PubsubProject      string   `env:"PUBSUB_PROJECT"`
	PubsubSubscription string   `env:"PUBSUB_SUBSCRIPTION"`
	RedisAddr          string   `env:"REDIS_ADDR"`
	OTLPEndpoint       string   `env:"OTLP_ENDPOINT"`
}

var lg *zap.Logger

func main() {
	var syncLogger func()
	lg, syncLogger = logging.NewLogger()
	defer syncLogger()

	envFiles := []string{}
	if _, err := os.Stat("receiver/example/.env"); err == nil {
		envFiles = append(envFiles, "receiver/example/.env")
	}
	cfg, err := receiver.LoadConfig(envFiles...)
	if err != nil {
		lg.Fatal("Failed to load receiver config", zap.Error(err))
	}
	ex, err := env.ParseAs[exampleConfig]()
	if err != nil {
		lg.Fatal("Failed to load example config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := append(cfg.Options(), receiver.WithLogger(logging.NewZapLogger(lg)))

	if ex.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: ex.RedisAddr})
		defer rdb.Close()
		opts = append(opts,
			receiver.WithIDGenerator(uid.NewRedis(rdb, "receiver")),
			receiver.WithStrandedSink(stranded.NewRedisSink(rdb)),
		)
	}

	if ex.OTLPEndpoint != "" {
		mc, err := metrics.NewMetricExporter(
			metrics.WithServiceName("example-receiver"),
			metrics.WithOTLPEndpoint(ex.OTLPEndpoint),
		)
		if err != nil {
			lg.Fatal("Failed to create metric exporter", zap.Error(err))
		}
		defer mc.Close(context.Background())
		opts = append(opts, receiver.WithHooks(metrics.ReceiverHooks(mc)))
	}

	transport, publish, err := newTransport(ctx, ex)
	if err != nil {
		lg.Fatal("Failed to create transport", zap.Error(err))
	}

	r, err := receiver.New(ctx, transport, opts...)
	if err != nil {
		lg.Fatal("Failed to create receiver", zap.Error(err))
	}
	if err := r.Start(ctx); err != nil {
		lg.Fatal("Failed to start receiver", zap.Error(err))
	}
	lg.Info("Receiver started", zap.Stringer("receiver", r))

	if publish != nil {
		go publish(ctx)
	}

	err = r.ReceiveAsync(receiver.HandlerFunc(func(ctx context.Context, msg *receiver.Message) error {
		lg.Info("Received message",
			zap.String("id", msg.ID),
			zap.String("source", msg.Source),
			zap.ByteString("data", msg.Data),
			zap.Duration("latency", time.Since(msg.ReceivedAt)),
			zap.Any("attributes", msg.Attributes))
		return nil
	}))
	if err != nil {
		lg.Fatal("Failed to dispatch messages", zap.Error(err))
	}

	<-ctx.Done()
	lg.Info("Received shutdown signal, terminating receiver",
		zap.Duration("grace_period", cfg.ShutdownGracePeriod))

	err = r.Terminate(context.Background(), cfg.ShutdownGracePeriod)
	var incomplete *receiver.IncompleteMessageDeliveryError
	switch {
	case errors.As(err, &incomplete):
		lg.Warn("Receiver terminated with undelivered messages", zap.Int("count", incomplete.Count))
	case err != nil:
		lg.Error("Failed to terminate receiver", zap.Error(err))
	default:
		lg.Info("Receiver terminated")
	}
}

// newTransport picks Kafka, then Pub/Sub, then an in-memory transport fed by
// a local publisher.
func newTransport(ctx context.Context, ex exampleConfig) (receiver.Transport, func(context.Context), error) {
	switch {
	case len(ex.KafkaBrokers) > 0:
		kopts := []kafka.Option{
			kafka.WithLogger(lg),
			kafka.WithBrokers(ex.KafkaBrokers...),
			kafka.WithClientID("example-receiver"),
			kafka.WithGroupID(ex.KafkaGroup),
			kafka.WithTopics(ex.KafkaTopic),
			kafka.WithSessionTimeout(30 * time.Second),
		}
		if ex.KafkaGmk {
			kopts = append(kopts, kafka.WithGmkAuth())
		} else if ex.KafkaUsername != "" {
			kopts = append(kopts, kafka.WithSaslPlain(ex.KafkaUsername, ex.KafkaPassword))
		}
		t, err := kafka.New(kopts...)
		return t, nil, err
	case ex.PubsubSubscription != "":
		t, err := google.New(ctx, google.Config{
			ProjectID:    ex.PubsubProject,
			Subscription: ex.PubsubSubscription,
			Logger:       logging.NewZapLogger(lg),
		})
		return t, nil, err
	default:
		t := inmem.New("example", 64)
		return t, func(ctx context.Context) { runPublisher(ctx, t) }, nil
	}
}

func runPublisher(ctx context.Context, t *inmem.Transport) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count++
			id, err := t.Publish(ctx, []byte(fmt.Sprintf("Message content %d", count)), map[string]string{"source": "example-app"})
			if err != nil {
				lg.Error("Failed to publish message", zap.Error(err))
				continue
			}
			lg.Debug("Published message", zap.String("id", id))
		}
	}
}
