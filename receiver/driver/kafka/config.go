package kafka

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	OffsetResetNewest = "newest"
	OffsetResetOldest = "oldest"
)

type config struct {
	lg                *zap.Logger
	brokers           []string
	clientID          string
	groupID           string
	topics            []string
	saslPlainAuth     *plainAuth
	saslTokenProvider sarama.AccessTokenProvider
	useGmk            bool
	sessionTimeout    time.Duration
	rebalanceStrategy sarama.BalanceStrategy
	offsetReset       string
	retryBackoff      time.Duration
	group             sarama.ConsumerGroup
}

type Option func(*config)

func defaultConfig() config {
	return config{
		lg:                zap.NewNop(),
		brokers:           []string{"localhost:9092"},
		clientID:          "go-receiver-kafka",
		groupID:           "default-group",
		sessionTimeout:    30 * time.Second,
		rebalanceStrategy: sarama.NewBalanceStrategyRoundRobin(),
		offsetReset:       OffsetResetNewest,
		retryBackoff:      time.Second,
	}
}

func WithLogger(lg *zap.Logger) Option {
	return func(c *config) {
		if lg != nil {
			c.lg = lg
		}
	}
}

func WithBrokers(brokers ...string) Option {
	return func(c *config) {
		c.brokers = brokers
	}
}

func WithClientID(clientID string) Option {
	return func(c *config) {
		c.clientID = clientID
	}
}

func WithGroupID(groupID string) Option {
	return func(c *config) {
		c.groupID = groupID
	}
}

func WithTopics(topics ...string) Option {
	return func(c *config) {
		c.topics = topics
	}
}

func WithSaslPlain(username, password string) Option {
	return func(c *config) {
		c.saslPlainAuth = newPlainAuth(username, password)
	}
}

// WithGmkAuth authenticates against Google Managed Kafka with the
// application default credentials.
func WithGmkAuth() Option {
	return func(c *config) {
		c.useGmk = true
	}
}

// WithTokenProvider authenticates with SASL/OAUTHBEARER tokens from p.
func WithTokenProvider(p sarama.AccessTokenProvider) Option {
	return func(c *config) {
		c.saslTokenProvider = p
	}
}

func WithSessionTimeout(timeout time.Duration) Option {
	return func(c *config) {
		if timeout > 0 {
			c.sessionTimeout = timeout
		}
	}
}

func WithRebalanceStrategy(strategy sarama.BalanceStrategy) Option {
	return func(c *config) {
		if strategy != nil {
			c.rebalanceStrategy = strategy
		}
	}
}

// WithOffsetReset takes OffsetResetNewest or OffsetResetOldest.
func WithOffsetReset(reset string) Option {
	return func(c *config) {
		c.offsetReset = reset
	}
}

// WithRetryBackoff is the pause between consume sessions that ended in error.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.retryBackoff = d
		}
	}
}

// WithConsumerGroup uses an existing consumer group instead of dialing the
// brokers on Connect. The transport closes it on Disconnect.
func WithConsumerGroup(group sarama.ConsumerGroup) Option {
	return func(c *config) {
		c.group = group
	}
}

func (c config) validate() error {
	if len(c.topics) == 0 {
		return errors.New("kafka: at least one topic required")
	}
	if c.group == nil && len(c.brokers) == 0 {
		return errors.New("kafka: brokers required")
	}
	if c.groupID == "" {
		return errors.New("kafka: group id required")
	}
	return nil
}

func newSaramaConfig(c config) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = c.clientID
	sc.Version = sarama.V2_3_0_0
	sc.Consumer.Return.Errors = true
	sc.Consumer.Group.Session.Timeout = c.sessionTimeout
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{c.rebalanceStrategy}
	if c.offsetReset == OffsetResetOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	tokens := c.saslTokenProvider
	if tokens == nil && c.useGmk {
		tokens = newGmkTokenProvider(c.lg)
	}
	switch {
	case tokens != nil:
		enableTLS(sc)
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypeOAuth
		sc.Net.SASL.TokenProvider = tokens
		sc.Net.SASL.Handshake = true
	case c.saslPlainAuth != nil:
		username, password, err := c.saslPlainAuth.Credentials()
		if err != nil {
			return nil, fmt.Errorf("kafka: sasl/plain credentials: %w", err)
		}
		enableTLS(sc)
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = username
		sc.Net.SASL.Password = password
		sc.Net.SASL.Handshake = true
	}
	return sc, nil
}

func enableTLS(sc *sarama.Config) {
	sc.Net.TLS.Enable = true
	sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
}
