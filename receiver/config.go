package receiver

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the environment-driven counterpart of the functional options.
type Config struct {
	QueueCapacity       int           `env:"RECEIVER_QUEUE_CAPACITY" envDefault:"512"`
	MinGracePeriod      time.Duration `env:"RECEIVER_MIN_GRACE_PERIOD" envDefault:"0s"`
	MaxGracePeriod      time.Duration `env:"RECEIVER_MAX_GRACE_PERIOD"`
	ConnectTimeout      time.Duration `env:"RECEIVER_CONNECT_TIMEOUT" envDefault:"30s"`
	ConnectAttempts     int           `env:"RECEIVER_CONNECT_ATTEMPTS" envDefault:"1"`
	ConnectBackoff      time.Duration `env:"RECEIVER_CONNECT_BACKOFF" envDefault:"200ms"`
	ConnectMaxBackoff   time.Duration `env:"RECEIVER_CONNECT_MAX_BACKOFF" envDefault:"5s"`
	ShutdownGracePeriod time.Duration `env:"RECEIVER_SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
}

// LoadConfig loads the given .env files, if any, and parses the environment.
// Variables already set in the process environment win over the files.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, fmt.Errorf("receiver: load env files: %w", err)
		}
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("receiver: parse env: %w", err)
	}
	return cfg, nil
}

// Options converts the config into receiver options. An unset
// MaxGracePeriod keeps the default upper bound.
func (c Config) Options() []Option {
	maxGrace := c.MaxGracePeriod
	if maxGrace == 0 {
		maxGrace = MaxGracePeriod
	}
	return []Option{
		WithQueueCapacity(c.QueueCapacity),
		WithGracePeriodBounds(c.MinGracePeriod, maxGrace),
		WithConnectTimeout(c.ConnectTimeout),
		WithConnectRetry(ConnectRetry{
			Attempts:       c.ConnectAttempts,
			InitialBackoff: c.ConnectBackoff,
			MaxBackoff:     c.ConnectMaxBackoff,
		}),
	}
}
