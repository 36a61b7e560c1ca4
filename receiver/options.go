package receiver

import (
	"math"
	"time"

	"github.com/infigaming-com/go-receiver/uid"
)

const (
	// MinGracePeriod and MaxGracePeriod are the default bounds accepted by
	// Terminate and TerminateAsync.
	MinGracePeriod time.Duration = 0
	MaxGracePeriod time.Duration = math.MaxInt64

	DefaultQueueCapacity  = 512
	DefaultConnectTimeout = 30 * time.Second
)

type Option func(*options)

type options struct {
	id             string
	idGenerator    uid.Generator
	logger         Logger
	hooks          Hooks
	capacity       int
	minGrace       time.Duration
	maxGrace       time.Duration
	connectTimeout time.Duration
	connectRetry   ConnectRetry
	strandedSink   StrandedSink
}

// ConnectRetry governs the first connection attempt only. A started receiver
// never reconnects; that is the transport's business.
type ConnectRetry struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         float64
}

func defaultOptions() options {
	return options{
		idGenerator:    uid.NewUUIDV7(),
		logger:         noopLogger{},
		capacity:       DefaultQueueCapacity,
		minGrace:       MinGracePeriod,
		maxGrace:       MaxGracePeriod,
		connectTimeout: DefaultConnectTimeout,
		connectRetry: ConnectRetry{
			Attempts:       1,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
	}
}

func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

func WithIDGenerator(g uid.Generator) Option {
	return func(o *options) {
		if g != nil {
			o.idGenerator = g
		}
	}
}

func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

// WithQueueCapacity bounds the receive queue. Zero means unbounded, in which
// case back-pressure hooks never fire.
func WithQueueCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

func WithGracePeriodBounds(minGrace, maxGrace time.Duration) Option {
	return func(o *options) {
		o.minGrace = minGrace
		o.maxGrace = maxGrace
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

func WithConnectRetry(policy ConnectRetry) Option {
	return func(o *options) {
		o.connectRetry = policy.normalized()
	}
}

func WithStrandedSink(sink StrandedSink) Option {
	return func(o *options) {
		o.strandedSink = sink
	}
}

func (o options) validate() error {
	if o.capacity < 0 {
		return illegalArgument("queue capacity %d is negative", o.capacity)
	}
	if o.minGrace < 0 {
		return illegalArgument("minimum grace period %s is negative", o.minGrace)
	}
	if o.maxGrace < o.minGrace {
		return illegalArgument("grace period bounds [%s, %s] are inverted", o.minGrace, o.maxGrace)
	}
	return nil
}

func (r ConnectRetry) normalized() ConnectRetry {
	if r.Attempts <= 0 {
		r.Attempts = 1
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = 200 * time.Millisecond
	}
	if r.MaxBackoff < r.InitialBackoff {
		r.MaxBackoff = r.InitialBackoff
	}
	if r.Jitter < 0 {
		r.Jitter = 0
	}
	return r
}
