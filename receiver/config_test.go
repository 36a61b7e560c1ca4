package receiver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 1, cfg.ConnectAttempts)
	assert.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	assert.Zero(t, cfg.MaxGracePeriod)

	o := defaultOptions()
	for _, opt := range cfg.Options() {
		opt(&o)
	}
	assert.Equal(t, MaxGracePeriod, o.maxGrace)
	assert.NoError(t, o.validate())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("RECEIVER_QUEUE_CAPACITY", "8")
	t.Setenv("RECEIVER_MAX_GRACE_PERIOD", "1m")
	t.Setenv("RECEIVER_CONNECT_ATTEMPTS", "4")
	t.Setenv("RECEIVER_CONNECT_BACKOFF", "10ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	o := defaultOptions()
	for _, opt := range cfg.Options() {
		opt(&o)
	}
	assert.Equal(t, 8, o.capacity)
	assert.Equal(t, time.Minute, o.maxGrace)
	assert.Equal(t, 4, o.connectRetry.Attempts)
	assert.Equal(t, 10*time.Millisecond, o.connectRetry.InitialBackoff)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RECEIVER_SHUTDOWN_GRACE_PERIOD=3s\nRECEIVER_CONNECT_TIMEOUT=2s\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("RECEIVER_SHUTDOWN_GRACE_PERIOD")
		os.Unsetenv("RECEIVER_CONNECT_TIMEOUT")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.ShutdownGracePeriod)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	t.Setenv("RECEIVER_CONNECT_TIMEOUT", "soon")
	_, err := LoadConfig()
	assert.Error(t, err)
}
