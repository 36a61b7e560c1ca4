package uid

import (
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCountsPerName(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	g := NewRedis(client, "receivers")
	first, err := g.New()
	require.NoError(t, err)
	second, err := g.New()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, "1-"))
	assert.True(t, strings.HasPrefix(second, "2-"))
	assert.Len(t, first, 2+32)

	v, err := mr.Get("counter:uid:receivers")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestRedisFailureFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	_, err := NewRedis(client, "").New()
	assert.Error(t, err)
	assert.NotEmpty(t, MustNew(NewRedis(client, "")))
}
