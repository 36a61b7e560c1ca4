package uid

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis prefixes a v7 UUID with a counter shared through Redis, so ids
// handed out across processes sort in the order they were issued.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, name string) *Redis {
	return &Redis{client: client, key: counterKey(name)}
}

func (r *Redis) New() (string, error) {
	counter, err := r.client.Incr(context.Background(), r.key).Result()
	if err != nil {
		return "", fmt.Errorf("uid: increment %s: %w", r.key, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("uid: generate uuidv7: %w", err)
	}

	var sb strings.Builder
	// 16 (counter) + 1 (-) + 32 (UUID without hyphens)
	sb.Grow(16 + 1 + 32)
	sb.WriteString(strconv.FormatInt(counter, 16))
	sb.WriteString("-")
	sb.WriteString(strings.ReplaceAll(id.String(), "-", ""))
	return sb.String(), nil
}

func counterKey(name string) string {
	if name == "" {
		return "counter:uid"
	}
	return "counter:uid:" + name
}
