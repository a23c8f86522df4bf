package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker records dispatch cooldowns as Redis keys with the window as
// TTL. Expiry is handled entirely by Redis, so restarts of this process never
// reset or extend anyone's window.
type RedisTracker struct {
	client *redis.Client
}

func NewRedisTracker(client *redis.Client) *RedisTracker {
	return &RedisTracker{client: client}
}

func key(principalID int64) string {
	return fmt.Sprintf("cooldown:%d", principalID)
}

func (t *RedisTracker) Remaining(ctx context.Context, principalID int64, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, nil
	}
	ttl, err := t.client.PTTL(ctx, key(principalID)).Result()
	if err != nil {
		return 0, err
	}
	// PTTL returns a negative duration when the key is absent or has no
	// expiry; either way no window is active.
	if ttl <= 0 {
		return 0, nil
	}
	return int((ttl + time.Second - 1) / time.Second), nil
}

func (t *RedisTracker) Mark(ctx context.Context, principalID int64, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	return t.client.Set(ctx, key(principalID), time.Now().Unix(), window).Err()
}
