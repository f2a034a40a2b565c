package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DeliveryLockKey builds redis keys for per-delivery critical sections.
func DeliveryLockKey(deliveryID string) string {
	return fmt.Sprintf("receiving:delivery:%s:lock", deliveryID)
}

// ErrLockNotAcquired indicates the lock stayed held for the whole wait window.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Only the holder's token may delete the key.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements short-lived mutual exclusion on top of SET NX PX.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker constructs the locker. ttl bounds how long a crashed holder
// blocks others; wait bounds how long Acquire retries.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait, poll: 20 * time.Millisecond}
}

// Acquire blocks until key is held or the wait window elapses. The returned
// func releases the lock.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redis locker not initialised")
	}
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
