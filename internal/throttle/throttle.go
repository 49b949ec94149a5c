// Package throttle limits how often an action may run per key, e.g. one
// voicemail drop per phone number every 30 seconds.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Throttle grants at most one acquisition per key per ttl.
type Throttle interface {
	// Acquire claims key for ttl. When the key is already held it returns
	// false and the time left until it frees up.
	Acquire(ctx context.Context, key string, ttl time.Duration) (ok bool, retryAfter time.Duration, err error)
}

// KeyPrefix namespaces throttle keys in Redis.
const KeyPrefix = "pestline:throttle:"

// redisClient is the subset of *redis.Client used here.
type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisThrottle is a Throttle shared by every process using the same Redis.
type RedisThrottle struct {
	client redisClient
}

// NewRedis creates a RedisThrottle.
func NewRedis(client *redis.Client) *RedisThrottle {
	return &RedisThrottle{client: client}
}

// NewRedisFromURL connects to the Redis at url (redis://...).
func NewRedisFromURL(ctx context.Context, url string) (*RedisThrottle, func() error, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, eris.Wrap(err, "throttle: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, eris.Wrap(err, "throttle: ping redis")
	}
	return NewRedis(client), client.Close, nil
}

// Acquire uses SET NX PX so concurrent callers race on a single key.
func (t *RedisThrottle) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	k := KeyPrefix + key
	ok, err := t.client.SetNX(ctx, k, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, 0, eris.Wrapf(err, "throttle: set %s", key)
	}
	if ok {
		return true, 0, nil
	}

	left, err := t.client.PTTL(ctx, k).Result()
	if err != nil {
		return false, 0, eris.Wrapf(err, "throttle: pttl %s", key)
	}
	// -1 (no expiry) or -2 (expired between calls): report the full window.
	if left <= 0 {
		left = ttl
	}
	return false, left, nil
}

// MemoryThrottle is a single-process Throttle.
type MemoryThrottle struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemory creates a MemoryThrottle. A nil now uses time.Now.
func NewMemory(now func() time.Time) *MemoryThrottle {
	if now == nil {
		now = time.Now
	}
	return &MemoryThrottle{expires: make(map[string]time.Time), now: now}
}

func (t *MemoryThrottle) Acquire(_ context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for k, exp := range t.expires {
		if !now.Before(exp) {
			delete(t.expires, k)
		}
	}

	if exp, held := t.expires[key]; held {
		return false, exp.Sub(now), nil
	}
	t.expires[key] = now.Add(ttl)
	return true, 0, nil
}

// Len returns the number of unexpired keys.
func (t *MemoryThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.expires)
}
