package throttle

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryThrottle_BlocksWithinWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	th := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	ok, _, err := th.Acquire(ctx, "5551234567", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(10 * time.Second)
	ok, wait, err := th.Acquire(ctx, "5551234567", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, wait)

	// Other keys are independent.
	ok, _, err = th.Acquire(ctx, "5559876543", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryThrottle_ExpiresAndPrunes(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	th := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		ok, _, err := th.Acquire(ctx, k, 30*time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 3, th.Len())

	now = now.Add(30 * time.Second)
	ok, _, err := th.Acquire(ctx, "a", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, th.Len())
}

func TestMemoryThrottle_ConcurrentSingleWinner(t *testing.T) {
	th := NewMemory(nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _, _ := th.Acquire(context.Background(), "k", time.Minute)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

type fakeRedis struct {
	held    map[string]bool
	pttl    time.Duration
	setErr  error
	pttlErr error
	keys    []string
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ any, _ time.Duration) *redis.BoolCmd {
	f.keys = append(f.keys, key)
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if f.held[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.held[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) PTTL(_ context.Context, _ string) *redis.DurationCmd {
	return redis.NewDurationResult(f.pttl, f.pttlErr)
}

func TestRedisThrottle_Acquire(t *testing.T) {
	fake := &fakeRedis{held: map[string]bool{}, pttl: 12 * time.Second}
	th := &RedisThrottle{client: fake}
	ctx := context.Background()

	ok, _, err := th.Acquire(ctx, "voicemail:5551234567", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, wait, err := th.Acquire(ctx, "voicemail:5551234567", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 12*time.Second, wait)
	assert.Equal(t, KeyPrefix+"voicemail:5551234567", fake.keys[0])
}

func TestRedisThrottle_MissingTTLReportsWindow(t *testing.T) {
	fake := &fakeRedis{held: map[string]bool{KeyPrefix + "k": true}, pttl: -2}
	th := &RedisThrottle{client: fake}

	ok, wait, err := th.Acquire(context.Background(), "k", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, wait)
}

func TestRedisThrottle_Errors(t *testing.T) {
	th := &RedisThrottle{client: &fakeRedis{held: map[string]bool{}, setErr: errors.New("conn refused")}}
	_, _, err := th.Acquire(context.Background(), "k", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle: set k")

	th = &RedisThrottle{client: &fakeRedis{held: map[string]bool{KeyPrefix + "k": true}, pttlErr: errors.New("boom")}}
	_, _, err = th.Acquire(context.Background(), "k", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle: pttl k")
}

// Runs against a real Redis when PESTLINE_TEST_REDIS_URL is set.
func TestRedisThrottle_Live(t *testing.T) {
	url := os.Getenv("PESTLINE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping Redis-dependent test: PESTLINE_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	th, closeFn, err := NewRedisFromURL(ctx, url)
	if err != nil {
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	t.Cleanup(func() { _ = closeFn() })

	key := "test:" + time.Now().Format(time.RFC3339Nano)
	ok, _, err := th.Acquire(ctx, key, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, wait, err := th.Acquire(ctx, key, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 2*time.Second)
}
