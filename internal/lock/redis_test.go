package lock

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, cfg RedisConfig) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)
	return NewRedisLocker(client, cfg, &logger), mr
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	l, mr := newRedisLocker(t, RedisConfig{Wait: 50 * time.Millisecond, Retry: 5 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "professional:7")
	require.NoError(t, err)
	assert.True(t, mr.Exists("scheduler:lock:professional:7"))

	_, err = l.Lock(context.Background(), "professional:7")
	assert.ErrorIs(t, err, ErrNotAcquired)

	unlock()
	assert.False(t, mr.Exists("scheduler:lock:professional:7"))

	unlock, err = l.Lock(context.Background(), "professional:7")
	require.NoError(t, err)
	unlock()
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newRedisLocker(t, RedisConfig{TTL: time.Second, Wait: 50 * time.Millisecond, Retry: 5 * time.Millisecond})

	unlockFirst, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// First holder's lease expires and another instance takes the key.
	mr.FastForward(2 * time.Second)
	unlockSecond, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	unlockFirst()
	assert.True(t, mr.Exists("scheduler:lock:k"))

	unlockSecond()
	assert.False(t, mr.Exists("scheduler:lock:k"))
}

func TestRedisLockerContextCanceled(t *testing.T) {
	l, _ := newRedisLocker(t, RedisConfig{Wait: time.Second, Retry: 5 * time.Millisecond})

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
