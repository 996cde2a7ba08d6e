package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ calls int }

func (f *failingStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	f.calls++
	return Counter{}, errors.New("connection refused")
}

func newRedisLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(NewRedisStore(client), limit, window, nil, zerolog.Nop()), mr
}

func TestLimiter_AllowsUpToLimitThenDenies(t *testing.T) {
	l, mr := newRedisLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		d := l.Check(ctx, "key_1")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 3-i, d.Remaining)
		assert.Equal(t, 3, d.Limit)
		assert.False(t, d.Degraded)
	}

	d := l.Check(ctx, "key_1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.LessOrEqual(t, d.ResetIn, time.Minute)
	assert.Greater(t, d.ResetIn, time.Duration(0))
	assert.LessOrEqual(t, d.ResetSeconds(), 60)

	assert.Equal(t, time.Minute, mr.TTL("ratelimit:key_1"))

	// Keys are independent.
	assert.True(t, l.Check(ctx, "key_2").Allowed)

	mr.FastForward(time.Minute)
	assert.True(t, l.Check(ctx, "key_1").Allowed)
}

func TestRedisStore_RepairsMissingExpiry(t *testing.T) {
	l, mr := newRedisLimiter(t, 10, 30*time.Second)
	require.NoError(t, mr.Set("ratelimit:key_9", "4"))

	d := l.Check(context.Background(), "key_9")
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, d.Remaining)
	assert.Equal(t, 30*time.Second, mr.TTL("ratelimit:key_9"))
}

func TestLimiter_FailsOpen(t *testing.T) {
	store := &failingStore{}
	l := NewLimiter(store, 1, time.Minute, nil, zerolog.Nop())

	for i := 0; i < 10; i++ {
		d := l.Check(context.Background(), "key_1")
		assert.True(t, d.Allowed)
		assert.True(t, d.Degraded)
	}
	assert.Equal(t, 10, store.calls)
}

func TestLimiter_FailsOpenWhenRedisIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: 1})
	defer client.Close()
	mr.Close()

	l := NewLimiter(NewRedisStore(client), 1, time.Minute, nil, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := l.Check(ctx, "key_1")
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)
}

func TestDecision_ResetSeconds(t *testing.T) {
	assert.Equal(t, 1, Decision{ResetIn: 0}.ResetSeconds())
	assert.Equal(t, 1, Decision{ResetIn: 200 * time.Millisecond}.ResetSeconds())
	assert.Equal(t, 43, Decision{ResetIn: 42*time.Second + time.Millisecond}.ResetSeconds())
	assert.Equal(t, 60, Decision{ResetIn: time.Minute}.ResetSeconds())
}
