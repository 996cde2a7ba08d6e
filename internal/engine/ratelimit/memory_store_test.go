package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FixedWindow(t *testing.T) {
	fc := clockwork.NewFakeClock()
	store := NewMemoryStore(fc, time.Hour)
	defer store.Close()

	l := NewLimiter(store, 2, time.Minute, nil, zerolog.Nop())
	ctx := context.Background()

	assert.True(t, l.Check(ctx, "key_1").Allowed)
	fc.Advance(20 * time.Second)
	assert.True(t, l.Check(ctx, "key_1").Allowed)

	d := l.Check(ctx, "key_1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.ResetIn)

	fc.Advance(40 * time.Second)
	d = l.Check(ctx, "key_1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestMemoryStore_EvictsExpiredWindows(t *testing.T) {
	fc := clockwork.NewFakeClock()
	store := NewMemoryStore(fc, 10*time.Minute)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := store.Increment(ctx, "key_1", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(10 * time.Minute)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_IncrementSkipsEvictedBucket(t *testing.T) {
	fc := clockwork.NewFakeClock()
	store := NewMemoryStore(fc, time.Hour)
	defer store.Close()
	ctx := context.Background()

	_, err := store.Increment(ctx, "key_1", time.Minute)
	require.NoError(t, err)
	val, ok := store.windows.Load("key_1")
	require.True(t, ok)
	stale := val.(*bucket)

	fc.Advance(time.Minute)
	store.evictExpired()
	require.Equal(t, 0, store.Len())

	// An Increment that loaded the bucket just before the sweep still sees it in the map.
	store.windows.Store("key_1", stale)

	c, err := store.Increment(ctx, "key_1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
	assert.Equal(t, time.Minute, c.TTL)

	val, ok = store.windows.Load("key_1")
	require.True(t, ok)
	assert.NotSame(t, stale, val.(*bucket))
	assert.Equal(t, int64(1), stale.count)

	c, err = store.Increment(ctx, "key_1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Count)
}
