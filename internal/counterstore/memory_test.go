package counterstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	testCounterStore(t, store)
}

func TestMemoryStore_Expiry(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore(WithClock(clock.Now))
	defer store.Close()

	testCounterExpiry(t, store, clock.Advance)
}

func TestMemoryStore_TTL(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore(WithClock(clock.Now))
	defer store.Close()
	ctx := context.Background()

	_, ok := store.TTL("k")
	assert.False(t, ok, "missing key has no TTL")

	_, err := store.Incr(ctx, "k")
	require.NoError(t, err)
	_, ok = store.TTL("k")
	assert.False(t, ok, "key without expiry has no TTL")

	require.NoError(t, store.Expire(ctx, "k", 1500*time.Millisecond))
	ttl, ok := store.TTL("k")
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, ttl, "TTL is rounded up to whole seconds")

	clock.Advance(time.Second)
	ttl, ok = store.TTL("k")
	require.True(t, ok)
	assert.Equal(t, time.Second, ttl)
}

func TestMemoryStore_ExpireDoesNotCreate(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	require.NoError(t, store.Expire(context.Background(), "ghost", time.Minute))
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_EvictExpired(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore(WithClock(clock.Now))
	defer store.Close()
	ctx := context.Background()

	_, err := store.Incr(ctx, "short")
	require.NoError(t, err)
	require.NoError(t, store.Expire(ctx, "short", time.Second))
	_, err = store.Incr(ctx, "forever")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	store.evictExpired()

	assert.Equal(t, 1, store.Len())
	_, ok := store.TTL("short")
	assert.False(t, ok)
}

func TestMemoryStore_JanitorRuns(t *testing.T) {
	clock := newTestClock()
	store := NewMemoryStore(WithClock(clock.Now), WithCleanupInterval(10*time.Millisecond))
	defer store.Close()

	_, err := store.Incr(context.Background(), "k")
	require.NoError(t, err)
	require.NoError(t, store.Expire(context.Background(), "k", time.Second))
	clock.Advance(time.Hour)

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMemoryStore_CloseIsIdempotent(t *testing.T) {
	store := NewMemoryStore(WithCleanupInterval(time.Millisecond))

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
