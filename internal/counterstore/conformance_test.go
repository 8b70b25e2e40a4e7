package counterstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCounterStore runs the behaviour every backend must share. Keys are
// suffixed with the test name so a persistent backend can be reused.
func testCounterStore(t *testing.T, store Store) {
	ctx := context.Background()
	suffix := fmt.Sprintf("%s:%d", t.Name(), time.Now().UnixNano())

	t.Run("Monotonic", func(t *testing.T) {
		key := "mono:" + suffix
		for i := int64(1); i <= 5; i++ {
			n, err := store.Incr(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}
	})

	t.Run("Isolation", func(t *testing.T) {
		a, b := "iso:a:"+suffix, "iso:b:"+suffix
		for i := 0; i < 3; i++ {
			_, err := store.Incr(ctx, a)
			require.NoError(t, err)
		}
		n, err := store.Incr(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = store.Incr(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("ExpireIsIdempotent", func(t *testing.T) {
		key := "ttl:" + suffix
		_, err := store.Incr(ctx, key)
		require.NoError(t, err)

		require.NoError(t, store.Expire(ctx, key, time.Hour))
		require.NoError(t, store.Expire(ctx, key, time.Hour))

		n, err := store.Incr(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("ExpireMissingKey", func(t *testing.T) {
		assert.NoError(t, store.Expire(ctx, "missing:"+suffix, time.Hour))
	})

	t.Run("ConcurrentIncrements", func(t *testing.T) {
		key := "conc:" + suffix
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Incr(ctx, key)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		n, err := store.Incr(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(21), n)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

// testCounterExpiry checks that a counter restarts once its TTL has passed.
// advance moves the backend's clock forward.
func testCounterExpiry(t *testing.T, store Store, advance func(time.Duration)) {
	ctx := context.Background()
	key := "expiry:" + t.Name()

	for i := 0; i < 3; i++ {
		_, err := store.Incr(ctx, key)
		require.NoError(t, err)
	}
	require.NoError(t, store.Expire(ctx, key, time.Minute))

	advance(30 * time.Second)
	n, err := store.Incr(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "counter must survive before its TTL")

	// Re-arming pushes the deadline out again.
	require.NoError(t, store.Expire(ctx, key, time.Minute))
	advance(45 * time.Second)
	n, err = store.Incr(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n, "re-armed counter must survive")

	advance(2 * time.Minute)
	n, err = store.Incr(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "expired counter must restart")
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
