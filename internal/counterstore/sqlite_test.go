package counterstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"imagegate/internal/models"
	"imagegate/internal/ratelimit"
)

func newSQLiteTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "counters.db")
	store, err := NewSQLiteStore(models.DatabaseConfig{DSN: dbPath}, opts...)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newSQLiteTestStore(t)

	testCounterStore(t, store)
}

func TestSQLiteStore_Expiry(t *testing.T) {
	clock := newTestClock()
	store := newSQLiteTestStore(t, WithClock(clock.Now))

	testCounterExpiry(t, store, clock.Advance)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(models.DatabaseConfig{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to create in-memory SQLite store: %v", err)
	}
	defer store.Close()

	for i := int64(1); i <= 3; i++ {
		n, err := store.Incr(context.Background(), "k")
		if err != nil {
			t.Fatalf("Incr failed: %v", err)
		}
		if n != i {
			t.Errorf("Expected %d, got %d", i, n)
		}
	}
}

func TestSQLiteStore_Purge(t *testing.T) {
	clock := newTestClock()
	store := newSQLiteTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	if _, err := store.Incr(ctx, "short"); err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if err := store.Expire(ctx, "short", time.Second); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if _, err := store.Incr(ctx, "forever"); err != nil {
		t.Fatalf("Incr failed: %v", err)
	}

	clock.Advance(time.Minute)
	store.purge()

	var count int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM quota_counters").Scan(&count); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row after purge, got %d", count)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "counters.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(models.DatabaseConfig{DSN: dbPath})
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	if _, err := first.Incr(ctx, "k"); err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(models.DatabaseConfig{DSN: dbPath})
	if err != nil {
		t.Fatalf("Failed to reopen SQLite store: %v", err)
	}
	defer second.Close()

	n, err := second.Incr(ctx, "k")
	if err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected counter to persist across reopen, got %d", n)
	}
}

func TestSQLiteStoreErrors(t *testing.T) {
	t.Run("Empty Connection String", func(t *testing.T) {
		_, err := NewSQLiteStore(models.DatabaseConfig{})
		if err == nil {
			t.Error("Expected error for empty connection string")
		}
	})

	t.Run("Closed Database", func(t *testing.T) {
		store, err := NewSQLiteStore(models.DatabaseConfig{DSN: ":memory:"})
		if err != nil {
			t.Fatalf("Failed to create SQLite store: %v", err)
		}
		store.Close()

		_, err = store.Incr(context.Background(), "k")
		if !errors.Is(err, ratelimit.ErrStoreUnavailable) {
			t.Errorf("Expected ErrStoreUnavailable, got %v", err)
		}
	})
}
