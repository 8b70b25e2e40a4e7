package counterstore

import (
	"context"
	"os"
	"testing"
	"time"

	"imagegate/internal/models"
)

func getPostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

func newPostgresTestStore(t *testing.T, opts ...Option) *PostgresStore {
	t.Helper()
	dsn := getPostgresDSN(t)
	s, err := NewPostgresStore(models.DatabaseConfig{DSN: dsn, MaxOpenConns: 5}, opts...)
	if err != nil {
		t.Fatalf("failed to create postgres store: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(context.Background(), "DELETE FROM quota_counters WHERE counter_key LIKE '%Test%'")
		s.Close()
	})
	return s
}

func TestPostgresStoreConnectionError(t *testing.T) {
	_, err := NewPostgresStore(models.DatabaseConfig{DSN: ""})
	if err == nil {
		t.Error("expected error for empty connection string")
	}
}

func TestPostgresStoreInvalidDSN(t *testing.T) {
	_, err := NewPostgresStore(models.DatabaseConfig{DSN: "postgres://invalid:5432/nonexistent?connect_timeout=1"})
	if err == nil {
		t.Error("expected error for invalid DSN")
	}
}

func TestPostgresStore(t *testing.T) {
	s := newPostgresTestStore(t)

	testCounterStore(t, s)
}

func TestPostgresStore_Expiry(t *testing.T) {
	clock := newTestClock()
	s := newPostgresTestStore(t, WithClock(clock.Now))

	testCounterExpiry(t, s, clock.Advance)
}

func TestPostgresStore_Purge(t *testing.T) {
	clock := newTestClock()
	s := newPostgresTestStore(t, WithClock(clock.Now))
	ctx := context.Background()
	key := "purge:" + t.Name()

	if _, err := s.Incr(ctx, key); err != nil {
		t.Fatalf("Incr failed: %v", err)
	}
	if err := s.Expire(ctx, key, time.Second); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}

	clock.Advance(time.Minute)
	s.purge()

	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM quota_counters WHERE counter_key = $1", key).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected expired row to be purged, %d left", count)
	}
}
