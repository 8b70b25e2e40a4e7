package counterstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"imagegate/internal/models"
)

// expires_at is Unix milliseconds; NULL means the counter never expires.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS quota_counters (
	counter_key   TEXT PRIMARY KEY,
	counter_value BIGINT NOT NULL,
	expires_at    BIGINT
)`

// An expired row is restarted at 1 inside the same statement, so a stale
// counter is never observed even before the janitor removes it.
const postgresIncr = `
INSERT INTO quota_counters (counter_key, counter_value, expires_at)
VALUES ($1, 1, NULL)
ON CONFLICT (counter_key) DO UPDATE SET
	counter_value = CASE
		WHEN quota_counters.expires_at IS NOT NULL AND quota_counters.expires_at <= $2 THEN 1
		ELSE quota_counters.counter_value + 1
	END,
	expires_at = CASE
		WHEN quota_counters.expires_at IS NOT NULL AND quota_counters.expires_at <= $2 THEN NULL
		ELSE quota_counters.expires_at
	END
RETURNING counter_value`

const postgresExpire = `UPDATE quota_counters SET expires_at = $2 WHERE counter_key = $1`

const postgresPurge = `DELETE FROM quota_counters WHERE expires_at IS NOT NULL AND expires_at <= $1`

// PostgresStore keeps counters in a PostgreSQL table through a pgx pool.
type PostgresStore struct {
	pool    *pgxpool.Pool
	now     func() time.Time
	logger  *slog.Logger
	janitor *janitor
}

func NewPostgresStore(cfg models.DatabaseConfig, opts ...Option) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL store")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create quota_counters table: %w", err)
	}

	o := buildOptions(opts)
	ps := &PostgresStore{
		pool:   pool,
		now:    o.now,
		logger: o.logger,
	}
	ps.janitor = startJanitor(o.cleanupInterval, ps.purge)
	return ps, nil
}

func (ps *PostgresStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	if err := ps.pool.QueryRow(ctx, postgresIncr, key, ps.now().UnixMilli()).Scan(&n); err != nil {
		return 0, &StoreError{Op: "INCR", Key: key, Err: err}
	}
	return n, nil
}

func (ps *PostgresStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	expiresAt := ps.now().Add(time.Duration(ttlSeconds(ttl)) * time.Second).UnixMilli()
	if _, err := ps.pool.Exec(ctx, postgresExpire, key, expiresAt); err != nil {
		return &StoreError{Op: "EXPIRE", Key: key, Err: err}
	}
	return nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	if err := ps.pool.Ping(ctx); err != nil {
		return &StoreError{Op: "PING", Err: err}
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	ps.janitor.stop()
	ps.pool.Close()
	return nil
}

func (ps *PostgresStore) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tag, err := ps.pool.Exec(ctx, postgresPurge, ps.now().UnixMilli())
	if err != nil {
		ps.logger.Warn("Failed to purge expired counters", "backend", "postgres", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		ps.logger.Debug("Purged expired counters", "backend", "postgres", "count", n)
	}
}
