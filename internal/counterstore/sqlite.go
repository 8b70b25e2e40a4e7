package counterstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"imagegate/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS quota_counters (
	counter_key   TEXT PRIMARY KEY,
	counter_value INTEGER NOT NULL,
	expires_at    INTEGER
)`

const sqliteIncr = `
INSERT INTO quota_counters (counter_key, counter_value, expires_at)
VALUES (?1, 1, NULL)
ON CONFLICT (counter_key) DO UPDATE SET
	counter_value = CASE
		WHEN quota_counters.expires_at IS NOT NULL AND quota_counters.expires_at <= ?2 THEN 1
		ELSE quota_counters.counter_value + 1
	END,
	expires_at = CASE
		WHEN quota_counters.expires_at IS NOT NULL AND quota_counters.expires_at <= ?2 THEN NULL
		ELSE quota_counters.expires_at
	END
RETURNING counter_value`

const sqliteExpire = `UPDATE quota_counters SET expires_at = ?2 WHERE counter_key = ?1`

const sqlitePurge = `DELETE FROM quota_counters WHERE expires_at IS NOT NULL AND expires_at <= ?1`

// SQLiteStore keeps counters in a local SQLite database. It serializes all
// access through one connection, which also makes ":memory:" usable.
type SQLiteStore struct {
	db      *sql.DB
	now     func() time.Time
	logger  *slog.Logger
	janitor *janitor
}

func NewSQLiteStore(cfg models.DatabaseConfig, opts ...Option) (*SQLiteStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("connection string is required for SQLite store")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create quota_counters table: %w", err)
	}

	o := buildOptions(opts)
	ss := &SQLiteStore{
		db:     db,
		now:    o.now,
		logger: o.logger,
	}
	ss.janitor = startJanitor(o.cleanupInterval, ss.purge)
	return ss, nil
}

func (ss *SQLiteStore) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	if err := ss.db.QueryRowContext(ctx, sqliteIncr, key, ss.now().UnixMilli()).Scan(&n); err != nil {
		return 0, &StoreError{Op: "INCR", Key: key, Err: err}
	}
	return n, nil
}

func (ss *SQLiteStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	expiresAt := ss.now().Add(time.Duration(ttlSeconds(ttl)) * time.Second).UnixMilli()
	if _, err := ss.db.ExecContext(ctx, sqliteExpire, key, expiresAt); err != nil {
		return &StoreError{Op: "EXPIRE", Key: key, Err: err}
	}
	return nil
}

func (ss *SQLiteStore) Ping(ctx context.Context) error {
	if err := ss.db.PingContext(ctx); err != nil {
		return &StoreError{Op: "PING", Err: err}
	}
	return nil
}

func (ss *SQLiteStore) Close() error {
	ss.janitor.stop()
	return ss.db.Close()
}

func (ss *SQLiteStore) purge() {
	res, err := ss.db.Exec(sqlitePurge, ss.now().UnixMilli())
	if err != nil {
		ss.logger.Warn("Failed to purge expired counters", "backend", "sqlite", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		ss.logger.Debug("Purged expired counters", "backend", "sqlite", "count", n)
	}
}
