// Package counterstore provides the shared counter backends behind the
// weekly quota. Every backend implements ratelimit.CounterStore with an
// atomic increment and an idempotent expire.
//
// Backends:
//   - rest: Upstash-compatible REST endpoint (the production store)
//   - redis: any Redis server, through go-redis
//   - postgres: a quota_counters table, through pgx
//   - sqlite: the same table in a local SQLite file
//   - memory: a process-local map, for development and tests
package counterstore

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"imagegate/internal/ratelimit"
)

// Store is a CounterStore that can be health-checked and released.
type Store interface {
	ratelimit.CounterStore

	// Ping verifies the backend is reachable with the configured credentials.
	Ping(ctx context.Context) error

	// Close releases connections and stops background goroutines.
	Close() error
}

type options struct {
	now             func() time.Time
	cleanupInterval time.Duration
	httpClient      *http.Client
	userAgent       string
	logger          *slog.Logger
}

// Option configures a backend. Options a backend has no use for are ignored.
type Option func(*options)

// WithClock overrides the time source used for expiry bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithCleanupInterval sets how often expired counters are purged by the
// memory and SQL backends. Zero disables purging.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		o.cleanupInterval = d
	}
}

// WithHTTPClient replaces the REST backend's HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithUserAgent sets the User-Agent of REST backend requests.
func WithUserAgent(ua string) Option {
	return func(o *options) {
		o.userAgent = ua
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ttlSeconds rounds a TTL up to whole seconds, with a floor of one second.
func ttlSeconds(ttl time.Duration) int64 {
	secs := int64(math.Ceil(ttl.Seconds()))
	return max(secs, 1)
}
