package counterstore

import (
	"fmt"

	"imagegate/internal/models"
)

// Factory builds the configured backend.
type Factory struct {
	opts []Option
}

// NewFactory creates a factory whose options are passed to every backend it builds.
func NewFactory(opts ...Option) *Factory {
	return &Factory{opts: opts}
}

// Create instantiates a counter store based on the provided configuration.
// Supported providers:
//   - rest: Upstash-compatible REST endpoint
//   - redis: Redis server via go-redis
//   - memory: in-process counters (single instance only)
//   - postgres: PostgreSQL table via pgx
//   - sqlite: SQLite table via modernc.org/sqlite
//
// The rest provider never fails here, even without credentials; missing
// credentials surface on the first command instead.
func (f *Factory) Create(config models.StoreConfig) (Store, error) {
	opts := append([]Option{WithCleanupInterval(config.CleanupInterval)}, f.opts...)

	switch config.Type {
	case models.StoreTypeREST:
		return NewRESTStore(config.REST, opts...), nil
	case models.StoreTypeRedis:
		return NewRedisStore(config.Redis, opts...)
	case models.StoreTypeMemory:
		return NewMemoryStore(opts...), nil
	case models.StoreTypePostgres:
		return NewPostgresStore(config.Database, opts...)
	case models.StoreTypeSQLite:
		return NewSQLiteStore(config.Database, opts...)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// SupportedProviders returns a list of all supported counter store types
func (f *Factory) SupportedProviders() []string {
	return []string{
		models.StoreTypeREST,
		models.StoreTypeRedis,
		models.StoreTypeMemory,
		models.StoreTypePostgres,
		models.StoreTypeSQLite,
	}
}
