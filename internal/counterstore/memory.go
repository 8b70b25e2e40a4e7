package counterstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     int64
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore keeps counters in process memory. Counters are not shared
// between processes, so it only enforces quotas for single-instance
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
	janitor *janitor
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	m := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     o.now,
	}
	m.janitor = startJanitor(o.cleanupInterval, m.evictExpired)
	return m
}

func (m *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.entries[key]
	if !exists || e.expired(m.now()) {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	e.value++
	return e.value, nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, exists := m.entries[key]
	if !exists || e.expired(now) {
		return nil
	}
	e.expiresAt = now.Add(time.Duration(ttlSeconds(ttl)) * time.Second)
	return nil
}

// TTL returns the remaining lifetime of key. ok is false for missing or
// expired keys and for keys without an expiry.
func (m *MemoryStore) TTL(key string) (ttl time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, exists := m.entries[key]
	if !exists || e.expired(now) || e.expiresAt.IsZero() {
		return 0, false
	}
	return e.expiresAt.Sub(now), true
}

// Len reports how many counters are held, including expired ones not yet purged.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	m.janitor.stop()
	return nil
}

func (m *MemoryStore) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, key)
		}
	}
}
