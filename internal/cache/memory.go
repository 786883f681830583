package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is a thread-safe in-process cache used when Redis is disabled.
// Values are stored as JSON so that callers see the same copy semantics as
// with Redis.
type MemoryCache struct {
	entries sync.Map // key -> *memoryEntry

	hitCount  int64
	missCount int64

	sweepMu   sync.Mutex
	lastSweep time.Time

	now func() time.Time
}

// sweepInterval bounds how often SetJSON scans for expired entries
const sweepInterval = time.Minute

// NewMemoryCache creates an empty in-process cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

// IsHealthy always reports true
func (m *MemoryCache) IsHealthy() bool {
	return true
}

// GetJSON unmarshals the cached value into dest or returns ErrCacheMiss
func (m *MemoryCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if val, ok := m.entries.Load(key); ok {
		entry := val.(*memoryEntry)
		if entry.expiresAt.IsZero() || m.now().Before(entry.expiresAt) {
			atomic.AddInt64(&m.hitCount, 1)
			if err := json.Unmarshal(entry.data, dest); err != nil {
				return fmt.Errorf("failed to unmarshal cached value: %w", err)
			}
			return nil
		}
		m.entries.Delete(key)
	}
	atomic.AddInt64(&m.missCount, 1)
	return ErrCacheMiss
}

// SetJSON stores value with a TTL. A zero TTL never expires.
func (m *MemoryCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	entry := &memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries.Store(key, entry)
	m.maybeSweep()
	return nil
}

// maybeSweep drops expired entries, at most once per sweepInterval. GetJSON
// only evicts the key it reads.
func (m *MemoryCache) maybeSweep() {
	now := m.now()

	m.sweepMu.Lock()
	if now.Sub(m.lastSweep) < sweepInterval {
		m.sweepMu.Unlock()
		return
	}
	m.lastSweep = now
	m.sweepMu.Unlock()

	m.entries.Range(func(key, val interface{}) bool {
		entry := val.(*memoryEntry)
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			m.entries.Delete(key)
		}
		return true
	})
}

// Delete removes a key
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.entries.Delete(key)
	return nil
}

// Clear removes every entry
func (m *MemoryCache) Clear() {
	m.entries.Range(func(key, _ interface{}) bool {
		m.entries.Delete(key)
		return true
	})
}

// GetStats returns hit and miss counters
func (m *MemoryCache) GetStats() Stats {
	entries := 0
	m.entries.Range(func(_, _ interface{}) bool {
		entries++
		return true
	})
	return Stats{
		Backend: "memory",
		Healthy: true,
		Entries: entries,
		Hits:    atomic.LoadInt64(&m.hitCount),
		Misses:  atomic.LoadInt64(&m.missCount),
	}
}
