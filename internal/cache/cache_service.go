// Package cache provides Redis-based caching for klines and signal snapshots,
// with an in-process fallback when Redis is disabled.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"candle-signals/config"
	"candle-signals/internal/logging"
)

// Store is the subset of cache operations the services depend on
type Store interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	IsHealthy() bool
	GetStats() Stats
}

var (
	_ Store = (*CacheService)(nil)
	_ Store = (*MemoryCache)(nil)
)

// Key formats
const (
	PrefixSignals    = "signals:%s:%s"     // interval, impact filter
	PrefixLatestScan = "signals:latest:%s" // interval
)

// Stats describes a cache backend for the health endpoint
type Stats struct {
	Backend      string `json:"backend"`
	Healthy      bool   `json:"healthy"`
	FailureCount int    `json:"failure_count,omitempty"`
	Address      string `json:"address,omitempty"`
	Entries      int    `json:"entries,omitempty"`
	Hits         int64  `json:"hits"`
	Misses       int64  `json:"misses"`
}

// CacheService is the Redis store. After maxFailures consecutive errors it
// stops talking to Redis and fails fast with ErrCacheUnavailable until a
// background ping succeeds again.
type CacheService struct {
	client *redis.Client
	addr   string
	log    *logging.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastProbe    time.Time

	maxFailures   int
	probeInterval time.Duration

	hits   int64
	misses int64
}

// NewCacheService connects to Redis. A failed initial ping still returns the
// service, unhealthy, so the caller can run without the cache.
func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, errors.New("redis is not enabled in configuration")
	}

	cs := &CacheService{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		addr:          cfg.Address,
		log:           logging.WithComponent("cache"),
		maxFailures:   3,
		probeInterval: 30 * time.Second,
		lastProbe:     time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.log.WithError(err).Warn("Initial Redis connection failed, running degraded", "address", cfg.Address)
		return cs, nil
	}

	cs.healthy = true
	cs.log.Info("Redis connected", "address", cfg.Address)
	return cs, nil
}

// IsHealthy reports whether calls currently reach Redis
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

// guard runs op against Redis and keeps the failure accounting. redis.Nil
// is a miss, not a failure.
func (cs *CacheService) guard(op string, fn func() error) error {
	cs.maybeProbe()
	if !cs.IsHealthy() {
		return ErrCacheUnavailable
	}

	err := fn()
	switch {
	case err == nil:
		cs.markSuccess()
		return nil
	case errors.Is(err, redis.Nil):
		cs.markSuccess()
		return ErrCacheMiss
	default:
		cs.markFailure()
		return fmt.Errorf("redis %s failed: %w", op, err)
	}
}

func (cs *CacheService) markFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures && cs.healthy {
		cs.healthy = false
		cs.lastProbe = time.Now()
		cs.log.Warn("Redis marked unhealthy", "failures", cs.failureCount)
	}
}

func (cs *CacheService) markSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		cs.log.Info("Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
}

// maybeProbe pings Redis in the background while unhealthy, at most once per
// probeInterval
func (cs *CacheService) maybeProbe() {
	cs.mu.Lock()
	due := !cs.healthy && time.Since(cs.lastProbe) >= cs.probeInterval
	if due {
		cs.lastProbe = time.Now()
	}
	cs.mu.Unlock()

	if !due {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cs.client.Ping(ctx).Err(); err == nil {
			cs.markSuccess()
		}
	}()
}

// GetJSON loads key into dest. A missing key returns ErrCacheMiss.
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	err := cs.guard("get", func() error {
		var err error
		data, err = cs.client.Get(ctx, key).Bytes()
		return err
	})
	if errors.Is(err, ErrCacheMiss) {
		atomic.AddInt64(&cs.misses, 1)
	}
	if err != nil {
		return err
	}

	atomic.AddInt64(&cs.hits, 1)
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return nil
}

// SetJSON stores value as JSON with a TTL. A zero TTL never expires.
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return cs.guard("set", func() error {
		return cs.client.Set(ctx, key, data, ttl).Err()
	})
}

// Delete removes a key
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	return cs.guard("delete", func() error {
		return cs.client.Del(ctx, key).Err()
	})
}

// Close closes the Redis connection
func (cs *CacheService) Close() error {
	return cs.client.Close()
}

// GetStats returns the breaker state and hit counters
func (cs *CacheService) GetStats() Stats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return Stats{
		Backend:      "redis",
		Healthy:      cs.healthy,
		FailureCount: cs.failureCount,
		Address:      cs.addr,
		Hits:         atomic.LoadInt64(&cs.hits),
		Misses:       atomic.LoadInt64(&cs.misses),
	}
}

// SignalsKey is the key of an on-demand scan result
func SignalsKey(interval, filter string) string {
	return fmt.Sprintf(PrefixSignals, interval, filter)
}

// LatestScanKey is the key of the background scan snapshot
func LatestScanKey(interval string) string {
	return fmt.Sprintf(PrefixLatestScan, interval)
}
