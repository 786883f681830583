package binance

import (
	"context"
	"fmt"
	"time"

	"candle-signals/internal/candle"
	"candle-signals/internal/logging"
)

// KlineCache is satisfied by the Redis and in-process caches
type KlineCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedSource consults a cache before the wrapped source. Cache failures
// are logged and never fail the fetch.
type CachedSource struct {
	source CandleSource
	cache  KlineCache
	ttl    time.Duration
	log    *logging.Logger
}

// NewCachedSource wraps source with cache
func NewCachedSource(source CandleSource, cache KlineCache, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  cache,
		ttl:    ttl,
		log:    logging.WithComponent("kline-cache"),
	}
}

// Fetch implements CandleSource
func (s *CachedSource) Fetch(ctx context.Context, req KlineRequest) ([]candle.RawCandle, error) {
	key := klinesKey(req)

	var cached []candle.RawCandle
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return cached, nil
	}

	raws, err := s.source.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetJSON(ctx, key, raws, s.ttl); err != nil {
		s.log.WithError(err).Debug("Failed to cache klines", "symbol", req.Symbol, "interval", req.Interval)
	}
	return raws, nil
}

func klinesKey(req KlineRequest) string {
	bound := func(v *int64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%d", *v)
	}
	return fmt.Sprintf("klines:%s:%s:%s:%s:%d", req.Symbol, req.Interval, bound(req.StartTime), bound(req.EndTime), req.limit())
}
