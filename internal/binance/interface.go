package binance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"candle-signals/internal/candle"
)

// DefaultLimit is the number of klines requested when none is given
const DefaultLimit = 100

// ErrInvalidInterval is returned for intervals outside SupportedIntervals
var ErrInvalidInterval = errors.New("invalid interval")

// SupportedIntervals are the kline intervals the analytics accept
var SupportedIntervals = []string{"4h", "8h", "1d", "3d", "1w", "1M"}

var intervalDurations = map[string]time.Duration{
	"4h": 4 * time.Hour,
	"8h": 8 * time.Hour,
	"1d": 24 * time.Hour,
	"3d": 72 * time.Hour,
	"1w": 7 * 24 * time.Hour,
	"1M": 30 * 24 * time.Hour,
}

// ValidateInterval checks that interval is one of SupportedIntervals
func ValidateInterval(interval string) error {
	if _, ok := intervalDurations[interval]; !ok {
		return fmt.Errorf("%w: %q (supported: %v)", ErrInvalidInterval, interval, SupportedIntervals)
	}
	return nil
}

// IntervalDuration returns the nominal length of one candle
func IntervalDuration(interval string) (time.Duration, error) {
	if err := ValidateInterval(interval); err != nil {
		return 0, err
	}
	return intervalDurations[interval], nil
}

// KlineRequest selects a range of klines for one symbol. Times are epoch
// milliseconds.
type KlineRequest struct {
	Symbol    string
	Interval  string
	StartTime *int64
	EndTime   *int64
	Limit     int
	Priority  RequestPriority
}

func (r KlineRequest) limit() int {
	if r.Limit <= 0 {
		return DefaultLimit
	}
	return r.Limit
}

// CandleSource supplies raw kline tuples. An empty payload is not an error.
type CandleSource interface {
	Fetch(ctx context.Context, req KlineRequest) ([]candle.RawCandle, error)
}

// SourceError wraps a transport or API failure for one symbol
type SourceError struct {
	Symbol     string
	StatusCode int
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("source error for %s (status %d): %v", e.Symbol, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("source error for %s: %v", e.Symbol, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Ensure every source implements CandleSource
var _ CandleSource = (*Client)(nil)
var _ CandleSource = (*MockSource)(nil)
var _ CandleSource = (*CachedSource)(nil)
