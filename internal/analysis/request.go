// Package analysis runs the full candle pipeline for one symbol and reports
// the patterns matched on every candle.
package analysis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"candle-signals/internal/binance"
)

// ErrInvalidRequest is matched by request validation failures other than
// an unsupported interval
var ErrInvalidRequest = errors.New("invalid analysis request")

const (
	DefaultSymbol   = "BTCUSDT"
	DefaultInterval = "8h"
)

// Request selects the candles of one analysis. Times are epoch milliseconds.
// SliceStart and SliceEnd cut the fetched list before enrichment with
// sequence-slice semantics: negative values count from the end.
type Request struct {
	Symbol     string `json:"symbol"`
	Interval   string `json:"interval"`
	StartTime  *int64 `json:"startTime,omitempty"`
	EndTime    *int64 `json:"endTime,omitempty"`
	SliceStart *int   `json:"sliceStart,omitempty"`
	SliceEnd   *int   `json:"sliceEnd,omitempty"`
}

// Normalize fills defaults and validates the interval
func (r *Request) Normalize() error {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Symbol == "" {
		r.Symbol = DefaultSymbol
	}
	if r.Interval == "" {
		r.Interval = DefaultInterval
	}
	if err := binance.ValidateInterval(r.Interval); err != nil {
		return err
	}
	if r.StartTime != nil && r.EndTime != nil && *r.StartTime > *r.EndTime {
		return fmt.Errorf("%w: start time %d is after end time %d", ErrInvalidRequest, *r.StartTime, *r.EndTime)
	}
	return nil
}

// ParseCandleLength parses the legacy "start,end" slice form. Both halves
// must be integers, otherwise no slice applies.
func ParseCandleLength(s string) (start, end *int) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, nil
	}
	lo, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, nil
	}
	return &lo, &hi
}

// Slice resolves slice bounds against a list of n items. Nil bounds mean the
// start or end of the list, negative bounds count from the end, and
// out-of-range bounds are clamped. The result always satisfies
// 0 <= lo <= hi <= n.
func Slice(n int, start, end *int) (lo, hi int) {
	lo, hi = 0, n
	if start != nil {
		lo = clamp(*start, n)
	}
	if end != nil {
		hi = clamp(*end, n)
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

func clamp(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
