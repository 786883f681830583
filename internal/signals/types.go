package signals

import (
	"time"

	"candle-signals/internal/binance"
	"candle-signals/internal/candle"
	"candle-signals/internal/patterns"
)

// SignalGroup collects the symbols whose active candle matched one pattern at
// one impact tier
type SignalGroup struct {
	Pattern         string                 `json:"pattern"`
	PatternID       string                 `json:"patternId"`
	PatternType     patterns.PatternType   `json:"patternType"`
	FuturePotential candle.FuturePotential `json:"futurePotential"`
	Impact          candle.Impact          `json:"impact"`
	MatchedSymbols  []string               `json:"matchedSymbols"`
}

// SymbolCandles is the raw kline series fetched for one symbol
type SymbolCandles struct {
	Symbol  string
	Candles []candle.RawCandle
}

// Aggregation is the ungrouped output of Aggregate
type Aggregation struct {
	Groups      []SignalGroup       `json:"groups"`
	Diagnostics []candle.Diagnostic `json:"diagnostics"`
}

// Buckets splits groups by future potential for presentation
type Buckets struct {
	Bullish []SignalGroup `json:"bullish"`
	Neutral []SignalGroup `json:"neutral"`
	Bearish []SignalGroup `json:"bearish"`
}

// ScanRequest selects the candles and tiers of one scan. Zero values fall
// back to the scanner configuration.
type ScanRequest struct {
	Interval  string
	StartTime *int64
	EndTime   *int64
	Impacts   []candle.Impact
	Symbols   []string
	Priority  binance.RequestPriority
}

// ScanResult is one completed scan across the symbol list
type ScanResult struct {
	ScanID         string              `json:"scanId"`
	Interval       string              `json:"interval"`
	StartTime      *int64              `json:"startTime,omitempty"`
	EndTime        *int64              `json:"endTime,omitempty"`
	StartedAt      time.Time           `json:"startedAt"`
	DurationMs     int64               `json:"durationMs"`
	SymbolsScanned int                 `json:"symbolsScanned"`
	SymbolsFailed  int                 `json:"symbolsFailed"`
	ImpactFilter   []candle.Impact     `json:"impactFilter"`
	Groups         []SignalGroup       `json:"groups"`
	Buckets        Buckets             `json:"buckets"`
	Diagnostics    []candle.Diagnostic `json:"diagnostics"`
}

// Config holds scanner configuration
type Config struct {
	Enabled         bool
	RefreshInterval time.Duration
	WorkerCount     int
	Window          int
	Interval        string
	Limit           int
	Symbols         []string
	Impacts         []candle.Impact
	SignalTTL       time.Duration
	// KeepSnapshots bounds the stored history per interval; 0 keeps everything
	KeepSnapshots int
}
