package database

import "time"

// SignalSnapshot is a persisted signal scan
type SignalSnapshot struct {
	ID             int64               `json:"id"`
	ScanID         string              `json:"scan_id"`
	Interval       string              `json:"interval"`
	StartTime      *int64              `json:"start_time,omitempty"`
	EndTime        *int64              `json:"end_time,omitempty"`
	ImpactFilter   []string            `json:"impact_filter"`
	SymbolsScanned int                 `json:"symbols_scanned"`
	SymbolsFailed  int                 `json:"symbols_failed"`
	GroupCount     int                 `json:"group_count"`
	DurationMs     int64               `json:"duration_ms"`
	CreatedAt      time.Time           `json:"created_at"`
	Groups         []SignalGroupRecord `json:"groups"`
}

// SignalGroupRecord is one pattern group of a snapshot
type SignalGroupRecord struct {
	Position        int      `json:"position"`
	PatternID       string   `json:"pattern_id"`
	Pattern         string   `json:"pattern"`
	FuturePotential string   `json:"future_potential"`
	Impact          string   `json:"impact"`
	MatchedSymbols  []string `json:"matched_symbols"`
}
