package analysis

import (
	"context"
	"errors"
	"testing"

	"candle-signals/internal/binance"
	"candle-signals/internal/candle"
	"candle-signals/internal/stats"
)

type fixedSource struct {
	raws []candle.RawCandle
	err  error
	last binance.KlineRequest
}

func (s *fixedSource) Fetch(ctx context.Context, req binance.KlineRequest) ([]candle.RawCandle, error) {
	s.last = req
	return s.raws, s.err
}

func raw(open, high, low, closePrice string) candle.RawCandle {
	return candle.RawCandle{float64(0), open, high, low, closePrice, "1", float64(0), "0", float64(1), "0", "0", "0"}
}

func intp(i int) *int { return &i }

// TestSlice tests clamped sequence-slice bounds
func TestSlice(t *testing.T) {
	tests := []struct {
		name       string
		start, end *int
		lo, hi     int
	}{
		{"no bounds", nil, nil, 0, 10},
		{"plain", intp(2), intp(5), 2, 5},
		{"negative start", intp(-3), nil, 7, 10},
		{"negative end", intp(0), intp(-1), 0, 9},
		{"out of range", intp(-50), intp(50), 0, 10},
		{"inverted", intp(6), intp(2), 2, 2},
		{"start past end of list", intp(12), nil, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := Slice(10, tt.start, tt.end)
			if lo != tt.lo || hi != tt.hi {
				t.Errorf("Expected [%d:%d], got [%d:%d]", tt.lo, tt.hi, lo, hi)
			}
		})
	}
}

// TestParseCandleLength tests the "start,end" form
func TestParseCandleLength(t *testing.T) {
	start, end := ParseCandleLength("-10, -2")
	if start == nil || end == nil || *start != -10 || *end != -2 {
		t.Errorf("Expected -10,-2, got %v,%v", start, end)
	}

	for _, s := range []string{"", "5", "a,3", "1,b", "1,2,3"} {
		if start, end := ParseCandleLength(s); start != nil || end != nil {
			t.Errorf("Expected no slice for %q", s)
		}
	}
}

// TestNormalize tests request defaults and validation
func TestNormalize(t *testing.T) {
	req := Request{Symbol: " ethusdt "}
	if err := req.Normalize(); err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if req.Symbol != "ETHUSDT" || req.Interval != DefaultInterval {
		t.Errorf("Unexpected defaults: %+v", req)
	}

	req = Request{Interval: "5m"}
	if err := req.Normalize(); !errors.Is(err, binance.ErrInvalidInterval) {
		t.Errorf("Expected ErrInvalidInterval, got %v", err)
	}

	from, to := int64(10), int64(5)
	req = Request{StartTime: &from, EndTime: &to}
	if err := req.Normalize(); err == nil {
		t.Error("Should reject a start time after the end time")
	}
}

// TestRunReportsEveryCandle tests per-candle patterns with their own past
func TestRunReportsEveryCandle(t *testing.T) {
	src := &fixedSource{raws: []candle.RawCandle{
		raw("105", "106", "100", "101"), // red
		raw("100", "107", "100", "107"), // engulfs it
		raw("100", "101", "99", "100"),  // doji
	}}
	a := NewAnalyzer(src, nil, stats.DefaultWindow, 100)

	result, err := a.Run(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if src.last.Symbol != DefaultSymbol || src.last.Interval != DefaultInterval || src.last.Limit != 100 {
		t.Errorf("Unexpected kline request: %+v", src.last)
	}
	if len(result.Candles) != 3 {
		t.Fatalf("Expected 3 candle reports, got %d", len(result.Candles))
	}
	if len(result.Candles[0].Patterns) != 0 {
		t.Errorf("First candle should match nothing, got %+v", result.Candles[0].Patterns)
	}

	hasEngulfing := false
	for _, m := range result.Candles[1].Patterns {
		if m.ID == "D001" {
			hasEngulfing = true
		}
	}
	if !hasEngulfing {
		t.Error("Should detect Bullish Engulfing on the second candle")
	}
	if result.Summary["D001"] != 1 || result.Summary["S003"] != 1 {
		t.Errorf("Unexpected summary: %v", result.Summary)
	}
}

// TestRunSlicesBeforeEnrichment tests the slice window
func TestRunSlicesBeforeEnrichment(t *testing.T) {
	src := &fixedSource{raws: []candle.RawCandle{
		raw("105", "106", "100", "101"),
		raw("100", "107", "100", "107"),
		raw("100", "101", "99", "100"),
	}}
	a := NewAnalyzer(src, nil, stats.DefaultWindow, 100)

	result, err := a.Run(context.Background(), Request{SliceStart: intp(1), SliceEnd: intp(-1)})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Candles) != 1 || result.SliceStart != 1 || result.SliceEnd != 2 {
		t.Fatalf("Expected one candle from [1:2], got %d from [%d:%d]", len(result.Candles), result.SliceStart, result.SliceEnd)
	}
	for _, m := range result.Candles[0].Patterns {
		if m.ID == "D001" {
			t.Error("Sliced-away candles should not be part of the past")
		}
	}
}

// TestRunDiagnostics tests that bad candles are reported, not fatal
func TestRunDiagnostics(t *testing.T) {
	src := &fixedSource{raws: []candle.RawCandle{
		{float64(0), "1"},
		raw("100", "100", "100", "100"),
		raw("100", "101", "99", "100"),
	}}
	a := NewAnalyzer(src, nil, stats.DefaultWindow, 100)

	result, err := a.Run(context.Background(), Request{Symbol: "SOLUSDT"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Candles) != 2 {
		t.Errorf("Expected 2 decoded candles, got %d", len(result.Candles))
	}
	if len(result.Diagnostics) != 2 {
		t.Fatalf("Expected decode and degenerate diagnostics, got %v", result.Diagnostics)
	}
	if result.Diagnostics[0].Kind != candle.DiagnosticDecode || result.Diagnostics[1].Kind != candle.DiagnosticDegenerate {
		t.Errorf("Unexpected diagnostics: %v", result.Diagnostics)
	}
	if result.Diagnostics[1].Index != 1 || result.Diagnostics[1].Symbol != "SOLUSDT" {
		t.Errorf("Diagnostics should carry raw index and symbol, got %+v", result.Diagnostics[1])
	}
}

// TestRunErrors tests fatal failures
func TestRunErrors(t *testing.T) {
	srcErr := &binance.SourceError{Symbol: "BTCUSDT", StatusCode: 500, Err: errors.New("boom")}
	a := NewAnalyzer(&fixedSource{err: srcErr}, nil, stats.DefaultWindow, 100)

	_, err := a.Run(context.Background(), Request{})
	var se *binance.SourceError
	if !errors.As(err, &se) {
		t.Errorf("Expected a SourceError, got %v", err)
	}

	a = NewAnalyzer(&fixedSource{raws: []candle.RawCandle{raw("1", "2", "1", "2")}}, nil, 0, 100)
	if _, err := a.Run(context.Background(), Request{}); !errors.Is(err, stats.ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}
}

// TestRunMockSource tests the pipeline end to end on generated data
func TestRunMockSource(t *testing.T) {
	a := NewAnalyzer(binance.NewMockSource(), nil, stats.DefaultWindow, 100)

	result, err := a.Run(context.Background(), Request{Symbol: "ETHUSDT", Interval: "1d"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Candles) != 100 {
		t.Fatalf("Expected 100 candles, got %d", len(result.Candles))
	}
	if result.Candles[stats.DefaultWindow-1].Candle.HasStats() {
		t.Error("Candles without a full window should carry no stats")
	}
	if !result.Candles[stats.DefaultWindow].Candle.HasStats() {
		t.Error("Candles with a full window should carry stats")
	}
}
