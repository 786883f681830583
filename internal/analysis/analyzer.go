package analysis

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"candle-signals/internal/binance"
	"candle-signals/internal/candle"
	"candle-signals/internal/events"
	"candle-signals/internal/logging"
	"candle-signals/internal/patterns"
	"candle-signals/internal/stats"
	"candle-signals/internal/trace"
)

// CandleReport is one enriched candle with the patterns it completes
type CandleReport struct {
	Index    int                   `json:"index"`
	Candle   candle.EnrichedCandle `json:"candle"`
	Patterns []patterns.Match      `json:"patterns"`
}

// Result is a finished analysis
type Result struct {
	Symbol      string              `json:"symbol"`
	Interval    string              `json:"interval"`
	Fetched     int                 `json:"fetched"`
	SliceStart  int                 `json:"sliceStart"`
	SliceEnd    int                 `json:"sliceEnd"`
	Candles     []CandleReport      `json:"candles"`
	Summary     map[string]int      `json:"summary"`
	Diagnostics []candle.Diagnostic `json:"diagnostics"`
}

// Analyzer runs the decode, enrich and match pipeline for single symbols
type Analyzer struct {
	source binance.CandleSource
	engine *patterns.Engine
	window int
	limit  int
	bus    *events.EventBus
}

// NewAnalyzer creates an analyzer. A nil engine uses the default catalogue.
func NewAnalyzer(source binance.CandleSource, engine *patterns.Engine, window, limit int) *Analyzer {
	if engine == nil {
		engine = patterns.NewEngine()
	}
	return &Analyzer{source: source, engine: engine, window: window, limit: limit}
}

// SetEventBus attaches the bus that receives completion events
func (a *Analyzer) SetEventBus(bus *events.EventBus) {
	a.bus = bus
}

// Run fetches the requested candles and reports the patterns matched on
// each one, using every earlier candle as its past. A source failure or an
// invalid window fails the request; malformed candles become diagnostics.
func (a *Analyzer) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	ctx, span := trace.StartSpan(ctx, "analysis.run",
		attribute.String("symbol", req.Symbol),
		attribute.String("interval", req.Interval),
	)
	defer span.End()

	l := logging.AnalysisContext(ctx, req.Symbol, req.Interval)

	raws, err := a.source.Fetch(ctx, binance.KlineRequest{
		Symbol:    req.Symbol,
		Interval:  req.Interval,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Limit:     a.limit,
	})
	if err != nil {
		trace.RecordError(span, err)
		return nil, fmt.Errorf("fetch %s %s: %w", req.Symbol, req.Interval, err)
	}

	lo, hi := Slice(len(raws), req.SliceStart, req.SliceEnd)
	raws = raws[lo:hi]

	basics, diags := candle.DecodeAll(raws)
	for i := range diags {
		diags[i].Symbol = req.Symbol
	}

	_, enrichSpan := trace.StartSpan(ctx, "stats.enrich", attribute.Int("candles", len(basics)))
	enriched, err := stats.Enrich(basics, a.window)
	enrichSpan.End()
	if err != nil {
		trace.RecordError(span, err)
		return nil, err
	}

	result := &Result{
		Symbol:      req.Symbol,
		Interval:    req.Interval,
		Fetched:     hi - lo,
		SliceStart:  lo,
		SliceEnd:    hi,
		Candles:     make([]CandleReport, len(enriched)),
		Summary:     make(map[string]int),
		Diagnostics: diags,
	}
	if result.Diagnostics == nil {
		result.Diagnostics = []candle.Diagnostic{}
	}

	matches := 0
	for i, series := range a.engine.MatchSeries(enriched) {
		if series == nil {
			series = []patterns.Match{}
		}
		result.Candles[i] = CandleReport{Index: i, Candle: enriched[i], Patterns: series}
		for _, m := range series {
			result.Summary[m.ID]++
		}
		matches += len(series)
	}

	span.SetAttributes(attribute.Int("candles", len(enriched)), attribute.Int("matches", matches))
	l.Info("Analysis completed", "candles", len(enriched), "matches", matches, "diagnostics", len(diags))

	if a.bus != nil {
		a.bus.PublishAnalysisCompleted(req.Symbol, req.Interval, len(enriched), matches)
	}
	return result, nil
}
