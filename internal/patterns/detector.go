package patterns

import (
	"candle-signals/internal/candle"
)

// PatternType is the candle span a pattern is reported as
type PatternType string

const (
	SingleCandle PatternType = "SingleCandle"
	DoubleCandle PatternType = "DoubleCandle"
	MultiCandle  PatternType = "MultiCandle"
)

// Result is what a matched pattern reports
type Result struct {
	Impact candle.Impact `json:"impact"`
}

// Match is a catalogue entry that matched a candle
type Match struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	PatternType     PatternType            `json:"patternType"`
	FuturePotential candle.FuturePotential `json:"futurePotential"`
	Result          Result                 `json:"result"`
}

// Engine evaluates the pattern catalogue against candles
type Engine struct {
	specs []Spec
}

// NewEngine creates an engine over the process-wide catalogue
func NewEngine() *Engine {
	return &Engine{specs: catalogue}
}

// Match evaluates every rule in catalogue order against current, where past
// holds the strictly earlier candles in chronological order. Misses are
// omitted and matches are not deduplicated.
func (e *Engine) Match(current *candle.EnrichedCandle, past []candle.EnrichedCandle) []Match {
	var matches []Match

	for i := range e.specs {
		spec := &e.specs[i]
		result, ok := spec.Evaluate(current, past)
		if !ok {
			continue
		}
		matches = append(matches, Match{
			ID:              spec.ID,
			Name:            spec.Name,
			PatternType:     spec.PatternType,
			FuturePotential: spec.FuturePotential,
			Result:          result,
		})
	}

	return matches
}

// MatchSeries runs Match for every candle, each with all earlier candles as
// its past
func (e *Engine) MatchSeries(candles []candle.EnrichedCandle) [][]Match {
	out := make([][]Match, len(candles))
	for i := range candles {
		out[i] = e.Match(&candles[i], candles[:i])
	}
	return out
}

// back returns the n-th candle before current (1 is the previous candle), or
// nil if past is too short
func back(past []candle.EnrichedCandle, n int) *candle.EnrichedCandle {
	if n <= 0 || n > len(past) {
		return nil
	}
	return &past[len(past)-n]
}
