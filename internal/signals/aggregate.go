// Package signals groups pattern matches across many symbols and runs the
// concurrent scans that feed them.
package signals

import (
	"sort"
	"strings"

	"candle-signals/internal/candle"
	"candle-signals/internal/patterns"
	"candle-signals/internal/stats"
)

type groupKey struct {
	name   string
	impact candle.Impact
}

// Aggregate enriches every symbol's series, matches the pattern catalogue on
// its active candle and groups the matches by (pattern name, impact). The
// last candle of each series is still forming, so the active candle is the
// second to last and its past is everything before it.
//
// Groups are returned in the order their key was first produced, walking
// inputs in order. A window <= 0 is fatal; every other problem is reported
// as a diagnostic and the symbol is skipped.
func Aggregate(inputs []SymbolCandles, window int, engine *patterns.Engine) (*Aggregation, error) {
	if window <= 0 {
		return nil, &stats.ConfigError{Field: "window", Value: window}
	}
	if engine == nil {
		engine = patterns.NewEngine()
	}

	agg := &Aggregation{Groups: []SignalGroup{}}
	index := make(map[groupKey]int)

	for _, in := range inputs {
		basics, diags := candle.DecodeAll(in.Candles)
		for _, d := range diags {
			d.Symbol = in.Symbol
			agg.Diagnostics = append(agg.Diagnostics, d)
		}

		if len(basics) < 2 {
			agg.Diagnostics = append(agg.Diagnostics, candle.Diagnostic{
				Symbol:  in.Symbol,
				Index:   -1,
				Kind:    candle.DiagnosticInsufficient,
				Message: "need at least 2 candles to pick an active candle",
			})
			continue
		}

		enriched, err := stats.Enrich(basics, window)
		if err != nil {
			return nil, err
		}

		active := &enriched[len(enriched)-2]
		past := enriched[:len(enriched)-2]

		for _, m := range engine.Match(active, past) {
			key := groupKey{name: m.Name, impact: m.Result.Impact}
			i, ok := index[key]
			if !ok {
				i = len(agg.Groups)
				index[key] = i
				agg.Groups = append(agg.Groups, SignalGroup{
					Pattern:         m.Name,
					PatternID:       m.ID,
					PatternType:     m.PatternType,
					FuturePotential: m.FuturePotential,
					Impact:          m.Result.Impact,
					MatchedSymbols:  []string{},
				})
			}
			agg.Groups[i].MatchedSymbols = insertSorted(agg.Groups[i].MatchedSymbols, in.Symbol)
		}
	}

	return agg, nil
}

// insertSorted adds s to a sorted list unless already present
func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	if i < len(list) && list[i] == s {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

// DefaultImpacts is the filter applied when none is given
var DefaultImpacts = []candle.Impact{candle.ImpactCritical}

// Filter keeps groups whose impact is in impacts, preserving order. An empty
// filter means Critical only.
func Filter(groups []SignalGroup, impacts []candle.Impact) []SignalGroup {
	if len(impacts) == 0 {
		impacts = DefaultImpacts
	}
	allowed := make(map[candle.Impact]bool, len(impacts))
	for _, i := range impacts {
		allowed[i] = true
	}

	out := make([]SignalGroup, 0, len(groups))
	for _, g := range groups {
		if allowed[g.Impact] {
			out = append(out, g)
		}
	}
	return out
}

// Bucket splits groups into Bullish, Neutral and Bearish lists, each ordered
// by tier from Critical to Low and then by insertion order
func Bucket(groups []SignalGroup) Buckets {
	b := Buckets{
		Bullish: []SignalGroup{},
		Neutral: []SignalGroup{},
		Bearish: []SignalGroup{},
	}
	for _, g := range groups {
		switch g.FuturePotential {
		case candle.Bullish:
			b.Bullish = append(b.Bullish, g)
		case candle.Bearish:
			b.Bearish = append(b.Bearish, g)
		default:
			b.Neutral = append(b.Neutral, g)
		}
	}
	for _, list := range [][]SignalGroup{b.Bullish, b.Neutral, b.Bearish} {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Impact.Rank() > list[j].Impact.Rank()
		})
	}
	return b
}

// ParseImpacts converts tier names, skipping blanks. Unknown names are
// returned in bad.
func ParseImpacts(names []string) (impacts []candle.Impact, bad []string) {
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			continue
		}
		i, ok := candle.ParseImpact(n)
		if !ok {
			bad = append(bad, n)
			continue
		}
		impacts = append(impacts, i)
	}
	return impacts, bad
}
