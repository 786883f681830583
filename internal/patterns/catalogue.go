package patterns

import (
	"fmt"

	"candle-signals/internal/candle"
)

// Kind distinguishes how a rule inspects history
type Kind int

const (
	KindSingle Kind = iota
	KindDouble
	KindMulti
	KindRepetition
)

// RepetitionDepths are the run lengths generated for every single-candle rule
var RepetitionDepths = []int{2, 3, 4}

// CandleRule is a geometric test on one candle in isolation
type CandleRule func(c *candle.EnrichedCandle) bool

// SeriesRule is a test on the current candle and its history
type SeriesRule func(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool

// Spec is one catalogue entry
type Spec struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	FuturePotential candle.FuturePotential `json:"futurePotential"`
	PatternType     PatternType            `json:"patternType"`
	Kind            Kind                   `json:"-"`
	Depth           int                    `json:"depth"`

	single CandleRule
	series SeriesRule
}

// Evaluate applies the rule. Repetition variants always report High; every
// other rule reports the current candle's aggregate impact.
func (s *Spec) Evaluate(current *candle.EnrichedCandle, past []candle.EnrichedCandle) (Result, bool) {
	switch s.Kind {
	case KindSingle:
		if s.single(current) {
			return Result{Impact: current.Impact}, true
		}
	case KindDouble, KindMulti:
		if s.series(current, past) {
			return Result{Impact: current.Impact}, true
		}
	case KindRepetition:
		if repeated(s.single, s.Depth, current, past) {
			return Result{Impact: candle.ImpactHigh}, true
		}
	}
	return Result{}, false
}

// Holds reports whether a single-candle rule holds for c in isolation.
// It is false for rules that need history.
func (s *Spec) Holds(c *candle.EnrichedCandle) bool {
	if s.Kind != KindSingle {
		return false
	}
	return s.single(c)
}

// repeated reports whether rule holds for current and the depth-1 candles
// before it
func repeated(rule CandleRule, depth int, current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	if len(past) < depth-1 {
		return false
	}
	if !rule(current) {
		return false
	}
	for n := 1; n < depth; n++ {
		if !rule(back(past, n)) {
			return false
		}
	}
	return true
}

func single(id, name string, bias candle.FuturePotential, rule CandleRule) Spec {
	return Spec{ID: id, Name: name, FuturePotential: bias, PatternType: SingleCandle, Kind: KindSingle, Depth: 1, single: rule}
}

func double(id, name string, bias candle.FuturePotential, rule SeriesRule) Spec {
	return Spec{ID: id, Name: name, FuturePotential: bias, PatternType: DoubleCandle, Kind: KindDouble, Depth: 2, series: rule}
}

func multi(id, name string, bias candle.FuturePotential, depth int, rule SeriesRule) Spec {
	return Spec{ID: id, Name: name, FuturePotential: bias, PatternType: MultiCandle, Kind: KindMulti, Depth: depth, series: rule}
}

// Repeat derives the run-of-depth variant of a single-candle rule. Variants
// are reported as DoubleCandle whatever their depth.
func Repeat(base Spec, depth int) Spec {
	return Spec{
		ID:              fmt.Sprintf("%s-%d", base.ID, depth),
		Name:            fmt.Sprintf("%s (%d Candle)", base.Name, depth),
		FuturePotential: base.FuturePotential,
		PatternType:     DoubleCandle,
		Kind:            KindRepetition,
		Depth:           depth,
		single:          base.single,
	}
}

var singleRules = []Spec{
	single("S001", "Dragonfly Doji", candle.Bullish, isDragonflyDoji),
	single("S002", "Gravestone Doji", candle.Bearish, isGravestoneDoji),
	single("S003", "Long-Legged Doji", candle.Neutral, isLongLeggedDoji),
	single("S004", "Hammer", candle.Bullish, isHammer),
	single("S005", "Inverse Hammer", candle.Bearish, isInverseHammer),
	single("S006", "Spinning Top", candle.Neutral, isSpinningTop),
	single("S007", "White Marubozu", candle.Bullish, isWhiteMarubozu),
	single("S008", "Red Marubozu", candle.Bearish, isRedMarubozu),
	single("S009", "Support", candle.Bullish, isSupport),
	single("S010", "Rejection", candle.Bearish, isRejection),
	single("S011a", "Critical Support", candle.Bullish, isCriticalSupport),
	single("S011b", "Critical Rejection", candle.Bearish, isCriticalRejection),
}

var doubleRules = []Spec{
	double("D001", "Bullish Engulfing", candle.Bullish, isBullishEngulfing),
	double("D002", "Bearish Engulfing", candle.Bearish, isBearishEngulfing),
	double("D003", "Double Support", candle.Bullish, isDoubleSupport),
	double("D004", "Double Rejection", candle.Bearish, isDoubleRejection),
}

var multiRules = []Spec{
	multi("M001", "Morning Star (3 Candle)", candle.Bullish, 3, isMorningStar),
	multi("M002", "Three Line Strike (4 Candle)", candle.Bullish, 4, isThreeLineStrike),
	multi("M003", "Three Candle Strike (3 Candle)", candle.Bullish, 3, isThreeCandleStrike),
	multi("M004", "Triple Support (3 Candle)", candle.Bullish, 3, isTripleSupport),
	multi("M005", "Triple Rejection (3 Candle)", candle.Bearish, 3, isTripleRejection),
}

// catalogue is built once at package initialization and never mutated
var catalogue = buildCatalogue()

func buildCatalogue() []Spec {
	specs := make([]Spec, 0, len(singleRules)*(1+len(RepetitionDepths))+len(doubleRules)+len(multiRules))
	specs = append(specs, singleRules...)
	specs = append(specs, doubleRules...)
	specs = append(specs, multiRules...)

	for _, base := range singleRules {
		for _, depth := range RepetitionDepths {
			specs = append(specs, Repeat(base, depth))
		}
	}
	return specs
}

// Catalogue returns a copy of the process-wide rule list in evaluation order
func Catalogue() []Spec {
	out := make([]Spec, len(catalogue))
	copy(out, catalogue)
	return out
}

// Lookup finds a catalogue entry by id
func Lookup(id string) (Spec, bool) {
	for _, s := range catalogue {
		if s.ID == id {
			return s, true
		}
	}
	return Spec{}, false
}
