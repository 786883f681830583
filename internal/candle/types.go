package candle

import (
	"strings"
	"time"
)

// CandleType is the direction of a candle
type CandleType string

const (
	Green CandleType = "Green"
	Red   CandleType = "Red"
)

// FuturePotential is the directional bias a pattern implies
type FuturePotential string

const (
	Bullish FuturePotential = "Bullish"
	Bearish FuturePotential = "Bearish"
	Neutral FuturePotential = "Neutral"
)

// Impact is the categorical rank of how extreme a value is versus its window.
// The zero value means no impact could be computed (not enough history).
type Impact string

const (
	ImpactNone     Impact = ""
	ImpactLow      Impact = "Low"
	ImpactMedium   Impact = "Medium"
	ImpactHigh     Impact = "High"
	ImpactCritical Impact = "Critical"
)

// AllImpacts lists the tiers from most to least severe
var AllImpacts = []Impact{ImpactCritical, ImpactHigh, ImpactMedium, ImpactLow}

// Rank orders tiers Low < Medium < High < Critical. ImpactNone ranks lowest.
func (i Impact) Rank() int {
	switch i {
	case ImpactLow:
		return 1
	case ImpactMedium:
		return 2
	case ImpactHigh:
		return 3
	case ImpactCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether i is one of the four tiers
func (i Impact) Valid() bool {
	return i.Rank() > 0
}

// ParseImpact converts a case-insensitive tier name to an Impact
func ParseImpact(s string) (Impact, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ImpactLow, true
	case "medium":
		return ImpactMedium, true
	case "high":
		return ImpactHigh, true
	case "critical":
		return ImpactCritical, true
	default:
		return ImpactNone, false
	}
}

// RawCandle is one exchange kline tuple:
// (openTime, open, high, low, close, baseVolume, closeTime, quoteVolume,
// tradeCount, takerBuyBase, takerBuyQuote, unused).
// Elements may be decimal strings or JSON numbers.
type RawCandle []interface{}

// BasicCandle is a decoded candle with its geometric attributes
type BasicCandle struct {
	OpenTime         time.Time  `json:"openTime"`
	CloseTime        time.Time  `json:"closeTime"`
	Open             float64    `json:"open"`
	High             float64    `json:"high"`
	Low              float64    `json:"low"`
	Close            float64    `json:"close"`
	BaseAssetVolume  float64    `json:"baseAssetVolume"`
	QuoteAssetVolume float64    `json:"quoteAssetVolume"`
	NoOfTrades       float64    `json:"noOfTrades"`
	TakerBuyBase     float64    `json:"takerBuyBaseAssetVolume"`
	TakerBuyQuote    float64    `json:"takerBuyQuoteAssetVolume"`
	CandleType       CandleType `json:"candleType"`
	PriceMovement    float64    `json:"priceMovement"`
	Amplitude        float64    `json:"amplitude"`
	BodyWeight       float64    `json:"bodyWeight"`
	TopWickWeight    float64    `json:"topWickWeight"`
	BottomWickWeight float64    `json:"bottomWickWeight"`
	Degenerate       bool       `json:"degenerate,omitempty"`
}

// IsGreen reports close >= open
func (c *BasicCandle) IsGreen() bool {
	return c.CandleType == Green
}

// IsRed reports close < open
func (c *BasicCandle) IsRed() bool {
	return c.CandleType == Red
}

// MetricStats holds window statistics for one metric of one candle
type MetricStats struct {
	Current        float64 `json:"current"`
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Avg            float64 `json:"avg"`
	Mid            float64 `json:"mid"`
	Value60        float64 `json:"value60"`
	Value80        float64 `json:"value80"`
	IsAboveAverage bool    `json:"isAboveAverage"`
	IsMax          bool    `json:"isMax"`
	IsMin          bool    `json:"isMin"`
	Impact         Impact  `json:"impact"`
}

// EnrichedCandle is a BasicCandle plus rolling statistics. Candles with fewer
// than W predecessors carry nil stats and ImpactNone.
type EnrichedCandle struct {
	BasicCandle
	PriceMovementStats *MetricStats `json:"priceMovementStats"`
	AmplitudeStats     *MetricStats `json:"amplitudeStats"`
	TradeCountStats    *MetricStats `json:"tradeCountStats"`
	VolumeStats        *MetricStats `json:"volumeStats"`
	Impact             Impact       `json:"impact,omitempty"`
}

// HasStats reports whether the rolling statistics were computed
func (c *EnrichedCandle) HasStats() bool {
	return c.AmplitudeStats != nil && c.VolumeStats != nil && c.TradeCountStats != nil && c.PriceMovementStats != nil
}

// AmplitudeImpact returns the amplitude tier or ImpactNone
func (c *EnrichedCandle) AmplitudeImpact() Impact {
	if c.AmplitudeStats == nil {
		return ImpactNone
	}
	return c.AmplitudeStats.Impact
}

// TradeCountImpact returns the trade-count tier or ImpactNone
func (c *EnrichedCandle) TradeCountImpact() Impact {
	if c.TradeCountStats == nil {
		return ImpactNone
	}
	return c.TradeCountStats.Impact
}

// PriceMovementImpact returns the price-movement tier or ImpactNone
func (c *EnrichedCandle) PriceMovementImpact() Impact {
	if c.PriceMovementStats == nil {
		return ImpactNone
	}
	return c.PriceMovementStats.Impact
}

// Wrap lifts basic candles into enriched candles without statistics
func Wrap(basics []BasicCandle) []EnrichedCandle {
	out := make([]EnrichedCandle, len(basics))
	for i := range basics {
		out[i] = EnrichedCandle{BasicCandle: basics[i]}
	}
	return out
}
