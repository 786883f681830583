package patterns

import (
	"math"

	"candle-signals/internal/candle"
)

// Double-candle rules

// isBullishEngulfing checks for a strong green candle closing over a red one
func isBullishEngulfing(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	prev := back(past, 1)
	if !weighted(prev) || !weighted(current) {
		return false
	}

	// Previous: red with a real body
	if !prev.IsRed() || prev.BodyWeight < 40 {
		return false
	}

	// Current: green, closes at or above the previous open
	if !current.IsGreen() || current.BodyWeight < 45 {
		return false
	}
	return current.Close >= prev.Open
}

// isBearishEngulfing checks for a strong red candle closing under a green one
func isBearishEngulfing(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	prev := back(past, 1)
	if !weighted(prev) || !weighted(current) {
		return false
	}

	if !prev.IsGreen() || prev.BodyWeight < 40 {
		return false
	}

	if !current.IsRed() || current.BodyWeight < 60 {
		return false
	}
	return current.Close <= prev.Open
}

func isDoubleSupport(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	prev := back(past, 1)
	return prev != nil && isSupport(prev) && isSupport(current)
}

func isDoubleRejection(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	prev := back(past, 1)
	return prev != nil && isRejection(prev) && isRejection(current)
}

// Multi-candle rules

// isMorningStar checks for red, indecision, green
func isMorningStar(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	first, second := back(past, 2), back(past, 1)
	if first == nil || second == nil {
		return false
	}

	// Candle 1: long red
	if !weighted(first) || !first.IsRed() || first.BodyWeight < 55 {
		return false
	}

	// Candle 2: indecision
	if !isLongLeggedDoji(second) && !isSpinningTop(second) {
		return false
	}

	// Candle 3: long green
	return weighted(current) && current.IsGreen() && current.BodyWeight >= 60
}

// isThreeLineStrike checks for three reds taken out by one green. Only prices
// are read, so degenerate candles are allowed.
func isThreeLineStrike(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	first, second, third := back(past, 3), back(past, 2), back(past, 1)
	if first == nil || second == nil || third == nil {
		return false
	}

	if !first.IsRed() || !second.IsRed() || !third.IsRed() {
		return false
	}
	if !current.IsGreen() {
		return false
	}

	if current.Close < first.Open {
		return false
	}
	if current.Close < math.Max(second.High, third.High) {
		return false
	}
	return current.Low <= math.Min(first.Low, math.Min(second.Low, third.Low))
}

// isThreeCandleStrike checks for green, red, green with full bodies
func isThreeCandleStrike(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	first, second := back(past, 2), back(past, 1)
	if !weighted(first) || !weighted(second) || !weighted(current) {
		return false
	}

	if !first.IsGreen() || first.BodyWeight < 65 {
		return false
	}
	if !second.IsRed() || second.BodyWeight < 65 || second.Close < first.Open {
		return false
	}
	return current.IsGreen() && current.BodyWeight >= 65 && current.Close >= second.Open
}

func isTripleSupport(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	first, second := back(past, 2), back(past, 1)
	return strongSupport(first) && strongSupport(second) && strongSupport(current)
}

func isTripleRejection(current *candle.EnrichedCandle, past []candle.EnrichedCandle) bool {
	first, second := back(past, 2), back(past, 1)
	return strongRejection(first) && strongRejection(second) && strongRejection(current)
}

func strongSupport(c *candle.EnrichedCandle) bool {
	return weighted(c) && c.BottomWickWeight >= 50 && c.BodyWeight >= 30
}

func strongRejection(c *candle.EnrichedCandle) bool {
	return weighted(c) && c.TopWickWeight >= 50 && c.BodyWeight >= 30
}
