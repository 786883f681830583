package patterns

import "candle-signals/internal/candle"

// Single-candle rules. Every rule that reads body or wick weights rejects
// degenerate candles, whose weights are undefined.

func weighted(c *candle.EnrichedCandle) bool {
	return c != nil && !c.Degenerate
}

// isDragonflyDoji: no body, long lower wick
func isDragonflyDoji(c *candle.EnrichedCandle) bool {
	if !weighted(c) {
		return false
	}
	return c.BodyWeight <= 5 && c.TopWickWeight <= 25 && c.BottomWickWeight >= 70
}

// isGravestoneDoji: no body, long upper wick
func isGravestoneDoji(c *candle.EnrichedCandle) bool {
	if !weighted(c) {
		return false
	}
	return c.BodyWeight <= 5 && c.BottomWickWeight <= 25 && c.TopWickWeight >= 70
}

// isLongLeggedDoji: no body, both wicks long
func isLongLeggedDoji(c *candle.EnrichedCandle) bool {
	if !weighted(c) {
		return false
	}
	return c.BodyWeight <= 5 && c.TopWickWeight >= 40 && c.BottomWickWeight >= 40
}

// isHammer: small body near the top
func isHammer(c *candle.EnrichedCandle) bool {
	if !weighted(c) {
		return false
	}
	if c.BodyWeight < 5 || c.BodyWeight > 30 {
		return false
	}
	return c.TopWickWeight <= 15 && c.BottomWickWeight >= 65
}

// isInverseHammer: small body near the bottom
func isInverseHammer(c *candle.EnrichedCandle) bool {
	if !weighted(c) {
		return false
	}
	if c.BodyWeight < 5 || c.BodyWeight > 30 {
		return false
	}
	return c.BottomWickWeight <= 10 && c.TopWickWeight >= 65
}

func isSpinningTop(c *candle.EnrichedCandle) bool {
	if !weighted(c) {
		return false
	}
	if c.BodyWeight <= 5 || c.BodyWeight > 25 {
		return false
	}
	return c.TopWickWeight >= 30 && c.BottomWickWeight >= 30
}

func isWhiteMarubozu(c *candle.EnrichedCandle) bool {
	if !weighted(c) || !c.IsGreen() {
		return false
	}
	return c.BodyWeight >= 90 && c.TopWickWeight <= 10 && c.BottomWickWeight <= 10
}

func isRedMarubozu(c *candle.EnrichedCandle) bool {
	if !weighted(c) || !c.IsRed() {
		return false
	}
	return c.BodyWeight >= 90 && c.TopWickWeight <= 10 && c.BottomWickWeight <= 10
}

// isSupport: buyers absorbed a long push down
func isSupport(c *candle.EnrichedCandle) bool {
	if !weighted(c) {
		return false
	}
	return c.BottomWickWeight >= 50 && c.BodyWeight >= 25
}

// isRejection: sellers absorbed a long push up
func isRejection(c *candle.EnrichedCandle) bool {
	if !weighted(c) {
		return false
	}
	return c.TopWickWeight >= 50 && c.BodyWeight >= 25
}

// criticalRange requires a Critical amplitude corroborated by trade count or
// price movement
func criticalRange(c *candle.EnrichedCandle) bool {
	if c.AmplitudeImpact() != candle.ImpactCritical {
		return false
	}
	return c.TradeCountImpact() == candle.ImpactCritical || c.PriceMovementImpact() == candle.ImpactCritical
}

func isCriticalSupport(c *candle.EnrichedCandle) bool {
	if !weighted(c) || !c.IsGreen() {
		return false
	}
	if c.BodyWeight < 30 || c.BottomWickWeight < 45 {
		return false
	}
	return criticalRange(c)
}

func isCriticalRejection(c *candle.EnrichedCandle) bool {
	if !weighted(c) || !c.IsRed() {
		return false
	}
	if c.TopWickWeight < 45 || c.BodyWeight < 30 {
		return false
	}
	return criticalRange(c)
}
