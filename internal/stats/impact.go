package stats

import "candle-signals/internal/candle"

// Combine fuses the amplitude, volume and trade-count tiers into one candle
// impact. The modal tier wins when at least two agree; otherwise amplitude
// decides. Returns ImpactNone when statistics are missing.
func Combine(c *candle.EnrichedCandle) candle.Impact {
	if c.AmplitudeStats == nil || c.VolumeStats == nil || c.TradeCountStats == nil {
		return candle.ImpactNone
	}

	tiers := []candle.Impact{c.AmplitudeStats.Impact, c.VolumeStats.Impact, c.TradeCountStats.Impact}
	modal, count := mode(tiers)
	if count > 1 {
		return modal
	}
	return c.AmplitudeStats.Impact
}

// mode returns the first most frequent tier and its count
func mode(tiers []candle.Impact) (candle.Impact, int) {
	counts := make(map[candle.Impact]int, len(tiers))
	best, bestCount := candle.ImpactNone, 0
	for _, t := range tiers {
		counts[t]++
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	return best, bestCount
}
