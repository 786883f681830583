// Package stats computes rolling window statistics and impact tiers for
// candle series.
package stats

import (
	"errors"
	"fmt"

	talib "github.com/markcheno/go-talib"

	"candle-signals/internal/candle"
)

// DefaultWindow is the number of trailing candles used for statistics
const DefaultWindow = 15

// Threshold multipliers applied to the window range
const (
	midRatio     = 0.5
	value60Ratio = 0.6
	value80Ratio = 0.8
)

// ErrInvalidWindow is matched by a ConfigError for a non-positive window
var ErrInvalidWindow = errors.New("invalid window")

// ConfigError reports an unusable statistics configuration
type ConfigError struct {
	Field string
	Value int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %d (must be > 0)", e.Field, e.Value)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidWindow && e.Field == "window"
}

// Metric selects one numeric attribute of a candle
type Metric string

const (
	MetricPriceMovement Metric = "priceMovement"
	MetricAmplitude     Metric = "amplitude"
	MetricTradeCount    Metric = "noOfTrades"
	MetricVolume        Metric = "baseAssetVolume"
)

// Metrics lists every metric that receives statistics
var Metrics = []Metric{MetricPriceMovement, MetricAmplitude, MetricTradeCount, MetricVolume}

// Value extracts the metric from a candle
func (m Metric) Value(c *candle.BasicCandle) float64 {
	switch m {
	case MetricPriceMovement:
		return c.PriceMovement
	case MetricAmplitude:
		return c.Amplitude
	case MetricTradeCount:
		return c.NoOfTrades
	case MetricVolume:
		return c.BaseAssetVolume
	default:
		return 0
	}
}

// Compute builds the statistics of current against a window of prior values.
// The window must be non-empty.
func Compute(window []float64, current float64) candle.MetricStats {
	lo, hi, avg := trailing(window, len(window))
	last := len(window) - 1
	return build(current, lo[last], hi[last], avg[last])
}

// trailing returns the rolling minimum, maximum and mean of series over
// period values. Entry k covers series[k-period+1 : k+1]. series must hold
// at least period values.
func trailing(series []float64, period int) (lo, hi, avg []float64) {
	avg = talib.Sma(series, period)
	if period < 2 {
		// talib.Min and talib.Max need a period of at least two
		return series, series, avg
	}
	return talib.Min(series, period), talib.Max(series, period), avg
}

func build(current, lo, hi, avg float64) candle.MetricStats {
	if avg < lo {
		avg = lo
	} else if avg > hi {
		avg = hi
	}

	rng := hi - lo
	s := candle.MetricStats{
		Current: current,
		Min:     lo,
		Max:     hi,
		Avg:     avg,
		Mid:     lo + midRatio*rng,
		Value60: lo + value60Ratio*rng,
		Value80: lo + value80Ratio*rng,
	}
	s.IsAboveAverage = current > s.Avg
	s.IsMax = current >= s.Max
	s.IsMin = current <= s.Min
	s.Impact = Classify(&s)
	return s
}

// Classify maps the current value of a stats record onto an impact tier
func Classify(s *candle.MetricStats) candle.Impact {
	switch {
	case s.Current > s.Value80:
		return candle.ImpactCritical
	case s.Current > s.Value60:
		return candle.ImpactHigh
	case s.Current > s.Avg || s.Current > s.Mid:
		return candle.ImpactMedium
	default:
		return candle.ImpactLow
	}
}

// Enrich computes statistics and aggregate impact for every candle with at
// least window predecessors. The window of candle i is [i-window, i), so the
// rolling series are read at i-1. The input slice is not modified.
func Enrich(basics []candle.BasicCandle, window int) ([]candle.EnrichedCandle, error) {
	if window <= 0 {
		return nil, &ConfigError{Field: "window", Value: window}
	}

	out := candle.Wrap(basics)
	if len(basics) <= window {
		return out, nil
	}

	values := make([]float64, len(basics))
	for _, m := range Metrics {
		for i := range basics {
			values[i] = m.Value(&basics[i])
		}
		lo, hi, avg := trailing(values, window)

		for i := window; i < len(out); i++ {
			s := build(values[i], lo[i-1], hi[i-1], avg[i-1])
			m.attach(&out[i], &s)
		}
	}

	for i := window; i < len(out); i++ {
		out[i].Impact = Combine(&out[i])
	}

	return out, nil
}

func (m Metric) attach(c *candle.EnrichedCandle, s *candle.MetricStats) {
	switch m {
	case MetricPriceMovement:
		c.PriceMovementStats = s
	case MetricAmplitude:
		c.AmplitudeStats = s
	case MetricTradeCount:
		c.TradeCountStats = s
	case MetricVolume:
		c.VolumeStats = s
	}
}
