package candle

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// MinFields is the shortest tuple Decode accepts (through tradeCount)
const MinFields = 9

// Raw tuple positions
const (
	fieldOpenTime = iota
	fieldOpen
	fieldHigh
	fieldLow
	fieldClose
	fieldBaseVolume
	fieldCloseTime
	fieldQuoteVolume
	fieldTradeCount
	fieldTakerBuyBase
	fieldTakerBuyQuote
)

// Decode converts one raw tuple into a BasicCandle.
// A candle with high == low decodes successfully with Degenerate set and all
// weights reported as 0.
func Decode(raw RawCandle) (BasicCandle, error) {
	if len(raw) < MinFields {
		return BasicCandle{}, &DecodeError{Kind: TooFewFields, Field: len(raw)}
	}

	var values [fieldTakerBuyQuote + 1]float64
	for i := fieldOpenTime; i <= fieldTakerBuyQuote; i++ {
		if i >= len(raw) {
			break
		}
		v, ok := parseNumber(raw[i])
		if !ok {
			return BasicCandle{}, &DecodeError{Kind: NonNumeric, Field: i}
		}
		values[i] = v
	}

	c := BasicCandle{
		OpenTime:         time.UnixMilli(int64(values[fieldOpenTime])).UTC(),
		CloseTime:        time.UnixMilli(int64(values[fieldCloseTime])).UTC(),
		Open:             values[fieldOpen],
		High:             values[fieldHigh],
		Low:              values[fieldLow],
		Close:            values[fieldClose],
		BaseAssetVolume:  values[fieldBaseVolume],
		QuoteAssetVolume: values[fieldQuoteVolume],
		NoOfTrades:       values[fieldTradeCount],
		TakerBuyBase:     values[fieldTakerBuyBase],
		TakerBuyQuote:    values[fieldTakerBuyQuote],
	}
	derive(&c)
	return c, nil
}

// DecodeAll decodes a batch. Malformed tuples are skipped; degenerate candles
// are kept. Both are reported as diagnostics indexed by raw position.
func DecodeAll(raws []RawCandle) ([]BasicCandle, []Diagnostic) {
	candles := make([]BasicCandle, 0, len(raws))
	var diags []Diagnostic

	for i, raw := range raws {
		c, err := Decode(raw)
		if err != nil {
			diags = append(diags, Diagnostic{Index: i, Kind: DiagnosticDecode, Message: err.Error()})
			continue
		}
		if c.Degenerate {
			diags = append(diags, Diagnostic{Index: i, Kind: DiagnosticDegenerate, Message: "high equals low"})
		}
		candles = append(candles, c)
	}

	return candles, diags
}

// FromOHLCV builds a BasicCandle directly from prices and activity.
func FromOHLCV(openTime time.Time, open, high, low, closePrice, volume, trades float64) BasicCandle {
	c := BasicCandle{
		OpenTime:        openTime,
		CloseTime:       openTime,
		Open:            open,
		High:            high,
		Low:             low,
		Close:           closePrice,
		BaseAssetVolume: volume,
		NoOfTrades:      trades,
	}
	derive(&c)
	return c
}

func derive(c *BasicCandle) {
	if c.Close >= c.Open {
		c.CandleType = Green
	} else {
		c.CandleType = Red
	}

	if c.Open != 0 {
		c.PriceMovement = Round2(math.Abs(c.Open-c.Close) / c.Open * 100)
	}

	anchor := c.High
	if c.CandleType == Green {
		anchor = c.Low
	}
	if anchor != 0 {
		c.Amplitude = Round2(math.Abs(c.High-c.Low) / anchor * 100)
	}

	body, top, bottom, ok := Weights(c.Open, c.High, c.Low, c.Close)
	if !ok {
		c.Degenerate = true
		return
	}
	c.BodyWeight = Round2(body)
	c.TopWickWeight = Round2(top)
	c.BottomWickWeight = Round2(bottom)
}

// Weights returns the unrounded body, top wick and bottom wick as percentages
// of the high-low range. ok is false when the range is zero.
func Weights(open, high, low, closePrice float64) (body, top, bottom float64, ok bool) {
	rng := high - low
	if rng == 0 {
		return 0, 0, 0, false
	}
	body = math.Abs(closePrice-open) / rng * 100
	top = (high - math.Max(open, closePrice)) / rng * 100
	bottom = (math.Min(open, closePrice) - low) / rng * 100
	return body, top, bottom, true
}

// Round2 rounds half away from zero to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseNumber(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
