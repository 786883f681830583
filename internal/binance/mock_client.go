package binance

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"math/rand"
	"strconv"
	"time"

	"candle-signals/internal/candle"
)

// Realistic base prices for the default symbols. Unknown symbols start at 100.
var mockBasePrices = map[string]float64{
	"BTCUSDT":  104500.00,
	"ETHUSDT":  3900.00,
	"BNBUSDT":  710.00,
	"SOLUSDT":  220.00,
	"XRPUSDT":  2.35,
	"ADAUSDT":  1.05,
	"DOGEUSDT": 0.40,
	"AVAXUSDT": 50.00,
	"DOTUSDT":  9.50,
	"LINKUSDT": 28.00,
	"LTCUSDT":  115.00,
	"TRXUSDT":  0.25,
}

// MockSource generates a deterministic random walk per symbol. The same
// request always yields the same tuples.
type MockSource struct {
	// Anchor is the close time of the newest candle when EndTime is unset
	Anchor time.Time
	// Failing symbols return a SourceError
	Failing map[string]bool
}

// NewMockSource creates a mock source anchored at a fixed time
func NewMockSource() *MockSource {
	return &MockSource{
		Anchor:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Failing: make(map[string]bool),
	}
}

// Fetch implements CandleSource
func (m *MockSource) Fetch(ctx context.Context, req KlineRequest) ([]candle.RawCandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, err := IntervalDuration(req.Interval)
	if err != nil {
		return nil, err
	}
	if m.Failing[req.Symbol] {
		return nil, &SourceError{Symbol: req.Symbol, StatusCode: 400, Err: errors.New(`API error: {"code":-1121,"msg":"Invalid symbol."}`)}
	}

	limit := req.limit()
	end := m.Anchor
	if req.EndTime != nil {
		end = time.UnixMilli(*req.EndTime)
	} else if req.StartTime != nil {
		end = time.UnixMilli(*req.StartTime).Add(time.Duration(limit) * step)
	}

	seed := fnv.New64a()
	seed.Write([]byte(req.Symbol + "|" + req.Interval))
	rng := rand.New(rand.NewSource(int64(seed.Sum64())))

	basePrice, ok := mockBasePrices[req.Symbol]
	if !ok {
		basePrice = 100.0
	}

	raws := make([]candle.RawCandle, 0, limit)
	price := basePrice
	for i := 0; i < limit; i++ {
		openTime := end.Add(-time.Duration(limit-i) * step)
		closeTime := openTime.Add(step).Add(-time.Millisecond)

		volatility := 0.03
		open := price
		change := (rng.Float64() - 0.5) * volatility * 2
		closePrice := open * (1 + change)
		high := math.Max(open, closePrice) * (1 + rng.Float64()*volatility*0.5)
		low := math.Min(open, closePrice) * (1 - rng.Float64()*volatility*0.5)

		volume := 1000 + rng.Float64()*5000
		if rng.Intn(10) == 0 {
			volume *= 3
		}
		trades := 100 + rng.Intn(1000)

		price = closePrice
		if req.StartTime != nil && openTime.UnixMilli() < *req.StartTime {
			continue
		}

		raws = append(raws, candle.RawCandle{
			float64(openTime.UnixMilli()),
			formatPrice(open),
			formatPrice(high),
			formatPrice(low),
			formatPrice(closePrice),
			formatPrice(volume),
			float64(closeTime.UnixMilli()),
			formatPrice(volume * closePrice),
			float64(trades),
			formatPrice(volume * 0.5),
			formatPrice(volume * closePrice * 0.5),
			"0",
		})
	}

	return raws, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}
