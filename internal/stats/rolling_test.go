package stats

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"candle-signals/internal/candle"
)

func series(n int, gen func(i int) candle.BasicCandle) []candle.BasicCandle {
	out := make([]candle.BasicCandle, n)
	for i := range out {
		out[i] = gen(i)
	}
	return out
}

// TestFlatWindowCritical tests a spike after a window of identical candles
func TestFlatWindowCritical(t *testing.T) {
	start := time.Unix(0, 0)
	basics := series(16, func(i int) candle.BasicCandle {
		if i == 15 {
			return candle.FromOHLCV(start, 100, 120, 100, 120, 10, 5)
		}
		return candle.FromOHLCV(start, 100, 110, 100, 110, 10, 5)
	})

	enriched, err := Enrich(basics, DefaultWindow)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	last := enriched[15]
	if last.AmplitudeStats == nil {
		t.Fatal("Expected stats on the 16th candle")
	}
	if last.AmplitudeStats.Impact != candle.ImpactCritical {
		t.Errorf("Expected Critical amplitude impact, got %s", last.AmplitudeStats.Impact)
	}
	if last.VolumeStats.Impact != candle.ImpactLow {
		t.Errorf("Expected Low volume impact for a value equal to the flat min, got %s", last.VolumeStats.Impact)
	}
	if !last.AmplitudeStats.IsMax || last.AmplitudeStats.IsMin {
		t.Error("Spike should be flagged as max and not min")
	}
}

// TestEnrichSkipsWarmup tests that the first W candles carry no stats
func TestEnrichSkipsWarmup(t *testing.T) {
	start := time.Unix(0, 0)
	basics := series(20, func(i int) candle.BasicCandle {
		return candle.FromOHLCV(start, 100, 105+float64(i), 95, 102, float64(i+1), float64(10*i))
	})

	enriched, err := Enrich(basics, 15)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := 0; i < 15; i++ {
		if enriched[i].HasStats() || enriched[i].Impact != candle.ImpactNone {
			t.Errorf("Candle %d should have no stats", i)
		}
	}
	for i := 15; i < 20; i++ {
		if !enriched[i].HasStats() || !enriched[i].Impact.Valid() {
			t.Errorf("Candle %d should have stats and impact", i)
		}
	}
	if basics[15].Amplitude != enriched[15].Amplitude {
		t.Error("Enrich should keep the basic attributes")
	}
}

// TestEnrichShortSeries tests that a series shorter than W is returned as is
func TestEnrichShortSeries(t *testing.T) {
	start := time.Unix(0, 0)
	basics := series(3, func(i int) candle.BasicCandle {
		return candle.FromOHLCV(start, 1, 2, 0.5, 1.5, 1, 1)
	})

	enriched, err := Enrich(basics, 15)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(enriched) != 3 {
		t.Fatalf("Expected 3 candles, got %d", len(enriched))
	}
}

// TestEnrichInvalidWindow tests the configuration error
func TestEnrichInvalidWindow(t *testing.T) {
	for _, w := range []int{0, -3} {
		_, err := Enrich(nil, w)
		if !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("Expected ErrInvalidWindow for window %d, got %v", w, err)
		}
	}
}

// TestClassify tests the tier ladder
func TestClassify(t *testing.T) {
	window := []float64{0, 10, 10, 10, 10, 10, 10, 10, 10, 10}
	// min 0, max 10, avg 9, mid 5, value60 6, value80 8
	tests := []struct {
		current float64
		want    candle.Impact
	}{
		{8.5, candle.ImpactCritical},
		{8, candle.ImpactHigh},
		{6.5, candle.ImpactHigh},
		{5.5, candle.ImpactMedium},
		{5, candle.ImpactLow},
		{0, candle.ImpactLow},
	}
	for _, tt := range tests {
		s := Compute(window, tt.current)
		if s.Impact != tt.want {
			t.Errorf("current %v: expected %s, got %s", tt.current, tt.want, s.Impact)
		}
	}
}

// TestClassifyAboveAverageOnly tests the avg branch of the Medium tier
func TestClassifyAboveAverageOnly(t *testing.T) {
	// min 0, max 10, avg 1, mid 5
	window := []float64{10, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	s := Compute(window, 2)
	if s.Impact != candle.ImpactMedium {
		t.Errorf("Expected Medium when above average only, got %s", s.Impact)
	}
	if !s.IsAboveAverage {
		t.Error("Should flag above average")
	}
}

// TestFlatWindowEdges tests both sides of a flat window
func TestFlatWindowEdges(t *testing.T) {
	window := []float64{3, 3, 3, 3, 3}

	if s := Compute(window, 3); s.Impact != candle.ImpactLow {
		t.Errorf("Expected Low for current == min, got %s", s.Impact)
	}
	if s := Compute(window, 3.0001); s.Impact != candle.ImpactCritical {
		t.Errorf("Expected Critical for current > min, got %s", s.Impact)
	}
	s := Compute(window, 3)
	if s.Mid != 3 || s.Value60 != 3 || s.Value80 != 3 {
		t.Errorf("Expected thresholds to collapse to min, got %v/%v/%v", s.Mid, s.Value60, s.Value80)
	}
}

// TestStatsOrderingProperty checks min <= mid <= value60 <= value80 <= max and avg within range
func TestStatsOrderingProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	start := time.Unix(0, 0)

	basics := series(400, func(i int) candle.BasicCandle {
		low := 50 + rng.Float64()*50
		high := low + rng.Float64()*10
		open := low + rng.Float64()*(high-low)
		closePrice := low + rng.Float64()*(high-low)
		return candle.FromOHLCV(start, open, high, low, closePrice, rng.Float64()*1e6, float64(rng.Intn(5000)))
	})

	enriched, err := Enrich(basics, DefaultWindow)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for i := DefaultWindow; i < len(enriched); i++ {
		c := enriched[i]
		for _, s := range []*candle.MetricStats{c.PriceMovementStats, c.AmplitudeStats, c.TradeCountStats, c.VolumeStats} {
			if !(s.Min <= s.Mid && s.Mid <= s.Value60 && s.Value60 <= s.Value80 && s.Value80 <= s.Max) {
				t.Fatalf("Candle %d: thresholds out of order: %+v", i, s)
			}
			if s.Avg < s.Min || s.Avg > s.Max {
				t.Fatalf("Candle %d: avg outside range: %+v", i, s)
			}
		}
	}
}

// TestImpactMonotonicProperty checks that raising current never lowers the tier
func TestImpactMonotonicProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	for trial := 0; trial < 200; trial++ {
		window := make([]float64, DefaultWindow)
		for i := range window {
			window[i] = rng.Float64() * 100
		}

		prev := candle.ImpactNone
		for current := -10.0; current <= 110; current += 0.5 {
			tier := Compute(window, current).Impact
			if tier.Rank() < prev.Rank() {
				t.Fatalf("Tier dropped from %s to %s at current %v", prev, tier, current)
			}
			prev = tier
		}
	}
}

// TestEnrichTrailingWindow checks every stats record against the W candles
// before it, excluding the candle itself
func TestEnrichTrailingWindow(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	start := time.Unix(0, 0)

	basics := series(120, func(i int) candle.BasicCandle {
		low := 10 + rng.Float64()*90
		high := low + rng.Float64()*20
		return candle.FromOHLCV(start, low, high, low, high, rng.Float64()*500, float64(rng.Intn(900)))
	})

	enriched, err := Enrich(basics, DefaultWindow)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for i := DefaultWindow; i < len(enriched); i++ {
		got := enriched[i].AmplitudeStats
		lo, hi, sum := basics[i-DefaultWindow].Amplitude, basics[i-DefaultWindow].Amplitude, 0.0
		for _, b := range basics[i-DefaultWindow : i] {
			lo = math.Min(lo, b.Amplitude)
			hi = math.Max(hi, b.Amplitude)
			sum += b.Amplitude
		}

		if got.Min != lo || got.Max != hi {
			t.Fatalf("Candle %d: expected range [%v, %v], got [%v, %v]", i, lo, hi, got.Min, got.Max)
		}
		if math.Abs(got.Avg-sum/DefaultWindow) > 1e-9 {
			t.Fatalf("Candle %d: expected avg %v, got %v", i, sum/DefaultWindow, got.Avg)
		}
		if got.Current != basics[i].Amplitude {
			t.Fatalf("Candle %d: expected current %v, got %v", i, basics[i].Amplitude, got.Current)
		}
	}
}

// TestEnrichWindowOfOne tests that a single-candle window compares against the previous candle
func TestEnrichWindowOfOne(t *testing.T) {
	start := time.Unix(0, 0)
	basics := []candle.BasicCandle{
		candle.FromOHLCV(start, 100, 110, 100, 110, 10, 5),
		candle.FromOHLCV(start, 100, 130, 100, 130, 20, 5),
	}

	enriched, err := Enrich(basics, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	s := enriched[1].VolumeStats
	if s == nil {
		t.Fatal("Expected stats on the second candle")
	}
	if s.Min != 10 || s.Max != 10 || s.Avg != 10 {
		t.Errorf("Expected a window of the previous volume only, got %+v", s)
	}
	if s.Impact != candle.ImpactCritical {
		t.Errorf("Expected Critical for a doubled volume, got %s", s.Impact)
	}
}
