package signals

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"candle-signals/internal/binance"
	"candle-signals/internal/cache"
	"candle-signals/internal/candle"
	"candle-signals/internal/database"
	"candle-signals/internal/events"
	"candle-signals/internal/stats"
)

// stubSource serves fixed series and counts fetches
type stubSource struct {
	mu     sync.Mutex
	series map[string][]candle.RawCandle
	calls  int
}

func (s *stubSource) Fetch(ctx context.Context, req binance.KlineRequest) ([]candle.RawCandle, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	raws, ok := s.series[req.Symbol]
	if !ok {
		return nil, &binance.SourceError{Symbol: req.Symbol, Err: errors.New("unknown symbol")}
	}
	return raws, nil
}

type recordingRepo struct {
	mu       sync.Mutex
	saved    []*database.SignalSnapshot
	pruneArg int
}

func (r *recordingRepo) PruneSignalSnapshots(ctx context.Context, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneArg = keep
	return 0, nil
}

func (r *recordingRepo) SaveSignalSnapshot(ctx context.Context, snap *database.SignalSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, snap)
	return nil
}

func testConfig(symbols ...string) Config {
	return Config{
		WorkerCount:     4,
		Window:          stats.DefaultWindow,
		Interval:        "8h",
		Limit:           100,
		Symbols:         symbols,
		RefreshInterval: time.Hour,
		SignalTTL:       time.Minute,
	}
}

// TestScanFiltersAndBuckets tests a scan over fixed series
func TestScanFiltersAndBuckets(t *testing.T) {
	src := &stubSource{series: map[string][]candle.RawCandle{
		"ZZZUSDT": criticalMarubozu(),
		"AAAUSDT": shortMarubozu(),
	}}
	sc := NewScanner(src, nil, testConfig("ZZZUSDT", "AAAUSDT", "BADUSDT"))

	result, err := sc.Scan(context.Background(), ScanRequest{})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if result.ScanID == "" || result.Interval != "8h" {
		t.Errorf("Unexpected scan header: %+v", result)
	}
	if result.SymbolsScanned != 3 || result.SymbolsFailed != 1 {
		t.Errorf("Expected 3 scanned and 1 failed, got %d and %d", result.SymbolsScanned, result.SymbolsFailed)
	}
	if len(result.Groups) != 1 || result.Groups[0].Pattern != "White Marubozu" {
		t.Errorf("Expected only the Critical group by default, got %+v", result.Groups)
	}
	if len(result.Buckets.Bullish) != 1 || len(result.Buckets.Bearish) != 0 {
		t.Errorf("Unexpected buckets: %+v", result.Buckets)
	}

	found := false
	for _, d := range result.Diagnostics {
		if d.Symbol == "BADUSDT" && d.Kind == candle.DiagnosticSource {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a source diagnostic for BADUSDT, got %v", result.Diagnostics)
	}

	high, err := sc.Scan(context.Background(), ScanRequest{Impacts: []candle.Impact{candle.ImpactHigh}})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(high.Groups) != 3 {
		t.Errorf("Expected 3 High repetition groups, got %d", len(high.Groups))
	}
}

// TestScanOrderIndependentOfWorkers tests that worker count does not change output
func TestScanOrderIndependentOfWorkers(t *testing.T) {
	symbols := DefaultSymbols[:12]
	filter := []candle.Impact{candle.ImpactCritical, candle.ImpactHigh, candle.ImpactMedium, candle.ImpactLow}

	var outputs [][]SignalGroup
	for _, workers := range []int{1, 8} {
		cfg := testConfig(symbols...)
		cfg.WorkerCount = workers
		sc := NewScanner(binance.NewMockSource(), nil, cfg)

		result, err := sc.Scan(context.Background(), ScanRequest{Impacts: filter})
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		outputs = append(outputs, result.Groups)
	}

	if !reflect.DeepEqual(outputs[0], outputs[1]) {
		t.Error("Groups should not depend on the number of workers")
	}
}

// TestScanInvalidInterval tests request validation
func TestScanInvalidInterval(t *testing.T) {
	sc := NewScanner(binance.NewMockSource(), nil, testConfig("BTCUSDT"))

	_, err := sc.Scan(context.Background(), ScanRequest{Interval: "15m"})
	if !errors.Is(err, binance.ErrInvalidInterval) {
		t.Errorf("Expected ErrInvalidInterval, got %v", err)
	}
}

// TestScanCancelled tests that a cancelled context abandons the scan
func TestScanCancelled(t *testing.T) {
	sc := NewScanner(binance.NewMockSource(), nil, testConfig("BTCUSDT", "ETHUSDT"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sc.Scan(ctx, ScanRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// TestScanInvalidWindow tests that a bad window is fatal
func TestScanInvalidWindow(t *testing.T) {
	cfg := testConfig("BTCUSDT")
	cfg.Window = -1
	sc := NewScanner(binance.NewMockSource(), nil, cfg)

	if _, err := sc.Scan(context.Background(), ScanRequest{}); !errors.Is(err, stats.ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}
}

// TestCachedScan tests that repeated open-ended scans hit the cache
func TestCachedScan(t *testing.T) {
	src := &stubSource{series: map[string][]candle.RawCandle{"ZZZUSDT": criticalMarubozu()}}
	sc := NewScanner(src, nil, testConfig("ZZZUSDT"))
	sc.SetCache(cache.NewMemoryCache())

	first, err := sc.CachedScan(context.Background(), ScanRequest{})
	if err != nil {
		t.Fatalf("CachedScan failed: %v", err)
	}
	second, err := sc.CachedScan(context.Background(), ScanRequest{})
	if err != nil {
		t.Fatalf("CachedScan failed: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("Expected 1 fetch, got %d", src.calls)
	}
	if first.ScanID != second.ScanID {
		t.Error("Second scan should be served from the cache")
	}

	start := int64(0)
	if _, err := sc.CachedScan(context.Background(), ScanRequest{StartTime: &start}); err != nil {
		t.Fatalf("CachedScan failed: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("Time-bounded scans should bypass the cache, got %d fetches", src.calls)
	}
}

// TestRefresh tests the background refresh side effects
func TestRefresh(t *testing.T) {
	src := &stubSource{series: map[string][]candle.RawCandle{"ZZZUSDT": criticalMarubozu()}}
	store := cache.NewMemoryCache()
	repo := &recordingRepo{}
	bus := events.NewEventBus()

	received := make(chan events.Event, 1)
	bus.Subscribe(events.EventSignalsRefreshed, func(e events.Event) {
		received <- e
	})

	cfg := testConfig("ZZZUSDT")
	cfg.KeepSnapshots = 50
	sc := NewScanner(src, nil, cfg)
	sc.SetCache(store)
	sc.SetRepository(repo)
	sc.SetEventBus(bus)

	if sc.Latest(context.Background()) != nil {
		t.Fatal("Expected no latest scan before the first refresh")
	}

	sc.Refresh()

	latest := sc.Latest(context.Background())
	if latest == nil || len(latest.Groups) != 1 {
		t.Fatalf("Expected latest scan with one group, got %+v", latest)
	}

	if len(repo.saved) != 1 || repo.saved[0].ScanID != latest.ScanID || len(repo.saved[0].Groups) != 1 {
		t.Errorf("Expected the snapshot to be saved, got %+v", repo.saved)
	}
	if repo.pruneArg != 50 {
		t.Errorf("Expected history to be pruned to 50, got %d", repo.pruneArg)
	}

	var cached ScanResult
	if err := store.GetJSON(context.Background(), cache.LatestScanKey("8h"), &cached); err != nil {
		t.Errorf("Expected latest scan in cache: %v", err)
	}

	select {
	case e := <-received:
		if e.Data["scan_id"] != latest.ScanID {
			t.Errorf("Unexpected event data: %v", e.Data)
		}
	case <-time.After(time.Second):
		t.Error("Expected a signals refreshed event")
	}

	// A fresh scanner falls back to the cached snapshot
	restarted := NewScanner(src, nil, testConfig("ZZZUSDT"))
	restarted.SetCache(store)
	if got := restarted.Latest(context.Background()); got == nil || got.ScanID != latest.ScanID {
		t.Errorf("Expected cached snapshot after restart, got %+v", got)
	}
}

// TestStartStop tests the refresh loop lifecycle
func TestStartStop(t *testing.T) {
	src := &stubSource{series: map[string][]candle.RawCandle{"ZZZUSDT": criticalMarubozu()}}
	cfg := testConfig("ZZZUSDT")
	cfg.Enabled = true
	sc := NewScanner(src, nil, cfg)

	sc.Start()
	deadline := time.Now().Add(2 * time.Second)
	for sc.Latest(context.Background()) == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	sc.Stop()
	sc.Stop()

	if sc.Latest(context.Background()) == nil {
		t.Error("Expected the loop to run an immediate refresh")
	}
}

// TestToSnapshot tests the persisted form of a scan
func TestToSnapshot(t *testing.T) {
	r := &ScanResult{
		ScanID:       "id",
		Interval:     "1d",
		ImpactFilter: []candle.Impact{candle.ImpactCritical, candle.ImpactHigh},
		Groups: []SignalGroup{
			{Pattern: "Hammer", PatternID: "S004", FuturePotential: candle.Bullish, Impact: candle.ImpactCritical, MatchedSymbols: []string{"BTCUSDT"}},
		},
	}

	snap := ToSnapshot(r)
	if !reflect.DeepEqual(snap.ImpactFilter, []string{"Critical", "High"}) {
		t.Errorf("Unexpected filter: %v", snap.ImpactFilter)
	}
	if snap.GroupCount != 1 || snap.Groups[0].PatternID != "S004" || snap.Groups[0].FuturePotential != "Bullish" {
		t.Errorf("Unexpected groups: %+v", snap.Groups)
	}
}
