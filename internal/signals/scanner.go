package signals

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"candle-signals/internal/binance"
	"candle-signals/internal/cache"
	"candle-signals/internal/candle"
	"candle-signals/internal/database"
	"candle-signals/internal/events"
	"candle-signals/internal/logging"
	"candle-signals/internal/patterns"
	"candle-signals/internal/trace"
)

const refreshTimeout = 5 * time.Minute

// SnapshotStore persists completed background scans
type SnapshotStore interface {
	SaveSignalSnapshot(ctx context.Context, snap *database.SignalSnapshot) error
}

// snapshotPruner is implemented by stores that can drop old snapshots
type snapshotPruner interface {
	PruneSignalSnapshots(ctx context.Context, keep int) (int64, error)
}

// Scanner fetches candles for many symbols concurrently and aggregates their
// signals. It can also refresh a default scan in the background.
type Scanner struct {
	source binance.CandleSource
	engine *patterns.Engine
	config Config
	cache  cache.Store
	repo   SnapshotStore
	bus    *events.EventBus
	log    *logging.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	latest   *ScanResult
	now      func() time.Time
}

// NewScanner creates a new scanner instance
func NewScanner(source binance.CandleSource, engine *patterns.Engine, config Config) *Scanner {
	if engine == nil {
		engine = patterns.NewEngine()
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if len(config.Symbols) == 0 {
		config.Symbols = DefaultSymbols
	}
	if len(config.Impacts) == 0 {
		config.Impacts = DefaultImpacts
	}
	return &Scanner{
		source:   source,
		engine:   engine,
		config:   config,
		log:      logging.WithComponent("signals"),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// SetCache attaches a cache for scan results
func (sc *Scanner) SetCache(store cache.Store) {
	sc.cache = store
}

// SetRepository attaches snapshot persistence for background scans
func (sc *Scanner) SetRepository(repo SnapshotStore) {
	sc.repo = repo
}

// SetEventBus attaches the bus that receives refresh events
func (sc *Scanner) SetEventBus(bus *events.EventBus) {
	sc.bus = bus
}

// Config returns the effective configuration
func (sc *Scanner) Config() Config {
	return sc.config
}

type fetchResult struct {
	candles []candle.RawCandle
	err     error
}

// Scan fetches every symbol, aggregates the active-candle signals and applies
// the impact filter. Per-symbol failures become diagnostics; a cancelled
// context abandons the whole scan.
func (sc *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	sc.defaults(&req)
	if err := binance.ValidateInterval(req.Interval); err != nil {
		return nil, err
	}

	startedAt := sc.now()
	scanID := uuid.New().String()
	l := logging.ScanContext(ctx, scanID, req.Interval, len(req.Symbols))

	ctx, span := trace.StartSpan(ctx, "signals.scan",
		attribute.String("scan.id", scanID),
		attribute.String("interval", req.Interval),
		attribute.Int("symbols", len(req.Symbols)),
	)
	defer span.End()

	l.Debug("Starting scan")

	fetched := sc.fetchAll(ctx, req)
	if err := ctx.Err(); err != nil {
		trace.RecordError(span, err)
		return nil, fmt.Errorf("scan %s abandoned: %w", scanID, err)
	}

	result := &ScanResult{
		ScanID:         scanID,
		Interval:       req.Interval,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		StartedAt:      startedAt,
		SymbolsScanned: len(req.Symbols),
		ImpactFilter:   req.Impacts,
		Diagnostics:    []candle.Diagnostic{},
	}

	inputs := make([]SymbolCandles, 0, len(req.Symbols))
	for i, symbol := range req.Symbols {
		if err := fetched[i].err; err != nil {
			result.SymbolsFailed++
			result.Diagnostics = append(result.Diagnostics, candle.Diagnostic{
				Symbol:  symbol,
				Index:   -1,
				Kind:    candle.DiagnosticSource,
				Message: err.Error(),
			})
			continue
		}
		inputs = append(inputs, SymbolCandles{Symbol: symbol, Candles: fetched[i].candles})
	}

	agg, err := Aggregate(inputs, sc.config.Window, sc.engine)
	if err != nil {
		trace.RecordError(span, err)
		return nil, err
	}

	result.Diagnostics = append(result.Diagnostics, agg.Diagnostics...)
	result.Groups = Filter(agg.Groups, req.Impacts)
	result.Buckets = Bucket(result.Groups)
	result.DurationMs = sc.now().Sub(startedAt).Milliseconds()

	span.SetAttributes(attribute.Int("groups", len(result.Groups)), attribute.Int("symbols.failed", result.SymbolsFailed))
	l.Info("Scan completed",
		"groups", len(result.Groups),
		"failed", result.SymbolsFailed,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

// CachedScan serves an open-ended scan from the cache when possible and
// stores fresh results. Scans with an explicit time range bypass the cache.
func (sc *Scanner) CachedScan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	sc.defaults(&req)
	if sc.cache == nil || req.StartTime != nil || req.EndTime != nil || !sameSymbols(req.Symbols, sc.config.Symbols) {
		return sc.Scan(ctx, req)
	}

	key := cache.SignalsKey(req.Interval, impactKey(req.Impacts))
	var cached ScanResult
	if err := sc.cache.GetJSON(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	result, err := sc.Scan(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := sc.cache.SetJSON(ctx, key, result, sc.config.SignalTTL); err != nil {
		sc.log.Debug("Failed to cache scan result", "key", key, "error", err)
	}
	return result, nil
}

func (sc *Scanner) defaults(req *ScanRequest) {
	if req.Interval == "" {
		req.Interval = sc.config.Interval
	}
	if len(req.Symbols) == 0 {
		req.Symbols = sc.config.Symbols
	}
	if len(req.Impacts) == 0 {
		req.Impacts = sc.config.Impacts
	}
}

// fetchAll runs the worker pool. Results are indexed by symbol position so
// aggregation order does not depend on completion order.
func (sc *Scanner) fetchAll(ctx context.Context, req ScanRequest) []fetchResult {
	results := make([]fetchResult, len(req.Symbols))
	symbolChan := make(chan int, len(req.Symbols))
	var wg sync.WaitGroup

	workers := sc.config.WorkerCount
	if workers > len(req.Symbols) {
		workers = len(req.Symbols)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go sc.worker(ctx, req, symbolChan, results, &wg)
	}

	for i := range req.Symbols {
		symbolChan <- i
	}
	close(symbolChan)

	wg.Wait()
	return results
}

// worker processes symbols from the channel
func (sc *Scanner) worker(
	ctx context.Context,
	req ScanRequest,
	symbolChan <-chan int,
	results []fetchResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for i := range symbolChan {
		if err := ctx.Err(); err != nil {
			results[i].err = err
			continue
		}
		candles, err := sc.source.Fetch(ctx, binance.KlineRequest{
			Symbol:    req.Symbols[i],
			Interval:  req.Interval,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Limit:     sc.config.Limit,
			Priority:  req.Priority,
		})
		results[i] = fetchResult{candles: candles, err: err}
	}
}

// Start begins the background refresh loop
func (sc *Scanner) Start() {
	if !sc.config.Enabled {
		sc.log.Info("Background signal refresh is disabled")
		return
	}

	sc.wg.Add(1)
	go sc.runRefreshLoop()
	sc.log.Info("Background signal refresh started",
		"interval", sc.config.Interval,
		"every", sc.config.RefreshInterval.String(),
	)
}

// Stop halts the refresh loop and waits for an in-flight scan to finish
func (sc *Scanner) Stop() {
	select {
	case <-sc.stopChan:
		return
	default:
		close(sc.stopChan)
	}
	sc.wg.Wait()
}

func (sc *Scanner) runRefreshLoop() {
	defer sc.wg.Done()

	ticker := time.NewTicker(sc.config.RefreshInterval)
	defer ticker.Stop()

	// Run immediately
	sc.Refresh()

	for {
		select {
		case <-ticker.C:
			sc.Refresh()
		case <-sc.stopChan:
			sc.log.Info("Background signal refresh stopped")
			return
		}
	}
}

// Refresh runs the default scan once and publishes its result
func (sc *Scanner) Refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	// Abandon the scan on shutdown
	go func() {
		select {
		case <-sc.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := sc.Scan(ctx, ScanRequest{Priority: binance.PriorityLow})
	if err != nil {
		sc.log.WithError(err).Warn("Background scan failed")
		if sc.bus != nil {
			sc.bus.PublishScanFailed(sc.config.Interval, err)
		}
		return
	}

	sc.mu.Lock()
	sc.latest = result
	sc.mu.Unlock()

	if sc.cache != nil {
		if err := sc.cache.SetJSON(ctx, cache.LatestScanKey(result.Interval), result, sc.config.SignalTTL); err != nil {
			sc.log.Debug("Failed to cache latest scan", "error", err)
		}
	}

	if sc.repo != nil {
		if err := sc.repo.SaveSignalSnapshot(ctx, ToSnapshot(result)); err != nil {
			sc.log.WithError(err).Warn("Failed to save signal snapshot", "scan_id", result.ScanID)
		} else if pruner, ok := sc.repo.(snapshotPruner); ok && sc.config.KeepSnapshots > 0 {
			if n, err := pruner.PruneSignalSnapshots(ctx, sc.config.KeepSnapshots); err != nil {
				sc.log.WithError(err).Warn("Failed to prune signal snapshots")
			} else if n > 0 {
				sc.log.Debug("Pruned signal snapshots", "deleted", n)
			}
		}
	}

	if sc.bus != nil {
		sc.bus.PublishSignalsRefreshed(result.ScanID, result.Interval, result.SymbolsScanned,
			len(result.Groups), time.Duration(result.DurationMs)*time.Millisecond)
	}
}

// Latest returns the last background scan. After a restart the cached
// snapshot is used until the first refresh completes.
func (sc *Scanner) Latest(ctx context.Context) *ScanResult {
	sc.mu.RLock()
	latest := sc.latest
	sc.mu.RUnlock()
	if latest != nil || sc.cache == nil {
		return latest
	}

	var cached ScanResult
	if err := sc.cache.GetJSON(ctx, cache.LatestScanKey(sc.config.Interval), &cached); err != nil {
		return nil
	}
	return &cached
}

// ToSnapshot converts a scan result into its persisted form
func ToSnapshot(r *ScanResult) *database.SignalSnapshot {
	snap := &database.SignalSnapshot{
		ScanID:         r.ScanID,
		Interval:       r.Interval,
		StartTime:      r.StartTime,
		EndTime:        r.EndTime,
		SymbolsScanned: r.SymbolsScanned,
		SymbolsFailed:  r.SymbolsFailed,
		GroupCount:     len(r.Groups),
		DurationMs:     r.DurationMs,
		ImpactFilter:   make([]string, len(r.ImpactFilter)),
		Groups:         make([]database.SignalGroupRecord, len(r.Groups)),
	}
	for i, imp := range r.ImpactFilter {
		snap.ImpactFilter[i] = string(imp)
	}
	for i, g := range r.Groups {
		snap.Groups[i] = database.SignalGroupRecord{
			Position:        i,
			PatternID:       g.PatternID,
			Pattern:         g.Pattern,
			FuturePotential: string(g.FuturePotential),
			Impact:          string(g.Impact),
			MatchedSymbols:  g.MatchedSymbols,
		}
	}
	return snap
}

func impactKey(impacts []candle.Impact) string {
	names := make([]string, len(impacts))
	for i, imp := range impacts {
		names[i] = string(imp)
	}
	return strings.Join(names, ",")
}

func sameSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
