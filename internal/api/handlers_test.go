package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"candle-signals/internal/analysis"
	"candle-signals/internal/auth"
	"candle-signals/internal/binance"
	"candle-signals/internal/cache"
	"candle-signals/internal/candle"
	"candle-signals/internal/database"
	"candle-signals/internal/signals"
	"candle-signals/internal/stats"
)

type fakeHistory struct {
	snapshots []database.SignalSnapshot
	healthErr error
	lastLimit int
}

func (f *fakeHistory) ListSignalSnapshots(ctx context.Context, interval string, limit int) ([]database.SignalSnapshot, error) {
	f.lastLimit = limit
	return f.snapshots, nil
}

func (f *fakeHistory) GetSignalSnapshot(ctx context.Context, scanID string) (*database.SignalSnapshot, error) {
	for i := range f.snapshots {
		if f.snapshots[i].ScanID == scanID {
			return &f.snapshots[i], nil
		}
	}
	return nil, database.ErrSnapshotNotFound
}

func (f *fakeHistory) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

type failingSource struct{}

func (failingSource) Fetch(ctx context.Context, req binance.KlineRequest) ([]candle.RawCandle, error) {
	return nil, &binance.SourceError{Symbol: req.Symbol, StatusCode: 503, Err: errors.New("unavailable")}
}

func newTestServer(t *testing.T, source binance.CandleSource, services Services) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if services.Analyzer == nil {
		services.Analyzer = analysis.NewAnalyzer(source, nil, stats.DefaultWindow, 100)
	}
	if services.Scanner == nil {
		services.Scanner = signals.NewScanner(source, nil, signals.Config{
			WorkerCount: 4,
			Window:      stats.DefaultWindow,
			Interval:    "8h",
			Limit:       100,
			Symbols:     []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		})
	}
	return NewServer(ServerConfig{RateLimitPerMinute: 1000}, services)
}

func do(t *testing.T, s *Server, method, path string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dest); err != nil {
		t.Fatalf("Failed to parse response: %v (%s)", err, w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	history := &fakeHistory{}
	s := newTestServer(t, binance.NewMockSource(), Services{Cache: cache.NewMemoryCache(), History: history})

	w := do(t, s, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	decode(t, w, &response)
	if response["status"] != "healthy" || response["cache"] != "healthy" || response["database"] != "healthy" {
		t.Errorf("Unexpected health response: %v", response)
	}
	if w.Header().Get("X-Trace-ID") == "" {
		t.Error("Expected a trace id header")
	}

	history.healthErr = errors.New("down")
	if w := do(t, s, http.MethodGet, "/health", nil, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 with a failing database, got %d", w.Code)
	}
}

func TestPatternsEndpoint(t *testing.T) {
	s := newTestServer(t, binance.NewMockSource(), Services{})

	w := do(t, s, http.MethodGet, "/api/patterns", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Patterns []map[string]interface{} `json:"patterns"`
		Count    int                      `json:"count"`
	}
	decode(t, w, &response)
	if response.Count != len(response.Patterns) || response.Count == 0 {
		t.Errorf("Unexpected catalogue size %d", response.Count)
	}
	if response.Patterns[0]["id"] != "S001" {
		t.Errorf("Expected S001 first, got %v", response.Patterns[0]["id"])
	}
}

func TestAnalysisEndpoint(t *testing.T) {
	s := newTestServer(t, binance.NewMockSource(), Services{})

	w := do(t, s, http.MethodGet, "/api/analysis?symbol=ethusdt&interval=1d&candleLength=-20,-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result analysis.Result
	decode(t, w, &result)
	if result.Symbol != "ETHUSDT" || result.Interval != "1d" {
		t.Errorf("Unexpected result header: %s %s", result.Symbol, result.Interval)
	}
	if len(result.Candles) != 19 || result.SliceStart != 80 || result.SliceEnd != 99 {
		t.Errorf("Expected 19 candles from [80:99], got %d from [%d:%d]", len(result.Candles), result.SliceStart, result.SliceEnd)
	}
}

func TestAnalysisErrors(t *testing.T) {
	s := newTestServer(t, binance.NewMockSource(), Services{})

	tests := []struct {
		path   string
		status int
	}{
		{"/api/analysis?interval=15m", http.StatusBadRequest},
		{"/api/analysis?startTime=abc", http.StatusBadRequest},
		{"/api/analysis?startTime=10&endTime=5", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(t, s, http.MethodGet, tt.path, nil, nil); w.Code != tt.status {
			t.Errorf("%s: expected status %d, got %d", tt.path, tt.status, w.Code)
		}
	}

	failing := newTestServer(t, failingSource{}, Services{})
	if w := do(t, failing, http.MethodGet, "/api/analysis", nil, nil); w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502 on source failure, got %d", w.Code)
	}
}

func TestSignalsEndpoint(t *testing.T) {
	s := newTestServer(t, binance.NewMockSource(), Services{Cache: cache.NewMemoryCache()})

	w := do(t, s, http.MethodGet, "/api/signals?impact=Critical,High,Medium,Low", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result signals.ScanResult
	decode(t, w, &result)
	if result.SymbolsScanned != 3 || result.Interval != "8h" {
		t.Errorf("Unexpected scan header: %+v", result)
	}
	if len(result.ImpactFilter) != 4 {
		t.Errorf("Expected 4 tiers in the filter, got %v", result.ImpactFilter)
	}

	if w := do(t, s, http.MethodGet, "/api/signals?impact=Extreme", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an unknown tier, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/signals?interval=1h", nil, nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for an unsupported interval, got %d", w.Code)
	}

	// Failing symbols are diagnostics, never a failed request
	failing := newTestServer(t, failingSource{}, Services{})
	w = do(t, failing, http.MethodGet, "/api/signals", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	decode(t, w, &result)
	if result.SymbolsFailed != 3 || len(result.Diagnostics) != 3 {
		t.Errorf("Expected 3 source diagnostics, got %+v", result.Diagnostics)
	}
}

func TestLatestSignalsEndpoint(t *testing.T) {
	s := newTestServer(t, binance.NewMockSource(), Services{})

	if w := do(t, s, http.MethodGet, "/api/signals/latest", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 before the first refresh, got %d", w.Code)
	}

	s.services.Scanner.Refresh()

	if w := do(t, s, http.MethodGet, "/api/signals/latest", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200 after a refresh, got %d", w.Code)
	}
}

func TestSignalHistoryEndpoint(t *testing.T) {
	disabled := newTestServer(t, binance.NewMockSource(), Services{})
	if w := do(t, disabled, http.MethodGet, "/api/signals/history", nil, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 without a database, got %d", w.Code)
	}

	history := &fakeHistory{snapshots: []database.SignalSnapshot{{ScanID: "abc", Interval: "8h"}}}
	s := newTestServer(t, binance.NewMockSource(), Services{History: history})

	w := do(t, s, http.MethodGet, "/api/signals/history?limit=500", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if history.lastLimit != maxHistoryLimit {
		t.Errorf("Expected limit to be capped at %d, got %d", maxHistoryLimit, history.lastLimit)
	}

	if w := do(t, s, http.MethodGet, "/api/signals/history/abc", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for a known snapshot, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/signals/history/missing", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for an unknown snapshot, got %d", w.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	hash, _ := auth.HashPassword("s3cret-pass", bcrypt.MinCost)
	authService := auth.NewService(auth.Config{
		JWTSecret:           "test-secret",
		AccessTokenDuration: time.Minute,
		AdminUser:           "admin",
		AdminPasswordHash:   hash,
	})
	s := newTestServer(t, binance.NewMockSource(), Services{Auth: authService})

	if w := do(t, s, http.MethodGet, "/api/patterns", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without a token, got %d", w.Code)
	}

	bad, _ := json.Marshal(auth.LoginRequest{Username: "admin", Password: "nope"})
	if w := do(t, s, http.MethodPost, "/api/auth/token", bad, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for bad credentials, got %d", w.Code)
	}

	good, _ := json.Marshal(auth.LoginRequest{Username: "admin", Password: "s3cret-pass"})
	w := do(t, s, http.MethodPost, "/api/auth/token", good, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for good credentials, got %d", w.Code)
	}
	var token auth.TokenResponse
	decode(t, w, &token)

	bearer := map[string]string{"Authorization": "Bearer " + token.AccessToken}
	w = do(t, s, http.MethodGet, "/api/patterns", nil, bearer)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with a token, got %d", w.Code)
	}

	w = do(t, s, http.MethodGet, "/api/auth/me", nil, bearer)
	var claims auth.UserClaims
	decode(t, w, &claims)
	if claims.Username != "admin" || !claims.IsAdmin {
		t.Errorf("Unexpected claims: %+v", claims)
	}

	open := newTestServer(t, binance.NewMockSource(), Services{})
	if w := do(t, open, http.MethodPost, "/api/auth/token", good, nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when auth is disabled, got %d", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("/a") || !rl.Allow("/a") {
		t.Fatal("First two requests should be allowed")
	}
	if rl.Allow("/a") {
		t.Error("Third request should be rejected")
	}
	if !rl.Allow("/b") {
		t.Error("Limits should be per key")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("/a") {
		t.Error("Requests should be allowed after the window passes")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	source := binance.NewMockSource()
	s := NewServer(ServerConfig{RateLimitPerMinute: 1}, Services{
		Analyzer: analysis.NewAnalyzer(source, nil, stats.DefaultWindow, 100),
		Scanner:  signals.NewScanner(source, nil, signals.Config{Window: stats.DefaultWindow, Interval: "8h", Symbols: []string{"BTCUSDT"}}),
	})

	if w := do(t, s, http.MethodGet, "/api/analysis", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/analysis", nil, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/patterns", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Catalogue should not be rate limited, got %d", w.Code)
	}
}
