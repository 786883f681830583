package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(level string, buf *bytes.Buffer) *Logger {
	return NewWithWriter(&Config{Level: level, Component: "test", JSONFormat: true}, buf)
}

func decodeLine(t *testing.T, line []byte) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("Failed to decode log line %q: %v", line, err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"Warning": WARN,
		"error":   ERROR,
		"FATAL":   FATAL,
		"bogus":   INFO,
		"":        INFO,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestKeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger("INFO", &buf)

	l.WithField("symbol", "BTCUSDT").Info("Scan finished", "groups", 3, "err", errors.New("boom"))

	entry := decodeLine(t, bytes.TrimSpace(buf.Bytes()))
	if entry["message"] != "Scan finished" {
		t.Errorf("Expected message 'Scan finished', got %v", entry["message"])
	}
	if entry["component"] != "test" {
		t.Errorf("Expected component 'test', got %v", entry["component"])
	}
	if entry["symbol"] != "BTCUSDT" {
		t.Errorf("Expected symbol field, got %v", entry["symbol"])
	}
	if entry["groups"] != float64(3) {
		t.Errorf("Expected groups=3, got %v", entry["groups"])
	}
	if entry["err"] != "boom" {
		t.Errorf("Expected err=boom, got %v", entry["err"])
	}
}

func TestPrintfFallback(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger("INFO", &buf)

	l.Info("fetched %d klines for %s", 100, "ETHUSDT")

	entry := decodeLine(t, bytes.TrimSpace(buf.Bytes()))
	if entry["message"] != "fetched 100 klines for ETHUSDT" {
		t.Errorf("Expected formatted message, got %v", entry["message"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger("WARN", &buf)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("Expected 2 lines at WARN, got %d: %q", len(lines), buf.String())
	}
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger("INFO", &buf)
	if l.WithError(nil) != l {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestCloneIsolation(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger("INFO", &buf)
	child := base.WithField("a", 1)
	child.WithField("b", 2)

	if _, ok := base.fields["a"]; ok {
		t.Error("Parent logger should not see child fields")
	}
	if _, ok := child.fields["b"]; ok {
		t.Error("Child logger should not see grandchild fields")
	}
}

func TestTraceContext(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(newTestLogger("INFO", &buf))
	defer SetDefault(nil)

	ctx, l := WithTraceContext(context.Background())
	id := TraceIDFromContext(ctx)
	if len(id) != 36 {
		t.Errorf("Expected a uuid trace id, got %q", id)
	}
	if FromContext(ctx) != l {
		t.Error("FromContext should return the attached logger")
	}

	l.Info("traced")
	entry := decodeLine(t, bytes.TrimSpace(buf.Bytes()))
	if entry["trace_id"] != id {
		t.Errorf("Expected trace_id %s, got %v", id, entry["trace_id"])
	}

	ctx, _ = ContextWithTraceID(context.Background(), "req-1")
	if TraceIDFromContext(ctx) != "req-1" {
		t.Errorf("Expected caller trace id, got %q", TraceIDFromContext(ctx))
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "INFO", JSONFormat: false}, &buf)
	l.Info("plain text")

	if !strings.Contains(buf.String(), "plain text") {
		t.Errorf("Expected console output to contain the message, got %q", buf.String())
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Error("Console output should not be JSON")
	}
}

func TestScopedLoggersInheritTrace(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(newTestLogger("INFO", &buf))
	defer SetDefault(nil)

	ctx, _ := ContextWithTraceID(context.Background(), "req-7")
	ScanContext(ctx, "scan-1", "8h", 30).Info("Scan complete")

	entry := decodeLine(t, bytes.TrimSpace(buf.Bytes()))
	if entry["trace_id"] != "req-7" {
		t.Errorf("Expected trace_id req-7, got %v", entry["trace_id"])
	}
	if entry["component"] != "scanner" || entry["scan_id"] != "scan-1" || entry["symbols"] != float64(30) {
		t.Errorf("Unexpected scan fields: %v", entry)
	}

	buf.Reset()
	AnalysisContext(context.Background(), "BTCUSDT", "1d").Info("Analysis complete")
	entry = decodeLine(t, bytes.TrimSpace(buf.Bytes()))
	if _, ok := entry["trace_id"]; ok {
		t.Error("Analysis without a request context should carry no trace id")
	}
	if entry["symbol"] != "BTCUSDT" || entry["component"] != "analysis" {
		t.Errorf("Unexpected analysis fields: %v", entry)
	}
}
