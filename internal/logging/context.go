package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// FromContext returns the request logger, or the default logger when ctx
// carries none
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// TraceIDFromContext returns the trace ID stored by ContextWithTraceID
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext attaches a fresh trace ID and the logger carrying it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	return ContextWithTraceID(ctx, "")
}

// ContextWithTraceID attaches traceID, e.g. from a request header. An empty
// traceID gets a generated one.
func ContextWithTraceID(ctx context.Context, traceID string) (context.Context, *Logger) {
	if traceID == "" {
		traceID = uuid.New().String()
	}
	l := FromContext(ctx).WithTraceID(traceID)
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return context.WithValue(ctx, loggerKey, l), l
}

// AnalysisContext is the logger for one single-symbol analysis
func AnalysisContext(ctx context.Context, symbol, interval string) *Logger {
	return FromContext(ctx).WithComponent("analysis").WithFields(map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
	})
}

// ScanContext is the logger for one multi-symbol signal scan
func ScanContext(ctx context.Context, scanID, interval string, symbols int) *Logger {
	return FromContext(ctx).WithComponent("scanner").WithFields(map[string]interface{}{
		"scan_id":  scanID,
		"interval": interval,
		"symbols":  symbols,
	})
}
