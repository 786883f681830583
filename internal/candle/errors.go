package candle

import (
	"errors"
	"fmt"
)

var (
	// ErrTooFewFields is matched by a DecodeError for a tuple shorter than MinFields
	ErrTooFewFields = errors.New("too few fields")
	// ErrNonNumeric is matched by a DecodeError for a field that is not a finite number
	ErrNonNumeric = errors.New("non-numeric field")
)

// DecodeErrorKind classifies a malformed raw candle
type DecodeErrorKind int

const (
	TooFewFields DecodeErrorKind = iota
	NonNumeric
)

// DecodeError reports why a raw tuple could not be decoded
type DecodeError struct {
	Kind  DecodeErrorKind
	Field int // offending field index for NonNumeric, field count for TooFewFields
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case TooFewFields:
		return fmt.Sprintf("decode candle: %d fields, need at least %d", e.Field, MinFields)
	case NonNumeric:
		return fmt.Sprintf("decode candle: field %d is not numeric", e.Field)
	default:
		return "decode candle: unknown error"
	}
}

// Is lets errors.Is match the sentinel for the error kind
func (e *DecodeError) Is(target error) bool {
	switch e.Kind {
	case TooFewFields:
		return target == ErrTooFewFields
	case NonNumeric:
		return target == ErrNonNumeric
	}
	return false
}

// DiagnosticKind classifies a non-fatal problem attached to a request
type DiagnosticKind string

const (
	DiagnosticDecode     DiagnosticKind = "decode"
	DiagnosticDegenerate DiagnosticKind = "degenerate"
	DiagnosticSource     DiagnosticKind = "source"
	// Too few candles to pick an active candle
	DiagnosticInsufficient DiagnosticKind = "insufficient"
)

// Diagnostic is a non-fatal problem found while processing a request.
// Index is the position of the raw candle, or -1 for symbol-level problems.
type Diagnostic struct {
	Symbol  string         `json:"symbol,omitempty"`
	Index   int            `json:"index"`
	Kind    DiagnosticKind `json:"kind"`
	Message string         `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Symbol != "" {
		return fmt.Sprintf("%s[%d] %s: %s", d.Symbol, d.Index, d.Kind, d.Message)
	}
	return fmt.Sprintf("[%d] %s: %s", d.Index, d.Kind, d.Message)
}
