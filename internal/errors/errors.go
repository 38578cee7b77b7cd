package errors

import (
	"errors"
	"fmt"
	"time"
)

// APIError is an error that is reported to the caller as {"error": Message}.
type APIError struct {
	Kind      Kind
	Message   string
	Timestamp time.Time
	Cause     error
}

type Kind string

const (
	KindTooManySymbols Kind = "too_many_symbols"
	KindMissingSymbol  Kind = "missing_symbol"
	KindInvalidSymbol  Kind = "invalid_symbol"
	KindUpstream       Kind = "upstream"
	KindConfig         Kind = "config"
)

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Is matches any *APIError of the same kind, so callers can compare against
// the sentinel values below with errors.Is.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Kind == e.Kind
}

// New creates a new APIError
func New(kind Kind, message string, cause error) *APIError {
	return &APIError{
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// Newf creates a new APIError with formatted message
func Newf(kind Kind, format string, args ...interface{}) *APIError {
	return &APIError{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

func TooManySymbols(max int) *APIError {
	return Newf(KindTooManySymbols, "Maximum %d stocks allowed", max)
}

func MissingSymbol() *APIError {
	return New(KindMissingSymbol, "Missing stock symbol", nil)
}

// InvalidSymbol covers both unknown symbols and failed upstream fetches; the
// caller cannot tell the two apart.
func InvalidSymbol(symbol string, cause error) *APIError {
	return New(KindInvalidSymbol, "Invalid stock symbol: "+symbol, cause)
}

// Message returns the caller-facing text for err.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "Error fetching stock data"
}

// Sentinels for errors.Is comparisons.
var (
	ErrTooManySymbols = &APIError{Kind: KindTooManySymbols}
	ErrMissingSymbol  = &APIError{Kind: KindMissingSymbol}
	ErrInvalidSymbol  = &APIError{Kind: KindInvalidSymbol}

	ErrUnknownSymbol        = errors.New("unknown symbol")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrServerShutdown       = errors.New("server shutdown")
)
