// Package classify defines the error taxonomy shared by every venue adapter
// and the components that consume adapter errors (alerting, metrics, retry
// logic in the ingestion orchestrator).
package classify

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags a ClassifiedError with the taxonomy bucket a caller should
// switch on instead of string-matching error messages.
type Kind string

const (
	KindAuthentication   Kind = "AUTHENTICATION_ERROR"
	KindInsufficientFund Kind = "INSUFFICIENT_FUNDS"
	KindInvalidOrder     Kind = "INVALID_ORDER"
	KindOrderNotFound    Kind = "ORDER_NOT_FOUND"
	KindRateLimit        Kind = "RATE_LIMIT_EXCEEDED"
	KindNetwork          Kind = "NETWORK_ERROR"
	KindExchange         Kind = "EXCHANGE_ERROR"
	KindInvalidSymbol    Kind = "INVALID_SYMBOL"
	KindWebsocket        Kind = "WEBSOCKET_ERROR"
	KindParse            Kind = "PARSE_ERROR"
	KindUnknown          Kind = "UNKNOWN_ERROR"
)

// ClassifiedError is the taxonomy-tagged error every adapter returns once a
// venue response (REST status code, WS close frame, malformed payload) has
// been classified. It mirrors the shape of a venue-native error while
// carrying enough structure for callers to decide whether to retry.
type ClassifiedError struct {
	Kind       Kind
	Venue      string
	Symbol     string
	OrderID    string
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("%s[%s %s]: %v", e.Kind, e.Venue, e.Symbol, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %v", e.Kind, e.Venue, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// New constructs a ClassifiedError wrapping err with the given taxonomy kind.
func New(kind Kind, venue string, err error) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Venue: venue, Err: err}
}

// WithSymbol attaches the symbol the error occurred for and returns the
// receiver for chaining at the adapter call site.
func (e *ClassifiedError) WithSymbol(symbol string) *ClassifiedError {
	e.Symbol = symbol
	return e
}

// WithOrderID attaches the order identifier the error pertains to.
func (e *ClassifiedError) WithOrderID(orderID string) *ClassifiedError {
	e.OrderID = orderID
	return e
}

// WithRetry marks the error retryable after the given backoff.
func (e *ClassifiedError) WithRetry(after time.Duration) *ClassifiedError {
	e.Retryable = true
	e.RetryAfter = after
	return e
}

// FromHTTPStatus classifies a REST response by status code and body hint,
// following the venue-agnostic mapping every adapter applies before
// returning to the rate limiter / circuit breaker layer.
func FromHTTPStatus(venue string, status int, err error) *ClassifiedError {
	switch {
	case status == 401 || status == 403:
		return New(KindAuthentication, venue, err)
	case status == 404:
		return New(KindOrderNotFound, venue, err)
	case status == 429:
		return New(KindRateLimit, venue, err).WithRetry(time.Second)
	case status >= 500:
		return New(KindExchange, venue, err).WithRetry(2 * time.Second)
	case status == 400 || status == 422:
		return New(KindInvalidOrder, venue, err)
	default:
		return New(KindUnknown, venue, err)
	}
}

// IsRetryable reports whether err (possibly wrapped) is a retryable
// ClassifiedError.
func IsRetryable(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// RetryAfter returns the backoff a retryable ClassifiedError requested, or
// zero if err is not retryable.
func RetryAfter(err error) time.Duration {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}
