// Package errors provides severity-aware error types for the pricing engine.
package errors

import "fmt"

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// PricingError is a structured error with context.
type PricingError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Key         string   `json:"key,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *PricingError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[%s] %s: %s (key: %s)", e.Severity, e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Error codes.
const (
	ErrCodeUnknownCompetitor = "UNKNOWN_COMPETITOR"
	ErrCodeInvalidPrice      = "INVALID_PRICE"
	ErrCodeMalformedRow      = "MALFORMED_ROW"
	ErrCodeInsufficientData  = "INSUFFICIENT_DATA"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeSnapshotLoad      = "SNAPSHOT_LOAD"
)

// HasCode reports whether err is a PricingError carrying the given code.
func HasCode(err error, code string) bool {
	pe, ok := err.(*PricingError)
	return ok && pe.Code == code
}

// NewUnknownCompetitorError creates an error for an unregistered competitor.
func NewUnknownCompetitorError(competitorID string) *PricingError {
	return &PricingError{
		Code:        ErrCodeUnknownCompetitor,
		Message:     fmt.Sprintf("competitor not registered: %s", competitorID),
		Severity:    SeverityWarning,
		Key:         competitorID,
		Recoverable: true,
	}
}

// NewInvalidPriceError creates an error for a zero or negative amount.
func NewInvalidPriceError(what, key string) *PricingError {
	return &PricingError{
		Code:        ErrCodeInvalidPrice,
		Message:     fmt.Sprintf("%s must be positive", what),
		Severity:    SeverityWarning,
		Key:         key,
		Recoverable: true,
	}
}

// NewInsufficientDataError creates an error for queries with too few points.
func NewInsufficientDataError(what string, have, need int) *PricingError {
	return &PricingError{
		Code:        ErrCodeInsufficientData,
		Message:     fmt.Sprintf("insufficient data for %s: have %d, need %d", what, have, need),
		Severity:    SeverityInfo,
		Recoverable: true,
	}
}

// NewNotFoundError creates an error for an untracked product:variant key.
func NewNotFoundError(what, key string) *PricingError {
	return &PricingError{
		Code:        ErrCodeNotFound,
		Message:     fmt.Sprintf("no %s recorded", what),
		Severity:    SeverityInfo,
		Key:         key,
		Recoverable: true,
	}
}
