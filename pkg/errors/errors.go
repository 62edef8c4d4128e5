// Package apperrors defines the error taxonomy shared across the grid trader.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for runtime failure classes.
var (
	// ErrPriceUnavailable marks a bad bid/ask snapshot; the offending poll
	// cycle is skipped and retried on the next one.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrCannotPriceLevel marks a level whose price is non-positive after
	// tick rounding, or a division by a non-positive price.
	ErrCannotPriceLevel = errors.New("cannot price level")

	// ErrExchangeCall marks a failed placement/cancellation attempt; the
	// caller leaves state inconsistent and relies on reconciliation.
	ErrExchangeCall = errors.New("exchange call failed")
)

// ConfigError is a fatal configuration problem detected before any network
// activity. The message must be actionable for the operator.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Message
	}
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

// NewConfigError builds a ConfigError for a field.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// CriticalError wraps an unexpected failure inside the control loop. It is
// surfaced to the caller after graceful shutdown has completed.
type CriticalError struct {
	Reason string
	Err    error
}

func (e *CriticalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("critical error: %s: %v", e.Reason, e.Err)
	}
	return "critical error: " + e.Reason
}

func (e *CriticalError) Unwrap() error { return e.Err }
