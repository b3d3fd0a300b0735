// Package errs holds the error taxonomy shared by the ledger components.
//
// Callers classify failures with errors.Is against the sentinels below:
// ErrValidation and ErrNotFound are rejected before any write,
// ErrInsufficientFunds and ErrInsufficientHoldings abort an operation before
// it commits, ErrConcurrencyConflict is transient and retryable, and
// ErrStorageUnavailable is an infrastructure failure.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrConcurrencyConflict  = errors.New("concurrency conflict")
	ErrStorageUnavailable   = errors.New("storage unavailable")

	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrTradeNotFound       = fmt.Errorf("trade %w", ErrNotFound)
	ErrHoldingNotFound     = fmt.Errorf("holding %w", ErrNotFound)
	ErrGoalNotFound        = fmt.Errorf("goal %w", ErrNotFound)
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid returns a *ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Retryable reports whether err is transient and the whole logical
// operation can be retried by the caller.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
