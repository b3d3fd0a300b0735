package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorIs(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("create transaction: %w", Invalid("amount", "must be > 0"))
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "create transaction: validation: amount must be > 0", err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "amount", ve.Field)
}

func TestNotFoundFamily(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrAccountNotFound, ErrTransactionNotFound, ErrTradeNotFound, ErrHoldingNotFound, ErrGoalNotFound} {
		assert.ErrorIs(t, err, ErrNotFound, err.Error())
	}
	assert.NotErrorIs(t, ErrAccountNotFound, ErrGoalNotFound)
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, Retryable(fmt.Errorf("savings: %w", ErrStorageUnavailable)))
	assert.False(t, Retryable(Invalid("amount", "must be > 0")))
	assert.True(t, Retryable(fmt.Errorf("x: %w", ErrConcurrencyConflict)))
	assert.True(t, Retryable(fmt.Errorf("after 5 attempts: %w", fmt.Errorf("update: %w", ErrConcurrencyConflict))))
}
