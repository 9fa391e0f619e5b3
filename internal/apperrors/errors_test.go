package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotErrorIsRetryable(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("analyze: %w", NewSnapshotError("p1", cause))

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "p1")
}

func TestPlainErrorsAreNotRetryable(t *testing.T) {
	assert.False(t, IsRetryable(ErrNoData))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrNotFound)))
	assert.False(t, IsRetryable(nil))
}
