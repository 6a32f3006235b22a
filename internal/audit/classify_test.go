package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorChecker_NilErrorIsNotRetryable(t *testing.T) {
	assert.False(t, errorChecker{}.IsRetryable(nil))
}

func TestErrorChecker_ContextCancellationIsNotRetryable(t *testing.T) {
	assert.False(t, errorChecker{}.IsRetryable(context.Canceled))
	assert.False(t, errorChecker{}.IsRetryable(context.DeadlineExceeded))
}

func TestErrorChecker_RetryablePgCodes(t *testing.T) {
	for _, code := range []string{"08006", "40001", "40P01", "53300", "57P01"} {
		err := &pgconn.PgError{Code: code}
		assert.True(t, errorChecker{}.IsRetryable(err), "code %s should be retryable", code)
	}
}

func TestErrorChecker_NonRetryablePgCodes(t *testing.T) {
	for _, code := range []string{"23505", "23503", "42601", "22001"} {
		err := &pgconn.PgError{Code: code}
		assert.False(t, errorChecker{}.IsRetryable(err), "code %s should not be retryable", code)
	}
}

func TestErrorChecker_UnrecognizedErrorDefaultsRetryable(t *testing.T) {
	assert.True(t, errorChecker{}.IsRetryable(errors.New("disk full")))
}
