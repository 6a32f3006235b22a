package audit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// retryableCodes combines the teacher's DatabaseError.IsRetryable and
// IsConnectionError tables (internal/database/postgres/errors.go): connection failures, serialization
// failures, deadlocks, and transient unavailability are retried; constraint
// violations and syntax errors are not.
var retryableCodes = map[string]bool{
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
	"08001": true,
	"08004": true,
	"08007": true,
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"53300": true, // too_many_connections
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

// errorChecker classifies audit write failures as retryable or permanent for
// resilience.WithRetry. Constraint violations (bad data) are never retried;
// connection and serialization failures are.
type errorChecker struct{}

func (errorChecker) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableCodes[pgErr.Code]
	}
	// SQLite and unrecognized errors default to retryable: the audit pipeline
	// favors re-attempting a transient failure over silently dropping a job.
	return true
}
