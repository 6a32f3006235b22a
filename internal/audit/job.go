// Package audit implements the Audit Pipeline (C3): the engine's off-hot-path
// durable record of every accepted state transition.
package audit

import (
	"context"
	"time"

	"github.com/vitaliisemenov/turnsync/internal/engine"
)

// Job is one durable write: a session summary upsert plus an append-only
// event row, derived from a single accepted mutation.
type Job struct {
	EventID       string
	SessionID     string
	EventType     engine.EventType
	Version       int64
	Snapshot      *engine.Session
	ParticipantID *string
	TimeRemaining *int64
	Metadata      map[string]interface{}
	OccurredAt    time.Time
}

// Repository persists Jobs. Implementations must make session_events inserts
// idempotent on EventID so a retried Job after a partial failure never
// double-records the same event.
type Repository interface {
	Record(ctx context.Context, job Job) error
	Close() error
}
