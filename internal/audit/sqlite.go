package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the lite-profile Audit Pipeline store: a single file,
// no external services, same sessions/participants/session_events schema as
// the standard profile's PostgreSQL tables (minus the Postgres-specific
// types). Uses modernc.org/sqlite, a pure-Go driver, so the lite profile
// stays a single static binary with no cgo toolchain requirement.
type SQLiteRepository struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics *repositoryMetrics
}

// NewSQLiteRepository opens (and does not migrate) the SQLite file at path.
// Schema setup is the caller's responsibility via the same goose migrations
// used for Postgres, translated to SQLite-compatible DDL.
func NewSQLiteRepository(path string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY contention
	return &SQLiteRepository{db: db, logger: logger, metrics: newRepositoryMetrics()}, nil
}

func (r *SQLiteRepository) Record(ctx context.Context, job Job) error {
	start := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.metrics.writeErrors.WithLabelValues("sqlite", "begin").Inc()
		return fmt.Errorf("audit: begin tx: %w", err)
	}
	defer tx.Rollback()

	var status string
	var activeParticipantID *string
	var cycleCount int64
	var completedAt *time.Time
	var syncMode string
	var timePerCycleMs *int64
	var incrementMs int64
	var maxTimeMs *int64
	var startedAt *time.Time
	var finalStatus *string
	var totalParticipants int
	if job.Snapshot != nil {
		status = string(job.Snapshot.Status)
		activeParticipantID = job.Snapshot.ActiveParticipantID
		completedAt = job.Snapshot.SessionCompletedAt
		syncMode = string(job.Snapshot.SyncMode)
		timePerCycleMs = job.Snapshot.TimePerCycleMs
		incrementMs = job.Snapshot.IncrementMs
		maxTimeMs = job.Snapshot.MaxTimeMs
		startedAt = job.Snapshot.SessionStartedAt
		totalParticipants = len(job.Snapshot.Participants)
		if terminalStatuses[job.Snapshot.Status] {
			s := status
			finalStatus = &s
		}
		for _, p := range job.Snapshot.Participants {
			if p.CycleCount > cycleCount {
				cycleCount = p.CycleCount
			}
		}
	} else {
		status = "deleted"
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (
			id, status, active_participant_id, cycle_count, version, created_at, updated_at, completed_at,
			sync_mode, time_per_cycle_ms, increment_ms, max_time_ms, started_at, final_status, total_participants
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			active_participant_id = excluded.active_participant_id,
			cycle_count = excluded.cycle_count,
			version = excluded.version,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at,
			sync_mode = excluded.sync_mode,
			time_per_cycle_ms = excluded.time_per_cycle_ms,
			increment_ms = excluded.increment_ms,
			max_time_ms = excluded.max_time_ms,
			started_at = excluded.started_at,
			final_status = excluded.final_status,
			total_participants = excluded.total_participants
		WHERE sessions.version < excluded.version`,
		job.SessionID, status, activeParticipantID, cycleCount, job.Version, job.OccurredAt, job.OccurredAt, completedAt,
		syncMode, timePerCycleMs, incrementMs, maxTimeMs, startedAt, finalStatus, totalParticipants,
	); err != nil {
		r.metrics.writeErrors.WithLabelValues("sqlite", "upsert_session").Inc()
		return fmt.Errorf("audit: upsert session: %w", err)
	}

	if job.Snapshot != nil {
		for _, p := range job.Snapshot.Participants {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO participants (id, session_id, position, joined_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (session_id, id) DO UPDATE SET position = excluded.position`,
				p.ParticipantID, job.SessionID, p.ParticipantIndex, job.OccurredAt,
			); err != nil {
				r.metrics.writeErrors.WithLabelValues("sqlite", "upsert_participants").Inc()
				return fmt.Errorf("audit: upsert participant %s: %w", p.ParticipantID, err)
			}
		}
	}

	payload, err := json.Marshal(job.Snapshot)
	if err != nil {
		return fmt.Errorf("audit: marshal snapshot: %w", err)
	}
	var metadata []byte
	if job.Metadata != nil {
		metadata, err = json.Marshal(job.Metadata)
		if err != nil {
			return fmt.Errorf("audit: marshal metadata: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_events (session_id, event_id, kind, version, payload, occurred_at, participant_id, time_remaining_ms, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
		job.SessionID, job.EventID, string(job.EventType), job.Version, payload, job.OccurredAt,
		job.ParticipantID, job.TimeRemaining, metadata,
	); err != nil {
		r.metrics.writeErrors.WithLabelValues("sqlite", "insert_event").Inc()
		return fmt.Errorf("audit: insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		r.metrics.writeErrors.WithLabelValues("sqlite", "commit").Inc()
		return fmt.Errorf("audit: commit tx: %w", err)
	}

	r.metrics.writeDuration.WithLabelValues("sqlite", "success").Observe(time.Since(start).Seconds())
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
