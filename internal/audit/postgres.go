package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vitaliisemenov/turnsync/internal/engine"
)

// PostgresRepository is the standard-profile Audit Pipeline store: a two-table
// transactional write per job (sessions + participants upsert, session_events
// append), grounded on the teacher's pgxpool-backed repository pattern in
// internal/infrastructure/repository/postgres_history.go.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *repositoryMetrics
}

type repositoryMetrics struct {
	writeDuration *prometheus.HistogramVec
	writeErrors   *prometheus.CounterVec
}

func newRepositoryMetrics() *repositoryMetrics {
	return &repositoryMetrics{
		writeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audit_pipeline_write_duration_seconds",
				Help:    "Duration of audit pipeline durable writes",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"backend", "status"},
		),
		writeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_pipeline_write_errors_total",
				Help: "Total number of audit pipeline write failures",
			},
			[]string{"backend", "error_type"},
		),
	}
}

// NewPostgresRepository constructs a standard-profile Audit Pipeline store.
func NewPostgresRepository(pool *pgxpool.Pool, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{pool: pool, logger: logger, metrics: newRepositoryMetrics()}
}

func (r *PostgresRepository) Record(ctx context.Context, job Job) error {
	start := time.Now()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.metrics.writeErrors.WithLabelValues("postgres", "begin").Inc()
		return fmt.Errorf("audit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertSession(ctx, tx, job); err != nil {
		r.metrics.writeErrors.WithLabelValues("postgres", "upsert_session").Inc()
		return err
	}
	if job.Snapshot != nil {
		if err := upsertParticipants(ctx, tx, job); err != nil {
			r.metrics.writeErrors.WithLabelValues("postgres", "upsert_participants").Inc()
			return err
		}
	}
	if err := insertEvent(ctx, tx, job); err != nil {
		r.metrics.writeErrors.WithLabelValues("postgres", "insert_event").Inc()
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.metrics.writeErrors.WithLabelValues("postgres", "commit").Inc()
		return fmt.Errorf("audit: commit tx: %w", err)
	}

	r.metrics.writeDuration.WithLabelValues("postgres", "success").Observe(time.Since(start).Seconds())
	return nil
}

// terminalStatuses are the statuses eligible to populate final_status; a
// session still in flight (pending/running/paused) has no final status yet.
var terminalStatuses = map[engine.Status]bool{
	engine.StatusCompleted: true,
	engine.StatusCancelled: true,
	engine.StatusExpired:   true,
}

func upsertSession(ctx context.Context, tx pgx.Tx, job Job) error {
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

	_, err := tx.Exec(ctx, `
		INSERT INTO sessions (
			id, status, active_participant_id, cycle_count, version, created_at, updated_at, completed_at,
			sync_mode, time_per_cycle_ms, increment_ms, max_time_ms, started_at, final_status, total_participants
		)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			active_participant_id = EXCLUDED.active_participant_id,
			cycle_count = EXCLUDED.cycle_count,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			sync_mode = EXCLUDED.sync_mode,
			time_per_cycle_ms = EXCLUDED.time_per_cycle_ms,
			increment_ms = EXCLUDED.increment_ms,
			max_time_ms = EXCLUDED.max_time_ms,
			started_at = EXCLUDED.started_at,
			final_status = EXCLUDED.final_status,
			total_participants = EXCLUDED.total_participants
		WHERE sessions.version < EXCLUDED.version`,
		job.SessionID, status, activeParticipantID, cycleCount, job.Version, job.OccurredAt, completedAt,
		syncMode, timePerCycleMs, incrementMs, maxTimeMs, startedAt, finalStatus, totalParticipants,
	)
	if err != nil {
		return fmt.Errorf("audit: upsert session: %w", err)
	}
	return nil
}

func upsertParticipants(ctx context.Context, tx pgx.Tx, job Job) error {
	for _, p := range job.Snapshot.Participants {
		_, err := tx.Exec(ctx, `
			INSERT INTO participants (id, session_id, position, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (session_id, id) DO UPDATE SET position = EXCLUDED.position`,
			p.ParticipantID, job.SessionID, p.ParticipantIndex, job.OccurredAt,
		)
		if err != nil {
			return fmt.Errorf("audit: upsert participant %s: %w", p.ParticipantID, err)
		}
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, job Job) error {
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

	_, err = tx.Exec(ctx, `
		INSERT INTO session_events (session_id, event_id, kind, version, payload, occurred_at, participant_id, time_remaining_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`,
		job.SessionID, job.EventID, string(job.EventType), job.Version, payload, job.OccurredAt,
		job.ParticipantID, job.TimeRemaining, metadata,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
