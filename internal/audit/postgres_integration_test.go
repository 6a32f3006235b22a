//go:build integration
// +build integration

package audit_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vitaliisemenov/turnsync/internal/audit"
	"github.com/vitaliisemenov/turnsync/internal/engine"
	"github.com/vitaliisemenov/turnsync/internal/infrastructure/migrations"
)

// setupPostgres starts a disposable Postgres container, applies every
// migration against it, and returns a connected pool. Grounded on the
// teacher's test/integration/infra.go TestInfrastructure.startPostgres,
// adapted from a raw database/sql connection to a pgxpool.Pool since that is
// what PostgresRepository (and the rest of the standard profile) expects.
func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("turnsync_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.Default()
	manager, err := migrations.NewMigrationManager(&migrations.MigrationConfig{
		Driver:  "pgx",
		DSN:     dsn,
		Dialect: "postgres",
		Dir:     "../../migrations",
		Table:   "goose_db_version",
		Timeout: time.Minute,
		Logger:  logger,
	})
	require.NoError(t, err)
	require.NoError(t, manager.Up(ctx))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRepository_RecordAndReplayOrdering(t *testing.T) {
	pool := setupPostgres(t)
	repo := audit.NewPostgresRepository(pool, slog.Default())
	defer repo.Close()

	ctx := context.Background()
	sessionID := "11111111-1111-1111-1111-111111111111"
	participant := "22222222-2222-2222-2222-222222222222"

	createJob := audit.Job{
		EventID:   "33333333-3333-3333-3333-333333333333",
		SessionID: sessionID,
		EventType: engine.EventCreated,
		Version:   1,
		Snapshot: &engine.Session{
			SessionID: sessionID,
			Status:    engine.StatusPending,
			Version:   1,
			Participants: []engine.Participant{
				{ParticipantID: participant, ParticipantIndex: 0},
			},
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		},
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Record(ctx, createJob))

	// Re-recording the identical event must be a no-op against session_events
	// (idempotent on EventID) and must not regress the sessions row (its
	// upsert is guarded by "WHERE sessions.version < EXCLUDED.version").
	require.NoError(t, repo.Record(ctx, createJob))

	var eventCount int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM session_events WHERE event_id = $1`, createJob.EventID,
	).Scan(&eventCount))
	require.Equal(t, 1, eventCount)

	var storedVersion int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT version FROM sessions WHERE id = $1`, sessionID,
	).Scan(&storedVersion))
	require.Equal(t, int64(1), storedVersion)

	var participantCount int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM participants WHERE session_id = $1`, sessionID,
	).Scan(&participantCount))
	require.Equal(t, 1, participantCount)
}
