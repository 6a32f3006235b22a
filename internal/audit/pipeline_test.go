package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/turnsync/internal/engine"
)

// fakeRepository is a Repository fake that records jobs and can be told to
// fail every session's writes a fixed number of times before succeeding, or
// to fail permanently with a chosen error.
type fakeRepository struct {
	mu         sync.Mutex
	recorded   []Job
	failTimes  int
	failCounts map[string]int // session_id -> failures already returned
	failWith   error
	closed     bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{failCounts: make(map[string]int)}
}

func (r *fakeRepository) Record(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCounts[job.SessionID] < r.failTimes {
		r.failCounts[job.SessionID]++
		if r.failWith != nil {
			return r.failWith
		}
		return errors.New("transient failure")
	}
	r.recorded = append(r.recorded, job)
	return nil
}

func (r *fakeRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeRepository) snapshot() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, len(r.recorded))
	copy(out, r.recorded)
	return out
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
}

func waitForQueueDrain(t *testing.T, p *Pipeline, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.QueueDepth() == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("pipeline queue did not drain within %s", timeout)
}

func waitForDeadLetter(t *testing.T, p *Pipeline, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.DeadLetters().Len() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no job was dead-lettered within %s", timeout)
}

func testSnapshot(sessionID string, version int64) *engine.Session {
	return &engine.Session{SessionID: sessionID, Version: version}
}

func TestPipeline_EnqueueRecordsJob(t *testing.T) {
	repo := newFakeRepository()
	p := NewPipeline(repo, nil, nil, 4, fastRetryConfig())
	defer p.Close()

	p.Enqueue(context.Background(), "s1", testSnapshot("s1", 1), engine.EventCreated, nil, time.Now())

	waitForQueueDrain(t, p, time.Second)
	recorded := repo.snapshot()
	require.Len(t, recorded, 1)
	assert.Equal(t, "s1", recorded[0].SessionID)
	assert.Equal(t, engine.EventCreated, recorded[0].EventType)
}

func TestPipeline_SameSessionJobsProcessInOrder(t *testing.T) {
	repo := newFakeRepository()
	p := NewPipeline(repo, nil, nil, 4, fastRetryConfig())
	defer p.Close()

	now := time.Now()
	for i := 0; i < 5; i++ {
		p.Enqueue(context.Background(), "s1", nil, engine.EventCycleSwitch, nil, now.Add(time.Duration(i)*time.Millisecond))
	}

	waitForQueueDrain(t, p, time.Second)
	recorded := repo.snapshot()
	require.Len(t, recorded, 5)
	for i := 1; i < len(recorded); i++ {
		assert.False(t, recorded[i].OccurredAt.Before(recorded[i-1].OccurredAt),
			"jobs for one session must be recorded in submission order")
	}
}

func TestPipeline_DifferentSessionsProgressConcurrently(t *testing.T) {
	repo := newFakeRepository()
	p := NewPipeline(repo, nil, nil, 4, fastRetryConfig())
	defer p.Close()

	for _, sid := range []string{"s1", "s2", "s3"} {
		p.Enqueue(context.Background(), sid, nil, engine.EventCreated, nil, time.Now())
	}

	waitForQueueDrain(t, p, time.Second)
	assert.Len(t, repo.snapshot(), 3)
}

func TestPipeline_RetriesTransientFailureThenSucceeds(t *testing.T) {
	repo := newFakeRepository()
	repo.failTimes = 2
	p := NewPipeline(repo, nil, nil, 4, fastRetryConfig())
	defer p.Close()

	p.Enqueue(context.Background(), "s1", nil, engine.EventCreated, nil, time.Now())

	waitForQueueDrain(t, p, time.Second)
	recorded := repo.snapshot()
	require.Len(t, recorded, 1)
	assert.Equal(t, 0, p.DeadLetters().Len())
}

func TestPipeline_DeadLettersOnRetryExhaustion(t *testing.T) {
	repo := newFakeRepository()
	repo.failTimes = 1000
	p := NewPipeline(repo, nil, nil, 4, RetryConfig{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond})
	defer p.Close()

	p.Enqueue(context.Background(), "s1", nil, engine.EventCreated, nil, time.Now())

	waitForDeadLetter(t, p, time.Second)
	require.Equal(t, 1, p.DeadLetters().Len())
	entries := p.DeadLetters().List()
	assert.Equal(t, "s1", entries[0].Job.SessionID)
	assert.Empty(t, repo.snapshot())
}

func TestPipeline_NonRetryableErrorDeadLettersWithoutExhaustingRetries(t *testing.T) {
	repo := newFakeRepository()
	repo.failTimes = 1000
	repo.failWith = &pgconn.PgError{Code: "23505"}
	p := NewPipeline(repo, nil, nil, 4, RetryConfig{MaxAttempts: 5, InitialWait: 50 * time.Millisecond, MaxWait: 50 * time.Millisecond})
	defer p.Close()

	start := time.Now()
	p.Enqueue(context.Background(), "s1", nil, engine.EventCreated, nil, time.Now())
	waitForDeadLetter(t, p, time.Second)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 150*time.Millisecond, "a non-retryable error must dead-letter on the first attempt without waiting out the backoff schedule")
	entries := p.DeadLetters().List()
	require.Len(t, entries, 1)
	assert.Equal(t, "s1", entries[0].Job.SessionID)
}

func TestPipeline_EnqueueAfterCloseIsDropped(t *testing.T) {
	repo := newFakeRepository()
	p := NewPipeline(repo, nil, nil, 4, fastRetryConfig())
	require.NoError(t, p.Close())

	p.Enqueue(context.Background(), "s1", nil, engine.EventCreated, nil, time.Now())
	assert.Equal(t, int64(0), p.QueueDepth())
	assert.Empty(t, repo.snapshot())
}

func TestPipeline_CloseClosesRepository(t *testing.T) {
	repo := newFakeRepository()
	p := NewPipeline(repo, nil, nil, 4, fastRetryConfig())
	require.NoError(t, p.Close())
	assert.True(t, repo.closed)
}
