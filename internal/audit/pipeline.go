package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vitaliisemenov/turnsync/internal/core/resilience"
	"github.com/vitaliisemenov/turnsync/internal/engine"
	"github.com/vitaliisemenov/turnsync/pkg/metrics"
)

// DeadLetter is one job that exhausted its retry budget or hit a
// non-retryable error. Kept in memory for operator inspection; every
// dead-letter is also emitted as a structured log line per §4.3.
type DeadLetter struct {
	Job      Job
	Error    string
	FailedAt time.Time
}

// DeadLetterStore collects jobs the pipeline could not durably record.
// Grounded on the teacher's in-memory MemoryStorage pattern
// (internal/storage/memory.go): a mutex-guarded slice, no external queue.
type DeadLetterStore struct {
	mu      sync.Mutex
	entries []DeadLetter
}

// NewDeadLetterStore constructs an empty store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{}
}

// Add records a dead-lettered job.
func (d *DeadLetterStore) Add(entry DeadLetter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry)
}

// List returns a snapshot of every dead-lettered job, oldest first.
func (d *DeadLetterStore) List() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DeadLetter, len(d.entries))
	copy(out, d.entries)
	return out
}

// Len reports the current dead-letter count.
func (d *DeadLetterStore) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// pipelineMetrics exposes the queue-depth backpressure gauge §4.3 requires,
// plus retry/dead-letter counters.
type pipelineMetrics struct {
	queueDepth   prometheus.Gauge
	jobsRetried  prometheus.Counter
	jobsFailed   *prometheus.CounterVec
	deadLettered prometheus.Counter
}

func newPipelineMetrics() *pipelineMetrics {
	return &pipelineMetrics{
		queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "audit_pipeline_queue_depth",
			Help: "Current audit pipeline queue depth (waiting + active jobs)",
		}),
		jobsRetried: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audit_pipeline_jobs_retried_total",
			Help: "Total number of audit job retry attempts",
		}),
		jobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_pipeline_jobs_failed_total",
			Help: "Total number of audit jobs that did not complete",
		}, []string{"reason"}),
		deadLettered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "audit_pipeline_dead_lettered_total",
			Help: "Total number of audit jobs placed on the dead-letter store",
		}),
	}
}

// RetryConfig controls the pipeline's backoff schedule (§6:
// audit_retry_attempts, audit_backoff_initial_ms).
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// DefaultRetryConfig matches §4.3: up to 5 attempts, 2s initial backoff
// doubling to a 32s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, InitialWait: 2 * time.Second, MaxWait: 32 * time.Second}
}

// lane is one session's serial processing queue. Jobs for a single session
// are appended here and drained strictly in submission order by exactly one
// goroutine at a time, which is what gives the pipeline its per-session
// ordering guarantee while still letting unrelated sessions make progress
// concurrently (§4.3 Concurrency).
type lane struct {
	mu      sync.Mutex
	pending []Job
	running bool
}

// Pipeline is the Audit Pipeline (C3): an in-memory queue plus a bounded
// worker pool that durably records every accepted mutation off the hot
// path. Grounded on the teacher's WebSocketHub goroutine/channel dispatch
// (cmd/server/handlers/silence_ws.go) generalized from "broadcast to N
// sockets" to "drain N per-session lanes under a shared concurrency cap".
type Pipeline struct {
	repo    Repository
	dlq     *DeadLetterStore
	logger  *slog.Logger
	metrics *pipelineMetrics
	retry   RetryConfig

	sem chan struct{} // bounds total concurrently-running lanes (default 10)

	mu     sync.Mutex
	lanes  map[string]*lane
	depth  int64 // waiting + active jobs, mirrors the queueDepth gauge
	closed bool
	wg     sync.WaitGroup

	business *metrics.BusinessMetrics
}

// SetMetrics attaches the Business metrics recorder used to track
// durably-recorded and dead-lettered audit jobs. Optional: a Pipeline with
// no metrics attached records nothing beyond its own local gauges.
func (p *Pipeline) SetMetrics(business *metrics.BusinessMetrics) { p.business = business }

// NewPipeline constructs an Audit Pipeline. workers of 0 selects 10
// (§4.3 default). retry of the zero value selects DefaultRetryConfig.
func NewPipeline(repo Repository, dlq *DeadLetterStore, logger *slog.Logger, workers int, retry RetryConfig) *Pipeline {
	if workers <= 0 {
		workers = 10
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dlq == nil {
		dlq = NewDeadLetterStore()
	}
	return &Pipeline{
		repo:    repo,
		dlq:     dlq,
		logger:  logger.With("component", "audit_pipeline"),
		metrics: newPipelineMetrics(),
		retry:   retry,
		sem:     make(chan struct{}, workers),
		lanes:   make(map[string]*lane),
	}
}

// Enqueue implements engine.Auditor: it accepts job into the session's lane
// and returns immediately. The Sync Engine never awaits completion.
func (p *Pipeline) Enqueue(ctx context.Context, sessionID string, snapshot *engine.Session, eventType engine.EventType, participantID *string, ts time.Time) {
	job := Job{
		EventID:       uuid.New().String(),
		SessionID:     sessionID,
		EventType:     eventType,
		ParticipantID: participantID,
		OccurredAt:    ts,
	}
	if snapshot != nil {
		job.Version = snapshot.Version
		job.Snapshot = snapshot
		if participantID != nil {
			for i := range snapshot.Participants {
				if snapshot.Participants[i].ParticipantID == *participantID {
					remaining := snapshot.Participants[i].TotalTimeMs
					job.TimeRemaining = &remaining
					job.Metadata = map[string]interface{}{
						"cycle_count": snapshot.Participants[i].CycleCount,
						"has_expired": snapshot.Participants[i].HasExpired,
					}
					if snapshot.Participants[i].GroupID != nil {
						job.Metadata["group_id"] = *snapshot.Participants[i].GroupID
					}
					break
				}
			}
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.logger.Warn("audit pipeline closed, dropping job", "session_id", sessionID, "event_type", eventType)
		return
	}
	l, ok := p.lanes[sessionID]
	if !ok {
		l = &lane{}
		p.lanes[sessionID] = l
	}
	p.depth++
	p.metrics.queueDepth.Set(float64(p.depth))
	p.mu.Unlock()

	l.mu.Lock()
	l.pending = append(l.pending, job)
	shouldStart := !l.running
	if shouldStart {
		l.running = true
	}
	l.mu.Unlock()

	if shouldStart {
		p.wg.Add(1)
		go p.drainLane(sessionID, l)
	}
}

// drainLane processes one session's lane to empty, serially, acquiring the
// shared worker semaphore per job so the total number of lanes making
// progress at once is capped at the configured worker count.
func (p *Pipeline) drainLane(sessionID string, l *lane) {
	defer p.wg.Done()
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		job := l.pending[0]
		l.pending = l.pending[1:]
		l.mu.Unlock()

		p.sem <- struct{}{}
		p.runJob(job)
		<-p.sem

		p.mu.Lock()
		p.depth--
		p.metrics.queueDepth.Set(float64(p.depth))
		p.mu.Unlock()
	}
}

// runJob records job, retrying transient failures per p.retry and
// dead-lettering on exhaustion or a non-retryable (constraint violation)
// error.
func (p *Pipeline) runJob(job Job) {
	policy := &resilience.RetryPolicy{
		MaxRetries:   p.retry.MaxAttempts - 1,
		BaseDelay:    p.retry.InitialWait,
		MaxDelay:     p.retry.MaxWait,
		Multiplier:   2.0,
		Jitter:       true,
		ErrorChecker: errorChecker{},
		Logger:       p.logger,
	}

	attempts := 0
	err := resilience.WithRetry(context.Background(), policy, func() error {
		attempts++
		if attempts > 1 {
			p.metrics.jobsRetried.Inc()
		}
		return p.repo.Record(context.Background(), job)
	})

	if err == nil {
		if p.business != nil {
			p.business.RecordAuditJobRecorded(string(job.EventType))
		}
		return
	}

	reason := "retries_exhausted"
	if !(errorChecker{}.IsRetryable(err)) {
		reason = "non_retryable"
	}
	p.metrics.jobsFailed.WithLabelValues(reason).Inc()
	p.metrics.deadLettered.Inc()
	if p.business != nil {
		p.business.RecordAuditDeadLettered()
	}

	entry := DeadLetter{Job: job, Error: err.Error(), FailedAt: time.Now()}
	p.dlq.Add(entry)

	p.logger.Error("audit job dead-lettered",
		"event_id", job.EventID,
		"session_id", job.SessionID,
		"event_type", job.EventType,
		"reason", reason,
		"error", err,
	)
}

// QueueDepth returns the current waiting+active job count.
func (p *Pipeline) QueueDepth() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.depth
}

// DeadLetters exposes the pipeline's dead-letter store for operator tooling.
func (p *Pipeline) DeadLetters() *DeadLetterStore {
	return p.dlq
}

// Close stops accepting new jobs and blocks until every in-flight lane
// drains, then closes the underlying repository.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
	return p.repo.Close()
}
