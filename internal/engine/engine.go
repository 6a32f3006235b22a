package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/turnsync/internal/clock"
	"github.com/vitaliisemenov/turnsync/pkg/metrics"
)

// EventType names the state-changing operation that produced an audit job,
// matching the audit pipeline's events.event_type column.
type EventType string

const (
	EventCreated      EventType = "created"
	EventStarted      EventType = "started"
	EventCycleSwitch  EventType = "cycle_switched"
	EventPaused       EventType = "paused"
	EventResumed      EventType = "resumed"
	EventCompleted    EventType = "completed"
	EventDeleted      EventType = "deleted"
)

// Auditor is the Sync Engine's off-hot-path dependency on the Audit
// Pipeline (C3). Enqueue must return immediately — it accepts the job into
// a local buffer and never blocks on durable storage.
type Auditor interface {
	Enqueue(ctx context.Context, sessionID string, snapshot *Session, eventType EventType, participantID *string, ts time.Time)
}

// noopAuditor discards every job; used when the engine is constructed
// without an Auditor (e.g. in store-only unit tests).
type noopAuditor struct{}

func (noopAuditor) Enqueue(context.Context, string, *Session, EventType, *string, time.Time) {}

// Engine implements the Sync Engine (C4): session lifecycle and the
// switchCycle hot path. It never mutates sessions directly; every change is
// computed from a borrowed snapshot and written back through Store under a
// version check.
type Engine struct {
	store   Store
	auditor Auditor
	clock   clock.Clock
	ids     clock.IDGenerator
	logger  *slog.Logger
	metrics *metrics.BusinessMetrics
}

// New constructs a Sync Engine. auditor may be nil (discards audit jobs).
func New(store Store, auditor Auditor, clk clock.Clock, ids clock.IDGenerator, logger *slog.Logger) *Engine {
	if auditor == nil {
		auditor = noopAuditor{}
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, auditor: auditor, clock: clk, ids: ids, logger: logger}
}

// SetMetrics attaches the Business metrics recorder used to track session
// lifecycle and switchCycle hot-path throughput/latency. Optional: an
// Engine with no metrics attached records nothing.
func (e *Engine) SetMetrics(m *metrics.BusinessMetrics) { e.metrics = m }

// Create validates cfg and writes a new pending session with all
// participants inactive.
func (e *Engine) Create(ctx context.Context, cfg *CreateConfig) (*Session, error) {
	if verr := ValidateCreateConfig(cfg); verr != nil {
		return nil, verr
	}

	now := clock.NowMillis(e.clock)
	participants := make([]Participant, len(cfg.Participants))
	for i, pc := range cfg.Participants {
		participants[i] = Participant{
			ParticipantID:    pc.ParticipantID,
			ParticipantIndex: pc.ParticipantIndex,
			TotalTimeMs:      pc.TotalTimeMs,
			GroupID:          pc.GroupID,
		}
	}

	session := &Session{
		SessionID:      cfg.SessionID,
		SyncMode:       cfg.SyncMode,
		Status:         StatusPending,
		Version:        1,
		Participants:   participants,
		TotalTimeMs:    cfg.TotalTimeMs,
		TimePerCycleMs: cfg.TimePerCycleMs,
		IncrementMs:    cfg.IncrementMs,
		MaxTimeMs:      cfg.MaxTimeMs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.Create(ctx, session); err != nil {
		return nil, err
	}
	e.auditor.Enqueue(ctx, session.SessionID, session, EventCreated, nil, now)
	if e.metrics != nil {
		e.metrics.RecordSessionCreated(string(session.SyncMode))
	}
	return session, nil
}

// Start transitions a pending session to running, activating the first
// participant in rotation order.
func (e *Engine) Start(ctx context.Context, sessionID string) (*Session, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPending {
		return nil, NewInvalidStateTransition("start requires status=pending, got " + string(s.Status))
	}
	if len(s.Participants) == 0 {
		return nil, NewInvalidStateTransition("cannot start a session with no participants")
	}

	now := clock.NowMillis(e.clock)
	expected := s.Version

	s.Status = StatusRunning
	first := s.Participants[0].ParticipantID
	s.ActiveParticipantID = &first
	s.Participants[0].IsActive = true
	s.SessionStartedAt = &now
	s.CycleStartedAt = &now
	s.UpdatedAt = now

	updated, err := e.store.Update(ctx, sessionID, s, &expected)
	if err != nil {
		return nil, err
	}
	e.auditor.Enqueue(ctx, sessionID, updated, EventStarted, &first, now)
	return updated, nil
}

// SwitchCycle is the hot path: fold elapsed time into the active
// participant, apply increment/expiry rules, then rotate to the next
// participant. See the concrete algorithm in the component design notes.
func (e *Engine) SwitchCycle(ctx context.Context, sessionID string, nextParticipantID *string) (*SwitchResult, error) {
	hotPathStart := time.Now()
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusRunning {
		return nil, NewInvalidStateTransition("switchCycle requires status=running, got " + string(s.Status))
	}

	expected := s.Version
	now := clock.NowMillis(e.clock)

	var expiredParticipantID *string

	if s.ActiveParticipantID != nil && s.CycleStartedAt != nil {
		idx := s.participantIndex(*s.ActiveParticipantID)
		if idx >= 0 {
			current := &s.Participants[idx]
			elapsed := now.Sub(*s.CycleStartedAt).Milliseconds()
			if elapsed < 0 {
				elapsed = 0
			}
			current.TimeUsedMs += elapsed
			current.TotalTimeMs -= elapsed
			if current.TotalTimeMs < 0 {
				current.TotalTimeMs = 0
			}
			current.CycleCount++
			current.IsActive = false

			if current.TotalTimeMs == 0 {
				current.HasExpired = true
				id := current.ParticipantID
				expiredParticipantID = &id
			} else if s.IncrementMs > 0 {
				current.TotalTimeMs += s.IncrementMs
			}
		}
	}

	next, err := e.resolveNext(s, nextParticipantID)
	if err != nil {
		return nil, err
	}

	nextID := next.ParticipantID
	s.ActiveParticipantID = &nextID
	next.IsActive = true
	s.CycleStartedAt = &now
	s.UpdatedAt = now

	updated, err := e.store.Update(ctx, sessionID, s, &expected)
	if err != nil {
		return nil, err
	}

	e.auditor.Enqueue(ctx, sessionID, updated, EventCycleSwitch, &nextID, now)

	if e.metrics != nil {
		trigger := "auto_rotate"
		if nextParticipantID != nil {
			trigger = "explicit"
		}
		e.metrics.RecordSwitch(trigger, string(updated.SyncMode), time.Since(hotPathStart).Seconds())
		if expiredParticipantID != nil {
			e.metrics.RecordParticipantExpired()
		}
	}

	return &SwitchResult{
		ActiveParticipantID:  nextID,
		CycleStartedAt:       now,
		Participants:         updated.Participants,
		Status:               updated.Status,
		ExpiredParticipantID: expiredParticipantID,
	}, nil
}

// resolveNext picks the next participant to activate: the caller-supplied
// id if given, otherwise round-robin from the currently active one. s is
// mutated in place (the returned *Participant aliases s.Participants).
func (e *Engine) resolveNext(s *Session, nextParticipantID *string) (*Participant, error) {
	if nextParticipantID != nil {
		idx := s.participantIndex(*nextParticipantID)
		if idx < 0 {
			return nil, NewValidationError(FieldError{Field: "next_participant_id", Message: "unknown participant"})
		}
		return &s.Participants[idx], nil
	}

	n := len(s.Participants)
	currentIdx := 0
	if s.ActiveParticipantID != nil {
		if idx := s.participantIndex(*s.ActiveParticipantID); idx >= 0 {
			currentIdx = idx
		}
	}
	nextIdx := (currentIdx + 1) % n
	return &s.Participants[nextIdx], nil
}

// Pause folds elapsed cycle time into the active participant (without
// increment or rotation) and clears cycle_started_at.
func (e *Engine) Pause(ctx context.Context, sessionID string) (*Session, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusRunning {
		return nil, NewInvalidStateTransition("pause requires status=running, got " + string(s.Status))
	}

	expected := s.Version
	now := clock.NowMillis(e.clock)

	if s.ActiveParticipantID != nil && s.CycleStartedAt != nil {
		if idx := s.participantIndex(*s.ActiveParticipantID); idx >= 0 {
			current := &s.Participants[idx]
			elapsed := now.Sub(*s.CycleStartedAt).Milliseconds()
			if elapsed < 0 {
				elapsed = 0
			}
			current.TimeUsedMs += elapsed
			current.TotalTimeMs -= elapsed
			if current.TotalTimeMs < 0 {
				current.TotalTimeMs = 0
			}
			current.CycleCount++
			current.IsActive = false
			if current.TotalTimeMs == 0 {
				current.HasExpired = true
			}
		}
	}

	s.Status = StatusPaused
	s.CycleStartedAt = nil
	s.UpdatedAt = now

	updated, err := e.store.Update(ctx, sessionID, s, &expected)
	if err != nil {
		return nil, err
	}
	e.auditor.Enqueue(ctx, sessionID, updated, EventPaused, s.ActiveParticipantID, now)
	return updated, nil
}

// Resume transitions a paused session back to running without changing the
// active participant.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*Session, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusPaused {
		return nil, NewInvalidStateTransition("resume requires status=paused, got " + string(s.Status))
	}

	expected := s.Version
	now := clock.NowMillis(e.clock)

	s.Status = StatusRunning
	s.CycleStartedAt = &now
	s.UpdatedAt = now
	if s.ActiveParticipantID != nil {
		if idx := s.participantIndex(*s.ActiveParticipantID); idx >= 0 {
			s.Participants[idx].IsActive = true
		}
	}

	updated, err := e.store.Update(ctx, sessionID, s, &expected)
	if err != nil {
		return nil, err
	}
	e.auditor.Enqueue(ctx, sessionID, updated, EventResumed, s.ActiveParticipantID, now)
	return updated, nil
}

// Complete is terminal and idempotent: completing an already-completed
// session is a no-op that still normalizes active_participant_id to nil and
// returns the current state without bumping version.
func (e *Engine) Complete(ctx context.Context, sessionID string) (*Session, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status == StatusCompleted {
		s.ActiveParticipantID = nil
		return s, nil
	}

	expected := s.Version
	now := clock.NowMillis(e.clock)

	s.Status = StatusCompleted
	s.SessionCompletedAt = &now
	s.ActiveParticipantID = nil
	for i := range s.Participants {
		s.Participants[i].IsActive = false
	}
	s.CycleStartedAt = nil
	s.UpdatedAt = now

	updated, err := e.store.Update(ctx, sessionID, s, &expected)
	if err != nil {
		return nil, err
	}
	e.auditor.Enqueue(ctx, sessionID, updated, EventCompleted, nil, now)
	if e.metrics != nil {
		e.metrics.RecordSessionCompleted(string(StatusCompleted))
	}
	return updated, nil
}

// GetCurrentState is a pure read. The engine never computes remaining-time
// from "now" here; the client derives it from cycle_started_at itself.
func (e *Engine) GetCurrentState(ctx context.Context, sessionID string) (*Session, error) {
	return e.store.Get(ctx, sessionID)
}

// Delete removes the session. Deleting a non-existent session fails
// KindSessionNotFound.
func (e *Engine) Delete(ctx context.Context, sessionID string) error {
	if err := e.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	e.auditor.Enqueue(ctx, sessionID, nil, EventDeleted, nil, clock.NowMillis(e.clock))
	return nil
}
