package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/turnsync/internal/clock"
)

// memoryStore is a minimal in-package Store fake so engine tests don't need
// to import package statestore (which itself imports engine, and would
// create an import cycle).
type memoryStore struct {
	sessions map[string]*Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*Session)}
}

func cloneSession(s *Session) *Session {
	cp := *s
	cp.Participants = append([]Participant(nil), s.Participants...)
	return &cp
}

func (m *memoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, NewSessionNotFound(sessionID)
	}
	return cloneSession(s), nil
}

func (m *memoryStore) Create(ctx context.Context, session *Session) error {
	session.Version = 1
	m.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (m *memoryStore) Update(ctx context.Context, sessionID string, newSession *Session, expectedVersion *int64) (*Session, error) {
	current, ok := m.sessions[sessionID]
	if !ok {
		return nil, NewSessionNotFound(sessionID)
	}
	if expectedVersion != nil && current.Version != *expectedVersion {
		return nil, NewConcurrencyError(*expectedVersion, current.Version)
	}
	newSession.Version = newSession.Version + 1
	m.sessions[sessionID] = cloneSession(newSession)
	return cloneSession(newSession), nil
}

func (m *memoryStore) Delete(ctx context.Context, sessionID string) error {
	if _, ok := m.sessions[sessionID]; !ok {
		return NewSessionNotFound(sessionID)
	}
	delete(m.sessions, sessionID)
	return nil
}

func twoParticipantConfig(p1ID, p2ID string, p1ms, p2ms, incrementMs int64) *CreateConfig {
	return &CreateConfig{
		SessionID: "11111111-1111-1111-1111-111111111111",
		SyncMode:  ModePerParticipant,
		Participants: []ParticipantConfig{
			{ParticipantID: p1ID, ParticipantIndex: 0, TotalTimeMs: p1ms},
			{ParticipantID: p2ID, ParticipantIndex: 1, TotalTimeMs: p2ms},
		},
		TotalTimeMs: p1ms + p2ms,
		IncrementMs: incrementMs,
	}
}

func newTestEngine(store Store, fakeClock *clock.Fake) *Engine {
	return New(store, nil, fakeClock, clock.NewUUIDGenerator(), nil)
}

// Two-participant switch: scenario 1 from the testable-properties section.
func TestSwitchCycle_TwoParticipantSwitch(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	eng := newTestEngine(store, fakeClock)

	p1, p2 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	cfg := twoParticipantConfig(p1, p2, 60_000, 60_000, 0)
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)

	_, err = eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)

	fakeClock.Advance(500 * time.Millisecond)

	result, err := eng.SwitchCycle(ctx, cfg.SessionID, nil)
	require.NoError(t, err)

	assert.Equal(t, p2, result.ActiveParticipantID)
	assert.Nil(t, result.ExpiredParticipantID)

	var gotP1 Participant
	for _, p := range result.Participants {
		if p.ParticipantID == p1 {
			gotP1 = p
		}
	}
	assert.Equal(t, int64(500), gotP1.TimeUsedMs)
	assert.Equal(t, int64(59_500), gotP1.TotalTimeMs)

	final, err := store.Get(ctx, cfg.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), final.Version) // create=1, start=2, switch=3
}

// Increment applied: scenario 2.
func TestSwitchCycle_IncrementApplied(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	eng := newTestEngine(store, fakeClock)

	p1, p2 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	cfg := twoParticipantConfig(p1, p2, 60_000, 60_000, 5_000)
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)
	_, err = eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)

	fakeClock.Advance(500 * time.Millisecond)
	result, err := eng.SwitchCycle(ctx, cfg.SessionID, nil)
	require.NoError(t, err)

	var gotP1 Participant
	for _, p := range result.Participants {
		if p.ParticipantID == p1 {
			gotP1 = p
		}
	}
	assert.Equal(t, int64(64_500), gotP1.TotalTimeMs)
}

// Expiration: scenario 3.
func TestSwitchCycle_Expiration(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	eng := newTestEngine(store, fakeClock)

	p1, p2 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	cfg := twoParticipantConfig(p1, p2, 1_000, 60_000, 0)
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)
	_, err = eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)

	fakeClock.Advance(1_200 * time.Millisecond)
	result, err := eng.SwitchCycle(ctx, cfg.SessionID, nil)
	require.NoError(t, err)

	require.NotNil(t, result.ExpiredParticipantID)
	assert.Equal(t, p1, *result.ExpiredParticipantID)
	assert.Equal(t, p2, result.ActiveParticipantID)

	var gotP1 Participant
	for _, p := range result.Participants {
		if p.ParticipantID == p1 {
			gotP1 = p
		}
	}
	assert.Equal(t, int64(0), gotP1.TotalTimeMs)
	assert.True(t, gotP1.HasExpired)
}

// Concurrency conflict: scenario 4. Caller B's expected_version is stale
// after caller A's winning switch; storage is unchanged by B.
func TestSwitchCycle_ConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	eng := newTestEngine(store, fakeClock)

	p1, p2 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	cfg := twoParticipantConfig(p1, p2, 60_000, 60_000, 0)
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)
	started, err := eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)

	sharedVersion := started.Version

	_, err = eng.SwitchCycle(ctx, cfg.SessionID, nil)
	require.NoError(t, err)

	afterA, err := store.Get(ctx, cfg.SessionID)
	require.NoError(t, err)
	require.Greater(t, afterA.Version, sharedVersion)

	// Caller B races with a stale snapshot; simulate it directly against
	// the store, the same version check SwitchCycle performs internally.
	stale := cloneSession(afterA)
	stale.Version = sharedVersion
	_, err = store.Update(ctx, cfg.SessionID, stale, &sharedVersion)
	require.Error(t, err)

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindConcurrencyError, engErr.Kind)
	assert.Equal(t, sharedVersion, engErr.ExpectedVersion)
	assert.Equal(t, afterA.Version, engErr.ActualVersion)

	unchanged, err := store.Get(ctx, cfg.SessionID)
	require.NoError(t, err)
	assert.Equal(t, afterA.Version, unchanged.Version)
}

// TTL eviction: scenario 6, modeled by a store that starts empty (the
// session having already expired out from under it).
func TestSwitchCycle_SessionNotFoundAfterEviction(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	eng := newTestEngine(store, fakeClock)

	_, err := eng.SwitchCycle(ctx, "never-created", nil)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindSessionNotFound, engErr.Kind)

	_, err = eng.GetCurrentState(ctx, "never-created")
	require.Error(t, err)
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindSessionNotFound, engErr.Kind)
}

// Single-participant self-switch is a legal degenerate case (§4.4.3).
func TestSwitchCycle_SingleParticipantSelfRotates(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	eng := newTestEngine(store, fakeClock)

	p1 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	cfg := &CreateConfig{
		SessionID:    "22222222-2222-2222-2222-222222222222",
		SyncMode:     ModeCountUp,
		Participants: []ParticipantConfig{{ParticipantID: p1, ParticipantIndex: 0, TotalTimeMs: 60_000}},
		TotalTimeMs:  60_000,
		IncrementMs:  1_000,
	}
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)
	_, err = eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)

	fakeClock.Advance(200 * time.Millisecond)
	result, err := eng.SwitchCycle(ctx, cfg.SessionID, nil)
	require.NoError(t, err)

	assert.Equal(t, p1, result.ActiveParticipantID)
	assert.Equal(t, int64(60_800), result.Participants[0].TotalTimeMs) // 60000-200+1000
	assert.True(t, result.Participants[0].IsActive)
}

// Active exclusivity invariant: exactly one participant is active whenever
// status=running, across create/start/switch/pause/resume.
func TestInvariant_ActiveExclusivity(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	eng := newTestEngine(store, fakeClock)

	p1, p2 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	cfg := twoParticipantConfig(p1, p2, 60_000, 60_000, 0)
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)

	started, err := eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)
	assertExactlyOneActive(t, started)

	fakeClock.Advance(10 * time.Millisecond)
	_, err = eng.SwitchCycle(ctx, cfg.SessionID, nil)
	require.NoError(t, err)
	afterSwitch, err := store.Get(ctx, cfg.SessionID)
	require.NoError(t, err)
	assertExactlyOneActive(t, afterSwitch)

	paused, err := eng.Pause(ctx, cfg.SessionID)
	require.NoError(t, err)
	assertNoneActive(t, paused)

	resumed, err := eng.Resume(ctx, cfg.SessionID)
	require.NoError(t, err)
	assertExactlyOneActive(t, resumed)
}

func assertExactlyOneActive(t *testing.T, s *Session) {
	t.Helper()
	active := 0
	for _, p := range s.Participants {
		if p.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
	require.NotNil(t, s.ActiveParticipantID)
}

func assertNoneActive(t *testing.T, s *Session) {
	t.Helper()
	for _, p := range s.Participants {
		assert.False(t, p.IsActive)
	}
}

// Time conservation invariant: time_used_ms + total_time_ms equals the
// original budget plus every increment applied so far.
func TestInvariant_TimeConservation(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	eng := newTestEngine(store, fakeClock)

	p1, p2 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	const originalP1 = int64(60_000)
	const increment = int64(2_000)
	cfg := twoParticipantConfig(p1, p2, originalP1, 60_000, increment)
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)
	_, err = eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)

	fakeClock.Advance(300 * time.Millisecond)
	result, err := eng.SwitchCycle(ctx, cfg.SessionID, nil)
	require.NoError(t, err)

	var gotP1 Participant
	for _, p := range result.Participants {
		if p.ParticipantID == p1 {
			gotP1 = p
		}
	}
	assert.Equal(t, originalP1+increment, gotP1.TimeUsedMs+gotP1.TotalTimeMs)
}

// Idempotent complete: completing twice does not bump the version or
// change anything but timestamps.
func TestComplete_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	eng := newTestEngine(store, fakeClock)

	p1, p2 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	cfg := twoParticipantConfig(p1, p2, 60_000, 60_000, 0)
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)
	_, err = eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)

	first, err := eng.Complete(ctx, cfg.SessionID)
	require.NoError(t, err)
	assert.Nil(t, first.ActiveParticipantID)
	assert.Equal(t, StatusCompleted, first.Status)

	second, err := eng.Complete(ctx, cfg.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Nil(t, second.ActiveParticipantID)
}

func TestCreate_ValidationRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	eng := newTestEngine(store, clock.NewFake(time.Unix(0, 0)))

	cfg := &CreateConfig{
		SessionID:    "not-a-uuid",
		SyncMode:     ModePerParticipant,
		Participants: nil,
		TotalTimeMs:  1000,
	}
	_, err := eng.Create(ctx, cfg)
	require.Error(t, err)

	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindValidationError, engErr.Kind)
	assert.Empty(t, store.sessions)
}

func TestStart_OnlyValidFromPending(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	eng := newTestEngine(store, clock.NewFake(time.Unix(1_700_000_000, 0)))

	p1, p2 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	cfg := twoParticipantConfig(p1, p2, 60_000, 60_000, 0)
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)
	_, err = eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)

	_, err = eng.Start(ctx, cfg.SessionID)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindInvalidStateTransition, engErr.Kind)
}

func TestSwitchCycle_UnknownNextParticipantIsValidationError(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	eng := newTestEngine(store, clock.NewFake(time.Unix(1_700_000_000, 0)))

	p1, p2 := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"
	cfg := twoParticipantConfig(p1, p2, 60_000, 60_000, 0)
	_, err := eng.Create(ctx, cfg)
	require.NoError(t, err)
	_, err = eng.Start(ctx, cfg.SessionID)
	require.NoError(t, err)

	unknown := "99999999-9999-9999-9999-999999999999"
	_, err = eng.SwitchCycle(ctx, cfg.SessionID, &unknown)
	require.Error(t, err)
	var engErr *Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, KindValidationError, engErr.Kind)
}
