package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/turnsync/internal/engine"
)

func newTestSession(id string) *engine.Session {
	return &engine.Session{
		SessionID: id,
		Status:    engine.StatusPending,
		Participants: []engine.Participant{
			{ParticipantID: "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa", ParticipantIndex: 0},
		},
	}
}

func TestMemoryStore_CreateThenGet(t *testing.T) {
	store := NewMemoryStore(nil, time.Hour)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))
	assert.Equal(t, int64(1), sess.Version)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, int64(1), got.Version)
}

func TestMemoryStore_GetMissingReturnsNotFound(t *testing.T) {
	store := NewMemoryStore(nil, time.Hour)
	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.KindSessionNotFound, engErr.Kind)
}

func TestMemoryStore_UpdateAppliesVersionAndPublishes(t *testing.T) {
	bus := newRecordingBus()
	store := NewMemoryStore(bus, time.Hour)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))

	expected := sess.Version
	sess.Status = engine.StatusRunning
	updated, err := store.Update(ctx, "s1", sess, &expected)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, engine.StatusRunning, updated.Status)

	require.Len(t, bus.changes, 1)
	assert.Equal(t, "s1", bus.changes[0].SessionID)
	assert.Equal(t, int64(2), bus.changes[0].Version)
	assert.False(t, bus.changes[0].Deleted)
}

func TestMemoryStore_UpdateVersionMismatchIsConcurrencyError(t *testing.T) {
	store := NewMemoryStore(nil, time.Hour)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))

	stale := int64(999)
	_, err := store.Update(ctx, "s1", sess, &stale)
	require.Error(t, err)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.KindConcurrencyError, engErr.Kind)
}

func TestMemoryStore_DeletePublishesDeletedChange(t *testing.T) {
	bus := newRecordingBus()
	store := NewMemoryStore(bus, time.Hour)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))
	require.NoError(t, store.Delete(ctx, "s1"))

	_, err := store.Get(ctx, "s1")
	require.Error(t, err)

	require.Len(t, bus.changes, 1)
	assert.True(t, bus.changes[0].Deleted)
}

func TestMemoryStore_DeleteMissingIsNotFound(t *testing.T) {
	store := NewMemoryStore(nil, time.Hour)
	err := store.Delete(context.Background(), "missing")
	require.Error(t, err)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.KindSessionNotFound, engErr.Kind)
}

func TestMemoryStore_EntryExpiresAfterTTL(t *testing.T) {
	store := NewMemoryStore(nil, 10*time.Millisecond)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))

	time.Sleep(30 * time.Millisecond)

	_, err := store.Get(ctx, "s1")
	require.Error(t, err)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.KindSessionNotFound, engErr.Kind)
}
