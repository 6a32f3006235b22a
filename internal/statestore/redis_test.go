package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/turnsync/internal/engine"
)

func newTestRedisStore(t *testing.T, bus *recordingBus) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	if bus == nil {
		return NewRedisStore(client, nil, time.Hour, ""), mr
	}
	return NewRedisStore(client, bus, time.Hour, ""), mr
}

func TestRedisStore_CreateThenGet(t *testing.T) {
	store, _ := newTestRedisStore(t, nil)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))
	assert.Equal(t, int64(1), sess.Version)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
}

func TestRedisStore_GetMissingReturnsNotFound(t *testing.T) {
	store, _ := newTestRedisStore(t, nil)
	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.KindSessionNotFound, engErr.Kind)
}

func TestRedisStore_UpdateCASSucceedsAndPublishes(t *testing.T) {
	bus := newRecordingBus()
	store, _ := newTestRedisStore(t, bus)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))

	expected := sess.Version
	sess.Status = engine.StatusRunning
	updated, err := store.Update(ctx, "s1", sess, &expected)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	require.Len(t, bus.changes, 1)
	assert.Equal(t, int64(2), bus.changes[0].Version)
}

func TestRedisStore_UpdateCASConflictIsConcurrencyError(t *testing.T) {
	store, _ := newTestRedisStore(t, nil)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))

	stale := int64(999)
	_, err := store.Update(ctx, "s1", sess, &stale)
	require.Error(t, err)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.KindConcurrencyError, engErr.Kind)
	assert.Equal(t, int64(1), engErr.ActualVersion)
}

func TestRedisStore_UpdateMissingKeyIsNotFound(t *testing.T) {
	store, _ := newTestRedisStore(t, nil)
	sess := newTestSession("ghost")
	expected := int64(1)
	_, err := store.Update(context.Background(), "ghost", sess, &expected)
	require.Error(t, err)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.KindSessionNotFound, engErr.Kind)
}

func TestRedisStore_DeleteRemovesKeyAndPublishes(t *testing.T) {
	bus := newRecordingBus()
	store, mr := newTestRedisStore(t, bus)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))
	require.NoError(t, store.Delete(ctx, "s1"))

	assert.False(t, mr.Exists(store.key("s1")))
	require.Len(t, bus.changes, 1)
	assert.True(t, bus.changes[0].Deleted)
}

func TestRedisStore_DeleteMissingIsNotFound(t *testing.T) {
	store, _ := newTestRedisStore(t, nil)
	err := store.Delete(context.Background(), "missing")
	require.Error(t, err)
	var engErr *engine.Error
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, engine.KindSessionNotFound, engErr.Kind)
}

func TestRedisStore_TTLSetOnCreate(t *testing.T) {
	store, mr := newTestRedisStore(t, nil)
	ctx := context.Background()

	sess := newTestSession("s1")
	require.NoError(t, store.Create(ctx, sess))

	ttl := mr.TTL(store.key("s1"))
	assert.Greater(t, ttl, time.Duration(0))
}
