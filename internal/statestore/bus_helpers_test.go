package statestore

import (
	"context"
	"sync"

	"github.com/vitaliisemenov/turnsync/internal/fanout"
)

// recordingBus is a minimal fanout.Bus fake that records every published
// state change, for asserting the stores notify the Fan-out Bus correctly
// without pulling in a real LocalBus/RedisBus.
type recordingBus struct {
	mu      sync.Mutex
	changes []fanout.StateChange
}

func newRecordingBus() *recordingBus {
	return &recordingBus{}
}

func (b *recordingBus) PublishStateChanged(ctx context.Context, change fanout.StateChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, change)
	return nil
}

func (b *recordingBus) PublishSessionTraffic(ctx context.Context, sessionID string, payload []byte) error {
	return nil
}

func (b *recordingBus) SubscribeStateChanged(ctx context.Context) (<-chan fanout.StateChange, error) {
	ch := make(chan fanout.StateChange)
	close(ch)
	return ch, nil
}

func (b *recordingBus) SubscribeSessionTraffic(ctx context.Context, sessionID string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *recordingBus) Close() error { return nil }
