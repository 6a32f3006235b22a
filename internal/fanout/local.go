package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/vitaliisemenov/turnsync/internal/realtime"
)

// LocalBus is the lite-profile Fan-out Bus: a single process, so "cross
// replica" delivery degenerates to in-process publish/subscribe on top of
// the teacher's realtime.DefaultEventBus. No external dependency.
type LocalBus struct {
	eventBus *realtime.DefaultEventBus
	logger   *slog.Logger

	mu       sync.RWMutex
	stateSubs map[*localStateSubscriber]struct{}
	traffic   map[string][]chan []byte
}

// NewLocalBus constructs a lite-profile Fan-out Bus. ctx governs the
// lifetime of the underlying event bus's broadcast worker.
func NewLocalBus(ctx context.Context, logger *slog.Logger) *LocalBus {
	if logger == nil {
		logger = slog.Default()
	}
	eb := realtime.NewEventBus(logger, nil)
	_ = eb.Start(ctx)
	return &LocalBus{
		eventBus:  eb,
		logger:    logger,
		stateSubs: make(map[*localStateSubscriber]struct{}),
		traffic:   make(map[string][]chan []byte),
	}
}

func (b *LocalBus) PublishStateChanged(ctx context.Context, change StateChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return err
	}
	evt := realtime.Event{
		Type:   realtime.EventTypeSessionCreated, // overwritten below based on change
		ID:     change.SessionID,
		Source: realtime.EventSourceSyncEngine,
		Data:   map[string]interface{}{"raw": string(data)},
	}
	if change.Deleted {
		evt.Type = realtime.EventTypeSessionDeleted
	} else {
		evt.Type = realtime.EventTypeCycleSwitched
	}
	if err := b.eventBus.Publish(evt); err != nil {
		b.logger.Warn("fanout: failed to publish state-changed event", "error", err)
	}
	return nil
}

func (b *LocalBus) PublishSessionTraffic(ctx context.Context, sessionID string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.traffic[sessionID] {
		select {
		case ch <- payload:
		default:
			b.logger.Warn("fanout: session-traffic channel full, dropping", "session_id", sessionID)
		}
	}
	return nil
}

// localStateSubscriber adapts realtime.EventSubscriber to a typed channel of
// StateChange values.
type localStateSubscriber struct {
	id   string
	ctx  context.Context
	out  chan StateChange
	done chan struct{}
}

func (s *localStateSubscriber) ID() string               { return s.id }
func (s *localStateSubscriber) Context() context.Context { return s.ctx }
func (s *localStateSubscriber) Close() error             { close(s.done); return nil }
func (s *localStateSubscriber) Send(event realtime.Event) error {
	raw, _ := event.Data["raw"].(string)
	var change StateChange
	if err := json.Unmarshal([]byte(raw), &change); err != nil {
		return err
	}
	select {
	case s.out <- change:
		return nil
	case <-s.done:
		return nil
	default:
		return nil
	}
}

func (b *LocalBus) SubscribeStateChanged(ctx context.Context) (<-chan StateChange, error) {
	sub := &localStateSubscriber{
		id:   "local-" + randomID(),
		ctx:  ctx,
		out:  make(chan StateChange, 64),
		done: make(chan struct{}),
	}
	if err := b.eventBus.Subscribe(sub); err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = b.eventBus.Unsubscribe(sub)
	}()
	return sub.out, nil
}

func (b *LocalBus) SubscribeSessionTraffic(ctx context.Context, sessionID string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.traffic[sessionID] = append(b.traffic[sessionID], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.traffic[sessionID]
		for i, c := range subs {
			if c == ch {
				b.traffic[sessionID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}()
	return ch, nil
}

func (b *LocalBus) Close() error {
	return b.eventBus.Stop(context.Background())
}

var subscriberCounter int64

func randomID() string {
	return strconv.FormatInt(atomic.AddInt64(&subscriberCounter, 1), 10)
}
