package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const (
	stateChangedChannel  = "turnsync:state-changed"
	sessionTrafficPrefix = "turnsync:session-traffic:"
)

// RedisBus is the standard-profile Fan-out Bus: a state-changed topic plus
// one session-traffic topic per session, delivered via Redis pub/sub across
// every replica. Grounded on the teacher's *redis.Client wiring in
// internal/infrastructure/cache/redis.go.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus constructs a Fan-out Bus backed by an existing Redis client.
// The client is expected to be shared with (or a sibling pool to) the State
// Store's client, matching the teacher's one-pooled-handle-per-resource
// pattern.
func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{client: client, logger: logger}
}

func (b *RedisBus) PublishStateChanged(ctx context.Context, change StateChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("fanout: marshal state-changed: %w", err)
	}
	if err := b.client.Publish(ctx, stateChangedChannel, data).Err(); err != nil {
		b.logger.Warn("fanout: publish state-changed failed", "session_id", change.SessionID, "error", err)
		return err
	}
	return nil
}

func (b *RedisBus) PublishSessionTraffic(ctx context.Context, sessionID string, payload []byte) error {
	channel := sessionTrafficPrefix + sessionID
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		b.logger.Warn("fanout: publish session-traffic failed", "session_id", sessionID, "error", err)
		return err
	}
	return nil
}

func (b *RedisBus) SubscribeStateChanged(ctx context.Context) (<-chan StateChange, error) {
	sub := b.client.Subscribe(ctx, stateChangedChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("fanout: subscribe state-changed: %w", err)
	}

	out := make(chan StateChange, 256)
	raw := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				var change StateChange
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					b.logger.Warn("fanout: dropping malformed state-changed message", "error", err)
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) SubscribeSessionTraffic(ctx context.Context, sessionID string) (<-chan []byte, error) {
	channel := sessionTrafficPrefix + sessionID
	sub := b.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("fanout: subscribe session-traffic: %w", err)
	}

	out := make(chan []byte, 32)
	raw := sub.Channel()
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op: the Redis client is not closed here, since it is
// passed in by the caller and may be shared with the State Store.
func (b *RedisBus) Close() error {
	return nil
}
