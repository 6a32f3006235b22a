// Package fanout implements the Fan-out Bus (C2): cross-replica delivery of
// state-changed notifications and per-session client traffic. Delivery is
// best-effort, at-most-once — the State Store remains authoritative and any
// replica that notices a stale view re-reads from it.
//
// Grounded on the teacher's internal/realtime.DefaultEventBus, which is
// in-process only; the Redis implementation here generalizes its fixed
// alert-event payload into a {session_id, version, ...} envelope and adds
// cross-replica delivery via redis.Client.Subscribe, following the teacher's
// own *redis.Client usage pattern in internal/infrastructure/cache.
package fanout

import (
	"context"
	"time"

	"github.com/vitaliisemenov/turnsync/internal/engine"
)

// StateChange is the payload published on the state-changed topic. Deleted
// sessions carry Deleted=true and a nil Session.
type StateChange struct {
	SessionID string          `json:"session_id"`
	Version   int64           `json:"version"`
	Session   *engine.Session `json:"session,omitempty"`
	Deleted   bool            `json:"deleted,omitempty"`
	ServerTS  time.Time       `json:"server_ts"`
}

// Bus is the Fan-out Bus's interface to the Sync Engine, the State Store, and
// the Delivery Plane.
type Bus interface {
	// PublishStateChanged announces an accepted mutation (or deletion) to
	// every replica. Delivery is fire-and-forget: a publish failure is
	// logged by the implementation, never propagated to the hot path.
	PublishStateChanged(ctx context.Context, change StateChange) error

	// PublishSessionTraffic sends a server-pushed message (not a whole-state
	// update, e.g. a reconnection acknowledgement) to every replica
	// subscribed to the given session.
	PublishSessionTraffic(ctx context.Context, sessionID string, payload []byte) error

	// SubscribeStateChanged returns a channel of every state-changed
	// notification published by any replica, including this one. The
	// channel is closed when ctx is done or the subscription is lost.
	SubscribeStateChanged(ctx context.Context) (<-chan StateChange, error)

	// SubscribeSessionTraffic returns a channel of session-traffic payloads
	// for one session.
	SubscribeSessionTraffic(ctx context.Context, sessionID string) (<-chan []byte, error)

	// Close releases the bus's underlying connection(s).
	Close() error
}
