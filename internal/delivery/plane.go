package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/vitaliisemenov/turnsync/internal/clock"
	"github.com/vitaliisemenov/turnsync/internal/engine"
	"github.com/vitaliisemenov/turnsync/internal/fanout"
	"github.com/vitaliisemenov/turnsync/pkg/metrics"
)

// DefaultKeepaliveInterval matches §6's keepalive_interval_seconds default.
const DefaultKeepaliveInterval = 30 * time.Second

// Plane is the Delivery Plane (C5): the per-replica connection registry
// plus the goroutine that turns Fan-out Bus notifications into pushes to
// locally attached clients. Any replica can serve any client; there is no
// sticky routing (§4.5 Cross-replica policy).
type Plane struct {
	store      engine.Store
	bus        fanout.Bus
	clk        clock.Clock
	logger     *slog.Logger
	keepalive  time.Duration
	registry   *registry

	business *metrics.BusinessMetrics
	delivery *metrics.DeliveryMetrics
}

// NewPlane constructs a Delivery Plane. keepalive of 0 selects
// DefaultKeepaliveInterval.
func NewPlane(store engine.Store, bus fanout.Bus, clk clock.Clock, logger *slog.Logger, keepalive time.Duration) *Plane {
	if clk == nil {
		clk = clock.NewReal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if keepalive <= 0 {
		keepalive = DefaultKeepaliveInterval
	}
	return &Plane{
		store:     store,
		bus:       bus,
		clk:       clk,
		logger:    logger.With("component", "delivery_plane"),
		keepalive: keepalive,
		registry:  newRegistry(),
	}
}

// KeepaliveInterval returns the configured ping cadence, for connection
// handlers that own their own read/write pumps.
func (p *Plane) KeepaliveInterval() time.Duration { return p.keepalive }

// SetMetrics attaches the Business (push-channel traffic) and Technical
// (WebSocket connection lifecycle) metrics recorders. Optional: a Plane
// with no metrics attached records nothing.
func (p *Plane) SetMetrics(business *metrics.BusinessMetrics, delivery *metrics.DeliveryMetrics) {
	p.business = business
	p.delivery = delivery
}

// Run subscribes to the Fan-out Bus's state-changed topic and broadcasts
// every notification to this replica's locally attached connections. It
// blocks until ctx is done.
func (p *Plane) Run(ctx context.Context) error {
	changes, err := p.bus.SubscribeStateChanged(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			p.handleChange(change)
		}
	}
}

func (p *Plane) handleChange(change fanout.StateChange) {
	now := clock.NowMillis(p.clk)
	if change.Deleted {
		p.registry.broadcast(change.SessionID, 0, newSessionDeletedMessage(change.SessionID, now))
		p.recordMessageSent(string(MessageSessionDeleted))
		return
	}
	if change.Session == nil {
		p.logger.Warn("delivery: state-changed notification missing session payload", "session_id", change.SessionID)
		return
	}
	p.registry.broadcast(change.SessionID, change.Version, newStateUpdateMessage(change.SessionID, change.Session, now))
	p.recordMessageSent(string(MessageStateUpdate))
}

// recordMessageSent is a no-op when no Business metrics are attached.
func (p *Plane) recordMessageSent(messageType string) {
	if p.business != nil {
		p.business.RecordDeliveryMessageSent(messageType)
	}
}

// Attach registers conn under sessionID and sends it the initial
// "connected" acknowledgement plus a state_sync snapshot read fresh from
// the State Store (§4.5 Connection lifecycle). The caller owns conn's
// lifetime and must call Detach on disconnect.
func (p *Plane) Attach(ctx context.Context, sessionID string, conn Connection) error {
	p.registry.register(sessionID, conn)
	if p.delivery != nil {
		p.delivery.ConnectionsAccepted.Inc()
		p.delivery.ConnectionsActive.Set(float64(p.registry.total()))
	}

	now := clock.NowMillis(p.clk)
	if err := conn.Send(newConnectedMessage(sessionID, now)); err != nil {
		p.registry.unregister(sessionID, conn)
		if p.delivery != nil {
			p.delivery.ConnectionsDropped.WithLabelValues("write_error").Inc()
			p.delivery.ConnectionsActive.Set(float64(p.registry.total()))
		}
		return err
	}

	session, err := p.store.Get(ctx, sessionID)
	if err != nil {
		if apiErr, ok := err.(*engine.Error); ok && apiErr.Kind == engine.KindSessionNotFound {
			_ = conn.Send(newErrorMessage("session not found", now))
			return nil
		}
		_ = conn.Send(newErrorMessage("failed to load session state", now))
		return nil
	}
	_ = conn.Send(newStateSyncMessage(sessionID, session, now))
	return nil
}

// Detach removes conn from sessionID's group.
func (p *Plane) Detach(sessionID string, conn Connection) {
	p.registry.unregister(sessionID, conn)
	if p.delivery != nil {
		p.delivery.ConnectionsDropped.WithLabelValues("client_closed").Inc()
		p.delivery.ConnectionsActive.Set(float64(p.registry.total()))
	}
}

// Resync handles a client's explicit request_sync message: re-read current
// state and send a fresh state_sync, the same as a reconnect (§4.5: no
// message history is replayed, only current state).
func (p *Plane) Resync(ctx context.Context, sessionID string, conn Connection) error {
	if p.business != nil {
		p.business.RecordDeliveryReconnect()
	}
	now := clock.NowMillis(p.clk)
	session, err := p.store.Get(ctx, sessionID)
	if err != nil {
		return conn.Send(newErrorMessage("failed to load session state", now))
	}
	return conn.Send(newStateSyncMessage(sessionID, session, now))
}

// Pong responds to a client ping.
func (p *Plane) Pong(conn Connection) error {
	return conn.Send(newPongMessage(clock.NowMillis(p.clk)))
}

// ConnectionCount reports the number of connections attached to sessionID,
// for diagnostics and tests.
func (p *Plane) ConnectionCount(sessionID string) int {
	return p.registry.count(sessionID)
}
