package delivery

import "sync"

// Connection is one attached client's outbound handle, owned by its own
// connection goroutine (per the design note on connection bookkeeping: the
// registry holds references into a map keyed by session id, and a
// disconnect triggers registry cleanup, never the other way around).
type Connection interface {
	// Send pushes msg to the client. Implementations must be non-blocking
	// or bounded (a slow client must never stall a broadcast to others).
	Send(msg Message) error
}

// registry is the per-replica, concurrency-safe session_id -> {connections}
// map the Delivery Plane (C5) requires (§4.5, §5 Shared resources).
// Grounded on the teacher's WebSocketHub.clients map, generalized from a
// single global set of clients to one set per session.
type registry struct {
	mu    sync.RWMutex
	byID  map[string]map[Connection]*subscriberState
}

// subscriberState tracks the last state-changed version broadcast to this
// connection for this session, implementing the per-connection ordering
// filter §4.5 requires (drop any notification whose version is not
// strictly greater than the last one sent).
type subscriberState struct {
	lastVersion int64
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]map[Connection]*subscriberState)}
}

// register attaches conn to sessionID's group.
func (r *registry) register(sessionID string, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.byID[sessionID]
	if !ok {
		group = make(map[Connection]*subscriberState)
		r.byID[sessionID] = group
	}
	group[conn] = &subscriberState{}
}

// unregister detaches conn from sessionID's group, removing the group
// entirely once empty so idle sessions don't leak map entries.
func (r *registry) unregister(sessionID string, conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.byID[sessionID]
	if !ok {
		return
	}
	delete(group, conn)
	if len(group) == 0 {
		delete(r.byID, sessionID)
	}
}

// broadcast sends msg to every connection attached to sessionID whose last
// observed version for this session is strictly less than version. A
// version of 0 (e.g. a session_deleted message carries no version) always
// delivers.
func (r *registry) broadcast(sessionID string, version int64, msg Message) {
	r.mu.RLock()
	group := r.byID[sessionID]
	conns := make([]Connection, 0, len(group))
	states := make([]*subscriberState, 0, len(group))
	for conn, st := range group {
		if version > 0 && st.lastVersion >= version {
			continue
		}
		conns = append(conns, conn)
		states = append(states, st)
	}
	r.mu.RUnlock()

	for i, conn := range conns {
		if err := conn.Send(msg); err == nil && version > 0 {
			states[i].lastVersion = version
		}
	}
}

// count returns the number of connections attached to sessionID, for tests
// and diagnostics.
func (r *registry) count(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID[sessionID])
}

// total returns the number of connections attached across every session,
// feeding the Delivery Plane's connections-active gauge.
func (r *registry) total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, group := range r.byID {
		n += len(group)
	}
	return n
}
