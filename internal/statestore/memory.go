package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/vitaliisemenov/turnsync/internal/engine"
	"github.com/vitaliisemenov/turnsync/internal/fanout"
)

// entry holds an encoded session alongside its expiry deadline.
type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is the lite-profile State Store: a single process, so CAS
// degenerates to a mutex-guarded map instead of a Redis Lua script. Grounded
// on the teacher's internal/storage/memory.MemoryStorage (RWMutex-guarded
// map, thread-safe CRUD), generalized from alert records to version-checked
// session updates.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]entry

	bus fanout.Bus
	ttl time.Duration
}

// NewMemoryStore constructs a lite-profile State Store. ttl of 0 selects
// DefaultTTL.
func NewMemoryStore(bus fanout.Bus, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		data: make(map[string]entry),
		bus:  bus,
		ttl:  ttl,
	}
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*engine.Session, error) {
	m.mu.Lock()
	e, ok := m.data[sessionID]
	if ok && time.Now().After(e.expiresAt) {
		delete(m.data, sessionID)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, engine.NewSessionNotFound(sessionID)
	}
	session, err := decode(e.data)
	if err != nil {
		return nil, engine.NewStateDeserializationError(sessionID, err)
	}
	return session, nil
}

func (m *MemoryStore) Create(ctx context.Context, session *engine.Session) error {
	session.Version = 1
	data, err := encode(session)
	if err != nil {
		return engine.NewInternalError(err)
	}

	m.mu.Lock()
	m.data[session.SessionID] = entry{data: data, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, sessionID string, newSession *engine.Session, expectedVersion *int64) (*engine.Session, error) {
	m.mu.Lock()
	e, ok := m.data[sessionID]
	if ok && time.Now().After(e.expiresAt) {
		delete(m.data, sessionID)
		ok = false
	}
	if !ok {
		m.mu.Unlock()
		return nil, engine.NewSessionNotFound(sessionID)
	}

	current, err := decode(e.data)
	if err != nil {
		m.mu.Unlock()
		return nil, engine.NewStateDeserializationError(sessionID, err)
	}

	if expectedVersion != nil && current.Version != *expectedVersion {
		actual := current.Version
		m.mu.Unlock()
		return nil, engine.NewConcurrencyError(*expectedVersion, actual)
	}

	newSession.Version = newSession.Version + 1
	data, err := encode(newSession)
	if err != nil {
		m.mu.Unlock()
		return nil, engine.NewInternalError(err)
	}
	m.data[sessionID] = entry{data: data, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()

	if m.bus != nil {
		_ = m.bus.PublishStateChanged(ctx, fanout.StateChange{
			SessionID: sessionID,
			Version:   newSession.Version,
			Session:   newSession,
			ServerTS:  time.Now(),
		})
	}
	return newSession, nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	_, ok := m.data[sessionID]
	if ok {
		delete(m.data, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return engine.NewSessionNotFound(sessionID)
	}

	if m.bus != nil {
		_ = m.bus.PublishStateChanged(ctx, fanout.StateChange{
			SessionID: sessionID,
			Deleted:   true,
			ServerTS:  time.Now(),
		})
	}
	return nil
}
