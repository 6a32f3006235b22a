package engine

import "context"

// Store is the Sync Engine's view of the State Store (C1): the authoritative,
// version-checked, TTL-backed home for session records. Concrete
// implementations (Redis-backed for the standard profile, in-process for the
// lite profile) live in package statestore; the engine only ever depends on
// this interface, never on a concrete backend.
type Store interface {
	// Get returns the current session, or a *Error with Kind
	// KindSessionNotFound if absent, or KindStateDeserializationErr if the
	// stored representation is corrupt.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Create writes session with an initial version of 1 and the configured
	// TTL, overwriting any stale key with the same id.
	Create(ctx context.Context, session *Session) error

	// Update atomically verifies the stored version (when expectedVersion is
	// non-nil) before writing newSession with version = newSession.Version+1
	// and a refreshed TTL. On success it publishes a state-changed
	// notification on the Fan-out Bus and returns the persisted session. A
	// lost compare-and-swap surfaces as a *Error with Kind
	// KindConcurrencyError.
	Update(ctx context.Context, sessionID string, newSession *Session, expectedVersion *int64) (*Session, error)

	// Delete removes the session and publishes a deleted notification. A
	// missing session surfaces as KindSessionNotFound.
	Delete(ctx context.Context, sessionID string) error
}
