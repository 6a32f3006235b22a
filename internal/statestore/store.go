// Package statestore implements the State Store (C1): the authoritative,
// version-checked, TTL-backed home for session records. Two implementations
// satisfy engine.Store — RedisStore for the standard profile and MemoryStore
// for the lite profile — both sharing the serialization helpers in codec.go.
package statestore

import (
	"time"
)

// DefaultTTL is the session lifetime applied on every write when no
// override is configured (§6: session_ttl_seconds, default 3600).
const DefaultTTL = time.Hour

// KeyPrefix namespaces session keys so a single Redis instance can be
// shared across processes or test runs without collision, the way the
// teacher's cache wrapper scopes its own keys.
const KeyPrefix = "turnsync:session:"

func sessionKey(prefix, sessionID string) string {
	if prefix == "" {
		prefix = KeyPrefix
	}
	return prefix + sessionID
}
