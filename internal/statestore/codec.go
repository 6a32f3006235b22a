package statestore

import (
	"encoding/json"
	"fmt"

	"github.com/vitaliisemenov/turnsync/internal/engine"
)

// schemaVersion is bumped whenever the envelope's shape changes
// incompatibly. Forward-compatibility is handled at the granularity of this
// envelope version rather than per-field round-tripping of unknown keys: a
// reader that understands schemaVersion N can decode any blob written at
// version <= N; a blob written at a newer version fails deserialization
// loudly instead of silently dropping fields. This is a deliberate
// simplification against true per-field forward compatibility (recorded in
// the design ledger).
const schemaVersion = 1

// envelope is the on-the-wire representation of a stored session.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Session       *engine.Session `json:"session"`
}

// encode serializes a session for storage. Timestamps round-trip through
// Go's default RFC-3339 time.Time JSON marshaling, which is exact to
// nanoseconds; the store's own comparisons only ever assert millisecond
// precision, per the testable round-trip property.
func encode(s *engine.Session) ([]byte, error) {
	return json.Marshal(envelope{SchemaVersion: schemaVersion, Session: s})
}

// decode deserializes a stored blob. Any failure — malformed JSON, an
// envelope from an unrecognized future schema version — is reported to the
// caller as a deserialization failure, never silently treated as a miss.
func decode(data []byte) (*engine.Session, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.SchemaVersion > schemaVersion {
		return nil, fmt.Errorf("unrecognized schema version %d (know up to %d)", env.SchemaVersion, schemaVersion)
	}
	if env.Session == nil {
		return nil, fmt.Errorf("envelope missing session payload")
	}
	return env.Session, nil
}
