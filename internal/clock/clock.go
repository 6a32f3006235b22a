// Package clock wraps time.Now and UUID generation behind small interfaces so
// the Sync Engine never calls time.Now or uuid.New directly, matching the
// teacher's pattern of injecting collaborators through constructors instead of
// reaching for package-level globals inside business logic.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current wall-clock time. Sessions and participants store
// timestamps at millisecond resolution, so callers should route every "now"
// used in session arithmetic through this interface rather than time.Now.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock backed by time.Now.
type Real struct{}

// NewReal returns a Clock backed by the system clock.
func NewReal() Real { return Real{} }

// Now returns the current wall-clock time.
func (Real) Now() time.Time { return time.Now() }

// NowMillis returns c.Now() truncated to millisecond resolution, the
// granularity every stored timestamp is compared and serialized at.
func NowMillis(c Clock) time.Time {
	return c.Now().Truncate(time.Millisecond)
}

// IDGenerator produces and validates session/participant identifiers.
type IDGenerator interface {
	// New returns a freshly generated UUID.
	New() string
	// Parse validates s as a well-formed UUID, returning its canonical
	// (lowercase, hyphenated) form on success or an error describing why it
	// was rejected.
	Parse(s string) (string, error)
}

// UUIDGenerator is the production IDGenerator backed by google/uuid.
type UUIDGenerator struct{}

// NewUUIDGenerator returns the production IDGenerator.
func NewUUIDGenerator() UUIDGenerator { return UUIDGenerator{} }

// New returns a freshly generated UUID (v4) string.
func (UUIDGenerator) New() string {
	return uuid.New().String()
}

// Parse validates s as a well-formed UUID.
func (UUIDGenerator) Parse(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
