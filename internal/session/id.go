package session

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
)

// StableEventID derives a deterministic event id from the identifying
// fields of a log-derived event. The timestamp is truncated to
// millisecond precision so re-parsing the same line always hashes the
// same input, letting the store's idempotent insert reject replays.
func StableEventID(sessionID string, ts time.Time, kind EventKind, content string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%d\x00%s\x00%s", sessionID, ts.UnixMilli(), kind.String(), content)
	return fmt.Sprintf("evt_%016x", h.Sum64())
}

// NewEventID returns a random event id for synthesized events that
// have no re-readable source line.
func NewEventID() string {
	return "evt_" + uuid.NewString()
}

// NewSessionID returns a random session id.
func NewSessionID() string {
	return uuid.NewString()
}
