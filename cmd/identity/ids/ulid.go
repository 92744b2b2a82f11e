// Package ids provides identifier primitives (e.g., ULID) used across taskboard.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars) for the given timestamp.
// ULIDs sort lexicographically by creation time, which keeps index scans cheap.
// Entropy comes from crypto/rand, whose Read never fails.
func NewULID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}
