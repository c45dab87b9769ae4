// Package model defines the core chat-platform entities: users, channels,
// servers, roles, members, messages and voice state. These are plain data
// structs; persistence and mutation live in internal/store and
// internal/mutate respectively.
package model

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu       sync.Mutex
	idEntropy  = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new sortable, time-ordered, monotonic ULID string.
// Monotonic generation requires serializing callers, matching the teacher's
// single-writer id allocation pattern.
func NewID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}
