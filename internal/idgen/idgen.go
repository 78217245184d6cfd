// Package idgen generates identifiers for sessions and events.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	ulidEntropy   = ulid.Monotonic(rand.Reader, 0)
	ulidEntropyMu sync.Mutex
)

// NewSessionID returns a lexicographically sortable id that is never reused
// within a process. The random part is read from crypto/rand.
func NewSessionID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// NewEventID returns a random id for an outbound event.
func NewEventID() string {
	return uuid.New().String()
}
