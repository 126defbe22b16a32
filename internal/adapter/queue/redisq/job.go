package redisq

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Job states mirrored in the Redis hash.
const (
	StateWaiting   = "waiting"
	StateActive    = "active"
	StateDelayed   = "delayed"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Job is one unit of work flowing through the queue. The queue owns its
// lifecycle; handlers only read it and may request MoveToFailed to
// short-circuit remaining retries.
type Job struct {
	ID           string
	Payload      []byte
	Priority     int
	Attempts     int
	MaxAttempts  int
	FailedReason string

	// settled is set when MoveToFailed already wrote the terminal state, so
	// the dispatch loop must not complete or retry the job afterwards. Only
	// the handling goroutine touches it.
	settled bool
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // Weak random is sufficient for ULID entropy.
)

// newJobID returns a ULID so job ids sort by creation time.
func newJobID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id.String()
}
