// Package idempotency implements the replay guard wrapping the simulation
// pipeline: a client-supplied key maps to the canonical request hash and the
// cached result of the first execution.
package idempotency

import (
	"errors"
	"time"
)

var (
	// ErrConflict is returned when a key is replayed with a different
	// canonical request hash. This is a caller error, never a new run.
	ErrConflict = errors.New("idempotency key reused with a different request")
	// ErrNotFound is returned by stores for unknown keys.
	ErrNotFound = errors.New("idempotency record not found")
)

// Record is one cached execution.
type Record struct {
	Key         string
	RequestHash string
	RunID       string
	Payload     []byte // msgpack-encoded result
	CreatedAt   time.Time
}

// Store is the get/put contract the guard needs. TTL and eviction policy
// belong to the owning composition layer, not to the guard.
type Store interface {
	Get(key string) (*Record, error)
	Put(rec *Record) error
	DeleteOlderThan(cutoff time.Time) (int64, error)
}
