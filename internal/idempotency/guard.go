package idempotency

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/rebalancer/internal/domain"
)

// Guard wraps the simulation call with replay protection. Same key and same
// hash return the cached result unchanged; same key with a different hash is
// a conflict.
type Guard struct {
	store Store
	log   zerolog.Logger
}

// NewGuard creates a guard over the given store.
func NewGuard(store Store, log zerolog.Logger) *Guard {
	return &Guard{
		store: store,
		log:   log.With().Str("component", "idempotency").Logger(),
	}
}

// Execute runs fn under the idempotency contract for (key, requestHash).
// The returned bool reports whether the result was replayed from cache.
// An empty key disables the guard entirely.
func (g *Guard) Execute(key, requestHash string, fn func() (*domain.RebalanceResult, error)) (*domain.RebalanceResult, bool, error) {
	if key == "" {
		result, err := fn()
		return result, false, err
	}

	rec, err := g.store.Get(key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if rec != nil {
		if rec.RequestHash != requestHash {
			g.log.Warn().Str("key", key).Msg("Idempotency key reused with different request hash")
			return nil, false, ErrConflict
		}
		var cached domain.RebalanceResult
		if err := msgpack.Unmarshal(rec.Payload, &cached); err != nil {
			return nil, false, fmt.Errorf("failed to decode cached result: %w", err)
		}
		g.log.Debug().Str("key", key).Str("run_id", cached.RunID).Msg("Replayed cached result")
		return &cached, true, nil
	}

	result, err := fn()
	if err != nil {
		return nil, false, err
	}

	payload, err := msgpack.Marshal(result)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode result for cache: %w", err)
	}
	if err := g.store.Put(&Record{
		Key:         key,
		RequestHash: requestHash,
		RunID:       result.RunID,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return nil, false, fmt.Errorf("failed to cache result: %w", err)
	}
	return result, false, nil
}
