package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/idempotency"
)

// IdempotencySweepJob evicts idempotency records older than the TTL. Cached
// replay payloads have no value once the client retry window has passed.
type IdempotencySweepJob struct {
	store idempotency.Store
	ttl   time.Duration
	log   zerolog.Logger
}

// NewIdempotencySweepJob creates the sweep job.
func NewIdempotencySweepJob(store idempotency.Store, ttl time.Duration, log zerolog.Logger) *IdempotencySweepJob {
	return &IdempotencySweepJob{
		store: store,
		ttl:   ttl,
		log:   log.With().Str("job", "idempotency_sweep").Logger(),
	}
}

// Name returns the job name.
func (j *IdempotencySweepJob) Name() string {
	return "idempotency_sweep"
}

// Run deletes all records past the TTL.
func (j *IdempotencySweepJob) Run() error {
	cutoff := time.Now().UTC().Add(-j.ttl)
	removed, err := j.store.DeleteOlderThan(cutoff)
	if err != nil {
		return fmt.Errorf("idempotency sweep failed: %w", err)
	}
	if removed > 0 {
		j.log.Info().Int64("removed", removed).Msg("Evicted expired idempotency records")
	}
	return nil
}
