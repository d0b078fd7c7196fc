package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/idempotency"
)

func TestIdempotencySweepJob(t *testing.T) {
	store := idempotency.NewMemoryStore()
	now := time.Now().UTC()
	require.NoError(t, store.Put(&idempotency.Record{
		Key: "expired", CreatedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, store.Put(&idempotency.Record{
		Key: "fresh", CreatedAt: now.Add(-time.Hour),
	}))

	job := NewIdempotencySweepJob(store, 24*time.Hour, zerolog.Nop())
	assert.Equal(t, "idempotency_sweep", job.Name())
	require.NoError(t, job.Run())

	_, err := store.Get("expired")
	assert.ErrorIs(t, err, idempotency.ErrNotFound)
	_, err = store.Get("fresh")
	assert.NoError(t, err)
}

func TestRunNowExecutesJobImmediately(t *testing.T) {
	store := idempotency.NewMemoryStore()
	require.NoError(t, store.Put(&idempotency.Record{
		Key: "expired", CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}))

	sched := New(zerolog.Nop())
	job := NewIdempotencySweepJob(store, 24*time.Hour, zerolog.Nop())
	require.NoError(t, sched.RunNow(job))

	_, err := store.Get("expired")
	assert.ErrorIs(t, err, idempotency.ErrNotFound)
}
