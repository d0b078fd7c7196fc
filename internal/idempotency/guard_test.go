package idempotency

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
)

func TestGuardExecute_FirstRunAndReplay(t *testing.T) {
	guard := NewGuard(NewMemoryStore(), zerolog.Nop())

	calls := 0
	fn := func() (*domain.RebalanceResult, error) {
		calls++
		return &domain.RebalanceResult{RunID: "run-1", Status: domain.StatusReady}, nil
	}

	result, replayed, err := guard.Execute("key-1", "hash-a", fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 1, calls)

	// Same key, same hash: cached result, fn not invoked again.
	result, replayed, err = guard.Execute("key-1", "hash-a", fn)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, domain.StatusReady, result.Status)
	assert.Equal(t, 1, calls)
}

func TestGuardExecute_HashMismatchConflicts(t *testing.T) {
	guard := NewGuard(NewMemoryStore(), zerolog.Nop())

	fn := func() (*domain.RebalanceResult, error) {
		return &domain.RebalanceResult{RunID: "run-1"}, nil
	}
	_, _, err := guard.Execute("key-1", "hash-a", fn)
	require.NoError(t, err)

	_, _, err = guard.Execute("key-1", "hash-b", fn)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestGuardExecute_EmptyKeyBypasses(t *testing.T) {
	guard := NewGuard(NewMemoryStore(), zerolog.Nop())

	calls := 0
	fn := func() (*domain.RebalanceResult, error) {
		calls++
		return &domain.RebalanceResult{RunID: "run-1"}, nil
	}

	for i := 0; i < 3; i++ {
		_, replayed, err := guard.Execute("", "hash-a", fn)
		require.NoError(t, err)
		assert.False(t, replayed)
	}
	assert.Equal(t, 3, calls)
}

func TestGuardExecute_FailedRunsAreNotCached(t *testing.T) {
	guard := NewGuard(NewMemoryStore(), zerolog.Nop())

	boom := errors.New("boom")
	_, _, err := guard.Execute("key-1", "hash-a", func() (*domain.RebalanceResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	// The key is still free for a successful retry.
	result, replayed, err := guard.Execute("key-1", "hash-a", func() (*domain.RebalanceResult, error) {
		return &domain.RebalanceResult{RunID: "run-2"}, nil
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "run-2", result.RunID)
}

func TestMemoryStoreDeleteOlderThan(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()

	require.NoError(t, store.Put(&Record{Key: "old", CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.Put(&Record{Key: "fresh", CreatedAt: now}))

	removed, err := store.DeleteOlderThan(now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get("old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get("fresh")
	assert.NoError(t, err)
}
