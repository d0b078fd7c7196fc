package idempotency_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/idempotency"
	testdb "github.com/aristath/rebalancer/internal/testing"
)

func TestSQLiteStore(t *testing.T) {
	db, cleanup := testdb.NewTestDB(t, "cache", database.ProfileCache)
	defer cleanup()

	store, err := idempotency.NewSQLiteStore(db.Conn())
	require.NoError(t, err)

	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(&idempotency.Record{
		Key:         "key-1",
		RequestHash: "hash-a",
		RunID:       "run-1",
		Payload:     []byte{0x01, 0x02},
		CreatedAt:   created,
	}))

	rec, err := store.Get("key-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-a", rec.RequestHash)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, []byte{0x01, 0x02}, rec.Payload)
	assert.Equal(t, created, rec.CreatedAt)

	_, err = store.Get("key-404")
	assert.ErrorIs(t, err, idempotency.ErrNotFound)

	// Keys are write-once.
	assert.Error(t, store.Put(&idempotency.Record{Key: "key-1", CreatedAt: created}))
}

func TestSQLiteStoreDeleteOlderThan(t *testing.T) {
	db, cleanup := testdb.NewTestDB(t, "cache", database.ProfileCache)
	defer cleanup()

	store, err := idempotency.NewSQLiteStore(db.Conn())
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, store.Put(&idempotency.Record{
		Key: "expired", RunID: "run-1", Payload: []byte{0x01}, CreatedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, store.Put(&idempotency.Record{
		Key: "fresh", RunID: "run-2", Payload: []byte{0x02}, CreatedAt: now,
	}))

	removed, err := store.DeleteOlderThan(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get("expired")
	assert.ErrorIs(t, err, idempotency.ErrNotFound)
	_, err = store.Get("fresh")
	assert.NoError(t, err)
}
