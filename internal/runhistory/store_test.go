package runhistory

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/workflow"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := New(db, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func sampleResult(runID, correlationID string, createdAt time.Time) *domain.RebalanceResult {
	return &domain.RebalanceResult{
		RunID:         runID,
		CorrelationID: correlationID,
		Status:        domain.StatusReady,
		GateDecision:  domain.GateNotRequired,
		CreatedAt:     createdAt,
		Lineage: domain.Lineage{
			PortfolioID: "pf-1",
			RequestHash: "hash-" + runID,
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(sampleResult("run-1", "corr-1", created), "key-1"))

	got, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, domain.StatusReady, got.Status)
	assert.Equal(t, "hash-run-1", got.Lineage.RequestHash)

	_, err = store.GetRun("run-404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveRun_DuplicateRunIDFails(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(sampleResult("run-1", "", created), ""))
	assert.Error(t, store.SaveRun(sampleResult("run-1", "", created), ""))
}

func TestListByCorrelation(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(sampleResult("run-1", "corr-1", base), "key-1"))
	require.NoError(t, store.SaveRun(sampleResult("run-2", "corr-1", base.Add(time.Hour)), "key-2"))
	require.NoError(t, store.SaveRun(sampleResult("run-3", "corr-2", base), ""))

	runs, err := store.ListByCorrelation("corr-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID, "newest first")
	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Equal(t, base.Add(time.Hour), runs[0].CreatedAt)

	runs, err = store.ListByCorrelation("corr-404")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestListByIdempotencyKey(t *testing.T) {
	store := newTestStore(t)
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(sampleResult("run-1", "corr-1", created), "key-1"))
	require.NoError(t, store.SaveRun(sampleResult("run-2", "corr-1", created), "key-2"))

	runs, err := store.ListByIdempotencyKey("key-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}

func TestDecisionAuditTrail(t *testing.T) {
	store := newTestStore(t)
	decidedAt := time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendDecision(workflow.Decision{
		RunID: "run-1", Action: workflow.ActionApprove,
		From: domain.GatePendingReview, To: domain.GateApproved,
		Actor: "alice", Comment: "ok", DecidedAt: decidedAt,
	}))
	require.NoError(t, store.AppendDecision(workflow.Decision{
		RunID: "run-1", Action: workflow.ActionRequestChanges,
		From: domain.GateApproved, To: domain.GatePendingReview,
		Actor: "bob", DecidedAt: decidedAt.Add(time.Minute),
	}))
	require.NoError(t, store.AppendDecision(workflow.Decision{
		RunID: "run-2", Action: workflow.ActionReject,
		From: domain.GatePendingReview, To: domain.GateRejected,
		DecidedAt: decidedAt,
	}))

	decisions, err := store.ListDecisions("run-1")
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, workflow.ActionApprove, decisions[0].Action)
	assert.Equal(t, domain.GateApproved, decisions[0].To)
	assert.Equal(t, "alice", decisions[0].Actor)
	assert.Equal(t, decidedAt, decisions[0].DecidedAt)
	assert.Equal(t, workflow.ActionRequestChanges, decisions[1].Action)

	decisions, err = store.ListDecisions("run-404")
	require.NoError(t, err)
	assert.Empty(t, decisions)
}
