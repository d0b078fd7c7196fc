package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     domain.GateState
		action   Action
		expected domain.GateState
		err      error
	}{
		{"approve pending", domain.GatePendingReview, ActionApprove, domain.GateApproved, nil},
		{"reject pending", domain.GatePendingReview, ActionReject, domain.GateRejected, nil},
		{"reject approved", domain.GateApproved, ActionReject, domain.GateRejected, nil},
		{"request changes on pending", domain.GatePendingReview, ActionRequestChanges, domain.GatePendingReview, nil},
		{"request changes on approved", domain.GateApproved, ActionRequestChanges, domain.GatePendingReview, nil},
		{"request changes on rejected", domain.GateRejected, ActionRequestChanges, domain.GatePendingReview, nil},
		{"re-approve approved", domain.GateApproved, ActionApprove, domain.GateApproved, ErrInvalidTransition},
		{"approve rejected", domain.GateRejected, ActionApprove, domain.GateRejected, ErrInvalidTransition},
		{"reject rejected", domain.GateRejected, ActionReject, domain.GateRejected, ErrInvalidTransition},
		{"not required", domain.GateNotRequired, ActionApprove, domain.GateNotRequired, ErrDisabled},
		{"unknown action", domain.GatePendingReview, Action("NUDGE"), domain.GatePendingReview, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Transition(tt.from, tt.action)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, tt.from, next, "state must not move on error")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
		})
	}
}

func TestStateFromHistory(t *testing.T) {
	assert.Equal(t, domain.GatePendingReview,
		StateFromHistory(domain.GatePendingReview, nil))

	history := []Decision{
		{Action: ActionApprove, From: domain.GatePendingReview, To: domain.GateApproved},
		{Action: ActionRequestChanges, From: domain.GateApproved, To: domain.GatePendingReview},
	}
	assert.Equal(t, domain.GatePendingReview,
		StateFromHistory(domain.GatePendingReview, history))

	history = append(history, Decision{
		Action: ActionApprove, From: domain.GatePendingReview, To: domain.GateApproved,
	})
	assert.Equal(t, domain.GateApproved,
		StateFromHistory(domain.GatePendingReview, history))
}

// fakeHistoryStore keeps runs and decisions in memory.
type fakeHistoryStore struct {
	runs      map[string]*domain.RebalanceResult
	decisions map[string][]Decision
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{
		runs:      make(map[string]*domain.RebalanceResult),
		decisions: make(map[string][]Decision),
	}
}

func (f *fakeHistoryStore) GetRun(runID string) (*domain.RebalanceResult, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, errors.New("run not found")
	}
	return run, nil
}

func (f *fakeHistoryStore) ListDecisions(runID string) ([]Decision, error) {
	return f.decisions[runID], nil
}

func (f *fakeHistoryStore) AppendDecision(d Decision) error {
	f.decisions[d.RunID] = append(f.decisions[d.RunID], d)
	return nil
}

func TestServiceDecide(t *testing.T) {
	store := newFakeHistoryStore()
	store.runs["run-1"] = &domain.RebalanceResult{
		RunID:        "run-1",
		Status:       domain.StatusPendingReview,
		GateDecision: domain.GatePendingReview,
	}
	store.runs["run-2"] = &domain.RebalanceResult{
		RunID:        "run-2",
		Status:       domain.StatusReady,
		GateDecision: domain.GateNotRequired,
	}
	svc := NewService(store, zerolog.Nop())

	decision, err := svc.Decide("run-1", ActionApprove, "alice", "looks fine")
	require.NoError(t, err)
	assert.Equal(t, domain.GatePendingReview, decision.From)
	assert.Equal(t, domain.GateApproved, decision.To)
	assert.Equal(t, "alice", decision.Actor)
	assert.False(t, decision.DecidedAt.IsZero())
	assert.True(t, time.Since(decision.DecidedAt) < time.Minute)

	state, err := svc.State("run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.GateApproved, state)

	// A second approve has no defined transition from APPROVED.
	_, err = svc.Decide("run-1", ActionApprove, "alice", "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.Len(t, store.decisions["run-1"], 1, "failed decisions must not be recorded")

	// Request-changes reopens the run for a fresh approve.
	_, err = svc.Decide("run-1", ActionRequestChanges, "bob", "re-check turnover")
	require.NoError(t, err)
	decision, err = svc.Decide("run-1", ActionApprove, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, domain.GateApproved, decision.To)

	// Ungated runs reject every action.
	_, err = svc.Decide("run-2", ActionApprove, "alice", "")
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = svc.Decide("run-404", ActionApprove, "alice", "")
	assert.Error(t, err)
}
