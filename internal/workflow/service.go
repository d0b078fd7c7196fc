package workflow

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// HistoryStore is the persistence contract the gate needs: the run being
// decided and its append-only decision history. The composition layer
// supplies the sqlite-backed implementation.
type HistoryStore interface {
	GetRun(runID string) (*domain.RebalanceResult, error)
	ListDecisions(runID string) ([]Decision, error)
	AppendDecision(d Decision) error
}

// Service validates and records workflow decisions against stored runs.
type Service struct {
	store HistoryStore
	log   zerolog.Logger
}

// NewService creates a workflow service.
func NewService(store HistoryStore, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("component", "workflow").Logger(),
	}
}

// Decide applies an action to a run's gate. The current state is derived
// from the run's initial gate decision and the latest recorded decision; a
// valid transition is appended to the history and returned.
func (s *Service) Decide(runID string, action Action, actor, comment string) (*Decision, error) {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	history, err := s.store.ListDecisions(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load decision history for %s: %w", runID, err)
	}

	current := StateFromHistory(run.GateDecision, history)
	next, err := Transition(current, action)
	if err != nil {
		return nil, err
	}

	decision := Decision{
		RunID:     runID,
		Action:    action,
		From:      current,
		To:        next,
		Actor:     actor,
		Comment:   comment,
		DecidedAt: time.Now().UTC(),
	}
	if err := s.store.AppendDecision(decision); err != nil {
		return nil, fmt.Errorf("failed to append decision: %w", err)
	}

	s.log.Info().
		Str("run_id", runID).
		Str("action", string(action)).
		Str("from", string(current)).
		Str("to", string(next)).
		Msg("Workflow decision recorded")
	return &decision, nil
}

// State returns the current gate state of a run.
func (s *Service) State(runID string) (domain.GateState, error) {
	run, err := s.store.GetRun(runID)
	if err != nil {
		return "", fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	history, err := s.store.ListDecisions(runID)
	if err != nil {
		return "", fmt.Errorf("failed to load decision history for %s: %w", runID, err)
	}
	return StateFromHistory(run.GateDecision, history), nil
}
