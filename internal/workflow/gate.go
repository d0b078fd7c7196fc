// Package workflow implements the approval gate layered on top of a
// simulation result: a small deterministic state machine plus an append-only
// decision history.
package workflow

import (
	"errors"
	"time"

	"github.com/aristath/rebalancer/internal/domain"
)

// Action is a reviewer action against a gated run.
type Action string

const (
	ActionApprove        Action = "APPROVE"
	ActionReject         Action = "REJECT"
	ActionRequestChanges Action = "REQUEST_CHANGES"
)

var (
	// ErrDisabled is returned for actions on runs the gate does not apply to.
	ErrDisabled = errors.New("workflow gate is not enabled for this run")
	// ErrInvalidTransition is returned for actions with no defined
	// transition from the current state.
	ErrInvalidTransition = errors.New("invalid workflow transition")
)

// transition key: action from a given state.
type transitionKey struct {
	action Action
	from   domain.GateState
}

// transitions is the closed set of valid (action, from) -> to pairs.
// Re-approving an approved run is deliberately invalid: it must go through
// request-changes or reject first.
var transitions = map[transitionKey]domain.GateState{
	{ActionApprove, domain.GatePendingReview}:        domain.GateApproved,
	{ActionReject, domain.GatePendingReview}:         domain.GateRejected,
	{ActionReject, domain.GateApproved}:              domain.GateRejected,
	{ActionRequestChanges, domain.GatePendingReview}: domain.GatePendingReview,
	{ActionRequestChanges, domain.GateApproved}:      domain.GatePendingReview,
	{ActionRequestChanges, domain.GateRejected}:      domain.GatePendingReview,
}

// Transition applies an action to the current gate state. Any pair outside
// the defined set fails with ErrInvalidTransition; a NOT_REQUIRED gate
// rejects every action with ErrDisabled.
func Transition(current domain.GateState, action Action) (domain.GateState, error) {
	if current == domain.GateNotRequired {
		return current, ErrDisabled
	}
	next, ok := transitions[transitionKey{action, current}]
	if !ok {
		return current, ErrInvalidTransition
	}
	return next, nil
}

// Decision is one immutable entry in a run's decision history.
type Decision struct {
	RunID     string           `json:"run_id"`
	Action    Action           `json:"action"`
	From      domain.GateState `json:"from"`
	To        domain.GateState `json:"to"`
	Actor     string           `json:"actor,omitempty"`
	Comment   string           `json:"comment,omitempty"`
	DecidedAt time.Time        `json:"decided_at"`
}

// StateFromHistory derives the current gate state: the latest decision wins,
// and an empty history of a gated run is PENDING_REVIEW.
func StateFromHistory(initial domain.GateState, history []Decision) domain.GateState {
	if len(history) == 0 {
		return initial
	}
	return history[len(history)-1].To
}
