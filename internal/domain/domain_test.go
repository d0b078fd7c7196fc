package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorstStatus(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Status
		expected Status
	}{
		{"ready vs ready", StatusReady, StatusReady, StatusReady},
		{"ready vs review", StatusReady, StatusPendingReview, StatusPendingReview},
		{"review vs ready", StatusPendingReview, StatusReady, StatusPendingReview},
		{"review vs blocked", StatusPendingReview, StatusBlocked, StatusBlocked},
		{"blocked vs ready", StatusBlocked, StatusReady, StatusBlocked},
		{"unknown is blocked", Status("???"), StatusReady, StatusBlocked},
		{"unknown right side", StatusReady, Status("???"), StatusBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WorstStatus(tt.a, tt.b))
		})
	}
}

func TestWorkflowAppliesTo(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.WorkflowAppliesTo(StatusPendingReview))
	assert.False(t, opts.WorkflowAppliesTo(StatusReady))
	assert.False(t, opts.WorkflowAppliesTo(StatusBlocked))

	opts.WorkflowStatuses = []Status{StatusPendingReview, StatusBlocked}
	assert.True(t, opts.WorkflowAppliesTo(StatusBlocked))

	opts.WorkflowEnabled = false
	assert.False(t, opts.WorkflowAppliesTo(StatusPendingReview))
}

func TestHasHardFailure(t *testing.T) {
	r := &RebalanceResult{RuleResults: []RuleResult{
		{RuleID: "A", Severity: SeveritySoft, Status: RuleFail},
		{RuleID: "B", Severity: SeverityHard, Status: RulePass},
	}}
	assert.False(t, r.HasHardFailure())

	r.RuleResults = append(r.RuleResults, RuleResult{
		RuleID: "C", Severity: SeverityHard, Status: RuleFail,
	})
	assert.True(t, r.HasHardFailure())
}
