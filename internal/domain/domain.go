// Package domain provides the core domain models shared by the rebalance
// simulation engine and its collaborators.
package domain

// Status is the overall outcome of a simulation run.
type Status string

const (
	StatusReady         Status = "READY"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusBlocked       Status = "BLOCKED"
)

// statusRank orders statuses from best to worst. BLOCKED outranks
// PENDING_REVIEW which outranks READY.
var statusRank = map[Status]int{
	StatusReady:         0,
	StatusPendingReview: 1,
	StatusBlocked:       2,
}

// WorstStatus combines two statuses pessimistically: the worse of the two
// always wins. Unknown statuses are treated as BLOCKED.
func WorstStatus(a, b Status) Status {
	ra, ok := statusRank[a]
	if !ok {
		return StatusBlocked
	}
	rb, ok := statusRank[b]
	if !ok {
		return StatusBlocked
	}
	if rb > ra {
		return b
	}
	return a
}

// ShelfStatus is the eligibility status of an instrument on the shelf.
type ShelfStatus string

const (
	ShelfApproved   ShelfStatus = "APPROVED"
	ShelfRestricted ShelfStatus = "RESTRICTED"
	ShelfSuspended  ShelfStatus = "SUSPENDED"
	ShelfBanned     ShelfStatus = "BANNED"
	ShelfSellOnly   ShelfStatus = "SELL_ONLY"
)

// Side is the direction of a security trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// RuleSeverity classifies a safety rule: HARD failures block the run, SOFT
// failures downgrade it to review.
type RuleSeverity string

const (
	SeverityHard RuleSeverity = "HARD"
	SeveritySoft RuleSeverity = "SOFT"
)

// RuleStatus is the evaluation outcome of a single rule.
type RuleStatus string

const (
	RulePass RuleStatus = "PASS"
	RuleFail RuleStatus = "FAIL"
)

// RuleResult is the outcome of evaluating one safety or compliance rule.
type RuleResult struct {
	RuleID   string       `json:"rule_id"`
	Severity RuleSeverity `json:"severity"`
	Status   RuleStatus   `json:"status"`
	Detail   string       `json:"detail,omitempty"`
}

// TargetMethod selects the target-weight generation strategy.
type TargetMethod string

const (
	TargetMethodHeuristic TargetMethod = "HEURISTIC"
	TargetMethodSolver    TargetMethod = "SOLVER"
)
