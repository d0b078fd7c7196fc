package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Data-quality buckets.
const (
	DQPriceMissing = "price_missing"
	DQFxMissing    = "fx_missing"
	DQShelfMissing = "shelf_missing"
)

// DataQualityEvent records one data gap encountered during a run. Gaps are
// logged, never thrown; whether they block depends on options (shelf gaps
// always block).
type DataQualityEvent struct {
	Bucket       string `json:"bucket"`
	InstrumentID string `json:"instrument_id,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

// SuppressedIntent records a dust trade dropped below the minimum notional.
type SuppressedIntent struct {
	InstrumentID string          `json:"instrument_id"`
	Side         Side            `json:"side"`
	NotionalBase decimal.Decimal `json:"notional_base"`
	Threshold    decimal.Decimal `json:"threshold"`
}

// DroppedIntent records an intent rejected by the turnover limiter.
type DroppedIntent struct {
	Intent Intent          `json:"intent"`
	Score  decimal.Decimal `json:"score"`
	Reason string          `json:"reason"`
}

// GroupConstraintEvent records one group-cap application or failure.
type GroupConstraintEvent struct {
	ConstraintKey string          `json:"constraint_key"` // "attribute:value"
	Cap           decimal.Decimal `json:"cap"`
	GroupWeight   decimal.Decimal `json:"group_weight"`
	Status        Status          `json:"status"`
	Detail        string          `json:"detail,omitempty"`
}

// TaxBudgetConstraintEvent records a sell capped by the realized-gain budget.
type TaxBudgetConstraintEvent struct {
	InstrumentID string          `json:"instrument_id"`
	RequestedQty decimal.Decimal `json:"requested_qty"`
	AllowedQty   decimal.Decimal `json:"allowed_qty"`
}

// CashLadderRow is the projected cumulative balance of one currency across
// the settlement horizon; Balances[d] is the balance on T+d.
type CashLadderRow struct {
	Currency string            `json:"currency"`
	Balances []decimal.Decimal `json:"balances"`
}

// CashLadderBreach is an overdraft beyond the per-currency allowance.
type CashLadderBreach struct {
	Currency string          `json:"currency"`
	Day      int             `json:"day"`
	Balance  decimal.Decimal `json:"balance"`
	Reason   string          `json:"reason"` // OVERDRAFT_ON_T_PLUS_<day>
}

// Diagnostics is the immutable diagnostic record of one run, consumed from
// the engine's mutable builder at the end of the pipeline.
type Diagnostics struct {
	Warnings                  []string                   `json:"warnings,omitempty"`
	DataQuality               []DataQualityEvent         `json:"data_quality,omitempty"`
	SuppressedIntents         []SuppressedIntent         `json:"suppressed_intents,omitempty"`
	DroppedIntents            []DroppedIntent            `json:"dropped_intents,omitempty"`
	GroupConstraintEvents     []GroupConstraintEvent     `json:"group_constraint_events,omitempty"`
	TaxBudgetConstraintEvents []TaxBudgetConstraintEvent `json:"tax_budget_constraint_events,omitempty"`
	CashLadder                []CashLadderRow            `json:"cash_ladder,omitempty"`
	CashLadderBreaches        []CashLadderBreach         `json:"cash_ladder_breaches,omitempty"`
}

// Exclusion records a model target removed from the tradable universe.
type Exclusion struct {
	InstrumentID string `json:"instrument_id"`
	Reason       string `json:"reason"`
}

// UniverseView is the constructed eligible-for-trading universe.
type UniverseView struct {
	EligibleWeights map[string]decimal.Decimal `json:"eligible_weights"`
	Exclusions      []Exclusion                `json:"exclusions,omitempty"`
	BuyList         []string                   `json:"buy_list"`
	SellList        []string                   `json:"sell_list"`
	LockedWeights   map[string]decimal.Decimal `json:"locked_weights,omitempty"`
	LockedReasons   map[string]string          `json:"locked_reasons,omitempty"`
	SellOnlyExcess  decimal.Decimal            `json:"sell_only_excess"`
}

// TargetTrace is the output of target generation: final weights plus the
// adjustment tags explaining how each instrument got there.
type TargetTrace struct {
	Method  TargetMethod               `json:"method"`
	Weights map[string]decimal.Decimal `json:"weights"`
	Tags    map[string][]string        `json:"tags,omitempty"`
	Status  Status                     `json:"status"`
}

// SimulatedState is a valued portfolio state (before or after trades).
type SimulatedState struct {
	TotalValue   decimal.Decimal            `json:"total_value"`
	Positions    map[string]decimal.Decimal `json:"positions"` // instrument -> quantity
	Cash         map[string]decimal.Decimal `json:"cash"`      // currency -> amount
	Weights      map[string]decimal.Decimal `json:"weights"`   // instrument -> weight of total
	ByAssetClass map[string]decimal.Decimal `json:"by_asset_class,omitempty"`
	ByAttribute  map[string]map[string]decimal.Decimal `json:"by_attribute,omitempty"`
}

// Reconciliation verifies value conservation between before and after states.
type Reconciliation struct {
	BeforeTotal decimal.Decimal `json:"before_total"`
	AfterTotal  decimal.Decimal `json:"after_total"`
	Difference  decimal.Decimal `json:"difference"`
	Tolerance   decimal.Decimal `json:"tolerance"`
	Ok          bool            `json:"ok"`
}

// TaxImpact summarizes realized gains and budget usage across all sells.
type TaxImpact struct {
	RealizedGain decimal.Decimal  `json:"realized_gain"`
	RealizedLoss decimal.Decimal  `json:"realized_loss"`
	BudgetUsed   decimal.Decimal  `json:"budget_used"`
	BudgetLimit  *decimal.Decimal `json:"budget_limit,omitempty"`
}

// GateState is the workflow gate's state for a run.
type GateState string

const (
	GateNotRequired   GateState = "NOT_REQUIRED"
	GatePendingReview GateState = "PENDING_REVIEW"
	GateApproved      GateState = "APPROVED"
	GateRejected      GateState = "REJECTED"
)

// Lineage ties a result back to its exact inputs.
type Lineage struct {
	PortfolioID      string `json:"portfolio_id"`
	MarketSnapshotID string `json:"market_snapshot_id,omitempty"`
	ModelID          string `json:"model_id,omitempty"`
	RequestHash      string `json:"request_hash"`
}

// RebalanceResult is the fully traced outcome of one simulation run.
// Immutable once produced; workflow decisions are appended externally.
type RebalanceResult struct {
	RunID          string          `json:"run_id"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	Status         Status          `json:"status"`
	Before         *SimulatedState `json:"before"`
	After          *SimulatedState `json:"after,omitempty"`
	Universe       *UniverseView   `json:"universe,omitempty"`
	Targets        *TargetTrace    `json:"targets,omitempty"`
	Intents        []Intent        `json:"intents,omitempty"`
	RuleResults    []RuleResult    `json:"rule_results,omitempty"`
	Reconciliation *Reconciliation `json:"reconciliation,omitempty"`
	TaxImpact      *TaxImpact      `json:"tax_impact,omitempty"`
	Diagnostics    Diagnostics     `json:"diagnostics"`
	GateDecision   GateState       `json:"gate_decision"`
	Lineage        Lineage         `json:"lineage"`
	CreatedAt      time.Time       `json:"created_at"`
}

// HasHardFailure reports whether any rule failed at HARD severity.
func (r *RebalanceResult) HasHardFailure() bool {
	for _, rr := range r.RuleResults {
		if rr.Severity == SeverityHard && rr.Status == RuleFail {
			return true
		}
	}
	return false
}
