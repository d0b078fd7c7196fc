package domain

import "github.com/shopspring/decimal"

// EngineOptions is the full, read-only configuration of one simulation run.
// One run sees exactly one options value; policy-pack overrides are merged in
// before the engine is invoked.
type EngineOptions struct {
	// Universe / eligibility
	AllowRestricted bool `json:"allow_restricted"`

	// Valuation
	TrustSnapshotValues  bool `json:"trust_snapshot_values"`
	BlockOnMissingPrices bool `json:"block_on_missing_prices"`
	BlockOnMissingFx     bool `json:"block_on_missing_fx"`

	// Target generation
	TargetMethod            TargetMethod               `json:"target_method"`
	CompareTargetMethods    bool                       `json:"compare_target_methods"`
	SinglePositionMaxWeight *decimal.Decimal           `json:"single_position_max_weight,omitempty"`
	GroupConstraints        map[string]decimal.Decimal `json:"group_constraints,omitempty"` // "attribute:value" -> weight cap
	MinCashBufferPct        decimal.Decimal            `json:"min_cash_buffer_pct"`

	// Intent generation
	SuppressDustTrades bool             `json:"suppress_dust_trades"`
	MinTradeNotional   *decimal.Decimal `json:"min_trade_notional,omitempty"` // request override, beats shelf

	// Tax awareness
	EnableTaxAwareness bool             `json:"enable_tax_awareness"`
	RealizedGainBudget *decimal.Decimal `json:"realized_gain_budget,omitempty"` // base currency

	// Turnover
	MaxTurnoverPct *decimal.Decimal `json:"max_turnover_pct,omitempty"`

	// FX
	FxBufferPct                 decimal.Decimal `json:"fx_buffer_pct"`
	EnableFxSweeps              bool            `json:"enable_fx_sweeps"`
	LinkSellFundingDependencies bool            `json:"link_sell_funding_dependencies"`

	// Settlement
	EnableSettlementAwareness bool                       `json:"enable_settlement_awareness"`
	SettlementHorizonDays     int                        `json:"settlement_horizon_days"`
	FxSettlementDays          int                        `json:"fx_settlement_days"`
	MaxOverdraftByCurrency    map[string]decimal.Decimal `json:"max_overdraft_by_currency,omitempty"`

	// Soft cash-band rule (fractions of total value)
	CashBandLowerPct decimal.Decimal `json:"cash_band_lower_pct"`
	CashBandUpperPct decimal.Decimal `json:"cash_band_upper_pct"`

	// Reconciliation
	ReconciliationTolerancePct decimal.Decimal `json:"reconciliation_tolerance_pct"`

	// Workflow gate
	WorkflowEnabled  bool     `json:"workflow_enabled"`
	WorkflowStatuses []Status `json:"workflow_statuses,omitempty"` // statuses requiring review
}

// DefaultOptions returns the engine defaults. Callers overlay request and
// policy-pack values on top of this.
func DefaultOptions() EngineOptions {
	return EngineOptions{
		TargetMethod:                TargetMethodHeuristic,
		MinCashBufferPct:            decimal.Zero,
		FxBufferPct:                 decimal.NewFromFloat(0.001),
		EnableFxSweeps:              true,
		LinkSellFundingDependencies: true,
		SettlementHorizonDays:       2,
		FxSettlementDays:            2,
		CashBandLowerPct:            decimal.Zero,
		CashBandUpperPct:            decimal.NewFromInt(1),
		ReconciliationTolerancePct:  decimal.NewFromFloat(0.0001),
		WorkflowEnabled:             true,
		WorkflowStatuses:            []Status{StatusPendingReview},
	}
}

// WorkflowAppliesTo reports whether the workflow gate is active for a run
// that ended in the given status.
func (o EngineOptions) WorkflowAppliesTo(status Status) bool {
	if !o.WorkflowEnabled {
		return false
	}
	for _, s := range o.WorkflowStatuses {
		if s == status {
			return true
		}
	}
	return false
}
