package engine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// Rule identifiers.
const (
	RuleNoShorting       = "NO_SHORTING"
	RuleInsufficientCash = "INSUFFICIENT_CASH"
	RuleCashBand         = "CASH_BAND"
	RuleReconciliation   = "RECONCILIATION"
	RuleSettlementLadder = "SETTLEMENT_CASH_LADDER"
	RuleDataQualityShelf = "DATA_QUALITY_SHELF"
	RuleDataQualityPrice = "DATA_QUALITY_PRICE"
	RuleDataQualityFx    = "DATA_QUALITY_FX"
)

// applyIntents plays the admitted intents onto a clone of the portfolio
// snapshot and returns the resulting state. The caller's snapshot is never
// touched.
func applyIntents(p *domain.PortfolioSnapshot, intents []domain.Intent) *domain.PortfolioSnapshot {
	after := p.Clone()

	adjustCash := func(ccy string, delta decimal.Decimal) {
		for i := range after.CashBalances {
			if after.CashBalances[i].Currency == ccy {
				after.CashBalances[i].Amount = after.CashBalances[i].Amount.Add(delta)
				return
			}
		}
		after.CashBalances = append(after.CashBalances, domain.CashBalance{
			Currency: ccy,
			Amount:   delta,
		})
	}
	adjustPosition := func(id string, delta decimal.Decimal) {
		for i := range after.Positions {
			if after.Positions[i].InstrumentID == id {
				after.Positions[i].Quantity = after.Positions[i].Quantity.Add(delta)
				// Snapshot values are stale once the quantity moves.
				after.Positions[i].MarketValue = nil
				return
			}
		}
		after.Positions = append(after.Positions, domain.Position{
			InstrumentID: id,
			Quantity:     delta,
		})
	}

	for _, in := range intents {
		switch in.Kind {
		case domain.IntentSecurityTrade:
			if in.Side == domain.SideBuy {
				adjustPosition(in.InstrumentID, in.Quantity)
				adjustCash(in.Currency, in.Notional.Neg())
			} else {
				adjustPosition(in.InstrumentID, in.Quantity.Neg())
				adjustCash(in.Currency, in.Notional)
			}
		case domain.IntentFxSpot:
			adjustCash(in.SellCurrency, in.SellAmount.Neg())
			adjustCash(in.BuyCurrency, in.BuyAmount)
		case domain.IntentCashFlow:
			adjustCash(in.FlowCurrency, in.FlowAmount)
		}
	}
	return after
}

// evaluateRules runs the hard safety rules and soft policy rules against the
// post-trade state. Reconciliation is evaluated by the caller only when no
// hard rule failed.
func evaluateRules(
	after *domain.PortfolioSnapshot,
	afterVal *valuedPortfolio,
	opts domain.EngineOptions,
) []domain.RuleResult {
	var results []domain.RuleResult

	// Hard: no position may end up negative.
	var shorted []string
	for _, pos := range after.Positions {
		if pos.Quantity.IsNegative() {
			shorted = append(shorted, pos.InstrumentID)
		}
	}
	if len(shorted) > 0 {
		results = append(results, domain.RuleResult{
			RuleID:   RuleNoShorting,
			Severity: domain.SeverityHard,
			Status:   domain.RuleFail,
			Detail:   strings.Join(shorted, ","),
		})
	} else {
		results = append(results, domain.RuleResult{
			RuleID:   RuleNoShorting,
			Severity: domain.SeverityHard,
			Status:   domain.RulePass,
		})
	}

	// Hard: no cash balance may end up below its overdraft allowance.
	var overdrawn []string
	for _, cb := range after.CashBalances {
		allowance := decimal.Zero
		if a, ok := opts.MaxOverdraftByCurrency[cb.Currency]; ok {
			allowance = a
		}
		if cb.Amount.LessThan(allowance.Neg()) {
			overdrawn = append(overdrawn, fmt.Sprintf("%s=%s", cb.Currency, cb.Amount.String()))
		}
	}
	if len(overdrawn) > 0 {
		results = append(results, domain.RuleResult{
			RuleID:   RuleInsufficientCash,
			Severity: domain.SeverityHard,
			Status:   domain.RuleFail,
			Detail:   strings.Join(overdrawn, ","),
		})
	} else {
		results = append(results, domain.RuleResult{
			RuleID:   RuleInsufficientCash,
			Severity: domain.SeverityHard,
			Status:   domain.RulePass,
		})
	}

	// Soft: resulting cash weight should sit inside the configured band.
	if afterVal.TotalValue.IsPositive() {
		cashWeight := afterVal.CashTotal.DivRound(afterVal.TotalValue, weightScale)
		if cashWeight.LessThan(opts.CashBandLowerPct) || cashWeight.GreaterThan(opts.CashBandUpperPct) {
			results = append(results, domain.RuleResult{
				RuleID:   RuleCashBand,
				Severity: domain.SeveritySoft,
				Status:   domain.RuleFail,
				Detail:   fmt.Sprintf("cash weight %s outside [%s, %s]", cashWeight.String(), opts.CashBandLowerPct.String(), opts.CashBandUpperPct.String()),
			})
		} else {
			results = append(results, domain.RuleResult{
				RuleID:   RuleCashBand,
				Severity: domain.SeveritySoft,
				Status:   domain.RulePass,
			})
		}
	}

	return results
}

// reconcile verifies that total value was conserved across the simulation.
func reconcile(before, after decimal.Decimal, opts domain.EngineOptions) domain.Reconciliation {
	diff := after.Sub(before).Abs()
	rec := domain.Reconciliation{
		BeforeTotal: before,
		AfterTotal:  after,
		Difference:  diff,
		Tolerance:   opts.ReconciliationTolerancePct,
	}
	if before.IsZero() {
		rec.Ok = diff.IsZero()
		return rec
	}
	relative := diff.DivRound(before.Abs(), weightScale)
	rec.Ok = relative.LessThanOrEqual(opts.ReconciliationTolerancePct)
	return rec
}

// statusFromRules derives a run status from a rule set: any HARD failure
// blocks, any SOFT failure forces review, otherwise ready.
func statusFromRules(results []domain.RuleResult) domain.Status {
	status := domain.StatusReady
	for _, r := range results {
		if r.Status != domain.RuleFail {
			continue
		}
		if r.Severity == domain.SeverityHard {
			return domain.StatusBlocked
		}
		status = domain.WorstStatus(status, domain.StatusPendingReview)
	}
	return status
}
