// Package engine implements the deterministic portfolio-rebalance simulation
// pipeline: valuation, universe construction, target generation, intent
// generation, turnover limiting, FX resolution, settlement projection, and
// safety-rule evaluation. The pipeline is pure: given identical inputs and
// options it produces byte-identical results, and its only side channel is
// debug logging.
package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// targetMethodDivergenceTolerance bounds acceptable weight disagreement when
// comparing the two target strategies.
var targetMethodDivergenceTolerance = decimal.NewFromFloat(0.005)

// Request is the full input of one simulation run.
type Request struct {
	Portfolio         *domain.PortfolioSnapshot
	MarketData        *domain.MarketDataSnapshot
	Model             *domain.ModelPortfolio
	Shelf             domain.Shelf
	Options           domain.EngineOptions
	ProposedCashFlows []domain.Intent // kind CASH_FLOW, for proposal simulation
	RequestHash       string
	CorrelationID     string
	RunID             string
}

// Engine runs rebalance simulations. It holds no mutable state; concurrent
// Simulate calls are independent.
type Engine struct {
	log zerolog.Logger
}

// New creates a simulation engine.
func New(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "engine").Logger()}
}

// Simulate runs the full pipeline and returns a traced result. Expected
// business conditions (data gaps, infeasible constraints, rule failures) are
// statuses and diagnostics on the result, never errors; only structurally
// invalid input fails the call.
func (e *Engine) Simulate(req Request) (*domain.RebalanceResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	diag := newDiagnostics()

	result := &domain.RebalanceResult{
		RunID:         runID,
		CorrelationID: req.CorrelationID,
		CreatedAt:     time.Now().UTC(),
		Lineage: domain.Lineage{
			PortfolioID:      req.Portfolio.PortfolioID,
			MarketSnapshotID: req.MarketData.SnapshotID,
			ModelID:          req.Model.ModelID,
			RequestHash:      req.RequestHash,
		},
	}

	// 1. Valuation.
	before := valuePortfolio(req.Portfolio, req.MarketData, req.Shelf, req.Options, diag)
	result.Before = before.simulatedState(req.Portfolio)

	if req.Options.BlockOnMissingFx && diag.hasGap(domain.DQFxMissing) {
		return e.finish(result, domain.StatusBlocked, req.Options, diag, []domain.RuleResult{{
			RuleID:   RuleDataQualityFx,
			Severity: domain.SeverityHard,
			Status:   domain.RuleFail,
		}}), nil
	}

	// 2. Universe.
	universe := constructUniverse(req.Model, before, req.Shelf, req.Options, diag)
	result.Universe = universe

	// 3. Targets.
	in := targetInput{
		universe:   universe,
		shelf:      req.Shelf,
		opts:       req.Options,
		totalValue: before.TotalValue,
		baseCcy:    req.Portfolio.BaseCurrency,
	}
	trace := selectTargetGenerator(req.Options.TargetMethod)(in, diag)
	result.Targets = trace
	if req.Options.CompareTargetMethods {
		e.compareTargetMethods(in, trace, diag)
	}

	// 4. Intents.
	intents, taxImpact := generateIntents(req.Portfolio, before, trace, req.MarketData, req.Shelf, req.Options, diag)
	result.TaxImpact = taxImpact

	// 5. Turnover.
	intents = applyTurnoverLimit(intents, before.TotalValue, req.Options, diag)

	// 6. FX netting and dependency resolution.
	fx := resolveFx(before, intents, req.ProposedCashFlows, req.MarketData, req.Options, req.Portfolio.BaseCurrency, diag)
	if fx.blocked {
		return e.finish(result, domain.StatusBlocked, req.Options, diag, []domain.RuleResult{{
			RuleID:   RuleDataQualityFx,
			Severity: domain.SeverityHard,
			Status:   domain.RuleFail,
		}}), nil
	}
	if err := validateDependencies(fx.intents); err != nil {
		return nil, err
	}
	result.Intents = fx.intents

	// 7. Settlement ladder.
	if req.Options.EnableSettlementAwareness {
		if projectSettlement(req.Portfolio, fx.intents, req.Shelf, req.Options, diag) {
			return e.finish(result, trace.Status, req.Options, diag, []domain.RuleResult{{
				RuleID:   RuleSettlementLadder,
				Severity: domain.SeverityHard,
				Status:   domain.RuleFail,
			}}), nil
		}
	}

	// 8. Post-trade rules and reconciliation.
	afterSnap := applyIntents(req.Portfolio, fx.intents)
	afterOpts := req.Options
	afterOpts.TrustSnapshotValues = false // quantities moved; always revalue
	afterVal := valuePortfolio(afterSnap, req.MarketData, req.Shelf, afterOpts, newDiagnostics())
	result.After = afterVal.simulatedState(afterSnap)

	rules := evaluateRules(afterSnap, afterVal, req.Options)
	if statusFromRules(rules) != domain.StatusBlocked {
		rec := reconcile(before.TotalValue, afterVal.TotalValue, req.Options)
		result.Reconciliation = &rec
		if !rec.Ok {
			rules = append(rules, domain.RuleResult{
				RuleID:   RuleReconciliation,
				Severity: domain.SeverityHard,
				Status:   domain.RuleFail,
				Detail:   "before/after total value mismatch",
			})
		}
	}
	rules = append(rules, dataQualityRules(req.Options, diag)...)

	status := domain.WorstStatus(trace.Status, statusFromRules(rules))
	return e.finish(result, status, req.Options, diag, rules), nil
}

// finish assembles the immutable result: rules, diagnostics, final status,
// and the gate decision.
func (e *Engine) finish(
	result *domain.RebalanceResult,
	status domain.Status,
	opts domain.EngineOptions,
	diag *diagnostics,
	rules []domain.RuleResult,
) *domain.RebalanceResult {
	result.RuleResults = append(result.RuleResults, rules...)
	result.Diagnostics = diag.build()
	result.Status = status
	if result.HasHardFailure() {
		result.Status = domain.StatusBlocked
	}
	if opts.WorkflowAppliesTo(result.Status) {
		result.GateDecision = domain.GatePendingReview
	} else {
		result.GateDecision = domain.GateNotRequired
	}

	e.log.Debug().
		Str("run_id", result.RunID).
		Str("status", string(result.Status)).
		Int("intents", len(result.Intents)).
		Int("warnings", len(result.Diagnostics.Warnings)).
		Msg("Simulation finished")
	return result
}

// dataQualityRules turns recorded data gaps into rule results. Shelf gaps
// always block; price and FX gaps block only when the option demands it.
// FX gaps can surface after valuation (intent pricing, tax-lot cost basis),
// so the check repeats here against the full gap set.
func dataQualityRules(opts domain.EngineOptions, diag *diagnostics) []domain.RuleResult {
	var rules []domain.RuleResult
	if diag.hasGap(domain.DQShelfMissing) {
		rules = append(rules, domain.RuleResult{
			RuleID:   RuleDataQualityShelf,
			Severity: domain.SeverityHard,
			Status:   domain.RuleFail,
			Detail:   "model targets without shelf entries",
		})
	}
	if opts.BlockOnMissingPrices && diag.hasGap(domain.DQPriceMissing) {
		rules = append(rules, domain.RuleResult{
			RuleID:   RuleDataQualityPrice,
			Severity: domain.SeverityHard,
			Status:   domain.RuleFail,
		})
	}
	if opts.BlockOnMissingFx && diag.hasGap(domain.DQFxMissing) {
		rules = append(rules, domain.RuleResult{
			RuleID:   RuleDataQualityFx,
			Severity: domain.SeverityHard,
			Status:   domain.RuleFail,
		})
	}
	return rules
}

// compareTargetMethods runs the alternate strategy against a scratch
// diagnostics builder and flags divergence. Observability only; the primary
// trace is never altered.
func (e *Engine) compareTargetMethods(in targetInput, primary *domain.TargetTrace, diag *diagnostics) {
	other := domain.TargetMethodSolver
	if primary.Method == domain.TargetMethodSolver {
		other = domain.TargetMethodHeuristic
	}
	secondary := selectTargetGenerator(other)(in, newDiagnostics())

	if secondary.Status != primary.Status {
		diag.warn("TARGET_METHOD_STATUS_DIVERGENCE")
	}
	for _, id := range sortedKeys(primary.Weights) {
		if secondary.Weights[id].Sub(primary.Weights[id]).Abs().GreaterThan(targetMethodDivergenceTolerance) {
			diag.warn("TARGET_METHOD_WEIGHT_DIVERGENCE")
			break
		}
	}
}

func validateRequest(req Request) error {
	switch {
	case req.Portfolio == nil:
		return errors.New("portfolio snapshot is required")
	case req.Portfolio.BaseCurrency == "":
		return errors.New("portfolio base currency is required")
	case req.MarketData == nil:
		return errors.New("market data snapshot is required")
	case req.Model == nil:
		return errors.New("model portfolio is required")
	}
	for _, cf := range req.ProposedCashFlows {
		if cf.Kind != domain.IntentCashFlow {
			return errors.New("proposed cash flows must have kind CASH_FLOW")
		}
		if cf.FlowCurrency == "" {
			return errors.New("proposed cash flow currency is required")
		}
	}
	return nil
}
