package engine

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// Adjustment tags recorded on the target trace.
const (
	tagCappedByMaxWeight      = "CAPPED_BY_MAX_WEIGHT"
	tagCappedByGroupLimit     = "CAPPED_BY_GROUP_LIMIT"
	tagRedistributedRecipient = "REDISTRIBUTED_RECIPIENT"
	tagAdjustedBySolver       = "ADJUSTED_BY_SOLVER"
)

// overAllocationTolerance is the slack allowed before total eligible weight
// counts as exceeding 1.
var overAllocationTolerance = decimal.NewFromFloat(0.0001)

// targetInput is the shared contract both target strategies consume.
type targetInput struct {
	universe   *domain.UniverseView
	shelf      domain.Shelf
	opts       domain.EngineOptions
	totalValue decimal.Decimal
	baseCcy    string
}

// targetGenerator is the strategy signature shared by the heuristic and the
// solver.
type targetGenerator func(in targetInput, diag *diagnostics) *domain.TargetTrace

func selectTargetGenerator(method domain.TargetMethod) targetGenerator {
	if method == domain.TargetMethodSolver {
		return generateTargetsSolver
	}
	return generateTargetsHeuristic
}

func addTag(tags map[string][]string, id, tag string) {
	for _, t := range tags[id] {
		if t == tag {
			return
		}
	}
	tags[id] = append(tags[id], tag)
}

// generateTargetsHeuristic produces final target weights by running the
// constraint passes in a fixed order: sell-only redistribution, group caps,
// over-allocation scaling, single-position cap, cash buffer.
func generateTargetsHeuristic(in targetInput, diag *diagnostics) *domain.TargetTrace {
	u := in.universe
	trace := &domain.TargetTrace{
		Method:  domain.TargetMethodHeuristic,
		Weights: make(map[string]decimal.Decimal, len(u.EligibleWeights)),
		Tags:    make(map[string][]string),
		Status:  domain.StatusReady,
	}
	for id, w := range u.EligibleWeights {
		trace.Weights[id] = w
	}

	buySet := make(map[string]bool, len(u.BuyList))
	for _, id := range u.BuyList {
		buySet[id] = true
	}
	buyTotal := func() decimal.Decimal {
		total := decimal.Zero
		for _, id := range u.BuyList {
			total = total.Add(trace.Weights[id])
		}
		return total
	}

	// 1. Sell-only excess is redistributed pro-rata across buy weights.
	if u.SellOnlyExcess.IsPositive() {
		bt := buyTotal()
		if bt.IsZero() {
			trace.Status = domain.WorstStatus(trace.Status, domain.StatusPendingReview)
			diag.warn("SELL_ONLY_EXCESS_UNALLOCATED")
		} else {
			for _, id := range u.BuyList {
				share := trace.Weights[id].DivRound(bt, weightScale)
				trace.Weights[id] = trace.Weights[id].Add(u.SellOnlyExcess.Mul(share))
				addTag(trace.Tags, id, tagRedistributedRecipient)
			}
		}
	}

	lockedTotal := decimal.Zero
	for _, w := range u.LockedWeights {
		lockedTotal = lockedTotal.Add(w)
	}

	// 2. Group constraints, processed in deterministic key order. A blocked
	// constraint does not stop the remaining keys, but the run cannot
	// recover to READY afterwards.
	for _, key := range sortedKeys(in.opts.GroupConstraints) {
		cap := in.opts.GroupConstraints[key]
		attr, value, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		memberOf := func(id string) bool {
			entry, ok := in.shelf[id]
			return ok && entry.Attributes[attr] == value
		}

		groupWeight := decimal.Zero
		var members []string
		for _, id := range sortedKeys(trace.Weights) {
			if memberOf(id) {
				groupWeight = groupWeight.Add(trace.Weights[id])
				members = append(members, id)
			}
		}
		lockedInGroup := decimal.Zero
		for id, w := range u.LockedWeights {
			if memberOf(id) {
				lockedInGroup = lockedInGroup.Add(w)
			}
		}
		total := groupWeight.Add(lockedInGroup)
		if total.LessThanOrEqual(cap) {
			continue
		}

		// Locked members cannot be scaled; the adjustable members must fit
		// in whatever headroom the lock leaves.
		headroom := cap.Sub(lockedInGroup)
		if headroom.IsNegative() || groupWeight.IsZero() {
			trace.Status = domain.StatusBlocked
			diag.warn("NO_ELIGIBLE_REDISTRIBUTION_DESTINATION")
			diag.groupEvent(domain.GroupConstraintEvent{
				ConstraintKey: key,
				Cap:           cap,
				GroupWeight:   total,
				Status:        domain.StatusBlocked,
				Detail:        "locked weight exceeds group cap",
			})
			continue
		}

		excess := groupWeight.Sub(headroom)
		factor := headroom.DivRound(groupWeight, weightScale)
		for _, id := range members {
			trace.Weights[id] = trace.Weights[id].Mul(factor)
			addTag(trace.Tags, id, tagCappedByGroupLimit+"_"+key)
		}
		diag.warn(tagCappedByGroupLimit + "_" + key)

		recipTotal := decimal.Zero
		var recipients []string
		for _, id := range u.BuyList {
			if !memberOf(id) && trace.Weights[id].IsPositive() {
				recipients = append(recipients, id)
				recipTotal = recipTotal.Add(trace.Weights[id])
			}
		}
		if len(recipients) == 0 || recipTotal.IsZero() {
			trace.Status = domain.StatusBlocked
			diag.warn("NO_ELIGIBLE_REDISTRIBUTION_DESTINATION")
			diag.groupEvent(domain.GroupConstraintEvent{
				ConstraintKey: key,
				Cap:           cap,
				GroupWeight:   total,
				Status:        domain.StatusBlocked,
				Detail:        "no eligible redistribution destination",
			})
			continue
		}
		for _, id := range recipients {
			share := trace.Weights[id].DivRound(recipTotal, weightScale)
			trace.Weights[id] = trace.Weights[id].Add(excess.Mul(share))
			addTag(trace.Tags, id, tagRedistributedRecipient)
		}
		diag.groupEvent(domain.GroupConstraintEvent{
			ConstraintKey: key,
			Cap:           cap,
			GroupWeight:   total,
			Status:        domain.StatusReady,
		})
	}

	// 3. Total eligible weight above 1 scales the buy-eligible portion down
	// into the space the locked weights leave.
	eligibleTotal := lockedTotal
	for _, w := range trace.Weights {
		eligibleTotal = eligibleTotal.Add(w)
	}
	if eligibleTotal.GreaterThan(decimal.NewFromInt(1).Add(overAllocationTolerance)) {
		trace.Status = domain.WorstStatus(trace.Status, domain.StatusPendingReview)
		diag.warn("TOTAL_WEIGHT_SCALED_TO_FIT")
		space := decimal.NewFromInt(1).Sub(lockedTotal)
		if space.IsNegative() {
			space = decimal.Zero
		}
		bt := buyTotal()
		if bt.IsPositive() {
			factor := space.DivRound(bt, weightScale)
			if factor.GreaterThan(decimal.NewFromInt(1)) {
				factor = decimal.NewFromInt(1)
			}
			for _, id := range u.BuyList {
				trace.Weights[id] = trace.Weights[id].Mul(factor)
			}
		}
	}

	// 4. Single-position cap with pro-rata redistribution to under-cap buys.
	if in.opts.SinglePositionMaxWeight != nil {
		applyMaxWeightCap(trace, u, *in.opts.SinglePositionMaxWeight, buySet, diag)
	}

	// 5. Cash buffer: buys plus locks must leave the buffer free.
	if in.opts.MinCashBufferPct.IsPositive() {
		allowed := decimal.NewFromInt(1).Sub(in.opts.MinCashBufferPct).Sub(lockedTotal)
		if allowed.IsNegative() {
			allowed = decimal.Zero
		}
		bt := buyTotal()
		if bt.GreaterThan(allowed) {
			trace.Status = domain.WorstStatus(trace.Status, domain.StatusPendingReview)
			diag.warn("CASH_BUFFER_SCALING_APPLIED")
			factor := allowed.DivRound(bt, weightScale)
			for _, id := range u.BuyList {
				trace.Weights[id] = trace.Weights[id].Mul(factor)
			}
		}
	}

	// Locked positions hold their current weight.
	for id, w := range u.LockedWeights {
		trace.Weights[id] = w
	}

	return trace
}

// applyMaxWeightCap caps any instrument above the limit and redistributes the
// released weight pro-rata to under-cap buy-eligible instruments. Excess that
// cannot be absorbed leaves the run in PENDING_REVIEW.
func applyMaxWeightCap(
	trace *domain.TargetTrace,
	u *domain.UniverseView,
	cap decimal.Decimal,
	buySet map[string]bool,
	diag *diagnostics,
) {
	capped := make(map[string]bool)
	// Each iteration caps at least one new instrument, so the loop is
	// bounded by the universe size.
	for iter := 0; iter <= len(trace.Weights); iter++ {
		pool := decimal.Zero
		for _, id := range sortedKeys(trace.Weights) {
			if !buySet[id] || capped[id] {
				continue
			}
			if trace.Weights[id].GreaterThan(cap) {
				pool = pool.Add(trace.Weights[id].Sub(cap))
				trace.Weights[id] = cap
				capped[id] = true
				addTag(trace.Tags, id, tagCappedByMaxWeight)
			}
		}
		if pool.IsZero() {
			return
		}

		recipTotal := decimal.Zero
		var recipients []string
		for _, id := range u.BuyList {
			if capped[id] || !trace.Weights[id].IsPositive() || trace.Weights[id].GreaterThanOrEqual(cap) {
				continue
			}
			recipients = append(recipients, id)
			recipTotal = recipTotal.Add(trace.Weights[id])
		}
		if len(recipients) == 0 || recipTotal.IsZero() {
			trace.Status = domain.WorstStatus(trace.Status, domain.StatusPendingReview)
			diag.warn("MAX_WEIGHT_EXCESS_UNALLOCATED")
			return
		}
		for _, id := range recipients {
			share := trace.Weights[id].DivRound(recipTotal, weightScale)
			trace.Weights[id] = trace.Weights[id].Add(pool.Mul(share))
			addTag(trace.Tags, id, tagRedistributedRecipient)
		}
	}
}
