package engine

import (
	"strings"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/rebalancer/internal/domain"
)

// Solver parameters. Fixed so runs are reproducible.
const (
	solverIterations = 200
	solverStepSize   = 0.5
)

var solverTolerance = decimal.NewFromFloat(1e-6)

// generateTargetsSolver solves the same constraint set as the heuristic as a
// convex feasibility problem: minimize the distance to the desired weights
// subject to box bounds, group caps, and the total-budget simplex cap, via
// projected gradient descent over the buy-eligible weight vector.
//
// Infeasibility (a locked position already violating a cap, or locks leaving
// no room under the cash buffer) reports BLOCKED with an INFEASIBLE_*
// warning; a feasible solve returns READY.
func generateTargetsSolver(in targetInput, diag *diagnostics) *domain.TargetTrace {
	u := in.universe
	trace := &domain.TargetTrace{
		Method:  domain.TargetMethodSolver,
		Weights: make(map[string]decimal.Decimal, len(u.EligibleWeights)),
		Tags:    make(map[string][]string),
		Status:  domain.StatusReady,
	}

	lockedTotal := decimal.Zero
	for _, w := range u.LockedWeights {
		lockedTotal = lockedTotal.Add(w)
	}

	// Desired point: model weights plus sell-only excess spread pro-rata
	// over the buy list, mirroring the heuristic's first pass.
	desired := make(map[string]decimal.Decimal, len(u.EligibleWeights))
	for id, w := range u.EligibleWeights {
		desired[id] = w
	}
	if u.SellOnlyExcess.IsPositive() {
		bt := decimal.Zero
		for _, id := range u.BuyList {
			bt = bt.Add(desired[id])
		}
		if bt.IsZero() {
			trace.Status = domain.StatusPendingReview
			diag.warn("SELL_ONLY_EXCESS_UNALLOCATED")
		} else {
			for _, id := range u.BuyList {
				share := desired[id].DivRound(bt, weightScale)
				desired[id] = desired[id].Add(u.SellOnlyExcess.Mul(share))
			}
		}
	}

	// Budget left for buys after locks and the cash buffer.
	budget := decimal.NewFromInt(1).Sub(in.opts.MinCashBufferPct).Sub(lockedTotal)
	if budget.IsNegative() {
		trace.Status = domain.StatusBlocked
		diag.warn("INFEASIBLE_CASH_BUFFER")
		for id := range u.EligibleWeights {
			trace.Weights[id] = decimal.Zero
		}
		for id, w := range u.LockedWeights {
			trace.Weights[id] = w
		}
		return trace
	}

	// Group headroom after locked members; a negative headroom cannot be
	// solved because locked positions cannot be sold down.
	type groupConstraint struct {
		key      string
		headroom float64
		members  map[string]bool
	}
	var groups []groupConstraint
	for _, key := range sortedKeys(in.opts.GroupConstraints) {
		capWeight := in.opts.GroupConstraints[key]
		attr, value, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		members := make(map[string]bool)
		for id := range u.EligibleWeights {
			if entry, ok := in.shelf[id]; ok && entry.Attributes[attr] == value {
				members[id] = true
			}
		}
		lockedInGroup := decimal.Zero
		for id, w := range u.LockedWeights {
			if entry, ok := in.shelf[id]; ok && entry.Attributes[attr] == value {
				lockedInGroup = lockedInGroup.Add(w)
			}
		}
		headroom := capWeight.Sub(lockedInGroup)
		if headroom.IsNegative() {
			trace.Status = domain.StatusBlocked
			diag.warn("INFEASIBLE_GROUP_CONSTRAINT_" + key)
			diag.groupEvent(domain.GroupConstraintEvent{
				ConstraintKey: key,
				Cap:           capWeight,
				GroupWeight:   lockedInGroup,
				Status:        domain.StatusBlocked,
				Detail:        "locked weight exceeds group cap",
			})
			continue
		}
		hf, _ := headroom.Float64()
		groups = append(groups, groupConstraint{key: key, headroom: hf, members: members})
	}
	if trace.Status == domain.StatusBlocked {
		for id := range u.EligibleWeights {
			trace.Weights[id] = decimal.Zero
		}
		for id, w := range u.LockedWeights {
			trace.Weights[id] = w
		}
		return trace
	}

	ids := sortedKeys(u.EligibleWeights)
	n := len(ids)
	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}
	buyable := make([]bool, n)
	for _, id := range u.BuyList {
		buyable[index[id]] = true
	}

	upper := 1.0
	if in.opts.SinglePositionMaxWeight != nil {
		upper, _ = in.opts.SinglePositionMaxWeight.Float64()
	}
	budgetF, _ := budget.Float64()

	d := mat.NewVecDense(n, nil)
	for i, id := range ids {
		df, _ := desired[id].Float64()
		d.SetVec(i, df)
	}

	project := func(x *mat.VecDense) {
		// Box bounds. Non-buyable (sell-only) instruments are pinned at 0.
		for i := 0; i < n; i++ {
			v := x.AtVec(i)
			if !buyable[i] || v < 0 {
				v = 0
			}
			if v > upper {
				v = upper
			}
			x.SetVec(i, v)
		}
		// Group caps: scale members down into their headroom.
		for _, g := range groups {
			sum := 0.0
			for id := range g.members {
				sum += x.AtVec(index[id])
			}
			if sum > g.headroom && sum > 0 {
				f := g.headroom / sum
				for id := range g.members {
					x.SetVec(index[id], x.AtVec(index[id])*f)
				}
			}
		}
		// Total budget cap.
		if total := floats.Sum(x.RawVector().Data); total > budgetF && total > 0 {
			x.ScaleVec(budgetF/total, x)
		}
	}

	x := mat.VecDenseCopyOf(d)
	project(x)
	grad := mat.NewVecDense(n, nil)
	for iter := 0; iter < solverIterations; iter++ {
		// Gradient of 0.5*||x-d||^2 is x-d; step toward d, then project
		// back onto the feasible set.
		grad.SubVec(x, d)
		x.AddScaledVec(x, -solverStepSize, grad)
		project(x)
	}

	for i, id := range ids {
		w := decimal.NewFromFloat(x.AtVec(i)).Round(weightScale)
		trace.Weights[id] = w
		if w.Sub(desired[id]).Abs().GreaterThan(solverTolerance) {
			addTag(trace.Tags, id, tagAdjustedBySolver)
		}
	}
	for id, w := range u.LockedWeights {
		trace.Weights[id] = w
	}
	return trace
}
