package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// applyTurnoverLimit caps aggregate traded notional at max_turnover_pct of
// portfolio value. Intents are ranked by descending turnover score, then
// ascending notional, then instrument id, then intent id, and admitted
// greedily while the budget holds. Rejected intents are recorded with their
// score and a single PARTIAL_REBALANCE_TURNOVER_LIMIT warning is appended.
func applyTurnoverLimit(
	intents []domain.Intent,
	totalValue decimal.Decimal,
	opts domain.EngineOptions,
	diag *diagnostics,
) []domain.Intent {
	if opts.MaxTurnoverPct == nil || len(intents) == 0 || !totalValue.IsPositive() {
		return intents
	}

	aggregate := decimal.Zero
	for _, in := range intents {
		aggregate = aggregate.Add(in.NotionalBase.Abs())
	}
	budget := totalValue.Mul(*opts.MaxTurnoverPct)
	if aggregate.LessThanOrEqual(budget) {
		return intents
	}

	type scored struct {
		intent domain.Intent
		score  decimal.Decimal
	}
	ranked := make([]scored, len(intents))
	for i, in := range intents {
		ranked[i] = scored{
			intent: in,
			score:  in.NotionalBase.Abs().DivRound(totalValue, weightScale),
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if !a.score.Equal(b.score) {
			return a.score.GreaterThan(b.score)
		}
		an, bn := a.intent.NotionalBase.Abs(), b.intent.NotionalBase.Abs()
		if !an.Equal(bn) {
			return an.LessThan(bn)
		}
		if a.intent.InstrumentID != b.intent.InstrumentID {
			return a.intent.InstrumentID < b.intent.InstrumentID
		}
		return a.intent.ID < b.intent.ID
	})

	admitted := make(map[string]bool, len(intents))
	used := decimal.Zero
	for _, s := range ranked {
		notional := s.intent.NotionalBase.Abs()
		if used.Add(notional).LessThanOrEqual(budget) {
			used = used.Add(notional)
			admitted[s.intent.ID] = true
			continue
		}
		diag.dropIntent(domain.DroppedIntent{
			Intent: s.intent,
			Score:  s.score,
			Reason: "TURNOVER_LIMIT",
		})
		diag.warn("PARTIAL_REBALANCE_TURNOVER_LIMIT")
	}

	kept := make([]domain.Intent, 0, len(admitted))
	for _, in := range intents {
		if admitted[in.ID] {
			kept = append(kept, in)
		}
	}
	return kept
}
