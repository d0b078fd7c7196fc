package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// taxState carries the running realized-gain budget across all sells in one
// run. Sells are processed in sorted instrument order, so budget consumption
// is reproducible.
type taxState struct {
	enabled      bool
	limit        *decimal.Decimal
	remaining    decimal.Decimal
	used         decimal.Decimal
	realizedGain decimal.Decimal
	realizedLoss decimal.Decimal
	limitWarned  bool
}

func newTaxState(opts domain.EngineOptions) *taxState {
	st := &taxState{enabled: opts.EnableTaxAwareness}
	if opts.RealizedGainBudget != nil {
		st.limit = opts.RealizedGainBudget
		st.remaining = *opts.RealizedGainBudget
	}
	return st
}

func (st *taxState) impact() *domain.TaxImpact {
	return &domain.TaxImpact{
		RealizedGain: st.realizedGain,
		RealizedLoss: st.realizedLoss,
		BudgetUsed:   st.used,
		BudgetLimit:  st.limit,
	}
}

// generateIntents converts target-vs-current value deltas into whole-unit
// trade intents. Sells are tax-lot limited when tax awareness is on; trades
// below the minimum notional are suppressed entirely when dust suppression is
// on.
func generateIntents(
	p *domain.PortfolioSnapshot,
	val *valuedPortfolio,
	targets *domain.TargetTrace,
	md *domain.MarketDataSnapshot,
	shelf domain.Shelf,
	opts domain.EngineOptions,
	diag *diagnostics,
) ([]domain.Intent, *domain.TaxImpact) {
	positions := make(map[string]domain.Position, len(p.Positions))
	for _, pos := range p.Positions {
		positions[pos.InstrumentID] = pos
	}

	tax := newTaxState(opts)
	var intents []domain.Intent
	seq := 0

	for _, id := range sortedKeys(targets.Weights) {
		targetValue := targets.Weights[id].Mul(val.TotalValue).Round(moneyScale)
		currentValue := val.Values[id]
		delta := targetValue.Sub(currentValue)
		if delta.IsZero() {
			continue
		}

		price, ok := md.Prices[id]
		if !ok {
			diag.dataGap(domain.DQPriceMissing, id, "")
			continue
		}
		rate, ok := md.Rate(price.Currency, p.BaseCurrency)
		if !ok {
			diag.dataGap(domain.DQFxMissing, id, price.Currency+"/"+p.BaseCurrency)
			continue
		}
		unitBase := price.Value.Mul(rate)
		if !unitBase.IsPositive() {
			continue
		}

		qty := delta.Abs().DivRound(unitBase, weightScale).Floor()
		if !qty.IsPositive() {
			continue
		}

		side := domain.SideBuy
		var applied []string
		if delta.IsNegative() {
			side = domain.SideSell
			if tax.enabled {
				allowed, capped := maxSellableQuantity(positions[id], qty, price.Value, rate, md, p.BaseCurrency, tax, diag)
				if capped {
					diag.warn("TAX_BUDGET_LIMIT_REACHED")
					diag.taxEvent(domain.TaxBudgetConstraintEvent{
						InstrumentID: id,
						RequestedQty: qty,
						AllowedQty:   allowed,
					})
					applied = append(applied, "TAX_BUDGET_LIMIT_REACHED")
				}
				qty = allowed
				if !qty.IsPositive() {
					continue
				}
			}
		}

		notional := qty.Mul(price.Value).Round(moneyScale)
		notionalBase := qty.Mul(unitBase).Round(moneyScale)

		if threshold := minNotionalThreshold(opts, shelf, id); threshold != nil &&
			opts.SuppressDustTrades && notionalBase.Abs().LessThan(*threshold) {
			diag.suppressIntent(domain.SuppressedIntent{
				InstrumentID: id,
				Side:         side,
				NotionalBase: notionalBase,
				Threshold:    *threshold,
			})
			continue
		}

		seq++
		intents = append(intents, domain.Intent{
			ID:                 fmt.Sprintf("sec-%03d-%s", seq, id),
			Kind:               domain.IntentSecurityTrade,
			Side:               side,
			InstrumentID:       id,
			Quantity:           qty,
			Price:              price.Value,
			Currency:           price.Currency,
			Notional:           notional,
			NotionalBase:       notionalBase,
			ConstraintsApplied: applied,
		})
	}

	return intents, tax.impact()
}

// minNotionalThreshold resolves the dust threshold: the request override wins
// over the shelf entry's minimum.
func minNotionalThreshold(opts domain.EngineOptions, shelf domain.Shelf, id string) *decimal.Decimal {
	if opts.MinTradeNotional != nil {
		return opts.MinTradeNotional
	}
	if entry, ok := shelf[id]; ok && entry.MinTradeNotional != nil {
		return entry.MinTradeNotional
	}
	return nil
}

// maxSellableQuantity walks the position's tax lots in HIFO order (highest
// cost basis first, ties broken by purchase date then lot id) and caps the
// sellable quantity by the remaining realized-gain budget. Losses are never
// budget-constrained. A lot set with an unresolvable cost-basis FX rate is
// skipped entirely: the quantity falls back to the unconstrained request.
func maxSellableQuantity(
	pos domain.Position,
	requested decimal.Decimal,
	price, fxInstrument decimal.Decimal,
	md *domain.MarketDataSnapshot,
	baseCcy string,
	tax *taxState,
	diag *diagnostics,
) (decimal.Decimal, bool) {
	if len(pos.TaxLots) == 0 {
		return requested, false
	}

	lots := make([]domain.TaxLot, len(pos.TaxLots))
	copy(lots, pos.TaxLots)
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].CostBasis.Equal(lots[j].CostBasis) {
			return lots[i].CostBasis.GreaterThan(lots[j].CostBasis)
		}
		if !lots[i].PurchasedAt.Equal(lots[j].PurchasedAt) {
			return lots[i].PurchasedAt.Before(lots[j].PurchasedAt)
		}
		return lots[i].LotID < lots[j].LotID
	})

	// Resolve every lot's FX up front; one missing rate abandons the whole
	// lot set as a data-quality gap.
	lotRates := make([]decimal.Decimal, len(lots))
	for i, lot := range lots {
		rate, ok := md.Rate(lot.Currency, baseCcy)
		if !ok {
			diag.dataGap(domain.DQFxMissing, pos.InstrumentID, lot.Currency+"/"+baseCcy)
			return requested, false
		}
		lotRates[i] = rate
	}

	proceedsPerUnit := price.Mul(fxInstrument)
	allowed := decimal.Zero
	needed := requested
	capped := false

	for i, lot := range lots {
		if !needed.IsPositive() {
			break
		}
		gainPerUnit := proceedsPerUnit.Sub(lot.CostBasis.Mul(lotRates[i]))
		take := decimal.Min(lot.Quantity, needed)

		if gainPerUnit.IsPositive() && tax.limit != nil {
			maxUnits := tax.remaining.DivRound(gainPerUnit, weightScale).Floor()
			if maxUnits.LessThan(take) {
				take = maxUnits
				capped = true
			}
		}
		if take.IsPositive() {
			gain := gainPerUnit.Mul(take)
			if gain.IsPositive() {
				tax.realizedGain = tax.realizedGain.Add(gain)
				if tax.limit != nil {
					tax.remaining = tax.remaining.Sub(gain)
				}
				tax.used = tax.used.Add(gain)
			} else {
				tax.realizedLoss = tax.realizedLoss.Add(gain.Neg())
			}
			allowed = allowed.Add(take)
			needed = needed.Sub(take)
		}
		if capped {
			// Budget exhausted: remaining lots carry equal or higher
			// gains per unit and are skipped.
			break
		}
	}

	return allowed, capped
}
