package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// fxResolution is the outcome of FX netting. blocked is set when a needed
// rate is missing and block_on_missing_fx demands an immediate BLOCKED run.
type fxResolution struct {
	intents []domain.Intent
	blocked bool
}

// resolveFx nets per-currency cash flow from the admitted security intents
// against existing cash, generates funding FX buys for projected deficits and
// sweep FX sells for surpluses, links funding dependencies, and orders the
// final intent list deterministically: cash flows, then SELLs, then FX, then
// BUYs.
func resolveFx(
	val *valuedPortfolio,
	intents []domain.Intent,
	cashFlows []domain.Intent,
	md *domain.MarketDataSnapshot,
	opts domain.EngineOptions,
	baseCcy string,
	diag *diagnostics,
) fxResolution {
	flows := make(map[string]decimal.Decimal, len(val.Cash))
	for ccy, amt := range val.Cash {
		flows[ccy] = amt
	}
	for _, cf := range cashFlows {
		flows[cf.FlowCurrency] = flows[cf.FlowCurrency].Add(cf.FlowAmount)
	}
	for _, in := range intents {
		switch in.Side {
		case domain.SideSell:
			flows[in.Currency] = flows[in.Currency].Add(in.Notional)
		case domain.SideBuy:
			flows[in.Currency] = flows[in.Currency].Sub(in.Notional)
		}
	}

	onePlusBuffer := decimal.NewFromInt(1).Add(opts.FxBufferPct)
	var fxIntents []domain.Intent
	fxBuyByCurrency := make(map[string]string)
	seq := 0

	for _, ccy := range sortedKeys(flows) {
		if ccy == baseCcy {
			continue
		}
		balance := flows[ccy]
		switch {
		case balance.IsNegative():
			// Fund the deficit with a small buffer against rate drift.
			need := balance.Neg().Mul(onePlusBuffer).Round(moneyScale)
			rate, ok := md.Rate(ccy, baseCcy)
			if !ok {
				diag.dataGap(domain.DQFxMissing, "", ccy+"/"+baseCcy)
				if opts.BlockOnMissingFx {
					return fxResolution{blocked: true}
				}
				continue
			}
			seq++
			id := fmt.Sprintf("fx-%03d-%s", seq, ccy)
			fxIntents = append(fxIntents, domain.Intent{
				ID:           id,
				Kind:         domain.IntentFxSpot,
				Pair:         baseCcy + "/" + ccy,
				BuyCurrency:  ccy,
				BuyAmount:    need,
				SellCurrency: baseCcy,
				SellAmount:   need.Mul(rate).Round(moneyScale),
			})
			fxBuyByCurrency[ccy] = id
		case balance.IsPositive() && opts.EnableFxSweeps:
			rate, ok := md.Rate(ccy, baseCcy)
			if !ok {
				diag.dataGap(domain.DQFxMissing, "", ccy+"/"+baseCcy)
				if opts.BlockOnMissingFx {
					return fxResolution{blocked: true}
				}
				continue
			}
			seq++
			fxIntents = append(fxIntents, domain.Intent{
				ID:           fmt.Sprintf("fx-%03d-%s", seq, ccy),
				Kind:         domain.IntentFxSpot,
				Pair:         ccy + "/" + baseCcy,
				BuyCurrency:  baseCcy,
				BuyAmount:    balance.Mul(rate).Round(moneyScale),
				SellCurrency: ccy,
				SellAmount:   balance,
			})
		}
	}

	// First SELL per currency, for same-currency funding links.
	sellByCurrency := make(map[string]string)
	for _, in := range sortedByInstrument(intents, domain.SideSell) {
		if _, ok := sellByCurrency[in.Currency]; !ok {
			sellByCurrency[in.Currency] = in.ID
		}
	}

	// Dependency edges: a BUY is funded by the FX intent for its currency
	// and, optionally, by a SELL freeing cash in the same currency.
	for i := range intents {
		in := &intents[i]
		if in.Side != domain.SideBuy {
			continue
		}
		if fxID, ok := fxBuyByCurrency[in.Currency]; ok {
			in.Dependencies = append(in.Dependencies, domain.Dependency{
				IntentID: fxID,
				Reason:   domain.DepFunding,
			})
		}
		if opts.LinkSellFundingDependencies {
			if sellID, ok := sellByCurrency[in.Currency]; ok {
				in.Dependencies = append(in.Dependencies, domain.Dependency{
					IntentID: sellID,
					Reason:   domain.DepSameCurrencySell,
				})
			}
		}
	}

	// Execution order: cash flows, SELLs, FX, BUYs; stable secondary keys.
	ordered := make([]domain.Intent, 0, len(intents)+len(fxIntents)+len(cashFlows))
	ordered = append(ordered, cashFlows...)
	ordered = append(ordered, sortedByInstrument(intents, domain.SideSell)...)
	sort.Slice(fxIntents, func(i, j int) bool {
		if fxIntents[i].Pair != fxIntents[j].Pair {
			return fxIntents[i].Pair < fxIntents[j].Pair
		}
		return fxIntents[i].ID < fxIntents[j].ID
	})
	ordered = append(ordered, fxIntents...)
	ordered = append(ordered, sortedByInstrument(intents, domain.SideBuy)...)

	return fxResolution{intents: ordered}
}

// sortedByInstrument returns the security intents of one side ordered by
// instrument id, then intent id.
func sortedByInstrument(intents []domain.Intent, side domain.Side) []domain.Intent {
	var out []domain.Intent
	for _, in := range intents {
		if in.Kind == domain.IntentSecurityTrade && in.Side == side {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InstrumentID != out[j].InstrumentID {
			return out[i].InstrumentID < out[j].InstrumentID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// validateDependencies enforces the dependency graph invariants: referenced
// intents exist, a BUY never depends on another BUY, and the graph is
// acyclic (edges only point from BUYs to FX or SELL intents, which carry no
// dependencies of their own).
func validateDependencies(intents []domain.Intent) error {
	byID := make(map[string]domain.Intent, len(intents))
	for _, in := range intents {
		byID[in.ID] = in
	}
	for _, in := range intents {
		for _, dep := range in.Dependencies {
			up, ok := byID[dep.IntentID]
			if !ok {
				return fmt.Errorf("intent %s depends on unknown intent %s", in.ID, dep.IntentID)
			}
			if up.Kind == domain.IntentSecurityTrade && up.Side == domain.SideBuy {
				return fmt.Errorf("intent %s depends on BUY intent %s", in.ID, dep.IntentID)
			}
			if len(up.Dependencies) > 0 {
				return fmt.Errorf("upstream intent %s has dependencies of its own", dep.IntentID)
			}
		}
	}
	return nil
}
