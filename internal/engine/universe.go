package engine

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// constructUniverse filters the model through shelf eligibility and decides
// what the engine may buy, may sell, and must leave alone.
//
// Model targets in non-tradeable statuses are excluded. SELL_ONLY targets
// keep a zero target and surrender their model weight as sell_only_excess.
// Held positions without a usable shelf entry are locked at their current
// weight rather than force-sold; held positions that are tradeable but not in
// the model become sell-to-zero candidates.
func constructUniverse(
	model *domain.ModelPortfolio,
	val *valuedPortfolio,
	shelf domain.Shelf,
	opts domain.EngineOptions,
	diag *diagnostics,
) *domain.UniverseView {
	u := &domain.UniverseView{
		EligibleWeights: make(map[string]decimal.Decimal),
		LockedWeights:   make(map[string]decimal.Decimal),
		LockedReasons:   make(map[string]string),
	}

	for _, target := range model.Targets {
		entry, ok := shelf[target.InstrumentID]
		if !ok {
			diag.dataGap(domain.DQShelfMissing, target.InstrumentID, "")
			continue
		}
		switch entry.Status {
		case domain.ShelfBanned, domain.ShelfSuspended:
			u.Exclusions = append(u.Exclusions, domain.Exclusion{
				InstrumentID: target.InstrumentID,
				Reason:       "SHELF_STATUS_" + string(entry.Status),
			})
		case domain.ShelfRestricted:
			if !opts.AllowRestricted {
				u.Exclusions = append(u.Exclusions, domain.Exclusion{
					InstrumentID: target.InstrumentID,
					Reason:       "SHELF_STATUS_" + string(entry.Status),
				})
				continue
			}
			u.EligibleWeights[target.InstrumentID] = target.Weight
			u.BuyList = append(u.BuyList, target.InstrumentID)
			u.SellList = append(u.SellList, target.InstrumentID)
		case domain.ShelfSellOnly:
			// Weight needs a new home; the instrument may only shrink.
			u.EligibleWeights[target.InstrumentID] = decimal.Zero
			u.SellList = append(u.SellList, target.InstrumentID)
			u.SellOnlyExcess = u.SellOnlyExcess.Add(target.Weight)
		default:
			u.EligibleWeights[target.InstrumentID] = target.Weight
			u.BuyList = append(u.BuyList, target.InstrumentID)
			u.SellList = append(u.SellList, target.InstrumentID)
		}
	}

	// Held positions outside the eligible map either get locked at their
	// current weight or become sell-to-zero candidates.
	for _, pv := range val.Positions {
		if _, ok := u.EligibleWeights[pv.InstrumentID]; ok {
			continue
		}
		if pv.Quantity.IsZero() {
			continue
		}
		entry, ok := shelf[pv.InstrumentID]
		lockReason := ""
		switch {
		case !ok:
			lockReason = "MISSING_SHELF"
		case entry.Status == domain.ShelfSuspended:
			lockReason = "SUSPENDED"
		case entry.Status == domain.ShelfBanned:
			lockReason = "BANNED"
		case entry.Status == domain.ShelfRestricted && !opts.AllowRestricted:
			lockReason = "RESTRICTED"
		}
		if lockReason != "" {
			u.LockedWeights[pv.InstrumentID] = val.weightOf(pv.InstrumentID)
			u.LockedReasons[pv.InstrumentID] = "LOCKED_DUE_TO_" + lockReason
			diag.warn("LOCKED_DUE_TO_" + lockReason + ":" + pv.InstrumentID)
			continue
		}
		u.EligibleWeights[pv.InstrumentID] = decimal.Zero
		u.SellList = append(u.SellList, pv.InstrumentID)
	}

	return u
}
