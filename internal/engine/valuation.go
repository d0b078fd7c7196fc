package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// Fixed rounding scales. Every division in the pipeline goes through
// DivRound at one of these scales so a run is reproducible bit for bit.
const (
	weightScale = 12
	moneyScale  = 6
)

// valueMismatchTolerance is the relative divergence between a supplied
// snapshot market value and the computed value above which a
// POSITION_VALUE_MISMATCH warning is emitted.
var valueMismatchTolerance = decimal.NewFromFloat(0.005)

// positionValuation is one priced position in base currency terms.
type positionValuation struct {
	InstrumentID string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Currency     string
	FxRate       decimal.Decimal
	Value        decimal.Decimal // base currency
	Weight       decimal.Decimal
	Priced       bool // price and FX both resolved
}

// valuedPortfolio is the priced state of a portfolio snapshot.
type valuedPortfolio struct {
	BaseCurrency string
	TotalValue   decimal.Decimal
	CashTotal    decimal.Decimal // base currency
	Positions    []positionValuation
	Values       map[string]decimal.Decimal // instrument -> base value
	Weights      map[string]decimal.Decimal // instrument -> weight
	Cash         map[string]decimal.Decimal // currency -> native amount
	ByAssetClass map[string]decimal.Decimal // asset class -> weight
	ByAttribute  map[string]map[string]decimal.Decimal
}

// weightOf returns the current weight of an instrument, zero if not held.
func (v *valuedPortfolio) weightOf(instrumentID string) decimal.Decimal {
	if w, ok := v.Weights[instrumentID]; ok {
		return w
	}
	return decimal.Zero
}

// valuePortfolio prices a portfolio snapshot against market data. Missing
// prices and FX rates are logged as data-quality events, never raised; the
// affected position contributes its snapshot value if one was supplied,
// otherwise nothing.
func valuePortfolio(
	p *domain.PortfolioSnapshot,
	md *domain.MarketDataSnapshot,
	shelf domain.Shelf,
	opts domain.EngineOptions,
	diag *diagnostics,
) *valuedPortfolio {
	out := &valuedPortfolio{
		BaseCurrency: p.BaseCurrency,
		Values:       make(map[string]decimal.Decimal),
		Weights:      make(map[string]decimal.Decimal),
		Cash:         make(map[string]decimal.Decimal),
		ByAssetClass: make(map[string]decimal.Decimal),
		ByAttribute:  make(map[string]map[string]decimal.Decimal),
	}

	// Cash first.
	for _, cb := range p.CashBalances {
		out.Cash[cb.Currency] = out.Cash[cb.Currency].Add(cb.Amount)
		rate, ok := md.Rate(cb.Currency, p.BaseCurrency)
		if !ok {
			diag.dataGap(domain.DQFxMissing, "", cb.Currency+"/"+p.BaseCurrency)
			continue
		}
		out.CashTotal = out.CashTotal.Add(cb.Amount.Mul(rate).Round(moneyScale))
	}

	// Positions.
	for _, pos := range p.Positions {
		pv := positionValuation{
			InstrumentID: pos.InstrumentID,
			Quantity:     pos.Quantity,
		}

		var computed decimal.Decimal
		price, havePrice := md.Prices[pos.InstrumentID]
		if !havePrice {
			diag.dataGap(domain.DQPriceMissing, pos.InstrumentID, "")
		} else {
			pv.Price = price.Value
			pv.Currency = price.Currency
			rate, ok := md.Rate(price.Currency, p.BaseCurrency)
			if !ok {
				diag.dataGap(domain.DQFxMissing, pos.InstrumentID, price.Currency+"/"+p.BaseCurrency)
			} else {
				pv.FxRate = rate
				pv.Priced = true
				computed = pos.Quantity.Mul(price.Value).Mul(rate).Round(moneyScale)
			}
		}

		// Compare supplied snapshot value against the computed one; the
		// policy-selected mode's value still wins downstream.
		if pos.MarketValue != nil && pv.Priced && !computed.IsZero() {
			div := pos.MarketValue.Sub(computed).Abs().DivRound(computed.Abs(), weightScale)
			if div.GreaterThan(valueMismatchTolerance) {
				diag.warn("POSITION_VALUE_MISMATCH:" + pos.InstrumentID)
			}
		}

		switch {
		case opts.TrustSnapshotValues && pos.MarketValue != nil:
			pv.Value = *pos.MarketValue
		case pv.Priced:
			pv.Value = computed
		case pos.MarketValue != nil:
			pv.Value = *pos.MarketValue
		}

		out.Positions = append(out.Positions, pv)
		out.Values[pos.InstrumentID] = pv.Value
	}

	for _, pv := range out.Positions {
		out.TotalValue = out.TotalValue.Add(pv.Value)
	}
	out.TotalValue = out.TotalValue.Add(out.CashTotal)

	// Weights and allocation breakdowns need the total.
	if out.TotalValue.IsZero() {
		return out
	}
	for i := range out.Positions {
		pv := &out.Positions[i]
		pv.Weight = pv.Value.DivRound(out.TotalValue, weightScale)
		out.Weights[pv.InstrumentID] = pv.Weight

		entry, ok := shelf[pv.InstrumentID]
		assetClass := "UNKNOWN"
		if ok && entry.AssetClass != "" {
			assetClass = entry.AssetClass
		}
		out.ByAssetClass[assetClass] = out.ByAssetClass[assetClass].Add(pv.Weight)
		if ok {
			for key, value := range entry.Attributes {
				if out.ByAttribute[key] == nil {
					out.ByAttribute[key] = make(map[string]decimal.Decimal)
				}
				out.ByAttribute[key][value] = out.ByAttribute[key][value].Add(pv.Weight)
			}
		}
	}
	return out
}

// simulatedState converts a valued portfolio into its result representation.
func (v *valuedPortfolio) simulatedState(p *domain.PortfolioSnapshot) *domain.SimulatedState {
	st := &domain.SimulatedState{
		TotalValue: v.TotalValue,
		Positions:  make(map[string]decimal.Decimal),
		Cash:       make(map[string]decimal.Decimal),
		Weights:    make(map[string]decimal.Decimal),
	}
	for _, pos := range p.Positions {
		st.Positions[pos.InstrumentID] = pos.Quantity
	}
	for ccy, amt := range v.Cash {
		st.Cash[ccy] = amt
	}
	for id, w := range v.Weights {
		st.Weights[id] = w
	}
	if len(v.ByAssetClass) > 0 {
		st.ByAssetClass = make(map[string]decimal.Decimal, len(v.ByAssetClass))
		for k, w := range v.ByAssetClass {
			st.ByAssetClass[k] = w
		}
	}
	if len(v.ByAttribute) > 0 {
		st.ByAttribute = make(map[string]map[string]decimal.Decimal, len(v.ByAttribute))
		for k, m := range v.ByAttribute {
			inner := make(map[string]decimal.Decimal, len(m))
			for vk, w := range m {
				inner[vk] = w
			}
			st.ByAttribute[k] = inner
		}
	}
	return st
}

// sortedKeys returns map keys in deterministic order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
