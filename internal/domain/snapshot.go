package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// fxScale is the rounding scale applied when inverting FX rates. All rate
// division in the engine goes through DivRound at this scale so identical
// inputs always produce identical rates.
const fxScale = 12

// TaxLot is a single acquisition lot of a position, used for tax-aware sell
// limiting.
type TaxLot struct {
	LotID       string          `json:"lot_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostBasis   decimal.Decimal `json:"cost_basis"` // per-unit cost in Currency
	Currency    string          `json:"currency"`
	PurchasedAt time.Time       `json:"purchased_at"`
}

// Position is a holding in a portfolio snapshot. MarketValue, when supplied,
// is the custodian-reported value in the portfolio base currency; the engine
// only uses it when options ask it to.
type Position struct {
	InstrumentID string           `json:"instrument_id"`
	Quantity     decimal.Decimal  `json:"quantity"` // signed
	MarketValue  *decimal.Decimal `json:"market_value,omitempty"`
	TaxLots      []TaxLot         `json:"tax_lots,omitempty"`
}

// CashBalance is a cash amount in one currency. SettledAmount, when present,
// is the portion already settled and available for the settlement ladder.
type CashBalance struct {
	Currency      string           `json:"currency"`
	Amount        decimal.Decimal  `json:"amount"`
	SettledAmount *decimal.Decimal `json:"settled_amount,omitempty"`
}

// Settled returns the settled portion of the balance, defaulting to the full
// amount when no settled figure was supplied.
func (c CashBalance) Settled() decimal.Decimal {
	if c.SettledAmount != nil {
		return *c.SettledAmount
	}
	return c.Amount
}

// PortfolioSnapshot is the immutable input state of a portfolio. The engine
// never mutates the caller's copy; projections operate on a clone.
type PortfolioSnapshot struct {
	PortfolioID  string        `json:"portfolio_id"`
	BaseCurrency string        `json:"base_currency"`
	Positions    []Position    `json:"positions"`
	CashBalances []CashBalance `json:"cash_balances"`
}

// Clone returns a deep copy safe for in-place simulation.
func (p *PortfolioSnapshot) Clone() *PortfolioSnapshot {
	out := &PortfolioSnapshot{
		PortfolioID:  p.PortfolioID,
		BaseCurrency: p.BaseCurrency,
		Positions:    make([]Position, len(p.Positions)),
		CashBalances: make([]CashBalance, len(p.CashBalances)),
	}
	for i, pos := range p.Positions {
		cp := pos
		if pos.MarketValue != nil {
			mv := *pos.MarketValue
			cp.MarketValue = &mv
		}
		if len(pos.TaxLots) > 0 {
			cp.TaxLots = make([]TaxLot, len(pos.TaxLots))
			copy(cp.TaxLots, pos.TaxLots)
		}
		out.Positions[i] = cp
	}
	for i, cb := range p.CashBalances {
		cc := cb
		if cb.SettledAmount != nil {
			sa := *cb.SettledAmount
			cc.SettledAmount = &sa
		}
		out.CashBalances[i] = cc
	}
	return out
}

// Price is a quoted price in the instrument's trading currency.
type Price struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

// MarketDataSnapshot holds prices and FX rates for one simulation run.
// FX rates are keyed by ordered pair "FROM/TO".
type MarketDataSnapshot struct {
	SnapshotID string                     `json:"snapshot_id"`
	Prices     map[string]Price           `json:"prices"`
	FxRates    map[string]decimal.Decimal `json:"fx_rates"`
}

// Rate resolves the conversion rate from one currency to another. The
// identity rate is returned for same-currency lookups. A missing direct pair
// falls back to the explicit inverse of the reverse pair; if neither exists
// the lookup fails (a data-quality event for the caller, never a crash).
func (m *MarketDataSnapshot) Rate(from, to string) (decimal.Decimal, bool) {
	if from == to {
		return decimal.NewFromInt(1), true
	}
	if r, ok := m.FxRates[from+"/"+to]; ok {
		return r, true
	}
	if r, ok := m.FxRates[to+"/"+from]; ok && !r.IsZero() {
		return decimal.NewFromInt(1).DivRound(r, fxScale), true
	}
	return decimal.Decimal{}, false
}

// ModelTarget is one instrument's desired weight in a model portfolio.
// Weights are fractions in [0,1] and are not required to sum to 1.
type ModelTarget struct {
	InstrumentID string          `json:"instrument_id"`
	Weight       decimal.Decimal `json:"weight"`
}

// ModelPortfolio is the ordered set of targets the portfolio should align to.
type ModelPortfolio struct {
	ModelID string        `json:"model_id"`
	Targets []ModelTarget `json:"targets"`
}

// ShelfEntry is the eligibility and policy metadata for one instrument.
type ShelfEntry struct {
	InstrumentID     string            `json:"instrument_id"`
	Status           ShelfStatus       `json:"status"`
	AssetClass       string            `json:"asset_class"`
	Attributes       map[string]string `json:"attributes,omitempty"` // e.g. "sector" -> "TECH"
	MinTradeNotional *decimal.Decimal  `json:"min_trade_notional,omitempty"`
	SettlementDays   int               `json:"settlement_days"`
}

// Shelf maps instrument ids to their shelf entries.
type Shelf map[string]ShelfEntry
