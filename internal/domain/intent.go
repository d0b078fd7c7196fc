package domain

import "github.com/shopspring/decimal"

// IntentKind discriminates the intent tagged union.
type IntentKind string

const (
	IntentSecurityTrade IntentKind = "SECURITY_TRADE"
	IntentFxSpot        IntentKind = "FX_SPOT"
	IntentCashFlow      IntentKind = "CASH_FLOW"
)

// DependencyReason types an edge in the intent dependency graph.
type DependencyReason string

const (
	// DepFunding links a BUY to the FX intent that funds its currency.
	DepFunding DependencyReason = "FUNDING"
	// DepSameCurrencySell links a BUY to a SELL that frees cash in the
	// same currency.
	DepSameCurrencySell DependencyReason = "SAME_CURRENCY_SELL"
)

// Dependency is one upstream intent that must settle or execute first.
// Only FX and SELL intents ever appear as dependencies of a BUY.
type Dependency struct {
	IntentID string           `json:"intent_id"`
	Reason   DependencyReason `json:"reason"`
}

// Intent is a proposed, not-yet-executed trade or currency conversion.
// Kind selects which field group is meaningful.
type Intent struct {
	ID   string     `json:"id"`
	Kind IntentKind `json:"kind"`

	// SECURITY_TRADE fields
	Side         Side            `json:"side,omitempty"`
	InstrumentID string          `json:"instrument_id,omitempty"`
	Quantity     decimal.Decimal `json:"quantity,omitempty"`
	Price        decimal.Decimal `json:"price,omitempty"`
	Currency     string          `json:"currency,omitempty"`
	Notional     decimal.Decimal `json:"notional,omitempty"`      // trading currency
	NotionalBase decimal.Decimal `json:"notional_base,omitempty"` // base currency

	// FX_SPOT fields
	Pair         string          `json:"pair,omitempty"` // "SELL_CCY/BUY_CCY"
	BuyCurrency  string          `json:"buy_currency,omitempty"`
	BuyAmount    decimal.Decimal `json:"buy_amount,omitempty"`
	SellCurrency string          `json:"sell_currency,omitempty"`
	SellAmount   decimal.Decimal `json:"sell_amount,omitempty"`

	// CASH_FLOW fields (proposal simulation)
	FlowCurrency string          `json:"flow_currency,omitempty"`
	FlowAmount   decimal.Decimal `json:"flow_amount,omitempty"` // signed

	Dependencies       []Dependency `json:"dependencies,omitempty"`
	ConstraintsApplied []string     `json:"constraints_applied,omitempty"`
}

// DependsOn reports whether the intent lists the given upstream id.
func (in Intent) DependsOn(id string) bool {
	for _, d := range in.Dependencies {
		if d.IntentID == id {
			return true
		}
	}
	return false
}
