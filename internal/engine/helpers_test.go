package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
)

// d parses a decimal literal, failing the build-time constant at test setup.
func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

// requireDecimalEqual compares decimals up to 9 places, absorbing the rounding
// noise that pro-rata redistribution at scale 12 introduces.
func requireDecimalEqual(t *testing.T, expected, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	require.True(t, expected.Sub(actual).Abs().LessThan(d("0.000000001")),
		"expected %s, got %s %v", expected.String(), actual.String(), msgAndArgs)
}

// usdShelf builds an APPROVED shelf entry with optional attributes.
func usdShelf(assetClass string, attrs map[string]string) domain.ShelfEntry {
	return domain.ShelfEntry{
		Status:         domain.ShelfApproved,
		AssetClass:     assetClass,
		Attributes:     attrs,
		SettlementDays: 2,
	}
}

// twoAssetRequest is the baseline scenario: an all-cash USD portfolio, a
// two-instrument model, and USD prices for both.
func twoAssetRequest() Request {
	return Request{
		Portfolio: &domain.PortfolioSnapshot{
			PortfolioID:  "pf-1",
			BaseCurrency: "USD",
			CashBalances: []domain.CashBalance{{Currency: "USD", Amount: d("10000")}},
		},
		MarketData: &domain.MarketDataSnapshot{
			SnapshotID: "md-1",
			Prices: map[string]domain.Price{
				"TechA": {Value: d("10"), Currency: "USD"},
				"BondB": {Value: d("10"), Currency: "USD"},
			},
			FxRates: map[string]decimal.Decimal{},
		},
		Model: &domain.ModelPortfolio{
			ModelID: "model-1",
			Targets: []domain.ModelTarget{
				{InstrumentID: "TechA", Weight: d("0.3")},
				{InstrumentID: "BondB", Weight: d("0.7")},
			},
		},
		Shelf: domain.Shelf{
			"TechA": usdShelf("EQUITY", map[string]string{"sector": "TECH"}),
			"BondB": usdShelf("BOND", map[string]string{"sector": "BOND"}),
		},
		Options: domain.DefaultOptions(),
	}
}

func findIntent(intents []domain.Intent, instrumentID string) (domain.Intent, bool) {
	for _, in := range intents {
		if in.InstrumentID == instrumentID {
			return in, true
		}
	}
	return domain.Intent{}, false
}
