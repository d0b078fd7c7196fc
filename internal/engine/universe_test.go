package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
)

func TestConstructUniverse(t *testing.T) {
	shelf := domain.Shelf{
		"ApprovedA":   usdShelf("EQUITY", nil),
		"BannedB":     {Status: domain.ShelfBanned, AssetClass: "EQUITY", SettlementDays: 2},
		"SellOnlyC":   {Status: domain.ShelfSellOnly, AssetClass: "EQUITY", SettlementDays: 2},
		"RestrictedD": {Status: domain.ShelfRestricted, AssetClass: "EQUITY", SettlementDays: 2},
		"HeldE":       usdShelf("EQUITY", nil),
	}
	model := &domain.ModelPortfolio{
		ModelID: "m",
		Targets: []domain.ModelTarget{
			{InstrumentID: "ApprovedA", Weight: d("0.4")},
			{InstrumentID: "BannedB", Weight: d("0.2")},
			{InstrumentID: "SellOnlyC", Weight: d("0.2")},
			{InstrumentID: "RestrictedD", Weight: d("0.1")},
			{InstrumentID: "NoShelfF", Weight: d("0.1")},
		},
	}
	// Held positions: HeldE is tradeable but not in the model, HeldG has no
	// shelf entry at all.
	val := &valuedPortfolio{
		Positions: []positionValuation{
			{InstrumentID: "HeldE", Quantity: d("10")},
			{InstrumentID: "HeldG", Quantity: d("5")},
		},
		Weights: map[string]decimal.Decimal{
			"HeldE": d("0.05"),
			"HeldG": d("0.03"),
		},
	}

	diag := newDiagnostics()
	u := constructUniverse(model, val, shelf, domain.DefaultOptions(), diag)

	// Approved target keeps its weight; sell-only keeps zero.
	requireDecimalEqual(t, d("0.4"), u.EligibleWeights["ApprovedA"])
	assert.True(t, u.EligibleWeights["SellOnlyC"].IsZero())
	requireDecimalEqual(t, d("0.2"), u.SellOnlyExcess)

	// Banned and restricted targets are excluded outright.
	reasons := make(map[string]string)
	for _, ex := range u.Exclusions {
		reasons[ex.InstrumentID] = ex.Reason
	}
	assert.Equal(t, "SHELF_STATUS_BANNED", reasons["BannedB"])
	assert.Equal(t, "SHELF_STATUS_RESTRICTED", reasons["RestrictedD"])

	// A target without shelf data is a data-quality gap, not an exclusion.
	assert.True(t, diag.hasGap(domain.DQShelfMissing))
	_, eligible := u.EligibleWeights["NoShelfF"]
	assert.False(t, eligible)

	// Held position without shelf data is locked at its current weight.
	requireDecimalEqual(t, d("0.03"), u.LockedWeights["HeldG"])
	assert.Equal(t, "LOCKED_DUE_TO_MISSING_SHELF", u.LockedReasons["HeldG"])

	// Held tradeable position outside the model becomes a sell-to-zero
	// candidate.
	w, ok := u.EligibleWeights["HeldE"]
	require.True(t, ok)
	assert.True(t, w.IsZero())
	assert.Contains(t, u.SellList, "HeldE")
	assert.NotContains(t, u.BuyList, "HeldE")
}

func TestConstructUniverse_AllowRestricted(t *testing.T) {
	shelf := domain.Shelf{
		"RestrictedD": {Status: domain.ShelfRestricted, AssetClass: "EQUITY", SettlementDays: 2},
	}
	model := &domain.ModelPortfolio{
		Targets: []domain.ModelTarget{{InstrumentID: "RestrictedD", Weight: d("0.5")}},
	}
	opts := domain.DefaultOptions()
	opts.AllowRestricted = true

	u := constructUniverse(model, &valuedPortfolio{}, shelf, opts, newDiagnostics())

	requireDecimalEqual(t, d("0.5"), u.EligibleWeights["RestrictedD"])
	assert.Contains(t, u.BuyList, "RestrictedD")
	assert.Empty(t, u.Exclusions)
}
