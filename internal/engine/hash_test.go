package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/rebalancer/internal/domain"
)

func TestCanonicalRequestHash_OrderIndependent(t *testing.T) {
	req := twoAssetRequest()
	req.Portfolio.Positions = []domain.Position{
		{InstrumentID: "TechA", Quantity: d("10")},
		{InstrumentID: "BondB", Quantity: d("20")},
	}
	base := CanonicalRequestHash(req)

	shuffled := twoAssetRequest()
	shuffled.Portfolio.Positions = []domain.Position{
		{InstrumentID: "BondB", Quantity: d("20")},
		{InstrumentID: "TechA", Quantity: d("10")},
	}
	assert.Equal(t, base, CanonicalRequestHash(shuffled))
}

func TestCanonicalRequestHash_SensitiveToContent(t *testing.T) {
	base := CanonicalRequestHash(twoAssetRequest())

	changedQty := twoAssetRequest()
	changedQty.Portfolio.CashBalances[0].Amount = d("10001")
	assert.NotEqual(t, base, CanonicalRequestHash(changedQty))

	changedOpts := twoAssetRequest()
	changedOpts.Options.EnableTaxAwareness = true
	assert.NotEqual(t, base, CanonicalRequestHash(changedOpts))

	changedPrice := twoAssetRequest()
	changedPrice.MarketData.Prices["TechA"] = domain.Price{Value: d("11"), Currency: "USD"}
	assert.NotEqual(t, base, CanonicalRequestHash(changedPrice))

	changedShelf := twoAssetRequest()
	entry := changedShelf.Shelf["TechA"]
	entry.Status = domain.ShelfSellOnly
	changedShelf.Shelf["TechA"] = entry
	assert.NotEqual(t, base, CanonicalRequestHash(changedShelf))
}

func TestCanonicalRequestHash_Stable(t *testing.T) {
	// Two fresh builds of the same request hash identically.
	assert.Equal(t,
		CanonicalRequestHash(twoAssetRequest()),
		CanonicalRequestHash(twoAssetRequest()))
}
