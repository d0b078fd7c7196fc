package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioSnapshotClone(t *testing.T) {
	mv := decimal.NewFromInt(1000)
	settled := decimal.NewFromInt(400)
	p := &PortfolioSnapshot{
		PortfolioID:  "pf",
		BaseCurrency: "USD",
		Positions: []Position{{
			InstrumentID: "X",
			Quantity:     decimal.NewFromInt(10),
			MarketValue:  &mv,
			TaxLots: []TaxLot{{
				LotID: "lot-1", Quantity: decimal.NewFromInt(10),
				CostBasis: decimal.NewFromInt(90), Currency: "USD",
				PurchasedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			}},
		}},
		CashBalances: []CashBalance{{
			Currency: "USD", Amount: decimal.NewFromInt(500), SettledAmount: &settled,
		}},
	}

	clone := p.Clone()
	clone.Positions[0].Quantity = decimal.NewFromInt(99)
	*clone.Positions[0].MarketValue = decimal.NewFromInt(1)
	clone.Positions[0].TaxLots[0].Quantity = decimal.NewFromInt(1)
	clone.CashBalances[0].Amount = decimal.NewFromInt(1)
	*clone.CashBalances[0].SettledAmount = decimal.NewFromInt(1)

	assert.True(t, p.Positions[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, p.Positions[0].MarketValue.Equal(decimal.NewFromInt(1000)))
	assert.True(t, p.Positions[0].TaxLots[0].Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, p.CashBalances[0].Amount.Equal(decimal.NewFromInt(500)))
	assert.True(t, p.CashBalances[0].SettledAmount.Equal(decimal.NewFromInt(400)))
}

func TestCashBalanceSettled(t *testing.T) {
	cb := CashBalance{Currency: "USD", Amount: decimal.NewFromInt(100)}
	assert.True(t, cb.Settled().Equal(decimal.NewFromInt(100)))

	settled := decimal.NewFromInt(40)
	cb.SettledAmount = &settled
	assert.True(t, cb.Settled().Equal(decimal.NewFromInt(40)))
}

func TestMarketDataRate(t *testing.T) {
	md := &MarketDataSnapshot{
		FxRates: map[string]decimal.Decimal{
			"EUR/USD": decimal.RequireFromString("1.25"),
		},
	}

	rate, ok := md.Rate("USD", "USD")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	rate, ok = md.Rate("EUR", "USD")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("1.25")))

	// Inverse falls back to the reverse pair.
	rate, ok = md.Rate("USD", "EUR")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.8")))

	_, ok = md.Rate("GBP", "USD")
	assert.False(t, ok)
}
