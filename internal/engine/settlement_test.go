package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
)

func TestProjectSettlement_BreachOnEarlyBuy(t *testing.T) {
	settled := decimal.Zero
	p := &domain.PortfolioSnapshot{
		BaseCurrency: "USD",
		CashBalances: []domain.CashBalance{
			{Currency: "USD", Amount: d("1000"), SettledAmount: &settled},
		},
	}
	shelf := domain.Shelf{
		"X": {Status: domain.ShelfApproved, SettlementDays: 1},
		"Y": {Status: domain.ShelfApproved, SettlementDays: 2},
	}
	intents := []domain.Intent{
		{ID: "sec-001-Y", Kind: domain.IntentSecurityTrade, Side: domain.SideSell,
			InstrumentID: "Y", Currency: "USD", Notional: d("1000")},
		{ID: "sec-002-X", Kind: domain.IntentSecurityTrade, Side: domain.SideBuy,
			InstrumentID: "X", Currency: "USD", Notional: d("800")},
	}
	opts := domain.DefaultOptions()
	opts.EnableSettlementAwareness = true

	diag := newDiagnostics()
	breached := projectSettlement(p, intents, shelf, opts, diag)

	// The buy settles T+1 but the funding sell only lands T+2.
	assert.True(t, breached)
	require.Len(t, diag.breaches, 1)
	assert.Equal(t, "USD", diag.breaches[0].Currency)
	assert.Equal(t, 1, diag.breaches[0].Day)
	assert.Equal(t, "OVERDRAFT_ON_T_PLUS_1", diag.breaches[0].Reason)
	requireDecimalEqual(t, d("-800"), diag.breaches[0].Balance)

	require.Len(t, diag.ladder, 1)
	balances := diag.ladder[0].Balances
	require.Len(t, balances, 3)
	requireDecimalEqual(t, d("0"), balances[0])
	requireDecimalEqual(t, d("-800"), balances[1])
	requireDecimalEqual(t, d("200"), balances[2])
}

func TestProjectSettlement_OverdraftAllowanceAbsorbs(t *testing.T) {
	settled := decimal.Zero
	p := &domain.PortfolioSnapshot{
		BaseCurrency: "USD",
		CashBalances: []domain.CashBalance{
			{Currency: "USD", Amount: d("1000"), SettledAmount: &settled},
		},
	}
	shelf := domain.Shelf{
		"X": {Status: domain.ShelfApproved, SettlementDays: 1},
		"Y": {Status: domain.ShelfApproved, SettlementDays: 2},
	}
	intents := []domain.Intent{
		{ID: "sec-001-Y", Kind: domain.IntentSecurityTrade, Side: domain.SideSell,
			InstrumentID: "Y", Currency: "USD", Notional: d("1000")},
		{ID: "sec-002-X", Kind: domain.IntentSecurityTrade, Side: domain.SideBuy,
			InstrumentID: "X", Currency: "USD", Notional: d("800")},
	}
	opts := domain.DefaultOptions()
	opts.EnableSettlementAwareness = true
	opts.MaxOverdraftByCurrency = map[string]decimal.Decimal{"USD": d("1000")}

	diag := newDiagnostics()
	breached := projectSettlement(p, intents, shelf, opts, diag)

	assert.False(t, breached)
	assert.Empty(t, diag.breaches)
	assert.Contains(t, diag.warnings, "SETTLEMENT_OVERDRAFT_UTILIZED")
}

func TestProjectSettlement_FxLegsSettleOnFxDay(t *testing.T) {
	p := &domain.PortfolioSnapshot{
		BaseCurrency: "USD",
		CashBalances: []domain.CashBalance{{Currency: "USD", Amount: d("5000")}},
	}
	intents := []domain.Intent{
		{ID: "fx-001-EUR", Kind: domain.IntentFxSpot, Pair: "USD/EUR",
			BuyCurrency: "EUR", BuyAmount: d("1000"),
			SellCurrency: "USD", SellAmount: d("1100")},
	}
	opts := domain.DefaultOptions()
	opts.EnableSettlementAwareness = true

	diag := newDiagnostics()
	breached := projectSettlement(p, intents, domain.Shelf{}, opts, diag)

	assert.False(t, breached)
	rows := make(map[string][]decimal.Decimal)
	for _, row := range diag.ladder {
		rows[row.Currency] = row.Balances
	}
	require.Contains(t, rows, "EUR")
	require.Contains(t, rows, "USD")
	// EUR arrives on the FX settlement day, not before.
	requireDecimalEqual(t, d("0"), rows["EUR"][1])
	requireDecimalEqual(t, d("1000"), rows["EUR"][2])
	requireDecimalEqual(t, d("3900"), rows["USD"][2])
}
