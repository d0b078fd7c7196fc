package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// projectSettlement builds a per-currency, day-indexed cash ladder across the
// settlement horizon and flags overdrafts beyond the per-currency allowance.
// Returns true when any breach occurred; the caller turns the first breach
// into a hard SETTLEMENT_CASH_LADDER rule and short-circuits the pipeline.
func projectSettlement(
	p *domain.PortfolioSnapshot,
	intents []domain.Intent,
	shelf domain.Shelf,
	opts domain.EngineOptions,
	diag *diagnostics,
) bool {
	horizon := opts.SettlementHorizonDays
	if opts.FxSettlementDays > horizon {
		horizon = opts.FxSettlementDays
	}
	for _, in := range intents {
		if in.Kind != domain.IntentSecurityTrade {
			continue
		}
		if entry, ok := shelf[in.InstrumentID]; ok && entry.SettlementDays > horizon {
			horizon = entry.SettlementDays
		}
	}

	clamp := func(day int) int {
		if day < 0 {
			return 0
		}
		if day > horizon {
			return horizon
		}
		return day
	}

	// Seed day 0 with settled cash only; unsettled balances cannot fund.
	flows := make(map[string][]decimal.Decimal)
	row := func(ccy string) []decimal.Decimal {
		if _, ok := flows[ccy]; !ok {
			flows[ccy] = make([]decimal.Decimal, horizon+1)
		}
		return flows[ccy]
	}
	for _, cb := range p.CashBalances {
		r := row(cb.Currency)
		r[0] = r[0].Add(cb.Settled())
	}

	for _, in := range intents {
		switch in.Kind {
		case domain.IntentSecurityTrade:
			day := 0
			if entry, ok := shelf[in.InstrumentID]; ok {
				day = clamp(entry.SettlementDays)
			}
			r := row(in.Currency)
			if in.Side == domain.SideBuy {
				r[day] = r[day].Sub(in.Notional)
			} else {
				r[day] = r[day].Add(in.Notional)
			}
		case domain.IntentFxSpot:
			day := clamp(opts.FxSettlementDays)
			buyRow := row(in.BuyCurrency)
			buyRow[day] = buyRow[day].Add(in.BuyAmount)
			sellRow := row(in.SellCurrency)
			sellRow[day] = sellRow[day].Sub(in.SellAmount)
		case domain.IntentCashFlow:
			r := row(in.FlowCurrency)
			r[0] = r[0].Add(in.FlowAmount)
		}
	}

	breached := false
	for _, ccy := range sortedKeys(flows) {
		allowance := decimal.Zero
		if a, ok := opts.MaxOverdraftByCurrency[ccy]; ok {
			allowance = a
		}

		balances := make([]decimal.Decimal, horizon+1)
		cumulative := decimal.Zero
		for day := 0; day <= horizon; day++ {
			cumulative = cumulative.Add(flows[ccy][day])
			balances[day] = cumulative
			if cumulative.LessThan(allowance.Neg()) {
				breached = true
				diag.breach(domain.CashLadderBreach{
					Currency: ccy,
					Day:      day,
					Balance:  cumulative,
					Reason:   fmt.Sprintf("OVERDRAFT_ON_T_PLUS_%d", day),
				})
			} else if cumulative.IsNegative() {
				diag.warn("SETTLEMENT_OVERDRAFT_UTILIZED")
			}
		}
		diag.ladderRow(domain.CashLadderRow{Currency: ccy, Balances: balances})
	}
	return breached
}
