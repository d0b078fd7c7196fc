package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/rebalancer/internal/domain"
)

// CanonicalRequestHash produces a stable digest of the full simulation input.
// Collections are serialized in sorted order so two requests with the same
// content always hash identically, regardless of map iteration or input
// ordering quirks. The idempotency guard compares these hashes to detect
// key reuse with different payloads.
func CanonicalRequestHash(req Request) string {
	var b strings.Builder

	b.WriteString("portfolio|")
	b.WriteString(req.Portfolio.PortfolioID)
	b.WriteString("|")
	b.WriteString(req.Portfolio.BaseCurrency)

	positions := make([]domain.Position, len(req.Portfolio.Positions))
	copy(positions, req.Portfolio.Positions)
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].InstrumentID < positions[j].InstrumentID
	})
	for _, pos := range positions {
		fmt.Fprintf(&b, "\npos|%s|%s", pos.InstrumentID, pos.Quantity.String())
		if pos.MarketValue != nil {
			fmt.Fprintf(&b, "|mv=%s", pos.MarketValue.String())
		}
		lots := make([]domain.TaxLot, len(pos.TaxLots))
		copy(lots, pos.TaxLots)
		sort.Slice(lots, func(i, j int) bool { return lots[i].LotID < lots[j].LotID })
		for _, lot := range lots {
			fmt.Fprintf(&b, "|lot=%s:%s:%s:%s:%d",
				lot.LotID, lot.Quantity.String(), lot.CostBasis.String(), lot.Currency, lot.PurchasedAt.Unix())
		}
	}

	balances := make([]domain.CashBalance, len(req.Portfolio.CashBalances))
	copy(balances, req.Portfolio.CashBalances)
	sort.Slice(balances, func(i, j int) bool { return balances[i].Currency < balances[j].Currency })
	for _, cb := range balances {
		fmt.Fprintf(&b, "\ncash|%s|%s", cb.Currency, cb.Amount.String())
		if cb.SettledAmount != nil {
			fmt.Fprintf(&b, "|settled=%s", cb.SettledAmount.String())
		}
	}

	fmt.Fprintf(&b, "\nmodel|%s", req.Model.ModelID)
	for _, t := range req.Model.Targets {
		fmt.Fprintf(&b, "\ntarget|%s|%s", t.InstrumentID, t.Weight.String())
	}

	for _, id := range sortedKeys(req.Shelf) {
		entry := req.Shelf[id]
		fmt.Fprintf(&b, "\nshelf|%s|%s|%s|%d", id, entry.Status, entry.AssetClass, entry.SettlementDays)
		if entry.MinTradeNotional != nil {
			fmt.Fprintf(&b, "|min=%s", entry.MinTradeNotional.String())
		}
		for _, k := range sortedKeys(entry.Attributes) {
			fmt.Fprintf(&b, "|%s=%s", k, entry.Attributes[k])
		}
	}

	for _, id := range sortedKeys(req.MarketData.Prices) {
		p := req.MarketData.Prices[id]
		fmt.Fprintf(&b, "\nprice|%s|%s|%s", id, p.Value.String(), p.Currency)
	}
	for _, pair := range sortedKeys(req.MarketData.FxRates) {
		fmt.Fprintf(&b, "\nfx|%s|%s", pair, req.MarketData.FxRates[pair].String())
	}

	// Options carry only plain values; JSON with sorted map keys is stable.
	optsJSON, _ := json.Marshal(req.Options)
	b.WriteString("\nopts|")
	b.Write(optsJSON)

	for _, cf := range req.ProposedCashFlows {
		fmt.Fprintf(&b, "\nflow|%s|%s", cf.FlowCurrency, cf.FlowAmount.String())
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
