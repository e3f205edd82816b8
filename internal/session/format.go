package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

// FormatOpportunity renders an active opportunity as a Markdown alert.
func FormatOpportunity(opp domain.ArbitrageOpportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Arbitrage: %s*\n", opp.Symbol)
	fmt.Fprintf(&b, "Buy  %s @ %.2f\n", opp.BuyExchange, opp.BuyPrice)
	fmt.Fprintf(&b, "Sell %s @ %.2f\n", opp.SellExchange, opp.SellPrice)
	fmt.Fprintf(&b, "Profit: %.2f (%.4f%%)\n", opp.ProfitAbs, opp.ProfitPct)
	fmt.Fprintf(&b, "Live since %s", opp.DetectedAt.UTC().Format(time.RFC3339))
	return b.String()
}

// FormatOpportunityClosed renders the final state of a closed opportunity.
func FormatOpportunityClosed(opp domain.ArbitrageOpportunity, closedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Arbitrage closed: %s*\n", opp.Symbol)
	fmt.Fprintf(&b, "Buy %s / Sell %s\n", opp.BuyExchange, opp.SellExchange)
	fmt.Fprintf(&b, "Last profit: %.2f (%.4f%%)\n", opp.ProfitAbs, opp.ProfitPct)
	fmt.Fprintf(&b, "Lasted %s", closedAt.Sub(opp.DetectedAt).Round(time.Second))
	return b.String()
}

// FormatMarketView renders a consolidated view as a Markdown alert. Exchanges
// are listed alphabetically so repeated renders of the same view are
// byte-identical and dedupe cleanly.
func FormatMarketView(view domain.ConsolidatedView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Market view: %s*\n", view.Symbol)
	fmt.Fprintf(&b, "Best bid %.2f (%s)\n", view.BestBidPrice, view.BestBidExchange)
	fmt.Fprintf(&b, "Best ask %.2f (%s)\n", view.BestAskPrice, view.BestAskExchange)
	fmt.Fprintf(&b, "Mid %.2f\n", view.MidPrice)

	exchanges := make([]string, 0, len(view.PerExchange))
	for name := range view.PerExchange {
		exchanges = append(exchanges, name)
	}
	sort.Strings(exchanges)
	for _, name := range exchanges {
		q := view.PerExchange[name]
		fmt.Fprintf(&b, "  %s: %.2f / %.2f\n", name, q.BidPrice, q.AskPrice)
	}
	fmt.Fprintf(&b, "As of %s", view.ComputedAt.UTC().Format(time.RFC3339))
	return b.String()
}
