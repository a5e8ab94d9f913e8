package executor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	market "nof0-api/pkg/market"
)

// BuildUserPrompt assembles the dynamic user prompt described in §4.F: wall
// clock time, cycle number, runtime, a BTC pulse line, the account line, a
// per-position block with holding time, a per-candidate block with origin
// tags, an optional Sharpe line, and a closing instruction.
func BuildUserPrompt(ctx *Context) string {
	var sb strings.Builder

	now := ctx.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	fmt.Fprintf(&sb, "Time: %s | Cycle: %d | Runtime: %.1f minutes\n\n",
		now.UTC().Format(time.RFC3339), ctx.CycleNumber, ctx.RuntimeMinutes)

	if btc := ctx.MarketDataMap["BTCUSDT"]; btc != nil {
		fmt.Fprintf(&sb, "BTC pulse: price=%.2f change_1h=%.2f%% change_4h=%.2f%%\n\n",
			btc.Price.Last, btc.Change.OneHour*100, btc.Change.FourHour*100)
	}

	sb.WriteString(formatAccount(ctx.Account))
	sb.WriteString("\n\n")

	sb.WriteString("## Open positions\n")
	sb.WriteString(formatPositions(ctx.Positions, now))
	sb.WriteString("\n\n")

	sb.WriteString("## Candidates\n")
	sb.WriteString(formatCandidates(ctx.CandidateCoins, ctx.MarketDataMap, ctx.OIGrowthMap))
	sb.WriteString("\n")

	if ctx.Performance != nil {
		fmt.Fprintf(&sb, "\nPerformance: sharpe=%.3f trades=%d (w=%d/l=%d) profit_factor=%.2f best=%s worst=%s\n",
			ctx.Performance.Sharpe, ctx.Performance.TotalTrades, ctx.Performance.WinningTrades,
			ctx.Performance.LosingTrades, ctx.Performance.ProfitFactor, ctx.Performance.BestSymbol, ctx.Performance.WorstSymbol)
	}

	sb.WriteString("\nRespond with your reasoning followed by a single JSON array of decisions, per the system prompt's output format.\n")
	return sb.String()
}

func formatAccount(a AccountInfo) string {
	return fmt.Sprintf("## Account\nequity=%.2f wallet=%.2f available=%.2f unrealized_pnl=%.2f margin_used=%.2f (%.1f%%) positions=%d",
		a.TotalEquity, a.WalletBalance, a.AvailableBalance, a.UnrealizedPnL, a.MarginUsed, a.MarginUsedPct, a.PositionCount,
	)
}

func formatPositions(positions []PositionInfo, now time.Time) string {
	if len(positions) == 0 {
		return "(none)"
	}
	items := make([]string, 0, len(positions))
	for _, p := range positions {
		held := now.Sub(time.UnixMilli(p.FirstSeenMs))
		items = append(items, fmt.Sprintf("%s %s qty=%.6f lev=%.1fx entry=%.4f mark=%.4f upnl=%.2f(%.2f%%) liq=%.4f held=%s",
			p.Symbol, p.Side, p.Quantity, p.Leverage, p.EntryPrice, p.MarkPrice, p.UnrealizedPnL, p.UnrealizedPnLPct, p.LiquidationPrice, held.Round(time.Minute),
		))
	}
	sort.Strings(items)
	return strings.Join(items, "\n")
}

func formatCandidates(cands []CandidateCoin, snaps map[string]*market.Snapshot, oi map[string]OpenInterestStat) string {
	if len(cands) == 0 {
		return "(none)"
	}
	items := make([]string, 0, len(cands))
	for _, c := range cands {
		origins := strings.Join(c.Origins, ",")
		line := fmt.Sprintf("%s [%s]", c.Symbol, origins)
		if snap := snaps[c.Symbol]; snap != nil {
			line += fmt.Sprintf(" price=%.4f change_1h=%.2f%% change_4h=%.2f%%", snap.Price.Last, snap.Change.OneHour*100, snap.Change.FourHour*100)
			if snap.Funding != nil {
				line += fmt.Sprintf(" funding=%.4f%%", snap.Funding.Rate*100)
			}
		}
		if stat, ok := oi[c.Symbol]; ok {
			line += fmt.Sprintf(" oi_delta=%.2f%% rank=%d", stat.OIDeltaPct*100, stat.Rank)
		}
		items = append(items, line)
	}
	sort.Strings(items)
	return strings.Join(items, "\n")
}
