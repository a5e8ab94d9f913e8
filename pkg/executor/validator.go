package executor

import (
	"fmt"
	"math"
)

// majorCoins get the wider BTC/ETH leverage cap and size band; everything else is
// an altcoin for validation purposes (§4.F).
var majorCoins = map[string]bool{
	"BTCUSDT": true,
	"ETHUSDT": true,
}

const (
	majorPositionMultiple   = 10.0
	altcoinPositionMultiple = 1.5
	sizeTolerance           = 1.01
	minRiskRewardRatio      = 3.0
	nominalEntryFraction    = 0.2
)

// ValidateDecision is a pure function of (Decision, equity, btc_eth_lev,
// altcoin_lev) -> (ok, reason), per the §9 design note: "keep the validator as a
// pure function ... so it is trivially testable". It knows nothing about venue
// state; the AutoTrader layers the same-side-position refusal on top as a second
// line of defense (§4.F, §4.G).
func ValidateDecision(d Decision, equity float64, btcEthLeverage, altcoinLeverage int) (bool, string) {
	if !d.Action.Valid() {
		return false, fmt.Sprintf("unknown action %q", d.Action)
	}
	if !d.Action.IsOpen() {
		return true, ""
	}

	maxLeverage := float64(altcoinLeverage)
	maxPositionValue := altcoinPositionMultiple * equity
	if majorCoins[d.Symbol] {
		maxLeverage = float64(btcEthLeverage)
		maxPositionValue = majorPositionMultiple * equity
	}

	if d.Leverage < 1 || d.Leverage > maxLeverage {
		return false, fmt.Sprintf("leverage %.2f outside [1, %.2f]", d.Leverage, maxLeverage)
	}
	if d.PositionSizeUSD <= 0 || d.PositionSizeUSD > maxPositionValue*sizeTolerance {
		return false, fmt.Sprintf("position_size_usd %.2f outside (0, %.2f]", d.PositionSizeUSD, maxPositionValue*sizeTolerance)
	}
	if d.StopLoss <= 0 {
		return false, "stop_loss must be positive"
	}
	if d.TakeProfit <= 0 {
		return false, "take_profit must be positive"
	}

	switch d.Action {
	case ActionOpenLong:
		if d.StopLoss >= d.TakeProfit {
			return false, "open_long requires stop_loss < take_profit"
		}
	case ActionOpenShort:
		if d.StopLoss <= d.TakeProfit {
			return false, "open_short requires stop_loss > take_profit"
		}
	}

	entry := d.StopLoss + nominalEntryFraction*(d.TakeProfit-d.StopLoss)
	if entry == 0 {
		return false, "nominal entry resolved to zero"
	}
	riskPct := math.Abs(entry-d.StopLoss) / entry * 100
	rewardPct := math.Abs(d.TakeProfit-entry) / entry * 100
	if riskPct == 0 {
		return false, "risk% resolved to zero"
	}
	ratio := rewardPct / riskPct
	if ratio < minRiskRewardRatio {
		return false, fmt.Sprintf("risk-reward ratio %.2f below required %.1f", ratio, minRiskRewardRatio)
	}
	return true, ""
}

// ValidateDecisions filters a batch, splitting into survivors and rejections.
// Any failure discards the decision and records the reason alongside the
// reasoning trace (§4.F, §7 ValidationError).
func ValidateDecisions(decisions []Decision, equity float64, btcEthLeverage, altcoinLeverage int) (valid []Decision, rejected []RejectedDecision) {
	for _, d := range decisions {
		if ok, reason := ValidateDecision(d, equity, btcEthLeverage, altcoinLeverage); ok {
			valid = append(valid, d)
		} else {
			rejected = append(rejected, RejectedDecision{Decision: d, Reason: reason})
		}
	}
	return valid, rejected
}
