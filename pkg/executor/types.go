package executor

import (
	"time"

	market "nof0-api/pkg/market"
)

// Action enumerates the allowed Decision actions (§3).
type Action string

const (
	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
	ActionHold       Action = "hold"
	ActionWait       Action = "wait"
)

// IsOpen reports whether the action opens a new position.
func (a Action) IsOpen() bool { return a == ActionOpenLong || a == ActionOpenShort }

// IsClose reports whether the action closes an existing position.
func (a Action) IsClose() bool { return a == ActionCloseLong || a == ActionCloseShort }

// Valid reports whether a is one of the allowed Decision actions.
func (a Action) Valid() bool {
	switch a {
	case ActionOpenLong, ActionOpenShort, ActionCloseLong, ActionCloseShort, ActionHold, ActionWait:
		return true
	default:
		return false
	}
}

// PositionInfo holds a normalized view of an open position, enriched with the
// holding-time stamp the AutoTrader tracks in first_seen_ms (§3).
type PositionInfo struct {
	Symbol           string
	Side             string // "long" or "short"
	EntryPrice       float64
	MarkPrice        float64
	Quantity         float64
	Leverage         float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
	LiquidationPrice float64
	MarginUsed       float64
	FirstSeenMs      int64
}

// AccountInfo summarizes account-level state (§3 AccountState).
type AccountInfo struct {
	TotalEquity      float64
	WalletBalance    float64
	AvailableBalance float64
	UnrealizedPnL    float64
	MarginUsed       float64
	MarginUsedPct    float64
	PositionCount    int
}

// CandidateCoin is a pre-filtered candidate symbol with provenance labels.
type CandidateCoin struct {
	Symbol  string
	Origins []string // e.g. "scored_feed", "oi_growth_feed"
}

// OpenInterestStat carries the OI-growth feed's per-symbol enrichment (§4.D).
type OpenInterestStat struct {
	Rank        int
	OIDeltaPct  float64
	OIDeltaUSD  float64
	PriceDelta  float64
	NetLongUSD  float64
	NetShortUSD float64
}

// PerformanceView is the feedback signal sourced from DecisionLog.analyze_performance.
type PerformanceView struct {
	Sharpe       float64
	TotalTrades  int
	WinningTrades int
	LosingTrades int
	ProfitFactor float64
	BestSymbol   string
	WorstSymbol  string
}

// Context aggregates all inputs required to form one cycle's decisions (§3).
type Context struct {
	Now             time.Time
	RuntimeMinutes  float64
	CycleNumber     int
	Account         AccountInfo
	Positions       []PositionInfo
	CandidateCoins  []CandidateCoin
	MarketDataMap   map[string]*market.Snapshot
	OIGrowthMap     map[string]OpenInterestStat
	Performance     *PerformanceView
	BTCETHLeverage  int
	AltcoinLeverage int
}

// Decision captures a single proposed trading action on one symbol (§3).
type Decision struct {
	Symbol          string
	Action          Action
	Leverage        float64
	PositionSizeUSD float64
	StopLoss        float64
	TakeProfit      float64
	Confidence      float64
	RiskUSD         float64
	Reasoning       string
}

// FullDecision is the engine's full output for one cycle: the raw reasoning
// prose, the parsed decisions, and the exact prompts sent (§3).
type FullDecision struct {
	SystemPrompt string
	UserPrompt   string
	CoTTrace     string
	Decisions    []Decision
	Timestamp    time.Time
}

// RejectedDecision pairs a Decision that failed validation with the reason.
type RejectedDecision struct {
	Decision Decision
	Reason   string
}
