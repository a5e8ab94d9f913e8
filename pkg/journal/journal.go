// Package journal implements the append-only, file-per-cycle decision log
// each AutoTrader writes to and reads back from for performance feedback.
package journal

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// AccountState is the account snapshot embedded in a DecisionRecord. Field
// names mirror the on-disk schema exactly; the analyzer depends on them.
type AccountState struct {
	TotalBalance          float64 `json:"total_balance"`
	AvailableBalance      float64 `json:"available_balance"`
	TotalUnrealizedProfit float64 `json:"total_unrealized_profit"`
	PositionCount         int     `json:"position_count"`
	MarginUsedPct         float64 `json:"margin_used_pct"`
}

// totalEquity reconstructs total_equity = wallet_balance + total_unrealized_pnl.
func (a AccountState) totalEquity() float64 {
	return a.TotalBalance + a.TotalUnrealizedProfit
}

// ActionRecord is one executed (or attempted) action within a cycle.
type ActionRecord struct {
	Action    string    `json:"action"`
	Symbol    string    `json:"symbol"`
	Quantity  float64   `json:"quantity"`
	Leverage  float64   `json:"leverage"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

func (a ActionRecord) side() string {
	switch a.Action {
	case "open_long", "close_long":
		return "long"
	case "open_short", "close_short":
		return "short"
	default:
		return ""
	}
}

func (a ActionRecord) isOpen() bool  { return a.Action == "open_long" || a.Action == "open_short" }
func (a ActionRecord) isClose() bool { return a.Action == "close_long" || a.Action == "close_short" }

// DecisionRecord is one cycle's complete audit trail, matching the stable
// on-disk schema described in the external-interfaces section.
type DecisionRecord struct {
	Timestamp      time.Time         `json:"timestamp"`
	CycleNumber    int               `json:"cycle_number"`
	InputPrompt    string            `json:"input_prompt"`
	CoTTrace       string            `json:"cot_trace"`
	DecisionJSON   string            `json:"decision_json"`
	AccountState   AccountState      `json:"account_state"`
	Positions      []map[string]any  `json:"positions"`
	CandidateCoins []string          `json:"candidate_coins"`
	Decisions      []ActionRecord    `json:"decisions"`
	ExecutionLog   []string          `json:"execution_log"`
	Success        bool              `json:"success"`
	ErrorMessage   string            `json:"error_message,omitempty"`
}

// Statistics is the coarse activity summary returned by Log.Statistics.
type Statistics struct {
	CycleCount        int
	SuccessCount      int
	FailureCount      int
	OpenActionCount   int
	CloseActionCount  int
}

// TradeOutcome is one matched open/close pair found by AnalyzePerformance.
type TradeOutcome struct {
	Symbol    string
	Side      string
	PnL       float64
	PnLPct    float64
	Duration  string
	OpenTime  time.Time
	CloseTime time.Time
}

// SymbolRollup aggregates trade outcomes for a single symbol.
type SymbolRollup struct {
	Symbol   string
	Trades   int
	WinRate  float64
	AvgPnL   float64
	TotalPnL float64
}

// PerformanceReport is the output of Log.AnalyzePerformance.
type PerformanceReport struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	AvgWin        float64
	AvgLoss       float64
	ProfitFactor  float64
	BySymbol      map[string]*SymbolRollup
	BestSymbol    string
	WorstSymbol   string
	RecentTrades  []TradeOutcome
	Sharpe        float64
}

const defaultAnalysisWindow = 100

// Log is the append-only, file-per-cycle DecisionLog for a single trader.
// Writes are serial within a trader (no concurrent writers of the same
// file); the mutex also orders cycle_number assignment checks.
type Log struct {
	dir   string
	mu    sync.Mutex
	last  int
	nowFn func() time.Time
}

// NewLog opens (creating if absent) the decision log directory for a trader
// and resumes its cycle_number sequence from whatever records already exist,
// so the strictly-increasing invariant survives a process restart.
func NewLog(dir string) (*Log, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("decisionlog: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("decisionlog: create dir %q: %w", dir, err)
	}
	l := &Log{dir: dir, nowFn: time.Now}
	records, err := l.loadAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.CycleNumber > l.last {
			l.last = rec.CycleNumber
		}
	}
	return l, nil
}

// Append writes rec to a new file under the log directory. cycle_number must
// already be set by the caller (the AutoTrader owns the cycle counter) and
// must be strictly greater than the last appended cycle; Append enforces
// that invariant rather than assigning the number itself. Writes are
// crash-safe: the record is fully serialized to a temp file in the same
// directory, then renamed into place, so a reader never observes a partial
// file.
func (l *Log) Append(rec *DecisionRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("decisionlog: nil record")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.CycleNumber <= l.last {
		return "", fmt.Errorf("decisionlog: cycle_number %d must be greater than last appended cycle %d", rec.CycleNumber, l.last)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.nowFn()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("decisionlog: marshal record: %w", err)
	}

	name := fmt.Sprintf("decision_%s_cycle%d.json", rec.Timestamp.UTC().Format("20060102_150405"), rec.CycleNumber)
	path := filepath.Join(l.dir, name)
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	l.last = rec.CycleNumber
	return path, nil
}

// Latest returns the n newest records, oldest-first.
func (l *Log) Latest(n int) ([]*DecisionRecord, error) {
	all, err := l.loadAll()
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// ByDate returns every record whose timestamp falls on date's UTC calendar day.
func (l *Log) ByDate(date time.Time) ([]*DecisionRecord, error) {
	all, err := l.loadAll()
	if err != nil {
		return nil, err
	}
	prefix := date.UTC().Format("20060102")
	out := make([]*DecisionRecord, 0)
	for _, rec := range all {
		if rec.Timestamp.UTC().Format("20060102") == prefix {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Clean deletes every record file older than olderThanDays and returns how
// many files were removed.
func (l *Log) Clean(olderThanDays int) (int, error) {
	cutoff := l.nowFn().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("decisionlog: read dir %q: %w", l.dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !isRecordFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		rec, err := readRecord(path)
		if err != nil {
			continue
		}
		if rec.Timestamp.Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Statistics scans every record and returns cycle/action counts.
func (l *Log) Statistics() (Statistics, error) {
	all, err := l.loadAll()
	if err != nil {
		return Statistics{}, err
	}
	var stats Statistics
	for _, rec := range all {
		stats.CycleCount++
		if rec.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
		for _, action := range rec.Decisions {
			switch {
			case action.isOpen():
				stats.OpenActionCount++
			case action.isClose():
				stats.CloseActionCount++
			}
		}
	}
	return stats, nil
}

// AnalyzePerformance implements the windowed performance-analysis algorithm:
// opens and closes are matched by (symbol, side) across a preroll of up to
// 3*window older records (used only to seed open-position state), trade
// outcomes are aggregated over the window itself, and a Sharpe ratio is
// computed over the window's cycle-to-cycle equity returns.
func (l *Log) AnalyzePerformance(window int) (*PerformanceReport, error) {
	if window <= 0 {
		window = defaultAnalysisWindow
	}
	all, err := l.loadAll()
	if err != nil {
		return nil, err
	}

	windowStart := len(all) - window
	if windowStart < 0 {
		windowStart = 0
	}
	prerollStart := len(all) - 3*window
	if prerollStart < 0 {
		prerollStart = 0
	}

	open := make(map[string]openLeg)
	for _, rec := range all[prerollStart:windowStart] {
		applyActions(rec, open, nil)
	}

	var trades []TradeOutcome
	var equities []float64
	for _, rec := range all[windowStart:] {
		applyActions(rec, open, &trades)
		if eq := rec.AccountState.totalEquity(); eq > 0 {
			equities = append(equities, eq)
		}
	}

	report := &PerformanceReport{BySymbol: make(map[string]*SymbolRollup)}
	var sumWins, sumLosses float64
	for _, t := range trades {
		report.TotalTrades++
		if t.PnL > 0 {
			report.WinningTrades++
			sumWins += t.PnL
		} else if t.PnL < 0 {
			report.LosingTrades++
			sumLosses += t.PnL
		}

		roll := report.BySymbol[t.Symbol]
		if roll == nil {
			roll = &SymbolRollup{Symbol: t.Symbol}
			report.BySymbol[t.Symbol] = roll
		}
		roll.Trades++
		roll.TotalPnL += t.PnL
	}
	if report.WinningTrades > 0 {
		report.AvgWin = sumWins / float64(report.WinningTrades)
	}
	if report.LosingTrades > 0 {
		report.AvgLoss = sumLosses / float64(report.LosingTrades)
	}
	switch {
	case sumLosses == 0 && sumWins > 0:
		report.ProfitFactor = 999.0
	case sumLosses != 0:
		report.ProfitFactor = sumWins / math.Abs(sumLosses)
	default:
		report.ProfitFactor = 0
	}

	var bestSymbol, worstSymbol string
	var bestPnL, worstPnL float64
	first := true
	for symbol, roll := range report.BySymbol {
		wins := 0
		for _, t := range trades {
			if t.Symbol == symbol && t.PnL > 0 {
				wins++
			}
		}
		roll.WinRate = float64(wins) / float64(roll.Trades) * 100
		roll.AvgPnL = roll.TotalPnL / float64(roll.Trades)
		if first || roll.TotalPnL > bestPnL {
			bestSymbol, bestPnL = symbol, roll.TotalPnL
		}
		if first || roll.TotalPnL < worstPnL {
			worstSymbol, worstPnL = symbol, roll.TotalPnL
		}
		first = false
	}
	report.BestSymbol = bestSymbol
	report.WorstSymbol = worstSymbol

	sort.Slice(trades, func(i, j int) bool { return trades[i].CloseTime.After(trades[j].CloseTime) })
	if len(trades) > 10 {
		trades = trades[:10]
	}
	report.RecentTrades = trades

	report.Sharpe = sharpeRatio(equities)
	return report, nil
}

type openLeg struct {
	OpenPrice float64
	OpenTime  time.Time
	Quantity  float64
	Leverage  float64
}

// applyActions walks rec's successful actions, updating open in place. When
// trades is non-nil, every matched close is appended to it as a TradeOutcome;
// this lets the preroll pass seed open-position state without polluting the
// windowed aggregation.
func applyActions(rec *DecisionRecord, open map[string]openLeg, trades *[]TradeOutcome) {
	for _, action := range rec.Decisions {
		if !action.Success {
			continue
		}
		side := action.side()
		if side == "" {
			continue
		}
		key := action.Symbol + "|" + side

		switch {
		case action.isOpen():
			open[key] = openLeg{
				OpenPrice: action.Price,
				OpenTime:  action.Timestamp,
				Quantity:  action.Quantity,
				Leverage:  action.Leverage,
			}
		case action.isClose():
			leg, ok := open[key]
			if !ok {
				continue
			}
			delete(open, key)
			if trades == nil {
				continue
			}

			var pnl float64
			if side == "long" {
				pnl = leg.Quantity * (action.Price - leg.OpenPrice)
			} else {
				pnl = leg.Quantity * (leg.OpenPrice - action.Price)
			}
			positionValue := leg.Quantity * leg.OpenPrice
			leverage := leg.Leverage
			if leverage < 1 {
				leverage = 1
			}
			marginUsed := positionValue / leverage
			pnlPct := 0.0
			if marginUsed != 0 {
				pnlPct = pnl / marginUsed * 100
			}

			*trades = append(*trades, TradeOutcome{
				Symbol:    action.Symbol,
				Side:      side,
				PnL:       pnl,
				PnLPct:    pnlPct,
				Duration:  formatDuration(action.Timestamp.Sub(leg.OpenTime)),
				OpenTime:  leg.OpenTime,
				CloseTime: action.Timestamp,
			})
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh%dm0s", hours, minutes)
	}
	return fmt.Sprintf("%dm0s", minutes)
}

// sharpeRatio computes mean(r)/stdev(r) over the period-to-period returns of
// equities (population stdev), saturating to +-999 when stdev is zero and
// falling back to 0 when there are fewer than two usable equity points.
func sharpeRatio(equities []float64) float64 {
	if len(equities) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equities)-1)
	for i := 1; i < len(equities); i++ {
		prev := equities[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, (equities[i]-prev)/prev)
	}
	if len(returns) < 1 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdev := math.Sqrt(variance)

	switch {
	case stdev == 0 && mean > 0:
		return 999
	case stdev == 0 && mean < 0:
		return -999
	case stdev == 0:
		return 0
	default:
		return mean / stdev
	}
}

func isRecordFile(name string) bool {
	return strings.HasPrefix(name, "decision_") && strings.HasSuffix(name, ".json")
}

func (l *Log) loadAll() ([]*DecisionRecord, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("decisionlog: read dir %q: %w", l.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && isRecordFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]*DecisionRecord, 0, len(names))
	for _, name := range names {
		rec, err := readRecord(filepath.Join(l.dir, name))
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func readRecord(path string) (*DecisionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec DecisionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// writeFileAtomic writes data to a temp file in dir's own directory, then
// renames it into place, so a reader never observes a partial file even if
// the process is killed mid-write.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-decision-*")
	if err != nil {
		return fmt.Errorf("decisionlog: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("decisionlog: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("decisionlog: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("decisionlog: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("decisionlog: rename temp file: %w", err)
	}
	return nil
}
