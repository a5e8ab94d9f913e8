package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/candidatepool"
	executorpkg "nof0-api/pkg/executor"
	"nof0-api/pkg/journal"
	"nof0-api/pkg/market"
	"nof0-api/pkg/venue"
)

// State is one of the five AutoTrader lifecycle states (§4.G).
type State string

const (
	StateNew      State = "new"
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// stopDeadline bounds how long Stop waits for the in-flight cycle to drain
// before forcefully cancelling the run loop (§4.H).
const stopDeadline = 10 * time.Second

// positionKey identifies a held side on a symbol, used for the first_seen_ms
// holding-time map and for the same-side-exists open guard.
func positionKey(symbol, side string) string { return symbol + "|" + side }

// AutoTrader drives one trading account through the §4.G decision cycle: it
// owns a Venue, a market data Provider, a DecisionEngine, the candidate pool,
// and its own DecisionLog, and runs independently of every other AutoTrader a
// Supervisor holds.
type AutoTrader struct {
	id   string
	name string

	venue       venue.Venue
	market      market.Provider
	executor    executorpkg.Executor
	pool        *candidatepool.Pool
	journal     *journal.Log
	persistence PersistenceService
	observer    CycleObserver

	mu           sync.Mutex
	cfg          TraderConfig
	state        State
	cycleNumber  int
	stopUntil    time.Time
	dailyPnL     float64
	dailyPnLRoll time.Time
	firstSeen    map[string]int64
	recentClose  map[string]time.Time
	customText   string
	overrideBase bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	cancel   context.CancelFunc
}

// NewAutoTrader constructs an AutoTrader in StateNew. Initialize must be
// called before Run.
func NewAutoTrader(id string, cfg TraderConfig, v venue.Venue, m market.Provider, exec executorpkg.Executor, pool *candidatepool.Pool, log *journal.Log) *AutoTrader {
	return &AutoTrader{
		id:           id,
		name:         cfg.Name,
		cfg:          cfg,
		venue:        v,
		market:       m,
		executor:     exec,
		pool:         pool,
		journal:      log,
		persistence:  newNoopPersistenceService(),
		observer:     noopCycleObserver{},
		state:        StateNew,
		firstSeen:    make(map[string]int64),
		recentClose:  make(map[string]time.Time),
		customText:   cfg.CustomPrompt,
		overrideBase: cfg.OverrideBasePrompt,
	}
}

// SetPersistence wires an external persistence/caching sink (e.g. a
// DB-backed leaderboard or position mirror); the default is a no-op so
// AutoTrader never requires one to run.
func (t *AutoTrader) SetPersistence(p PersistenceService) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p != nil {
		t.persistence = p
	}
}

// SetObserver wires an external metrics collector (e.g. internal/telemetry's
// prometheus registry); the default is a no-op so AutoTrader never requires
// one to run.
func (t *AutoTrader) SetObserver(o CycleObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o != nil {
		t.observer = o
	}
}

// ID returns the trader's identifier.
func (t *AutoTrader) ID() string { return t.id }

// State returns the trader's current lifecycle state.
func (t *AutoTrader) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Initialize verifies the trader can reach its venue and transitions
// NEW -> IDLE, or NEW -> FAILED on a fatal startup error (§4.G).
func (t *AutoTrader) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateNew {
		return fmt.Errorf("autotrader %s: Initialize called from state %s", t.id, t.state)
	}
	if _, err := t.venue.GetBalance(ctx); err != nil {
		t.state = StateFailed
		return fmt.Errorf("autotrader %s: venue unreachable at startup: %w", t.id, err)
	}
	t.dailyPnLRoll = time.Now()
	t.state = StateIdle
	return nil
}

// Run starts the cycle loop in a background goroutine and returns
// immediately, transitioning IDLE -> RUNNING.
func (t *AutoTrader) Run(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return fmt.Errorf("autotrader %s: Run called from state %s", t.id, t.state)
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	t.stopOnce = sync.Once{}
	t.state = StateRunning
	t.mu.Unlock()

	go t.runLoop(runCtx)
	return nil
}

// Stop signals the run loop and waits up to stopDeadline for the in-flight
// cycle to drain before forcefully cancelling (§4.H).
func (t *AutoTrader) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return nil
	}
	t.state = StateStopping
	doneCh := t.doneCh
	stopCh := t.stopCh
	cancel := t.cancel
	t.mu.Unlock()

	t.stopOnce.Do(func() { close(stopCh) })

	select {
	case <-doneCh:
		return nil
	case <-time.After(stopDeadline):
		logx.WithContext(ctx).Errorf("autotrader %s: stop deadline exceeded, forcing cancel", t.id)
		cancel()
		<-doneCh
		return fmt.Errorf("autotrader %s: forced cancel after %s stop deadline", t.id, stopDeadline)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (t *AutoTrader) runLoop(ctx context.Context) {
	defer close(t.doneCh)

	interval := t.cfg.DecisionInterval
	if interval <= 0 {
		interval = 3 * time.Minute
	}

	// The first cycle fires immediately on entering RUNNING (§4.G); every
	// subsequent cycle waits a full tick. Using a Timer (not a Ticker) for the
	// recurring wait keeps the inter-cycle sleep a single cancellable
	// suspension point: stopCh/ctx.Done() unblock it at once instead of
	// waiting out a Ticker's fixed schedule.
	fire := true
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if fire {
			fire = false
			t.mu.Lock()
			t.cycleNumber++
			cycle := t.cycleNumber
			t.mu.Unlock()
			t.runCycle(ctx, cycle)
		}

		select {
		case <-ctx.Done():
			t.setState(StateStopped)
			return
		case <-t.stopCh:
			t.setState(StateStopped)
			return
		case <-timer.C:
			timer.Reset(interval)
			fire = true
		}
	}
}

func (t *AutoTrader) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// runCycle implements one full §4.G decision cycle: cooldown check, daily PnL
// roll, context assembly, decide(), stable partition + ordered execution, and
// the final DecisionLog append.
func (t *AutoTrader) runCycle(ctx context.Context, cycle int) {
	now := time.Now()
	defer func() {
		t.observer.ObserveCycle(t.id, cycle, time.Since(now))
	}()

	t.mu.Lock()
	stopUntil := t.stopUntil
	t.mu.Unlock()
	if now.Before(stopUntil) {
		remaining := stopUntil.Sub(now)
		logx.WithContext(ctx).Infof("autotrader %s: skipping cycle %d, risk-control cooldown active for %s", t.id, cycle, remaining.Round(time.Minute))
		t.appendRecord(&journal.DecisionRecord{
			CycleNumber:  cycle,
			ExecutionLog: []string{fmt.Sprintf("cycle skipped: risk-control cooldown, %s remaining", remaining.Round(time.Minute))},
			Success:      false,
			ErrorMessage: "risk_control_pause",
		})
		return
	}

	t.rollDailyPnLIfDue(now)

	execCtx, positions, err := t.buildContext(ctx, cycle, now)
	if err != nil {
		logx.WithContext(ctx).Errorf("autotrader %s: cycle %d context build failed: %v", t.id, cycle, err)
		t.appendRecord(&journal.DecisionRecord{
			CycleNumber:  cycle,
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return
	}

	opts := t.promptOptions()
	full, err := t.executor.GetFullDecision(ctx, execCtx, opts)
	if err != nil {
		logx.WithContext(ctx).Errorf("autotrader %s: cycle %d decide() failed: %v", t.id, cycle, err)
		t.appendRecord(t.buildRecord(cycle, execCtx, full, nil, false, err.Error()))
		return
	}

	closes, opens, others := partitionDecisions(full.Decisions)
	ordered := make([]executorpkg.Decision, 0, len(full.Decisions))
	ordered = append(ordered, closes...)
	ordered = append(ordered, opens...)
	ordered = append(ordered, others...)

	existingSides := make(map[string]bool, len(positions))
	for _, p := range positions {
		existingSides[positionKey(p.Symbol, p.Side)] = true
	}

	actions := make([]journal.ActionRecord, 0, len(ordered))
	for i, d := range ordered {
		rec := t.executeDecision(ctx, d, execCtx, existingSides)
		actions = append(actions, rec)
		outcome := "success"
		if !rec.Success {
			outcome = "failed"
		}
		t.observer.ObserveDecision(t.id, rec.Action, outcome)
		if rec.Success && i < len(ordered)-1 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
	}

	record := t.buildRecord(cycle, execCtx, full, actions, true, "")
	t.appendRecord(record)

	t.evaluatePerformanceGuard(ctx)
}

func (t *AutoTrader) rollDailyPnLIfDue(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dailyPnLRoll.IsZero() {
		t.dailyPnLRoll = now
		return
	}
	if now.Sub(t.dailyPnLRoll) > 24*time.Hour {
		t.dailyPnL = 0
		t.dailyPnLRoll = now
	}
}

// buildContext assembles the base Context (account, positions, candidates),
// maintains the first_seen_ms holding-time map, then enriches it via
// executor.BuildContext (market data + OI-growth).
func (t *AutoTrader) buildContext(ctx context.Context, cycle int, now time.Time) (*executorpkg.Context, []executorpkg.PositionInfo, error) {
	balance, err := t.venue.GetBalance(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get balance: %w", err)
	}
	venuePositions, err := t.venue.GetPositions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get positions: %w", err)
	}

	live := make(map[string]bool, len(venuePositions))
	positions := make([]executorpkg.PositionInfo, 0, len(venuePositions))

	t.mu.Lock()
	for _, p := range venuePositions {
		key := positionKey(p.Symbol, string(p.Side))
		live[key] = true
		if _, seen := t.firstSeen[key]; !seen {
			t.firstSeen[key] = now.UnixMilli()
		}
	}
	for key := range t.firstSeen {
		if !live[key] {
			delete(t.firstSeen, key)
		}
	}
	for _, p := range venuePositions {
		key := positionKey(p.Symbol, string(p.Side))
		positions = append(positions, executorpkg.PositionInfo{
			Symbol:           p.Symbol,
			Side:             string(p.Side),
			EntryPrice:       p.EntryPrice,
			MarkPrice:        p.MarkPrice,
			Quantity:         p.Quantity,
			Leverage:         p.Leverage,
			UnrealizedPnL:    p.UnrealizedPnL,
			UnrealizedPnLPct: p.UnrealizedPnLPct,
			LiquidationPrice: p.LiquidationPrice,
			MarginUsed:       p.MarginUsed,
			FirstSeenMs:      t.firstSeen[key],
		})
	}
	t.mu.Unlock()

	var marginUsed float64
	for _, p := range positions {
		marginUsed += p.MarginUsed
	}
	equity := balance.Equity()
	marginPct := 0.0
	if equity > 0 {
		marginPct = marginUsed / equity * 100
	}

	candidateLimit := t.cfg.ExecGuards.CandidateLimit
	merged, err := t.pool.Merged(ctx, candidateLimit)
	if err != nil {
		logx.WithContext(ctx).Errorf("autotrader %s: candidate pool fetch failed: %v", t.id, err)
		merged = nil
	}
	candidates := make([]executorpkg.CandidateCoin, 0, len(merged))
	for _, c := range merged {
		candidates = append(candidates, executorpkg.CandidateCoin{Symbol: c.Symbol, Origins: c.Origins})
	}

	var perf *executorpkg.PerformanceView
	if report, err := t.journal.AnalyzePerformance(0); err == nil && report != nil {
		perf = &executorpkg.PerformanceView{
			Sharpe:        report.Sharpe,
			TotalTrades:   report.TotalTrades,
			WinningTrades: report.WinningTrades,
			LosingTrades:  report.LosingTrades,
			ProfitFactor:  report.ProfitFactor,
			BestSymbol:    report.BestSymbol,
			WorstSymbol:   report.WorstSymbol,
		}
	}

	base := &executorpkg.Context{
		Now:            now,
		CycleNumber:    cycle,
		CandidateCoins: candidates,
		Positions:      positions,
		Performance:    perf,
		BTCETHLeverage: t.cfg.RiskParams.BTCETHLeverage,
		AltcoinLeverage: t.cfg.RiskParams.AltcoinLeverage,
		Account: executorpkg.AccountInfo{
			TotalEquity:      equity,
			WalletBalance:    balance.WalletBalance,
			AvailableBalance: balance.AvailableBalance,
			UnrealizedPnL:    balance.UnrealizedPnL,
			MarginUsed:       marginUsed,
			MarginUsedPct:    marginPct,
			PositionCount:    len(positions),
		},
	}

	enriched, err := executorpkg.BuildContext(ctx, base, t.market, oiGrowthAdapter{pool: t.pool})
	if err != nil {
		return nil, positions, fmt.Errorf("build context: %w", err)
	}
	return enriched, positions, nil
}

// oiGrowthAdapter adapts candidatepool.Pool's whole-feed OI-growth fetch to
// executor.OIGrowthFetcher's per-symbol-set shape, filtering to the symbols
// BuildContext asks for.
type oiGrowthAdapter struct {
	pool *candidatepool.Pool
}

func (a oiGrowthAdapter) FetchOIGrowth(ctx context.Context, symbols []string) (map[string]executorpkg.OpenInterestStat, error) {
	if a.pool == nil {
		return nil, nil
	}
	feed, err := a.pool.OIGrowthFeed(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}
	out := make(map[string]executorpkg.OpenInterestStat, len(feed))
	for _, c := range feed {
		if !wanted[c.Symbol] {
			continue
		}
		out[c.Symbol] = executorpkg.OpenInterestStat{
			Rank:        c.Rank,
			OIDeltaPct:  c.OIDeltaPct,
			OIDeltaUSD:  c.OIDeltaUSD,
			PriceDelta:  c.PriceDelta,
			NetLongUSD:  c.NetLongUSD,
			NetShortUSD: c.NetShortUSD,
		}
	}
	return out, nil
}

func (t *AutoTrader) promptOptions() executorpkg.TraderPromptOptions {
	t.mu.Lock()
	defer t.mu.Unlock()
	return executorpkg.TraderPromptOptions{
		TemplateName:   t.cfg.PromptTemplate,
		CustomAddendum: t.customText,
		OverrideBase:   t.overrideBase,
	}
}

// partitionDecisions stably splits decisions into closes, opens, and others
// (hold/wait), preserving within-group order, so closes always execute before
// opens in a cycle (§4.G).
func partitionDecisions(decisions []executorpkg.Decision) (closes, opens, others []executorpkg.Decision) {
	for _, d := range decisions {
		switch {
		case d.Action.IsClose():
			closes = append(closes, d)
		case d.Action.IsOpen():
			opens = append(opens, d)
		default:
			others = append(others, d)
		}
	}
	return closes, opens, others
}

// executeDecision drives the venue for one decision and returns its audit
// record. A failure here never aborts the cycle: siblings still execute.
func (t *AutoTrader) executeDecision(ctx context.Context, d executorpkg.Decision, execCtx *executorpkg.Context, existingSides map[string]bool) journal.ActionRecord {
	rec := journal.ActionRecord{
		Action:    string(d.Action),
		Symbol:    d.Symbol,
		Leverage:  d.Leverage,
		Timestamp: time.Now(),
	}

	switch {
	case d.Action == executorpkg.ActionHold, d.Action == executorpkg.ActionWait:
		rec.Success = true
		return rec

	case d.Action.IsOpen():
		side := "long"
		if d.Action == executorpkg.ActionOpenShort {
			side = "short"
		}
		if existingSides[positionKey(d.Symbol, side)] {
			rec.Error = "position already open on this side"
			return rec
		}
		if until, ok := t.recentlyClosedUntil(d.Symbol); ok && time.Now().Before(until) {
			rec.Error = fmt.Sprintf("cooldown active until %s", until.Format(time.RFC3339))
			return rec
		}
		snap := execCtx.MarketDataMap[d.Symbol]
		if snap == nil || snap.Price.Last <= 0 {
			rec.Error = "no market price available for symbol"
			return rec
		}
		qty := d.PositionSizeUSD / snap.Price.Last
		qty, err := t.venue.FormatQuantity(ctx, d.Symbol, qty)
		if err != nil {
			rec.Error = fmt.Sprintf("format quantity: %v", err)
			return rec
		}
		rec.Quantity = qty
		var fill venue.FillResult
		if d.Action == executorpkg.ActionOpenLong {
			fill, err = t.venue.OpenLong(ctx, d.Symbol, qty, int(d.Leverage))
		} else {
			fill, err = t.venue.OpenShort(ctx, d.Symbol, qty, int(d.Leverage))
		}
		if err != nil {
			rec.Error = err.Error()
			return rec
		}
		rec.Price = fill.FillPrice
		rec.Success = true
		existingSides[positionKey(d.Symbol, side)] = true
		t.recordPositionEvent(d, PositionEventOpen, fill)

		if d.StopLoss > 0 && d.TakeProfit > 0 {
			vSide := venue.SideLong
			if side == "short" {
				vSide = venue.SideShort
			}
			if err := t.venue.SetStopLoss(ctx, d.Symbol, vSide, qty, d.StopLoss); err != nil {
				logx.WithContext(ctx).Errorf("autotrader %s: set stop-loss failed symbol=%s: %v", t.id, d.Symbol, err)
			}
			if err := t.venue.SetTakeProfit(ctx, d.Symbol, vSide, qty, d.TakeProfit); err != nil {
				logx.WithContext(ctx).Errorf("autotrader %s: set take-profit failed symbol=%s: %v", t.id, d.Symbol, err)
			}
		}
		return rec

	case d.Action.IsClose():
		var fill venue.FillResult
		var err error
		if d.Action == executorpkg.ActionCloseLong {
			fill, err = t.venue.CloseLong(ctx, d.Symbol, 0)
		} else {
			fill, err = t.venue.CloseShort(ctx, d.Symbol, 0)
		}
		if err != nil {
			rec.Error = err.Error()
			return rec
		}
		rec.Quantity = fill.Quantity
		rec.Price = fill.FillPrice
		rec.Success = true
		t.markRecentlyClosed(d.Symbol)
		t.accrueDailyPnL(d.Symbol, fill.FillPrice, execCtx)
		t.recordPositionEvent(d, PositionEventClose, fill)
		return rec

	default:
		rec.Error = fmt.Sprintf("unknown action %q", d.Action)
		return rec
	}
}

func (t *AutoTrader) recentlyClosedUntil(symbol string) (time.Time, bool) {
	cooldown := t.cfg.ExecGuards.CooldownAfterClose
	if cooldown <= 0 {
		return time.Time{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	closedAt, ok := t.recentClose[symbol]
	if !ok {
		return time.Time{}, false
	}
	return closedAt.Add(cooldown), true
}

func (t *AutoTrader) markRecentlyClosed(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recentClose[symbol] = time.Now()
}

// accrueDailyPnL adds an approximate realized PnL for a just-closed position
// to the rolling daily counter, and arms the risk-control cooldown if the
// configured daily loss limit is breached (§4.G, §7 RiskControlPause).
func (t *AutoTrader) accrueDailyPnL(symbol string, fillPrice float64, execCtx *executorpkg.Context) {
	limit := t.cfg.ExecGuards.DailyLossLimitUSD
	if limit <= 0 {
		return
	}
	var realized float64
	for _, p := range execCtx.Positions {
		if p.Symbol != symbol {
			continue
		}
		if p.Side == "long" {
			realized += p.Quantity * (fillPrice - p.EntryPrice)
		} else {
			realized += p.Quantity * (p.EntryPrice - fillPrice)
		}
	}

	t.mu.Lock()
	t.dailyPnL += realized
	breach := t.dailyPnL <= -limit
	if breach {
		t.stopUntil = time.Now().Add(t.cfg.ExecGuards.StopTradingHours)
	}
	t.mu.Unlock()

	if breach {
		logx.Errorf("autotrader %s: daily loss limit breached (%.2f <= -%.2f), pausing until stop_trading_hours elapse", t.id, t.dailyPnL, limit)
	}
}

// evaluatePerformanceGuard arms the same risk-control cooldown when the
// trailing Sharpe signal drops below the configured threshold.
func (t *AutoTrader) evaluatePerformanceGuard(ctx context.Context) {
	threshold := t.cfg.ExecGuards.SharpePauseThreshold
	if threshold == 0 {
		return
	}
	report, err := t.journal.AnalyzePerformance(0)
	if err != nil || report == nil || report.TotalTrades == 0 {
		return
	}
	if report.Sharpe >= threshold {
		return
	}
	pause := t.cfg.ExecGuards.PauseDurationOnBreach
	if pause <= 0 {
		pause = t.cfg.ExecGuards.StopTradingHours
	}
	t.mu.Lock()
	t.stopUntil = time.Now().Add(pause)
	t.mu.Unlock()
	logx.WithContext(ctx).Errorf("autotrader %s: sharpe %.2f below threshold %.2f, pausing for %s", t.id, report.Sharpe, threshold, pause)
}

func (t *AutoTrader) buildRecord(cycle int, execCtx *executorpkg.Context, full *executorpkg.FullDecision, actions []journal.ActionRecord, success bool, errMsg string) *journal.DecisionRecord {
	rec := &journal.DecisionRecord{
		CycleNumber:  cycle,
		Decisions:    actions,
		Success:      success,
		ErrorMessage: errMsg,
	}
	if execCtx != nil {
		rec.AccountState = journal.AccountState{
			TotalBalance:          execCtx.Account.WalletBalance,
			AvailableBalance:      execCtx.Account.AvailableBalance,
			TotalUnrealizedProfit: execCtx.Account.UnrealizedPnL,
			PositionCount:         execCtx.Account.PositionCount,
			MarginUsedPct:         execCtx.Account.MarginUsedPct,
		}
		positions := make([]map[string]any, 0, len(execCtx.Positions))
		for _, p := range execCtx.Positions {
			positions = append(positions, map[string]any{
				"symbol":   p.Symbol,
				"side":     p.Side,
				"quantity": p.Quantity,
				"entry":    p.EntryPrice,
				"mark":     p.MarkPrice,
			})
		}
		rec.Positions = positions
		candidates := make([]string, 0, len(execCtx.CandidateCoins))
		for _, c := range execCtx.CandidateCoins {
			candidates = append(candidates, c.Symbol)
		}
		rec.CandidateCoins = candidates
	}
	if full != nil {
		rec.InputPrompt = full.UserPrompt
		rec.CoTTrace = full.CoTTrace
		rec.DecisionJSON = decisionsToJSON(full.Decisions)
	}
	return rec
}

func decisionsToJSON(decisions []executorpkg.Decision) string {
	if len(decisions) == 0 {
		return "[]"
	}
	parts := make([]string, 0, len(decisions))
	for _, d := range decisions {
		parts = append(parts, fmt.Sprintf(`{"symbol":%q,"action":%q,"leverage":%v,"position_size_usd":%v}`,
			d.Symbol, d.Action, d.Leverage, d.PositionSizeUSD))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (t *AutoTrader) appendRecord(rec *journal.DecisionRecord) {
	if _, err := t.journal.Append(rec); err != nil {
		logx.Errorf("autotrader %s: decision log append failed cycle=%d: %v", t.id, rec.CycleNumber, err)
	}
	logPersistenceError(
		t.persistence.RecordDecisionCycle(context.Background(), DecisionCycleRecord{TraderID: t.id, Cycle: rec}),
		"record decision cycle",
		map[string]any{"trader_id": t.id, "cycle": rec.CycleNumber},
	)
}

func (t *AutoTrader) recordPositionEvent(d executorpkg.Decision, event PositionEventType, fill venue.FillResult) {
	logPersistenceError(
		t.persistence.RecordPositionEvent(context.Background(), PositionEvent{
			TraderID:   t.id,
			Trader:     t,
			Decision:   d,
			Event:      event,
			Fill:       &fill,
			OccurredAt: time.Now(),
			FillPrice:  fill.FillPrice,
			FillSize:   fill.Quantity,
		}),
		"record position event",
		map[string]any{"trader_id": t.id, "symbol": d.Symbol, "event": event},
	)
}

// CloseAllPositions is the manual operator hook (§4.G): it iterates every
// open position and closes each, continuing past individual failures.
func (t *AutoTrader) CloseAllPositions(ctx context.Context) []error {
	positions, err := t.venue.GetPositions(ctx)
	if err != nil {
		return []error{fmt.Errorf("get positions: %w", err)}
	}
	var errs []error
	for _, p := range positions {
		if err := t.ClosePosition(ctx, p.Symbol, string(p.Side)); err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", p.Symbol, p.Side, err))
		}
	}
	return errs
}

// ClosePosition is the manual operator hook for closing one symbol/side (§4.G).
func (t *AutoTrader) ClosePosition(ctx context.Context, symbol, side string) error {
	s, err := venue.ParseSide(strings.ToLower(side))
	if err != nil {
		return err
	}
	if s == venue.SideLong {
		_, err = t.venue.CloseLong(ctx, symbol, 0)
	} else {
		_, err = t.venue.CloseShort(ctx, symbol, 0)
	}
	if err == nil {
		t.markRecentlyClosed(symbol)
	}
	return err
}

// SetCustomPrompt is the manual operator hook for the custom_prompt /
// override_base_prompt pair (§4.G, §6).
func (t *AutoTrader) SetCustomPrompt(text string, overrideBase bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.customText = text
	t.overrideBase = overrideBase
}
