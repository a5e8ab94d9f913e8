package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nof0-api/pkg/candidatepool"
	executorpkg "nof0-api/pkg/executor"
	"nof0-api/pkg/journal"
	market "nof0-api/pkg/market"
	"nof0-api/pkg/venue"
)

// fakeVenue is a minimal in-memory venue.Venue used to drive AutoTrader
// cycles without any network dependency. It is single-trader, so it needs no
// internal locking beyond what the tests exercise serially.
type fakeVenue struct {
	mu        sync.Mutex
	balance   venue.Balance
	positions []venue.Position
	opens     []string // symbol|side of every OpenLong/OpenShort call, in order
	closes    []string // symbol|side of every CloseLong/CloseShort call, in order
	price     float64
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		balance: venue.Balance{WalletBalance: 10_000, AvailableBalance: 10_000},
		price:   100,
	}
}

func (f *fakeVenue) GetBalance(ctx context.Context) (venue.Balance, error) { return f.balance, nil }
func (f *fakeVenue) GetPositions(ctx context.Context) ([]venue.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]venue.Position, len(f.positions))
	copy(out, f.positions)
	return out, nil
}
func (f *fakeVenue) SetLeverage(ctx context.Context, symbol string, leverage int) error { return nil }
func (f *fakeVenue) SetMarginMode(ctx context.Context, symbol string, cross bool) error { return nil }
func (f *fakeVenue) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

func (f *fakeVenue) OpenLong(ctx context.Context, symbol string, quantity float64, leverage int) (venue.FillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, symbol+"|long")
	f.positions = append(f.positions, venue.Position{Symbol: symbol, Side: venue.SideLong, Quantity: quantity, EntryPrice: f.price, MarkPrice: f.price})
	return venue.FillResult{OrderID: "o1", FillPrice: f.price, Quantity: quantity}, nil
}
func (f *fakeVenue) OpenShort(ctx context.Context, symbol string, quantity float64, leverage int) (venue.FillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, symbol+"|short")
	f.positions = append(f.positions, venue.Position{Symbol: symbol, Side: venue.SideShort, Quantity: quantity, EntryPrice: f.price, MarkPrice: f.price})
	return venue.FillResult{OrderID: "o2", FillPrice: f.price, Quantity: quantity}, nil
}

func (f *fakeVenue) closeSide(symbol string, side venue.Side) (venue.FillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.positions {
		if p.Symbol == symbol && p.Side == side {
			f.positions = append(f.positions[:i], f.positions[i+1:]...)
			f.closes = append(f.closes, symbol+"|"+string(side))
			return venue.FillResult{OrderID: "c1", FillPrice: f.price, Quantity: p.Quantity}, nil
		}
	}
	return venue.FillResult{}, venue.ErrNoPosition
}

func (f *fakeVenue) CloseLong(ctx context.Context, symbol string, quantity float64) (venue.FillResult, error) {
	return f.closeSide(symbol, venue.SideLong)
}
func (f *fakeVenue) CloseShort(ctx context.Context, symbol string, quantity float64) (venue.FillResult, error) {
	return f.closeSide(symbol, venue.SideShort)
}
func (f *fakeVenue) SetStopLoss(ctx context.Context, symbol string, side venue.Side, quantity, trigger float64) error {
	return nil
}
func (f *fakeVenue) SetTakeProfit(ctx context.Context, symbol string, side venue.Side, quantity, trigger float64) error {
	return nil
}
func (f *fakeVenue) CancelAllOrders(ctx context.Context, symbol string) error { return nil }
func (f *fakeVenue) FormatQuantity(ctx context.Context, symbol string, qty float64) (float64, error) {
	return qty, nil
}

// fakeMarketProvider returns a fixed, always-valid snapshot for any symbol.
type fakeMarketProvider struct{ price float64 }

func (f fakeMarketProvider) Snapshot(ctx context.Context, symbol string) (*market.Snapshot, error) {
	return &market.Snapshot{Symbol: symbol, Price: market.PriceInfo{Last: f.price}}, nil
}
func (f fakeMarketProvider) ListAssets(ctx context.Context) ([]market.Asset, error) { return nil, nil }

// fakeExecutor returns a fixed, canned FullDecision regardless of input,
// letting tests drive AutoTrader's execution/ordering logic directly without
// involving prompt construction or an LLM.
type fakeExecutor struct {
	decisions []executorpkg.Decision
}

func (f *fakeExecutor) GetFullDecision(ctx context.Context, input *executorpkg.Context, opts executorpkg.TraderPromptOptions) (*executorpkg.FullDecision, error) {
	return &executorpkg.FullDecision{Decisions: f.decisions, Timestamp: time.Now()}, nil
}
func (f *fakeExecutor) UpdatePerformance(view *executorpkg.PerformanceView) {}
func (f *fakeExecutor) GetConfig() *executorpkg.Config                     { return &executorpkg.Config{} }

func newTestPool(t *testing.T) *candidatepool.Pool {
	t.Helper()
	pool, err := candidatepool.New(candidatepool.Config{CacheDir: t.TempDir()})
	require.NoError(t, err)
	return pool
}

func newTestTrader(t *testing.T, v venue.Venue, exec executorpkg.Executor) *AutoTrader {
	t.Helper()
	log, err := journal.NewLog(t.TempDir())
	require.NoError(t, err)
	cfg := TraderConfig{
		ID:               "trader-1",
		Name:             "test",
		DecisionInterval: time.Hour,
		RiskParams:       RiskParameters{BTCETHLeverage: 20, AltcoinLeverage: 10},
	}
	return NewAutoTrader("trader-1", cfg, v, fakeMarketProvider{price: 100}, exec, newTestPool(t), log)
}

// TestAutoTrader_SameSideReopenRefused covers scenario 4 (§8): given an
// existing long on ETHUSDT, an open_long ETHUSDT decision is refused as a
// second line of defense, but a close_long ETHUSDT in the same cycle still
// executes (ordering places closes before opens).
func TestAutoTrader_SameSideReopenRefused(t *testing.T) {
	v := newFakeVenue()
	v.positions = append(v.positions, venue.Position{Symbol: "ETHUSDT", Side: venue.SideLong, Quantity: 1, EntryPrice: 100, MarkPrice: 100})

	exec := &fakeExecutor{decisions: []executorpkg.Decision{
		{Symbol: "ETHUSDT", Action: executorpkg.ActionOpenLong, Leverage: 5, PositionSizeUSD: 500, StopLoss: 90, TakeProfit: 120},
		{Symbol: "ETHUSDT", Action: executorpkg.ActionCloseLong},
	}}
	trader := newTestTrader(t, v, exec)
	require.NoError(t, trader.Initialize(context.Background()))

	trader.runCycle(context.Background(), 1)

	records, err := trader.journal.Latest(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	actions := records[0].Decisions
	require.Len(t, actions, 2)

	// Ordering: close_long is dispatched before open_long despite arriving second.
	require.Equal(t, "close_long", actions[0].Action)
	require.True(t, actions[0].Success, "close_long should execute successfully")

	var openRec *journal.ActionRecord
	for i := range actions {
		if actions[i].Action == "open_long" {
			openRec = &actions[i]
		}
	}
	require.NotNil(t, openRec)
	require.False(t, openRec.Success, "reopening the same side the validator already approved must still be refused by the venue-state guard")
	require.Contains(t, openRec.Error, "already open")

	require.Equal(t, []string{"ETHUSDT|long"}, v.closes)
	require.Empty(t, v.opens, "the refused open must never reach the venue")
}

// TestAutoTrader_CloseBeforeOpenOrdering covers the §5/§8 ordering guarantee
// directly: a mixed batch with opens listed before closes in engine order
// still dispatches every close before every open.
func TestAutoTrader_CloseBeforeOpenOrdering(t *testing.T) {
	v := newFakeVenue()
	v.positions = append(v.positions, venue.Position{Symbol: "BTCUSDT", Side: venue.SideLong, Quantity: 1, EntryPrice: 100, MarkPrice: 100})

	exec := &fakeExecutor{decisions: []executorpkg.Decision{
		{Symbol: "SOLUSDT", Action: executorpkg.ActionOpenLong, Leverage: 5, PositionSizeUSD: 500, StopLoss: 90, TakeProfit: 120},
		{Symbol: "BTCUSDT", Action: executorpkg.ActionCloseLong},
	}}
	trader := newTestTrader(t, v, exec)
	require.NoError(t, trader.Initialize(context.Background()))

	trader.runCycle(context.Background(), 1)

	require.Equal(t, []string{"BTCUSDT|long"}, v.closes)
	require.Equal(t, []string{"SOLUSDT|long"}, v.opens)

	records, err := trader.journal.Latest(1)
	require.NoError(t, err)
	require.Equal(t, "close_long", records[0].Decisions[0].Action)
	require.Equal(t, "open_long", records[0].Decisions[1].Action)
}

// TestAutoTrader_CooldownSkipsCycleWithoutVenueCalls covers scenario 7 (§8):
// with stop_until in the future, the cycle is skipped entirely, no venue
// calls are made, and a failed DecisionRecord is still appended.
func TestAutoTrader_CooldownSkipsCycleWithoutVenueCalls(t *testing.T) {
	v := newFakeVenue()
	exec := &fakeExecutor{decisions: []executorpkg.Decision{
		{Symbol: "BTCUSDT", Action: executorpkg.ActionOpenLong, Leverage: 5, PositionSizeUSD: 500, StopLoss: 90, TakeProfit: 120},
	}}
	trader := newTestTrader(t, v, exec)
	require.NoError(t, trader.Initialize(context.Background()))

	trader.mu.Lock()
	trader.stopUntil = time.Now().Add(10 * time.Minute)
	trader.mu.Unlock()

	trader.runCycle(context.Background(), 1)

	require.Empty(t, v.opens, "cooldown must suppress every venue call")
	require.Empty(t, v.closes)

	records, err := trader.journal.Latest(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.False(t, records[0].Success)
	require.Equal(t, "risk_control_pause", records[0].ErrorMessage)
}

// TestAutoTrader_CycleNumberStrictlyMonotonic covers the universal invariant
// from §8: successive cycles on the same trader never repeat or decrease
// cycle_number, even across a skipped (cooldown) cycle.
func TestAutoTrader_CycleNumberStrictlyMonotonic(t *testing.T) {
	v := newFakeVenue()
	exec := &fakeExecutor{}
	trader := newTestTrader(t, v, exec)
	require.NoError(t, trader.Initialize(context.Background()))

	trader.runCycle(context.Background(), 1)
	trader.runCycle(context.Background(), 2)
	trader.runCycle(context.Background(), 3)

	records, err := trader.journal.Latest(0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	last := -1
	for _, rec := range records {
		require.Greater(t, rec.CycleNumber, last)
		last = rec.CycleNumber
	}
}

// TestAutoTrader_FirstSeenMsTrackedAndClearedOnExit covers the holding-time
// invariant from §8: first_seen_ms is present and <= now for a live position,
// and is removed once the position disappears from the venue snapshot.
func TestAutoTrader_FirstSeenMsTrackedAndClearedOnExit(t *testing.T) {
	v := newFakeVenue()
	v.positions = append(v.positions, venue.Position{Symbol: "BTCUSDT", Side: venue.SideLong, Quantity: 1, EntryPrice: 100, MarkPrice: 100})
	trader := newTestTrader(t, v, &fakeExecutor{})
	require.NoError(t, trader.Initialize(context.Background()))

	now := time.Now()
	_, positions, err := trader.buildContext(context.Background(), 1, now)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.LessOrEqual(t, positions[0].FirstSeenMs, now.UnixMilli())
	require.Greater(t, positions[0].FirstSeenMs, int64(0))

	key := positionKey("BTCUSDT", "long")
	trader.mu.Lock()
	_, tracked := trader.firstSeen[key]
	trader.mu.Unlock()
	require.True(t, tracked)

	// Position disappears from the venue snapshot: the entry must be removed.
	v.mu.Lock()
	v.positions = nil
	v.mu.Unlock()

	_, positions2, err := trader.buildContext(context.Background(), 2, now.Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, positions2)

	trader.mu.Lock()
	_, stillTracked := trader.firstSeen[key]
	trader.mu.Unlock()
	require.False(t, stillTracked, "first_seen_ms entry must be removed once the position is no longer present")
}

// TestAutoTrader_InitializeFailsFatalOnUnreachableVenue covers the §4.G
// NEW -> FAILED transition on a fatal startup error.
func TestAutoTrader_InitializeFailsFatalOnUnreachableVenue(t *testing.T) {
	v := &erroringVenue{fakeVenue: newFakeVenue()}
	trader := newTestTrader(t, v, &fakeExecutor{})

	err := trader.Initialize(context.Background())
	require.Error(t, err)
	require.Equal(t, StateFailed, trader.State())
}

type erroringVenue struct{ *fakeVenue }

var errVenueUnreachable = errors.New("venue: connection refused")

func (e *erroringVenue) GetBalance(ctx context.Context) (venue.Balance, error) {
	return venue.Balance{}, errVenueUnreachable
}

// TestAutoTrader_RunFiresFirstCycleImmediately covers §4.G's RUNNING entry
// behavior: the first cycle fires immediately rather than waiting a full
// scan_interval_minutes tick.
func TestAutoTrader_RunFiresFirstCycleImmediately(t *testing.T) {
	v := newFakeVenue()
	trader := newTestTrader(t, v, &fakeExecutor{})
	trader.cfg.DecisionInterval = time.Hour // next scheduled tick is far away
	require.NoError(t, trader.Initialize(context.Background()))
	require.NoError(t, trader.Run(context.Background()))

	require.Eventually(t, func() bool {
		records, err := trader.journal.Latest(0)
		return err == nil && len(records) == 1
	}, time.Second, 5*time.Millisecond, "the first cycle must run without waiting a full tick")

	require.NoError(t, trader.Stop(context.Background()))
}
