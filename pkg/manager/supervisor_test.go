package manager

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	executorpkg "nof0-api/pkg/executor"
	market "nof0-api/pkg/market"
	"nof0-api/pkg/venue"
)

type fakeTraderConfigRepo struct {
	rows []TraderRow
}

func (r *fakeTraderConfigRepo) TradersForUser(ctx context.Context, userID string) ([]TraderRow, error) {
	return r.rows, nil
}

func newFiveTraderRows() []TraderRow {
	rows := make([]TraderRow, 5)
	for i := range rows {
		rows[i] = TraderRow{
			TraderID:            fmt.Sprintf("trader-%d", i),
			UserID:              "user-1",
			ModelEnabled:        true,
			ExchangeEnabled:     true,
			BTCETHLeverage:      20,
			AltcoinLeverage:     10,
			ScanIntervalMinutes: 60, // "far in the future" next tick, per scenario 8
		}
	}
	return rows
}

func newTestSupervisor(t *testing.T, repo TraderConfigRepo) *Supervisor {
	t.Helper()
	pool := newTestPool(t)
	journalRoot := t.TempDir()
	buildVenue := func(ctx context.Context, row TraderRow) (venue.Venue, error) { return newFakeVenue(), nil }
	buildMarket := func(ctx context.Context, row TraderRow) (market.Provider, error) {
		return fakeMarketProvider{price: 100}, nil
	}
	buildExecutor := func(ctx context.Context, row TraderRow) (executorpkg.Executor, error) {
		return &fakeExecutor{}, nil
	}
	return NewSupervisor(repo, pool, journalRoot, ExecGuards{}, buildVenue, buildMarket, buildExecutor)
}

// TestSupervisor_LoadForUserSkipsDisabledRows covers §4.H's enablement filter:
// only rows referencing an enabled model and enabled exchange credentials are
// registered.
func TestSupervisor_LoadForUserSkipsDisabledRows(t *testing.T) {
	repo := &fakeTraderConfigRepo{rows: []TraderRow{
		{TraderID: "a", ModelEnabled: true, ExchangeEnabled: true, ScanIntervalMinutes: 60},
		{TraderID: "b", ModelEnabled: false, ExchangeEnabled: true, ScanIntervalMinutes: 60},
		{TraderID: "c", ModelEnabled: true, ExchangeEnabled: false, ScanIntervalMinutes: 60},
	}}
	sup := newTestSupervisor(t, repo)
	require.NoError(t, sup.LoadForUser(context.Background(), "user-1"))

	require.Len(t, sup.List(), 1)
	_, ok := sup.Get("a")
	require.True(t, ok)
	_, ok = sup.Get("b")
	require.False(t, ok)
	_, ok = sup.Get("c")
	require.False(t, ok)
}

// TestSupervisor_LoadForUserIsIdempotentOnTraderID covers §4.H: calling
// LoadForUser twice for the same user never reconstructs an already
// registered trader_id.
func TestSupervisor_LoadForUserIsIdempotentOnTraderID(t *testing.T) {
	repo := &fakeTraderConfigRepo{rows: newFiveTraderRows()[:1]}
	sup := newTestSupervisor(t, repo)
	require.NoError(t, sup.LoadForUser(context.Background(), "user-1"))
	first, _ := sup.Get("trader-0")

	require.NoError(t, sup.LoadForUser(context.Background(), "user-1"))
	second, _ := sup.Get("trader-0")

	require.Same(t, first, second, "re-loading must not reconstruct an already-registered trader")
}

// TestSupervisor_StopAllUnblocksAllTradersWithinDeadline covers scenario 8
// (§8): starting several traders whose next tick is far in the future, then
// calling StopAll, must transition every trader to STOPPED well before the
// 10s stop deadline, because cancellation unblocks the cycle's inter-tick
// wait rather than waiting it out.
func TestSupervisor_StopAllUnblocksAllTradersWithinDeadline(t *testing.T) {
	repo := &fakeTraderConfigRepo{rows: newFiveTraderRows()}
	sup := newTestSupervisor(t, repo)
	require.NoError(t, sup.LoadForUser(context.Background(), "user-1"))
	require.Len(t, sup.List(), 5)

	require.NoError(t, sup.StartAll(context.Background()))
	for _, tr := range sup.List() {
		require.Equal(t, StateRunning, tr.State())
	}

	start := time.Now()
	err := sup.StopAll(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Less(t, elapsed, stopDeadline, "StopAll must unblock every trader well inside the stop deadline")
	for _, tr := range sup.List() {
		require.Equal(t, StateStopped, tr.State())
	}
}

// TestSupervisor_StatusAllReflectsEveryRegisteredTrader covers the
// status/status_all read operations (§4.H).
func TestSupervisor_StatusAllReflectsEveryRegisteredTrader(t *testing.T) {
	repo := &fakeTraderConfigRepo{rows: newFiveTraderRows()}
	sup := newTestSupervisor(t, repo)
	require.NoError(t, sup.LoadForUser(context.Background(), "user-1"))

	statuses := sup.StatusAll()
	require.Len(t, statuses, 5)
	for _, s := range statuses {
		require.Equal(t, StateIdle, s)
	}
}
