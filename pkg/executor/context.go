package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	market "nof0-api/pkg/market"
)

// liquidityFloorUSD is the §4.F liquidity filter: a non-position candidate with
// open interest below this threshold is dropped before prompting.
const liquidityFloorUSD = 15_000_000.0

// maxConcurrentSnapshots bounds the fan-out in fetchSnapshots: a cycle's
// symbol set is small (candidates + open positions) but a venue-imposed rate
// limit still applies per connection, so fetches run in parallel only up to
// this width rather than one goroutine per symbol.
const maxConcurrentSnapshots = 8

// openInterestUSD derives §3's open_interest_usd = latest (raw contract
// units) × current_price. A nil OpenInterest or non-positive price yields 0.
// The liquidity filter drops a non-position candidate only when its snapshot
// carries open-interest data below the floor; candidates without a snapshot or
// without open-interest data are kept.
func openInterestUSD(snap *market.Snapshot) float64 {
	if snap == nil || snap.OpenInterest == nil || snap.Price.Last <= 0 {
		return 0
	}
	return snap.OpenInterest.Latest * snap.Price.Last
}

// OIGrowthFetcher supplies the optional OI-growth enrichment for BuildContext.
type OIGrowthFetcher interface {
	FetchOIGrowth(ctx context.Context, symbols []string) (map[string]OpenInterestStat, error)
}

// fetchSnapshots fetches one Snapshot per symbol, bounded to
// maxConcurrentSnapshots concurrent calls via an errgroup-backed semaphore. A
// single symbol's failure is logged and that symbol is simply absent from the
// returned map; it never aborts the other in-flight fetches (§5).
func fetchSnapshots(ctx context.Context, mktProvider market.Provider, symbols map[string]struct{}) map[string]*market.Snapshot {
	out := make(map[string]*market.Snapshot, len(symbols))
	if mktProvider == nil || len(symbols) == 0 {
		return out
	}

	var mu sync.Mutex
	sem := make(chan struct{}, maxConcurrentSnapshots)
	g, gctx := errgroup.WithContext(ctx)
	for sym := range symbols {
		sym := sym
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			snap, err := mktProvider.Snapshot(ctx, sym)
			if err != nil {
				logx.WithContext(ctx).Errorf("executor: market snapshot failed symbol=%s err=%v", sym, err)
				return nil
			}
			mu.Lock()
			out[sym] = snap
			mu.Unlock()
			return nil
		})
	}
	// fetchSnapshots' goroutines never return a non-nil error (failures are
	// logged and swallowed per-symbol), so g.Wait() only ever blocks until
	// every fetch has settled.
	_ = g.Wait()
	return out
}

// BuildContext implements the §4.F context-assembly algorithm:
//  1. symbols to fetch = position symbols ∪ first max_candidates candidates
//     (max_candidates is simply the already-filtered candidate list's size).
//  2. fetch each snapshot, bounded and concurrent; drop non-position
//     candidates below the liquidity floor, always keeping position symbols
//     regardless.
//  3. fetch OI-growth stats if a pool is present; failures there are non-fatal.
func BuildContext(ctx context.Context, base *Context, mktProvider market.Provider, oi OIGrowthFetcher) (*Context, error) {
	if base == nil {
		return nil, fmt.Errorf("executor: base context is required")
	}
	out := *base

	positionSymbols := make(map[string]struct{}, len(base.Positions))
	for _, p := range base.Positions {
		positionSymbols[p.Symbol] = struct{}{}
	}

	symbols := make(map[string]struct{}, len(base.CandidateCoins)+len(base.Positions))
	for sym := range positionSymbols {
		symbols[sym] = struct{}{}
	}
	for _, c := range base.CandidateCoins {
		symbols[c.Symbol] = struct{}{}
	}

	out.MarketDataMap = fetchSnapshots(ctx, mktProvider, symbols)

	filtered := make([]CandidateCoin, 0, len(base.CandidateCoins))
	for _, c := range base.CandidateCoins {
		if _, isPosition := positionSymbols[c.Symbol]; isPosition {
			filtered = append(filtered, c)
			continue
		}
		snap := out.MarketDataMap[c.Symbol]
		if oiUSD := openInterestUSD(snap); snap != nil && snap.OpenInterest != nil && oiUSD < liquidityFloorUSD {
			logx.WithContext(ctx).Infof("executor: dropping illiquid candidate symbol=%s oi_usd=%.0f", c.Symbol, oiUSD)
			continue
		}
		filtered = append(filtered, c)
	}
	out.CandidateCoins = filtered

	if oi != nil {
		fetchSymbols := make([]string, 0, len(symbols))
		for sym := range symbols {
			fetchSymbols = append(fetchSymbols, sym)
		}
		growth, err := oi.FetchOIGrowth(ctx, fetchSymbols)
		if err != nil {
			logx.WithContext(ctx).Errorf("executor: oi-growth fetch failed err=%v", err)
		} else {
			out.OIGrowthMap = growth
		}
	}

	return &out, nil
}
