package venue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"nof0-api/pkg/exchange"
	"nof0-api/pkg/exchange/hyperliquid"
)

// leverageCooldown is the pause callers must respect after an actual leverage
// change before sending orders on that symbol (§4.A).
const leverageCooldown = 5 * time.Second

// hyperliquidClient is the subset of *hyperliquid.Provider the adapter relies on.
type hyperliquidClient interface {
	PlaceOrder(ctx context.Context, order exchange.Order) (*exchange.OrderResponse, error)
	CancelOrder(ctx context.Context, asset int, oid int64) error
	GetOpenOrders(ctx context.Context) ([]exchange.OrderStatus, error)
	GetPositions(ctx context.Context) ([]exchange.Position, error)
	ClosePosition(ctx context.Context, coin string) error
	UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) error
	GetAccountState(ctx context.Context) (*exchange.AccountState, error)
	GetAccountValue(ctx context.Context) (float64, error)
	GetAssetIndex(ctx context.Context, coin string) (int, error)
	IOCMarket(ctx context.Context, coin string, isBuy bool, qty float64, slippage float64, reduceOnly bool) (*exchange.OrderResponse, error)
	SetStopLoss(ctx context.Context, coin string, positionSide string, qty float64, stopPrice float64) error
	SetTakeProfit(ctx context.Context, coin string, positionSide string, qty float64, takeProfit float64) error
	CancelAllBySymbol(ctx context.Context, coin string) error
	FormatSize(ctx context.Context, coin string, qty float64) (string, error)
	FormatPrice(ctx context.Context, coin string, price float64) (string, error)
}

var _ hyperliquidClient = (*hyperliquid.Provider)(nil)

// HyperliquidAdapter adapts the wire-level Hyperliquid provider to the abstract
// Venue capability.
type HyperliquidAdapter struct {
	inner hyperliquidClient

	balanceCache  *ttlCache
	positionCache *ttlCache

	mu          sync.Mutex
	leverage    map[string]int
	leverageSet map[string]time.Time
	slippage    float64
}

// NewHyperliquidAdapter wraps an already-constructed Hyperliquid provider.
func NewHyperliquidAdapter(client *hyperliquid.Provider) *HyperliquidAdapter {
	return &HyperliquidAdapter{
		inner:         client,
		balanceCache:  newTTLCache(balancePositionTTL),
		positionCache: newTTLCache(balancePositionTTL),
		leverage:      make(map[string]int),
		leverageSet:   make(map[string]time.Time),
		slippage:      0.002,
	}
}

func (a *HyperliquidAdapter) GetBalance(ctx context.Context) (Balance, error) {
	now := time.Now()
	var cached Balance
	if a.balanceCache.get(now, &cached) {
		return cached, nil
	}
	state, err := a.inner.GetAccountState(ctx)
	if err != nil {
		return Balance{}, fmt.Errorf("venue(hyperliquid): get balance: %w", err)
	}
	equity := parseFloatOr(state.MarginSummary.AccountValue, 0)
	margin := parseFloatOr(state.MarginSummary.TotalMarginUsed, 0)
	var unrealized float64
	for _, p := range state.AssetPositions {
		unrealized += parseFloatOr(p.UnrealizedPnl, 0)
	}
	bal := Balance{
		WalletBalance:    equity - unrealized,
		UnrealizedPnL:    unrealized,
		AvailableBalance: equity - margin,
	}
	a.balanceCache.set(now, bal)
	return bal, nil
}

func (a *HyperliquidAdapter) GetPositions(ctx context.Context) ([]Position, error) {
	now := time.Now()
	var cached []Position
	if a.positionCache.get(now, &cached) {
		return cached, nil
	}
	raw, err := a.inner.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("venue(hyperliquid): get positions: %w", err)
	}
	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		qty := parseFloatOr(p.Szi, 0)
		if absFloat(qty) < dustThreshold {
			continue
		}
		side := SideLong
		if qty < 0 {
			side = SideShort
		}
		entry := parseFloatOr(derefOr(p.EntryPx, "0"), 0)
		unreal := parseFloatOr(p.UnrealizedPnl, 0)
		notional := parseFloatOr(p.PositionValue, 0)
		margin := notional
		if p.Leverage.Value > 0 {
			margin = notional / float64(p.Leverage.Value)
		}
		liq := parseFloatOr(p.LiquidationPx, 0)
		out = append(out, Position{
			Symbol:           strings.ToUpper(p.Coin),
			Side:             side,
			Quantity:         absFloat(qty),
			EntryPrice:       entry,
			MarkPrice:        entry, // hyperliquid position payload carries no separate mark field
			Leverage:         float64(p.Leverage.Value),
			UnrealizedPnL:    unreal,
			UnrealizedPnLPct: parseFloatOr(p.ReturnOnEquity, 0) * 100,
			LiquidationPrice: liq,
			MarginUsed:       margin,
		})
	}
	a.positionCache.set(now, out)
	return out, nil
}

func (a *HyperliquidAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	a.mu.Lock()
	if cur, ok := a.leverage[symbol]; ok && cur == leverage {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	idx, err := a.inner.GetAssetIndex(ctx, symbol)
	if err != nil {
		return fmt.Errorf("venue(hyperliquid): resolve asset %s: %w", symbol, err)
	}
	if err := a.inner.UpdateLeverage(ctx, idx, true, leverage); err != nil {
		return fmt.Errorf("venue(hyperliquid): set leverage %s=%d: %w", symbol, leverage, err)
	}
	a.mu.Lock()
	a.leverage[symbol] = leverage
	a.leverageSet[symbol] = time.Now()
	a.mu.Unlock()
	return nil
}

// SetMarginMode is a best-effort hint on Hyperliquid: margin mode is set per-asset
// as part of UpdateLeverage's isCross flag, so a standalone call simply re-applies
// the already-known leverage with the requested mode; "already set" is non-fatal.
func (a *HyperliquidAdapter) SetMarginMode(ctx context.Context, symbol string, cross bool) error {
	idx, err := a.inner.GetAssetIndex(ctx, symbol)
	if err != nil {
		return fmt.Errorf("venue(hyperliquid): resolve asset %s: %w", symbol, err)
	}
	a.mu.Lock()
	lev := a.leverage[symbol]
	a.mu.Unlock()
	if lev <= 0 {
		lev = 1
	}
	if err := a.inner.UpdateLeverage(ctx, idx, cross, lev); err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "already") || strings.Contains(msg, "no change") || strings.Contains(msg, "position exists") {
			return nil
		}
		return fmt.Errorf("venue(hyperliquid): set margin mode %s: %w", symbol, err)
	}
	return nil
}

func (a *HyperliquidAdapter) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
	positions, err := a.inner.GetPositions(ctx)
	if err == nil {
		for _, p := range positions {
			if strings.EqualFold(p.Coin, symbol) {
				if v := parseFloatOr(derefOr(p.EntryPx, ""), 0); v > 0 {
					return v, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("venue(hyperliquid): no market price source for %s", symbol)
}

func (a *HyperliquidAdapter) OpenLong(ctx context.Context, symbol string, quantity float64, leverage int) (FillResult, error) {
	return a.open(ctx, symbol, quantity, leverage, true)
}

func (a *HyperliquidAdapter) OpenShort(ctx context.Context, symbol string, quantity float64, leverage int) (FillResult, error) {
	return a.open(ctx, symbol, quantity, leverage, false)
}

func (a *HyperliquidAdapter) open(ctx context.Context, symbol string, quantity float64, leverage int, isBuy bool) (FillResult, error) {
	if err := a.inner.CancelAllBySymbol(ctx, symbol); err != nil {
		return FillResult{}, fmt.Errorf("venue(hyperliquid): cleanup orders %s: %w", symbol, err)
	}
	if err := a.SetLeverage(ctx, symbol, leverage); err != nil {
		return FillResult{}, err
	}
	if err := a.waitLeverageCooldown(ctx, symbol); err != nil {
		return FillResult{}, err
	}
	a.positionCache.invalidate()
	a.balanceCache.invalidate()
	resp, err := a.inner.IOCMarket(ctx, symbol, isBuy, quantity, a.slippage, false)
	if err != nil {
		return FillResult{}, fmt.Errorf("venue(hyperliquid): open %s: %w", symbol, err)
	}
	return fillFromResponse(resp)
}

func (a *HyperliquidAdapter) CloseLong(ctx context.Context, symbol string, quantity float64) (FillResult, error) {
	return a.close(ctx, symbol, quantity, SideLong)
}

func (a *HyperliquidAdapter) CloseShort(ctx context.Context, symbol string, quantity float64) (FillResult, error) {
	return a.close(ctx, symbol, quantity, SideShort)
}

func (a *HyperliquidAdapter) close(ctx context.Context, symbol string, quantity float64, side Side) (FillResult, error) {
	if quantity <= 0 {
		positions, err := a.GetPositions(ctx)
		if err != nil {
			return FillResult{}, err
		}
		quantity = 0
		for _, p := range positions {
			if strings.EqualFold(p.Symbol, symbol) && p.Side == side {
				quantity = p.Quantity
				break
			}
		}
		if quantity <= 0 {
			return FillResult{}, ErrNoPosition
		}
	}
	isBuy := side == SideShort // buy to cover a short, sell to close a long
	a.positionCache.invalidate()
	a.balanceCache.invalidate()
	resp, err := a.inner.IOCMarket(ctx, symbol, isBuy, quantity, a.slippage, true)
	if err != nil {
		return FillResult{}, fmt.Errorf("venue(hyperliquid): close %s: %w", symbol, err)
	}
	if err := a.inner.CancelAllBySymbol(ctx, symbol); err != nil {
		return FillResult{}, fmt.Errorf("venue(hyperliquid): cleanup after close %s: %w", symbol, err)
	}
	return fillFromResponse(resp)
}

func (a *HyperliquidAdapter) SetStopLoss(ctx context.Context, symbol string, side Side, quantity float64, trigger float64) error {
	return a.inner.SetStopLoss(ctx, symbol, positionSideString(side), quantity, trigger)
}

func (a *HyperliquidAdapter) SetTakeProfit(ctx context.Context, symbol string, side Side, quantity float64, trigger float64) error {
	return a.inner.SetTakeProfit(ctx, symbol, positionSideString(side), quantity, trigger)
}

func (a *HyperliquidAdapter) CancelAllOrders(ctx context.Context, symbol string) error {
	return a.inner.CancelAllBySymbol(ctx, symbol)
}

func (a *HyperliquidAdapter) FormatQuantity(ctx context.Context, symbol string, qty float64) (float64, error) {
	formatted, err := a.inner.FormatSize(ctx, symbol, qty)
	if err != nil {
		return 0, fmt.Errorf("venue(hyperliquid): format quantity %s: %w", symbol, err)
	}
	return parseFloatOr(formatted, qty), nil
}

// waitLeverageCooldown blocks until leverageCooldown has elapsed since the last
// actual leverage change on symbol, so an order placed immediately after a
// SetLeverage call never races the exchange's own leverage update (§4.A).
func (a *HyperliquidAdapter) waitLeverageCooldown(ctx context.Context, symbol string) error {
	a.mu.Lock()
	changedAt, ok := a.leverageSet[symbol]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	remaining := leverageCooldown - time.Since(changedAt)
	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func positionSideString(side Side) string {
	if side == SideShort {
		return "SHORT"
	}
	return "LONG"
}

func fillFromResponse(resp *exchange.OrderResponse) (FillResult, error) {
	if resp == nil {
		return FillResult{}, fmt.Errorf("venue(hyperliquid): empty order response")
	}
	for _, status := range resp.Response.Data.Statuses {
		if status.Error != "" {
			return FillResult{}, fmt.Errorf("venue(hyperliquid): order rejected: %s", status.Error)
		}
		if status.Filled != nil {
			return FillResult{
				OrderID:   strconv.FormatInt(status.Filled.Oid, 10),
				FillPrice: parseFloatOr(status.Filled.AvgPx, 0),
				Quantity:  parseFloatOr(status.Filled.TotalSz, 0),
			}, nil
		}
		if status.Resting != nil {
			return FillResult{OrderID: strconv.FormatInt(status.Resting.Oid, 10)}, nil
		}
	}
	return FillResult{}, fmt.Errorf("venue(hyperliquid): order response had no fill or resting status")
}

func parseFloatOr(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func derefOr(s string, def string) string {
	if s == "" {
		return def
	}
	return s
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
