package venue

import (
	"context"
	"fmt"
	"strings"

	"nof0-api/pkg/exchange"
	"nof0-api/pkg/exchange/sim"
)

// simClient is the subset of *sim.Provider the adapter relies on.
type simClient interface {
	GetAssetIndex(ctx context.Context, coin string) (int, error)
	SetMarkPrice(ctx context.Context, coin string, price float64) error
	GetPositions(ctx context.Context) ([]exchange.Position, error)
	ClosePosition(ctx context.Context, coin string) error
	UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) error
	GetAccountState(ctx context.Context) (*exchange.AccountState, error)
	GetAccountValue(ctx context.Context) (float64, error)
	FormatPrice(ctx context.Context, coin string, price float64) (string, error)
	FormatSize(ctx context.Context, coin string, size float64) (string, error)
	CancelAllBySymbol(ctx context.Context, coin string) error
	IOCMarket(ctx context.Context, coin string, isBuy bool, qty float64, slippage float64, reduceOnly bool) (*exchange.OrderResponse, error)
	SetStopLoss(ctx context.Context, coin string, positionSide string, qty float64, stopPrice float64) error
	SetTakeProfit(ctx context.Context, coin string, positionSide string, qty float64, takeProfit float64) error
}

var _ simClient = (*sim.Provider)(nil)

// SimAdapter adapts the in-memory paper-trading provider to the abstract Venue
// capability, for tests and dry-run traders.
type SimAdapter struct {
	inner    simClient
	leverage map[string]int
}

// NewSimAdapter wraps a sim.Provider (or anything satisfying simClient).
func NewSimAdapter(p *sim.Provider) *SimAdapter {
	return &SimAdapter{inner: p, leverage: make(map[string]int)}
}

func (a *SimAdapter) GetBalance(ctx context.Context) (Balance, error) {
	state, err := a.inner.GetAccountState(ctx)
	if err != nil {
		return Balance{}, fmt.Errorf("venue(sim): get balance: %w", err)
	}
	equity := parseFloatOr(state.MarginSummary.AccountValue, 0)
	margin := parseFloatOr(state.MarginSummary.TotalMarginUsed, 0)
	var unrealized float64
	for _, p := range state.AssetPositions {
		unrealized += parseFloatOr(p.UnrealizedPnl, 0)
	}
	return Balance{
		WalletBalance:    equity - unrealized,
		UnrealizedPnL:    unrealized,
		AvailableBalance: equity - margin,
	}, nil
}

func (a *SimAdapter) GetPositions(ctx context.Context) ([]Position, error) {
	raw, err := a.inner.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("venue(sim): get positions: %w", err)
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
		notional := parseFloatOr(p.PositionValue, 0)
		margin := notional
		if p.Leverage.Value > 0 {
			margin = notional / float64(p.Leverage.Value)
		}
		out = append(out, Position{
			Symbol:           strings.ToUpper(p.Coin),
			Side:             side,
			Quantity:         absFloat(qty),
			EntryPrice:       entry,
			MarkPrice:        entry,
			Leverage:         float64(p.Leverage.Value),
			UnrealizedPnL:    parseFloatOr(p.UnrealizedPnl, 0),
			UnrealizedPnLPct: parseFloatOr(p.ReturnOnEquity, 0),
			MarginUsed:       margin,
		})
	}
	return out, nil
}

func (a *SimAdapter) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if cur, ok := a.leverage[symbol]; ok && cur == leverage {
		return nil
	}
	idx, err := a.inner.GetAssetIndex(ctx, symbol)
	if err != nil {
		return err
	}
	if err := a.inner.UpdateLeverage(ctx, idx, true, leverage); err != nil {
		return err
	}
	a.leverage[symbol] = leverage
	return nil
}

func (a *SimAdapter) SetMarginMode(ctx context.Context, symbol string, cross bool) error {
	idx, err := a.inner.GetAssetIndex(ctx, symbol)
	if err != nil {
		return err
	}
	lev := a.leverage[symbol]
	if lev <= 0 {
		lev = 1
	}
	return a.inner.UpdateLeverage(ctx, idx, cross, lev)
}

func (a *SimAdapter) GetMarketPrice(ctx context.Context, symbol string) (float64, error) {
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
	return 0, fmt.Errorf("venue(sim): no market price set for %s", symbol)
}

// SetMarkPrice lets tests drive the simulator's reference price directly.
func (a *SimAdapter) SetMarkPrice(ctx context.Context, symbol string, price float64) error {
	if setter, ok := a.inner.(interface {
		SetMarkPrice(ctx context.Context, coin string, price float64) error
	}); ok {
		return setter.SetMarkPrice(ctx, symbol, price)
	}
	return fmt.Errorf("venue(sim): underlying provider cannot set mark price")
}

func (a *SimAdapter) OpenLong(ctx context.Context, symbol string, quantity float64, leverage int) (FillResult, error) {
	return a.open(ctx, symbol, quantity, leverage, true)
}

func (a *SimAdapter) OpenShort(ctx context.Context, symbol string, quantity float64, leverage int) (FillResult, error) {
	return a.open(ctx, symbol, quantity, leverage, false)
}

func (a *SimAdapter) open(ctx context.Context, symbol string, quantity float64, leverage int, isBuy bool) (FillResult, error) {
	if err := a.inner.CancelAllBySymbol(ctx, symbol); err != nil {
		return FillResult{}, err
	}
	if err := a.SetLeverage(ctx, symbol, leverage); err != nil {
		return FillResult{}, err
	}
	resp, err := a.inner.IOCMarket(ctx, symbol, isBuy, quantity, 0.002, false)
	if err != nil {
		return FillResult{}, fmt.Errorf("venue(sim): open %s: %w", symbol, err)
	}
	return fillFromResponse(resp)
}

func (a *SimAdapter) CloseLong(ctx context.Context, symbol string, quantity float64) (FillResult, error) {
	return a.close(ctx, symbol, quantity, SideLong)
}

func (a *SimAdapter) CloseShort(ctx context.Context, symbol string, quantity float64) (FillResult, error) {
	return a.close(ctx, symbol, quantity, SideShort)
}

func (a *SimAdapter) close(ctx context.Context, symbol string, quantity float64, side Side) (FillResult, error) {
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
	isBuy := side == SideShort
	resp, err := a.inner.IOCMarket(ctx, symbol, isBuy, quantity, 0.002, true)
	if err != nil {
		return FillResult{}, fmt.Errorf("venue(sim): close %s: %w", symbol, err)
	}
	_ = a.inner.CancelAllBySymbol(ctx, symbol)
	return fillFromResponse(resp)
}

func (a *SimAdapter) SetStopLoss(ctx context.Context, symbol string, side Side, quantity float64, trigger float64) error {
	return a.inner.SetStopLoss(ctx, symbol, positionSideString(side), quantity, trigger)
}

func (a *SimAdapter) SetTakeProfit(ctx context.Context, symbol string, side Side, quantity float64, trigger float64) error {
	return a.inner.SetTakeProfit(ctx, symbol, positionSideString(side), quantity, trigger)
}

func (a *SimAdapter) CancelAllOrders(ctx context.Context, symbol string) error {
	return a.inner.CancelAllBySymbol(ctx, symbol)
}

func (a *SimAdapter) FormatQuantity(ctx context.Context, symbol string, qty float64) (float64, error) {
	formatted, err := a.inner.FormatSize(ctx, symbol, qty)
	if err != nil {
		return 0, err
	}
	return parseFloatOr(formatted, qty), nil
}

