// Package venue models the abstract derivatives-account capability consumed by an
// AutoTrader: balance, positions, leverage/margin mode, market open/close, stop/TP
// orders, cancel-all, and quantity rounding. Concrete exchanges are adapters behind
// a factory keyed by exchange id (see factory.go); callers never depend on a
// specific vendor SDK.
package venue

import (
	"context"
	"errors"
	"fmt"
)

// Side is a position/order direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ErrNoPosition is returned by CloseLong/CloseShort when no matching position exists.
var ErrNoPosition = errors.New("venue: no matching position")

// Balance is the account-level equity snapshot returned by GetBalance.
type Balance struct {
	WalletBalance    float64
	UnrealizedPnL    float64
	AvailableBalance float64
}

// Equity is wallet balance plus unrealized PnL.
func (b Balance) Equity() float64 { return b.WalletBalance + b.UnrealizedPnL }

// Position is a single non-dust open position as reported by the venue.
type Position struct {
	Symbol           string
	Side             Side
	Quantity         float64 // always positive (absolute size)
	EntryPrice       float64
	MarkPrice        float64
	Leverage         float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
	LiquidationPrice float64
	MarginUsed       float64
}

// dustThreshold below this absolute quantity, a position is considered dust and
// excluded from GetPositions results, per §4.A.
const dustThreshold = 1e-5

// FillResult is returned by order-placing operations.
type FillResult struct {
	OrderID    string
	FillPrice  float64
	Quantity   float64
}

// Venue is the abstract capability every AutoTrader drives. All operations are
// network calls and may fail; AutoTrader handles failures per-decision, never
// aborting the whole cycle because one venue call failed (§4.A, §7).
type Venue interface {
	// GetBalance may be served from a <=15s TTL cache.
	GetBalance(ctx context.Context) (Balance, error)
	// GetPositions returns non-dust positions; may be served from the same <=15s cache.
	GetPositions(ctx context.Context) ([]Position, error)

	// SetLeverage is idempotent: a second call with the same value issues no network
	// request. Callers must respect a 5s cool-down after an actual change before
	// sending orders on that symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	// SetMarginMode is idempotent; "no change needed" and "position exists" are
	// non-fatal (VenueStateConflict), not errors.
	SetMarginMode(ctx context.Context, symbol string, cross bool) error

	GetMarketPrice(ctx context.Context, symbol string) (float64, error)

	// OpenLong/OpenShort must first cancel existing working orders on the symbol,
	// then set leverage, then submit a market-class order.
	OpenLong(ctx context.Context, symbol string, quantity float64, leverage int) (FillResult, error)
	OpenShort(ctx context.Context, symbol string, quantity float64, leverage int) (FillResult, error)

	// CloseLong/CloseShort: quantity=0 infers from the current position snapshot;
	// returns ErrNoPosition if none exists. After fill, any remaining orders on the
	// symbol are cancelled.
	CloseLong(ctx context.Context, symbol string, quantity float64) (FillResult, error)
	CloseShort(ctx context.Context, symbol string, quantity float64) (FillResult, error)

	// SetStopLoss/SetTakeProfit install closePosition-style reduce-only triggers
	// that close the full position when hit.
	SetStopLoss(ctx context.Context, symbol string, side Side, quantity float64, trigger float64) error
	SetTakeProfit(ctx context.Context, symbol string, side Side, quantity float64, trigger float64) error

	CancelAllOrders(ctx context.Context, symbol string) error

	// FormatQuantity rounds qty to the venue's lot-size step; the returned value is
	// what must actually be sent in subsequent calls.
	FormatQuantity(ctx context.Context, symbol string, qty float64) (float64, error)
}

// ParseSide converts a lowercase side string into a Side, erroring on anything else.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideLong, SideShort:
		return Side(s), nil
	default:
		return "", fmt.Errorf("venue: invalid side %q", s)
	}
}
