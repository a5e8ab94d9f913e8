package venue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"nof0-api/pkg/exchange/sim"
)

func TestSimAdapterOpenAndCloseRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := sim.New()
	adapter := NewSimAdapter(p)

	require.NoError(t, adapter.SetMarkPrice(ctx, "BTCUSDT", 50000))

	fill, err := adapter.OpenLong(ctx, "BTCUSDT", 0.1, 5)
	require.NoError(t, err)
	require.Greater(t, fill.FillPrice, 0.0)

	positions, err := adapter.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, SideLong, positions[0].Side)
	require.InDelta(t, 0.1, positions[0].Quantity, 1e-9)

	_, err = adapter.CloseLong(ctx, "BTCUSDT", 0)
	require.NoError(t, err)

	positions, err = adapter.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 0)
}

func TestSimAdapterCloseWithoutPositionErrors(t *testing.T) {
	ctx := context.Background()
	adapter := NewSimAdapter(sim.New())
	_, err := adapter.CloseShort(ctx, "ETHUSDT", 0)
	require.ErrorIs(t, err, ErrNoPosition)
}

type leverageCountingClient struct {
	simClient
	calls int
}

func (c *leverageCountingClient) UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) error {
	c.calls++
	return c.simClient.UpdateLeverage(ctx, asset, isCross, leverage)
}

func TestSetLeverageIsIdempotent(t *testing.T) {
	ctx := context.Background()
	counting := &leverageCountingClient{simClient: sim.New()}
	adapter := &SimAdapter{inner: counting, leverage: make(map[string]int)}

	require.NoError(t, adapter.SetLeverage(ctx, "BTCUSDT", 5))
	require.Equal(t, 1, counting.calls)

	require.NoError(t, adapter.SetLeverage(ctx, "BTCUSDT", 5))
	require.Equal(t, 1, counting.calls, "second call with the same leverage must not hit the network")

	require.NoError(t, adapter.SetLeverage(ctx, "BTCUSDT", 10))
	require.Equal(t, 2, counting.calls)
}

func TestFormatQuantityRoundsThroughVenue(t *testing.T) {
	ctx := context.Background()
	adapter := NewSimAdapter(sim.New())
	qty, err := adapter.FormatQuantity(ctx, "BTCUSDT", 0.123456789)
	require.NoError(t, err)
	require.InDelta(t, 0.12345679, qty, 1e-6)
}
