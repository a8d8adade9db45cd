package brokers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

// deterministicDemo always fills in full at the requested price.
func deterministicDemo() *DemoBroker {
	return NewDemoBrokerWith(DemoConfig{
		LiquidityFactor: 1.0,
		SuccessRate:     1.0,
		FeeRate:         0.001,
		Seed:            42,
	})
}

func TestDemoPlaceOrder(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{APIKey: "acct-1"}

	t.Run("limit order fills near the requested price", func(t *testing.T) {
		d := deterministicDemo()
		result, err := d.PlaceOrder(ctx, creds, types.OrderRequest{
			Symbol: "BTCUSDT", Side: "BUY", OrderType: "LIMIT", Quantity: 2, Price: 50000,
		})
		require.NoError(t, err)
		assert.Equal(t, types.OrderStatusFilled, result.Status)
		assert.Equal(t, 2.0, result.FilledQuantity)
		// Fill price carries at most two percent slippage.
		assert.InEpsilon(t, 50000.0, result.AvgFillPrice, 0.02)
		assert.InDelta(t, result.AvgFillPrice*2*0.001, result.Fee, 1e-9)
		assert.NotEmpty(t, result.BrokerOrderID)
	})

	t.Run("market order uses the simulated ticker", func(t *testing.T) {
		d := deterministicDemo()
		result, err := d.PlaceOrder(ctx, creds, types.OrderRequest{
			Symbol: "BTCUSDT", Side: "BUY", OrderType: "MARKET", Quantity: 1,
		})
		require.NoError(t, err)
		assert.Greater(t, result.AvgFillPrice, 0.0)
	})

	t.Run("zero success rate always rejects", func(t *testing.T) {
		d := NewDemoBrokerWith(DemoConfig{LiquidityFactor: 1, SuccessRate: 0, Seed: 42})
		_, err := d.PlaceOrder(ctx, creds, types.OrderRequest{
			Symbol: "BTCUSDT", Side: "BUY", OrderType: "LIMIT", Quantity: 1, Price: 100,
		})
		assert.ErrorIs(t, err, ErrOrderRejected)
	})

	t.Run("zero liquidity factor partially fills", func(t *testing.T) {
		d := NewDemoBrokerWith(DemoConfig{LiquidityFactor: 0.5, SuccessRate: 1, Seed: 42})
		// With liquidity 0.5 roughly half of fills are partial; find one.
		sawPartial := false
		for i := 0; i < 20 && !sawPartial; i++ {
			result, err := d.PlaceOrder(ctx, creds, types.OrderRequest{
				Symbol: "ETHUSDT", Side: "BUY", OrderType: "LIMIT", Quantity: 4, Price: 3000,
			})
			require.NoError(t, err)
			if result.Status == types.OrderStatusPartialFill {
				sawPartial = true
				assert.Equal(t, 2.0, result.FilledQuantity)
			}
		}
		assert.True(t, sawPartial)
	})
}

func TestDemoOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{APIKey: "acct-1"}
	d := deterministicDemo()

	result, err := d.PlaceOrder(ctx, creds, types.OrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", OrderType: "LIMIT", Quantity: 1, Price: 50000,
	})
	require.NoError(t, err)

	t.Run("status lookup returns the order", func(t *testing.T) {
		status, err := d.GetOrderStatus(ctx, creds, "BTCUSDT", result.BrokerOrderID)
		require.NoError(t, err)
		assert.Equal(t, result.BrokerOrderID, status.BrokerOrderID)
	})

	t.Run("filled orders cannot be cancelled", func(t *testing.T) {
		err := d.CancelOrder(ctx, creds, "BTCUSDT", result.BrokerOrderID)
		assert.Error(t, err)
	})

	t.Run("unknown order ids error", func(t *testing.T) {
		_, err := d.GetOrderStatus(ctx, creds, "BTCUSDT", "DEMO-nope")
		assert.Error(t, err)
		assert.Error(t, d.CancelOrder(ctx, creds, "BTCUSDT", "DEMO-nope"))
	})
}

func TestDemoPositionNetting(t *testing.T) {
	ctx := context.Background()
	creds := Credentials{APIKey: "acct-1"}
	d := deterministicDemo()

	buy := func(qty float64) {
		_, err := d.PlaceOrder(ctx, creds, types.OrderRequest{
			Symbol: "BTCUSDT", Side: "BUY", OrderType: "LIMIT", Quantity: qty, Price: 50000,
		})
		require.NoError(t, err)
	}
	sell := func(qty float64) {
		_, err := d.PlaceOrder(ctx, creds, types.OrderRequest{
			Symbol: "BTCUSDT", Side: "SELL", OrderType: "LIMIT", Quantity: qty, Price: 50000,
		})
		require.NoError(t, err)
	}

	buy(3)
	positions, err := d.GetOpenPositions(ctx, creds)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "LONG", positions[0].Side)
	assert.Equal(t, 3.0, positions[0].Quantity)

	sell(1)
	positions, _ = d.GetOpenPositions(ctx, creds)
	require.Len(t, positions, 1)
	assert.Equal(t, 2.0, positions[0].Quantity)

	// Selling past flat flips the book short.
	sell(5)
	positions, _ = d.GetOpenPositions(ctx, creds)
	require.Len(t, positions, 1)
	assert.Equal(t, "SHORT", positions[0].Side)
	assert.Equal(t, 3.0, positions[0].Quantity)

	// Buying back exactly flat clears the book.
	buy(3)
	positions, _ = d.GetOpenPositions(ctx, creds)
	assert.Empty(t, positions)

	t.Run("books are isolated per account", func(t *testing.T) {
		other := Credentials{APIKey: "acct-2"}
		positions, err := d.GetOpenPositions(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, positions)
	})
}
