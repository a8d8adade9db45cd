package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

func candle(open, high, low, close float64) types.Candle {
	return types.Candle{Open: open, High: high, Low: low, Close: close, OpenTime: time.Now()}
}

func TestFairValueGaps(t *testing.T) {
	t.Run("detects bullish imbalance", func(t *testing.T) {
		candles := []types.Candle{
			candle(100, 102, 99, 101),
			candle(101, 108, 101, 107),
			candle(107, 110, 105, 109), // low 105 > first high 102
		}
		gaps := FairValueGaps(candles)
		require.Len(t, gaps, 1)
		assert.True(t, gaps[0].Bullish)
		assert.Equal(t, 105.0, gaps[0].Top)
		assert.Equal(t, 102.0, gaps[0].Bottom)
	})

	t.Run("detects bearish imbalance", func(t *testing.T) {
		candles := []types.Candle{
			candle(100, 102, 98, 99),
			candle(99, 99, 92, 93),
			candle(93, 95, 90, 91), // high 95 < first low 98
		}
		gaps := FairValueGaps(candles)
		require.Len(t, gaps, 1)
		assert.False(t, gaps[0].Bullish)
		assert.Equal(t, 98.0, gaps[0].Top)
		assert.Equal(t, 95.0, gaps[0].Bottom)
	})

	t.Run("contiguous candles produce no gaps", func(t *testing.T) {
		candles := []types.Candle{
			candle(100, 102, 99, 101),
			candle(101, 103, 100, 102),
			candle(102, 104, 101, 103),
			candle(103, 105, 102, 104),
		}
		assert.Empty(t, FairValueGaps(candles))
	})
}

func TestSwingPoints(t *testing.T) {
	t.Run("finds a local high and low", func(t *testing.T) {
		candles := []types.Candle{
			candle(100, 101, 99, 100),
			candle(100, 103, 100, 102),
			candle(102, 110, 101, 105), // swing high at 110
			candle(105, 106, 95, 96),   // swing low at 95
			candle(96, 99, 96, 98),
			candle(98, 100, 97, 99),
		}
		swings := SwingPoints(candles, 2)
		require.Len(t, swings, 2)
		assert.True(t, swings[0].High)
		assert.Equal(t, 110.0, swings[0].Price)
		assert.False(t, swings[1].High)
		assert.Equal(t, 95.0, swings[1].Price)
	})

	t.Run("flat series has no swings", func(t *testing.T) {
		candles := make([]types.Candle, 10)
		for i := range candles {
			candles[i] = candle(100, 101, 99, 100)
		}
		assert.Empty(t, SwingPoints(candles, 2))
	})
}

func TestEvaluate(t *testing.T) {
	t.Run("needs enough candles", func(t *testing.T) {
		candles := make([]types.Candle, 10)
		for i := range candles {
			candles[i] = candle(100, 101, 99, 100)
		}
		_, err := Evaluate("BTCUSDT", candles)
		assert.ErrorIs(t, err, ErrNotEnoughData)
	})

	// Wide candle ranges keep consecutive bars overlapping so no fair value
	// gaps form and the score depends only on the EMA and RSI terms.
	trend := func(start float64, moves ...float64) []types.Candle {
		candles := make([]types.Candle, 60)
		price := start
		for i := range candles {
			price += moves[i%len(moves)]
			candles[i] = candle(price, price+3, price-3, price)
		}
		return candles
	}

	t.Run("uptrend with pullbacks signals buy", func(t *testing.T) {
		// Two up moves then one down keeps RSI below overbought while the
		// fast EMA stays above the slow one.
		sig, err := Evaluate("BTCUSDT", trend(100, 2, 2, -2))
		require.NoError(t, err)
		assert.Equal(t, SignalBuy, sig.Direction)
		assert.Greater(t, sig.EMAFast, sig.EMASlow)
		assert.Less(t, sig.RSI, 70.0)
		assert.GreaterOrEqual(t, sig.Confidence, 0.3)
		assert.LessOrEqual(t, sig.Confidence, 1.0)
	})

	t.Run("downtrend with bounces signals sell", func(t *testing.T) {
		sig, err := Evaluate("ETHUSDT", trend(300, -2, -2, 2))
		require.NoError(t, err)
		assert.Equal(t, SignalSell, sig.Direction)
		assert.Less(t, sig.EMAFast, sig.EMASlow)
		assert.Greater(t, sig.RSI, 30.0)
	})

	t.Run("stretched climb is neutral", func(t *testing.T) {
		// A relentless climb pushes RSI overbought, which offsets the EMA
		// crossover and leaves no directional confluence.
		sig, err := Evaluate("SOLUSDT", trend(100, 1))
		require.NoError(t, err)
		assert.Equal(t, SignalNeutral, sig.Direction)
		assert.InDelta(t, 100.0, sig.RSI, 1e-9)
	})
}
