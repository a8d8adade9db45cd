package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMA(t *testing.T) {
	t.Run("seeds with simple average", func(t *testing.T) {
		values := []float64{1, 2, 3, 4, 5}
		out, err := EMA(values, 3)
		require.NoError(t, err)
		require.Len(t, out, 5)

		// First period entries carry the SMA of the first three values.
		assert.InDelta(t, 2.0, out[0], 1e-9)
		assert.InDelta(t, 2.0, out[2], 1e-9)

		// k = 2/(3+1) = 0.5, so out[3] = 4*0.5 + 2*0.5 = 3.
		assert.InDelta(t, 3.0, out[3], 1e-9)
		assert.InDelta(t, 4.0, out[4], 1e-9)
	})

	t.Run("constant series stays flat", func(t *testing.T) {
		values := []float64{10, 10, 10, 10, 10, 10}
		out, err := EMA(values, 4)
		require.NoError(t, err)
		for _, v := range out {
			assert.InDelta(t, 10.0, v, 1e-9)
		}
	})

	t.Run("rejects short input", func(t *testing.T) {
		_, err := EMA([]float64{1, 2}, 3)
		assert.ErrorIs(t, err, ErrNotEnoughData)
	})

	t.Run("rejects non-positive period", func(t *testing.T) {
		_, err := EMA([]float64{1, 2, 3}, 0)
		assert.Error(t, err)
	})
}

func TestRSI(t *testing.T) {
	t.Run("all gains is 100", func(t *testing.T) {
		values := make([]float64, 20)
		for i := range values {
			values[i] = float64(i + 1)
		}
		out, err := RSI(values, 14)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, out[len(out)-1], 1e-9)
	})

	t.Run("all losses approaches 0", func(t *testing.T) {
		values := make([]float64, 20)
		for i := range values {
			values[i] = float64(100 - i)
		}
		out, err := RSI(values, 14)
		require.NoError(t, err)
		assert.InDelta(t, 0.0, out[len(out)-1], 1e-9)
	})

	t.Run("alternating moves sit near the midline", func(t *testing.T) {
		values := make([]float64, 40)
		for i := range values {
			values[i] = 100
			if i%2 == 1 {
				values[i] = 101
			}
		}
		out, err := RSI(values, 14)
		require.NoError(t, err)
		last := out[len(out)-1]
		assert.Greater(t, last, 35.0)
		assert.Less(t, last, 65.0)
	})

	t.Run("entries before the first period are zero", func(t *testing.T) {
		values := make([]float64, 20)
		for i := range values {
			values[i] = float64(i + 1)
		}
		out, err := RSI(values, 14)
		require.NoError(t, err)
		for i := 0; i < 14; i++ {
			assert.Zero(t, out[i])
		}
	})

	t.Run("rejects short input", func(t *testing.T) {
		_, err := RSI([]float64{1, 2, 3}, 14)
		assert.ErrorIs(t, err, ErrNotEnoughData)
	})
}
