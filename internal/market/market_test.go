package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPricesUpstream(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		symbol := r.URL.Query().Get("symbol")
		fmt.Fprintf(w, `{"symbol":%q,"price":"64250.10"}`, symbol)
	}))
	defer srv.Close()

	svc := NewService(srv.URL, time.Minute)

	tickers, err := svc.GetPrices(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, tickers, 2)
	assert.Equal(t, "BTCUSDT", tickers[0].Symbol)
	assert.Equal(t, 64250.10, tickers[0].Price)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))

	// Within the TTL the cache answers without another upstream call.
	_, err = svc.GetPrices(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestGetPricesCacheExpiry(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"64250.10"}`))
	}))
	defer srv.Close()

	svc := NewService(srv.URL, 10*time.Millisecond)

	_, err := svc.GetPrices(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = svc.GetPrices(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&calls))
}

func TestGetPricesFallsBackToDemo(t *testing.T) {
	t.Run("no upstream configured", func(t *testing.T) {
		svc := NewService("", time.Minute)
		tickers, err := svc.GetPrices(context.Background(), []string{"BTCUSDT"})
		require.NoError(t, err)
		require.Len(t, tickers, 1)
		// The simulated walk stays within half a percent of its seed on the
		// first step.
		assert.InEpsilon(t, 64250.0, tickers[0].Price, 0.006)
	})

	t.Run("upstream errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		svc := NewService(srv.URL, time.Minute)
		tickers, err := svc.GetPrices(context.Background(), []string{"ETHUSDT"})
		require.NoError(t, err)
		require.Len(t, tickers, 1)
		assert.Greater(t, tickers[0].Price, 0.0)
	})

	t.Run("unknown symbols get a default seed", func(t *testing.T) {
		svc := NewService("", time.Minute)
		price, err := svc.GetPrice(context.Background(), "XYZUSDT")
		require.NoError(t, err)
		assert.InEpsilon(t, 100.0, price, 0.006)
	})
}

func TestGetCandles(t *testing.T) {
	svc := NewService("", time.Minute)

	t.Run("series ends at the current price", func(t *testing.T) {
		candles, err := svc.GetCandles(context.Background(), "BTCUSDT", "1h", 50)
		require.NoError(t, err)
		require.Len(t, candles, 50)

		price, err := svc.GetPrice(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		// The last close matches the cached ticker price.
		assert.Equal(t, price, candles[len(candles)-1].Close)

		for i, c := range candles {
			assert.GreaterOrEqual(t, c.High, c.Open, "candle %d", i)
			assert.GreaterOrEqual(t, c.High, c.Close, "candle %d", i)
			assert.LessOrEqual(t, c.Low, c.Open, "candle %d", i)
			assert.LessOrEqual(t, c.Low, c.Close, "candle %d", i)
			if i > 0 {
				assert.True(t, c.OpenTime.After(candles[i-1].OpenTime), "candle %d out of order", i)
			}
		}
	})

	t.Run("limit is clamped", func(t *testing.T) {
		candles, err := svc.GetCandles(context.Background(), "BTCUSDT", "1m", -5)
		require.NoError(t, err)
		assert.Len(t, candles, 100)
	})

	t.Run("rejects unknown intervals", func(t *testing.T) {
		_, err := svc.GetCandles(context.Background(), "BTCUSDT", "7m", 10)
		assert.Error(t, err)
	})
}

func TestIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"":    time.Minute,
		"1m":  time.Minute,
		"5m":  5 * time.Minute,
		"15m": 15 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
	for interval, want := range cases {
		got, err := intervalDuration(interval)
		require.NoError(t, err, interval)
		assert.Equal(t, want, got, interval)
	}
}
