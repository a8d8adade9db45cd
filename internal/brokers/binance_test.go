package brokers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

func TestBinanceGetTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		// Public endpoint, no key header.
		assert.Empty(t, r.Header.Get("X-MBX-APIKEY"))
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"64250.10"}`))
	}))
	defer srv.Close()

	c := NewBinanceClient(srv.URL)
	ticker, err := c.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 64250.10, ticker.Price)
}

func TestBinancePlaceOrder(t *testing.T) {
	creds := Credentials{APIKey: "test-key", APISecret: "test-secret"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))

		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "GTC", q.Get("timeInForce"))
		assert.NotEmpty(t, q.Get("timestamp"))
		assert.Equal(t, "5000", q.Get("recvWindow"))

		// The signature covers the sorted query without the signature itself.
		sig := q.Get("signature")
		q.Del("signature")
		assert.Equal(t, signQuery("test-secret", q.Encode()), sig)

		w.Write([]byte(`{
			"orderId": 123456,
			"status": "FILLED",
			"executedQty": "0.5",
			"fills": [
				{"price": "64000", "qty": "0.3"},
				{"price": "64100", "qty": "0.2"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewBinanceClient(srv.URL)
	result, err := c.PlaceOrder(context.Background(), creds, types.OrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", OrderType: "LIMIT", Quantity: 0.5, Price: 64100,
	})
	require.NoError(t, err)

	assert.Equal(t, "123456", result.BrokerOrderID)
	assert.Equal(t, types.OrderStatusFilled, result.Status)
	assert.Equal(t, 0.5, result.FilledQuantity)
	// Volume-weighted average of the two fills.
	assert.InDelta(t, 64040.0, result.AvgFillPrice, 1e-9)
}

func TestBinancePlaceOrderRequiresCredentials(t *testing.T) {
	c := NewBinanceClient("http://localhost:1")
	_, err := c.PlaceOrder(context.Background(), Credentials{}, types.OrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", OrderType: "MARKET", Quantity: 1,
	})
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestBinanceErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1013,"msg":"Filter failure: LOT_SIZE"}`))
	}))
	defer srv.Close()

	c := NewBinanceClient(srv.URL)
	_, err := c.PlaceOrder(context.Background(), Credentials{APIKey: "k", APISecret: "s"}, types.OrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", OrderType: "MARKET", Quantity: 0.000001,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOT_SIZE")
}

func TestNormalizeBinanceStatus(t *testing.T) {
	assert.Equal(t, types.OrderStatusPending, normalizeBinanceStatus("NEW"))
	assert.Equal(t, types.OrderStatusFilled, normalizeBinanceStatus("FILLED"))
	assert.Equal(t, types.OrderStatusPartialFill, normalizeBinanceStatus("PARTIALLY_FILLED"))
	assert.Equal(t, types.OrderStatusCancelled, normalizeBinanceStatus("CANCELED"))
	assert.Equal(t, types.OrderStatusCancelled, normalizeBinanceStatus("EXPIRED"))
	assert.Equal(t, types.OrderStatusRejected, normalizeBinanceStatus("REJECTED"))
}
