package brokers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

// BinanceClient is a REST wrapper for the Binance spot API. Signed endpoints
// use HMAC-SHA256 over the query string with the API key in X-MBX-APIKEY.
type BinanceClient struct {
	restClient
}

func NewBinanceClient(baseURL string) *BinanceClient {
	return &BinanceClient{restClient: newRESTClient(baseURL, 10)}
}

func (b *BinanceClient) Name() string { return types.BrokerBinance }

func (b *BinanceClient) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	var body struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	q := url.Values{"symbol": {symbol}}
	if err := b.do(ctx, http.MethodGet, "/api/v3/ticker/price", q, Credentials{}, false, &body); err != nil {
		return nil, err
	}
	price, err := strconv.ParseFloat(body.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", body.Price, err)
	}
	return &types.Ticker{Symbol: symbol, Price: price, UpdatedAt: time.Now()}, nil
}

func (b *BinanceClient) GetBalance(ctx context.Context, creds Credentials) ([]types.Balance, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, ErrMissingCredential
	}

	var body struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := b.do(ctx, http.MethodGet, "/api/v3/account", url.Values{}, creds, true, &body); err != nil {
		return nil, err
	}

	var balances []types.Balance
	for _, bal := range body.Balances {
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		if free == 0 && locked == 0 {
			continue
		}
		balances = append(balances, types.Balance{
			Currency:  bal.Asset,
			Total:     free + locked,
			Available: free,
		})
	}
	return balances, nil
}

func (b *BinanceClient) PlaceOrder(ctx context.Context, creds Credentials, req types.OrderRequest) (*types.OrderResult, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, ErrMissingCredential
	}

	q := url.Values{
		"symbol":   {req.Symbol},
		"side":     {req.Side},
		"type":     {req.OrderType},
		"quantity": {strconv.FormatFloat(req.Quantity, 'f', -1, 64)},
	}
	if req.OrderType == "LIMIT" {
		q.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
		q.Set("timeInForce", "GTC")
	}

	var body struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		Fills       []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"fills"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/v3/order", q, creds, true, &body); err != nil {
		return nil, err
	}

	executed, _ := strconv.ParseFloat(body.ExecutedQty, 64)
	var avg float64
	if executed > 0 {
		var notional float64
		for _, f := range body.Fills {
			p, _ := strconv.ParseFloat(f.Price, 64)
			qty, _ := strconv.ParseFloat(f.Qty, 64)
			notional += p * qty
		}
		avg = notional / executed
	}

	return &types.OrderResult{
		BrokerOrderID:  strconv.FormatInt(body.OrderID, 10),
		Status:         normalizeBinanceStatus(body.Status),
		FilledQuantity: executed,
		AvgFillPrice:   avg,
	}, nil
}

func (b *BinanceClient) CancelOrder(ctx context.Context, creds Credentials, symbol, brokerOrderID string) error {
	q := url.Values{"symbol": {symbol}, "orderId": {brokerOrderID}}
	return b.do(ctx, http.MethodDelete, "/api/v3/order", q, creds, true, nil)
}

func (b *BinanceClient) GetOrderStatus(ctx context.Context, creds Credentials, symbol, brokerOrderID string) (*types.OrderResult, error) {
	q := url.Values{"symbol": {symbol}, "orderId": {brokerOrderID}}
	var body struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		Price       string `json:"price"`
	}
	if err := b.do(ctx, http.MethodGet, "/api/v3/order", q, creds, true, &body); err != nil {
		return nil, err
	}
	executed, _ := strconv.ParseFloat(body.ExecutedQty, 64)
	price, _ := strconv.ParseFloat(body.Price, 64)
	return &types.OrderResult{
		BrokerOrderID:  strconv.FormatInt(body.OrderID, 10),
		Status:         normalizeBinanceStatus(body.Status),
		FilledQuantity: executed,
		AvgFillPrice:   price,
	}, nil
}

// GetOpenPositions maps non-zero spot balances into pseudo-positions; Binance
// spot has no native position concept.
func (b *BinanceClient) GetOpenPositions(ctx context.Context, creds Credentials) ([]types.BrokerPosition, error) {
	balances, err := b.GetBalance(ctx, creds)
	if err != nil {
		return nil, err
	}
	var positions []types.BrokerPosition
	for _, bal := range balances {
		if bal.Currency == "USDT" || bal.Currency == "USD" {
			continue
		}
		positions = append(positions, types.BrokerPosition{
			Symbol:   bal.Currency + "USDT",
			Side:     "LONG",
			Quantity: bal.Total,
		})
	}
	return positions, nil
}

// do issues a request, signing the query when required.
func (b *BinanceClient) do(ctx context.Context, method, path string, q url.Values, creds Credentials, signed bool, out interface{}) error {
	if err := b.wait(ctx); err != nil {
		return err
	}

	if signed {
		q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		q.Set("recvWindow", "5000")
		q.Set("signature", signQuery(creds.APISecret, q.Encode()))
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", creds.APIKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("binance returned status %d: %s", resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// signQuery computes the hex HMAC-SHA256 signature over the encoded query.
func signQuery(secret, encoded string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeBinanceStatus(status string) string {
	switch status {
	case "NEW":
		return types.OrderStatusPending
	case "FILLED":
		return types.OrderStatusFilled
	case "PARTIALLY_FILLED":
		return types.OrderStatusPartialFill
	case "CANCELED", "EXPIRED":
		return types.OrderStatusCancelled
	case "REJECTED":
		return types.OrderStatusRejected
	default:
		return types.OrderStatusPending
	}
}
