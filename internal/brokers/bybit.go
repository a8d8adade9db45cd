package brokers

import (
	"bytes"
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

const bybitRecvWindow = "5000"

// BybitClient wraps the Bybit v5 REST API. Signed requests carry the HMAC of
// timestamp + api key + recv window + payload in the X-BAPI-SIGN header.
type BybitClient struct {
	restClient
}

func NewBybitClient(baseURL string) *BybitClient {
	return &BybitClient{restClient: newRESTClient(baseURL, 10)}
}

func (b *BybitClient) Name() string { return types.BrokerBybit }

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (b *BybitClient) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	q := url.Values{"category": {"spot"}, "symbol": {symbol}}
	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			Price24h  string `json:"price24hPcnt"`
		} `json:"list"`
	}
	if err := b.get(ctx, "/v5/market/tickers", q, Credentials{}, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("no ticker returned for %s", symbol)
	}
	price, err := strconv.ParseFloat(result.List[0].LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", result.List[0].LastPrice, err)
	}
	change, _ := strconv.ParseFloat(result.List[0].Price24h, 64)
	return &types.Ticker{Symbol: symbol, Price: price, Change24h: change * 100, UpdatedAt: time.Now()}, nil
}

func (b *BybitClient) GetBalance(ctx context.Context, creds Credentials) ([]types.Balance, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, ErrMissingCredential
	}
	q := url.Values{"accountType": {"UNIFIED"}}
	var result struct {
		List []struct {
			Coin []struct {
				Coin      string `json:"coin"`
				Equity    string `json:"equity"`
				Available string `json:"availableToWithdraw"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := b.get(ctx, "/v5/account/wallet-balance", q, creds, &result); err != nil {
		return nil, err
	}

	var balances []types.Balance
	for _, acct := range result.List {
		for _, c := range acct.Coin {
			total, _ := strconv.ParseFloat(c.Equity, 64)
			avail, _ := strconv.ParseFloat(c.Available, 64)
			if total == 0 {
				continue
			}
			balances = append(balances, types.Balance{Currency: c.Coin, Total: total, Available: avail})
		}
	}
	return balances, nil
}

func (b *BybitClient) PlaceOrder(ctx context.Context, creds Credentials, req types.OrderRequest) (*types.OrderResult, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, ErrMissingCredential
	}

	orderType := "Market"
	if req.OrderType == "LIMIT" {
		orderType = "Limit"
	}
	side := "Buy"
	if req.Side == "SELL" {
		side = "Sell"
	}

	payload := map[string]string{
		"category":  "spot",
		"symbol":    req.Symbol,
		"side":      side,
		"orderType": orderType,
		"qty":       strconv.FormatFloat(req.Quantity, 'f', -1, 64),
	}
	if req.OrderType == "LIMIT" {
		payload["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}

	var result struct {
		OrderID string `json:"orderId"`
	}
	if err := b.post(ctx, "/v5/order/create", payload, creds, &result); err != nil {
		return nil, err
	}

	// Bybit acknowledges creation only; fills arrive via the order query.
	return &types.OrderResult{
		BrokerOrderID: result.OrderID,
		Status:        types.OrderStatusPending,
	}, nil
}

func (b *BybitClient) CancelOrder(ctx context.Context, creds Credentials, symbol, brokerOrderID string) error {
	payload := map[string]string{
		"category": "spot",
		"symbol":   symbol,
		"orderId":  brokerOrderID,
	}
	return b.post(ctx, "/v5/order/cancel", payload, creds, nil)
}

func (b *BybitClient) GetOrderStatus(ctx context.Context, creds Credentials, symbol, brokerOrderID string) (*types.OrderResult, error) {
	q := url.Values{"category": {"spot"}, "symbol": {symbol}, "orderId": {brokerOrderID}}
	var result struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderStatus string `json:"orderStatus"`
			CumExecQty  string `json:"cumExecQty"`
			AvgPrice    string `json:"avgPrice"`
		} `json:"list"`
	}
	if err := b.get(ctx, "/v5/order/realtime", q, creds, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, fmt.Errorf("order %s not found", brokerOrderID)
	}
	o := result.List[0]
	executed, _ := strconv.ParseFloat(o.CumExecQty, 64)
	avg, _ := strconv.ParseFloat(o.AvgPrice, 64)
	return &types.OrderResult{
		BrokerOrderID:  o.OrderID,
		Status:         normalizeBybitStatus(o.OrderStatus),
		FilledQuantity: executed,
		AvgFillPrice:   avg,
	}, nil
}

func (b *BybitClient) GetOpenPositions(ctx context.Context, creds Credentials) ([]types.BrokerPosition, error) {
	q := url.Values{"category": {"linear"}, "settleCoin": {"USDT"}}
	var result struct {
		List []struct {
			Symbol   string `json:"symbol"`
			Side     string `json:"side"`
			Size     string `json:"size"`
			AvgPrice string `json:"avgPrice"`
			MarkPric string `json:"markPrice"`
		} `json:"list"`
	}
	if err := b.get(ctx, "/v5/position/list", q, creds, &result); err != nil {
		return nil, err
	}

	var positions []types.BrokerPosition
	for _, p := range result.List {
		size, _ := strconv.ParseFloat(p.Size, 64)
		if size == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(p.AvgPrice, 64)
		mark, _ := strconv.ParseFloat(p.MarkPric, 64)
		side := "LONG"
		if p.Side == "Sell" {
			side = "SHORT"
		}
		positions = append(positions, types.BrokerPosition{
			Symbol:     p.Symbol,
			Side:       side,
			Quantity:   size,
			EntryPrice: entry,
			MarkPrice:  mark,
		})
	}
	return positions, nil
}

func (b *BybitClient) get(ctx context.Context, path string, q url.Values, creds Credentials, out interface{}) error {
	return b.do(ctx, http.MethodGet, path, q.Encode(), nil, creds, out)
}

func (b *BybitClient) post(ctx context.Context, path string, payload map[string]string, creds Credentials, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.do(ctx, http.MethodPost, path, "", body, creds, out)
}

func (b *BybitClient) do(ctx context.Context, method, path, query string, body []byte, creds Credentials, out interface{}) error {
	if err := b.wait(ctx); err != nil {
		return err
	}

	endpoint := b.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	if creds.APIKey != "" {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		payload := query
		if method != http.MethodGet {
			payload = string(body)
		}
		req.Header.Set("X-BAPI-API-KEY", creds.APIKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
		req.Header.Set("X-BAPI-SIGN", bybitSign(creds, ts, payload))
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bybit returned status %d: %s", resp.StatusCode, raw)
	}

	var env bybitEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("bybit error %d: %s", env.RetCode, env.RetMsg)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

// bybitSign computes HMAC-SHA256 over timestamp + key + recv window + payload.
func bybitSign(creds Credentials, timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(creds.APISecret))
	mac.Write([]byte(timestamp + creds.APIKey + bybitRecvWindow + payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeBybitStatus(status string) string {
	switch status {
	case "New", "Created", "Untriggered":
		return types.OrderStatusPending
	case "Filled":
		return types.OrderStatusFilled
	case "PartiallyFilled":
		return types.OrderStatusPartialFill
	case "Cancelled", "Deactivated":
		return types.OrderStatusCancelled
	case "Rejected":
		return types.OrderStatusRejected
	default:
		return types.OrderStatusPending
	}
}
