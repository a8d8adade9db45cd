package brokers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

// TradovateClient wraps the Tradovate futures REST API. Credentials map the
// account API key to the Tradovate username and the secret to the password;
// access tokens are cached until shortly before expiry.
type TradovateClient struct {
	restClient

	mu     sync.Mutex
	tokens map[string]tradovateToken
}

type tradovateToken struct {
	accessToken string
	expiresAt   time.Time
}

func NewTradovateClient(baseURL string) *TradovateClient {
	return &TradovateClient{
		restClient: newRESTClient(baseURL, 5),
		tokens:     make(map[string]tradovateToken),
	}
}

func (t *TradovateClient) Name() string { return types.BrokerTradovate }

func (t *TradovateClient) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	// Tradovate market data runs over its websocket feed, which is out of
	// scope; quotes for futures symbols come from the market service instead.
	return nil, fmt.Errorf("tradovate does not serve REST tickers")
}

func (t *TradovateClient) GetBalance(ctx context.Context, creds Credentials) ([]types.Balance, error) {
	token, err := t.accessToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	var accounts []struct {
		ID      int64   `json:"id"`
		Balance float64 `json:"balance"`
	}
	if err := t.doAuthed(ctx, http.MethodGet, "/cashBalance/list", token, nil, &accounts); err != nil {
		return nil, err
	}

	var total float64
	for _, a := range accounts {
		total += a.Balance
	}
	return []types.Balance{{Currency: "USD", Total: total, Available: total}}, nil
}

func (t *TradovateClient) PlaceOrder(ctx context.Context, creds Credentials, req types.OrderRequest) (*types.OrderResult, error) {
	token, err := t.accessToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	action := "Buy"
	if req.Side == "SELL" {
		action = "Sell"
	}
	orderType := "Market"
	if req.OrderType == "LIMIT" {
		orderType = "Limit"
	}

	payload := map[string]interface{}{
		"symbol":      req.Symbol,
		"action":      action,
		"orderQty":    req.Quantity,
		"orderType":   orderType,
		"isAutomated": true,
	}
	if req.OrderType == "LIMIT" {
		payload["price"] = req.Price
	}

	var result struct {
		OrderID       int64  `json:"orderId"`
		FailureReason string `json:"failureReason"`
		FailureText   string `json:"failureText"`
	}
	if err := t.doAuthed(ctx, http.MethodPost, "/order/placeorder", token, payload, &result); err != nil {
		return nil, err
	}
	if result.FailureReason != "" {
		return nil, fmt.Errorf("%w: %s %s", ErrOrderRejected, result.FailureReason, result.FailureText)
	}

	return &types.OrderResult{
		BrokerOrderID: fmt.Sprintf("%d", result.OrderID),
		Status:        types.OrderStatusPending,
	}, nil
}

func (t *TradovateClient) CancelOrder(ctx context.Context, creds Credentials, symbol, brokerOrderID string) error {
	token, err := t.accessToken(ctx, creds)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{"orderId": brokerOrderID}
	return t.doAuthed(ctx, http.MethodPost, "/order/cancelorder", token, payload, nil)
}

func (t *TradovateClient) GetOrderStatus(ctx context.Context, creds Credentials, symbol, brokerOrderID string) (*types.OrderResult, error) {
	token, err := t.accessToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	var order struct {
		ID        int64   `json:"id"`
		OrdStatus string  `json:"ordStatus"`
		FilledQty float64 `json:"cumQty"`
		AvgPx     float64 `json:"avgPx"`
	}
	path := "/order/item?id=" + brokerOrderID
	if err := t.doAuthed(ctx, http.MethodGet, path, token, nil, &order); err != nil {
		return nil, err
	}

	return &types.OrderResult{
		BrokerOrderID:  brokerOrderID,
		Status:         normalizeTradovateStatus(order.OrdStatus),
		FilledQuantity: order.FilledQty,
		AvgFillPrice:   order.AvgPx,
	}, nil
}

func (t *TradovateClient) GetOpenPositions(ctx context.Context, creds Credentials) ([]types.BrokerPosition, error) {
	token, err := t.accessToken(ctx, creds)
	if err != nil {
		return nil, err
	}

	var list []struct {
		ContractID int64   `json:"contractId"`
		NetPos     float64 `json:"netPos"`
		NetPrice   float64 `json:"netPrice"`
	}
	if err := t.doAuthed(ctx, http.MethodGet, "/position/list", token, nil, &list); err != nil {
		return nil, err
	}

	var positions []types.BrokerPosition
	for _, p := range list {
		if p.NetPos == 0 {
			continue
		}
		side, qty := "LONG", p.NetPos
		if qty < 0 {
			side, qty = "SHORT", -qty
		}
		positions = append(positions, types.BrokerPosition{
			Symbol:     fmt.Sprintf("contract:%d", p.ContractID),
			Side:       side,
			Quantity:   qty,
			EntryPrice: p.NetPrice,
		})
	}
	return positions, nil
}

// accessToken returns a cached token or requests a new one.
func (t *TradovateClient) accessToken(ctx context.Context, creds Credentials) (string, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return "", ErrMissingCredential
	}

	t.mu.Lock()
	cached, ok := t.tokens[creds.APIKey]
	t.mu.Unlock()
	if ok && time.Until(cached.expiresAt) > time.Minute {
		return cached.accessToken, nil
	}

	if err := t.wait(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]string{
		"name":     creds.APIKey,
		"password": creds.APISecret,
		"appId":    "quantdesk",
		"cid":      "quantdesk",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/auth/accesstokenrequest", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("tradovate auth returned status %d: %s", resp.StatusCode, raw)
	}

	var body struct {
		AccessToken    string `json:"accessToken"`
		ExpirationTime string `json:"expirationTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("tradovate auth returned no access token")
	}

	expires := time.Now().Add(time.Hour)
	if ts, err := time.Parse(time.RFC3339, body.ExpirationTime); err == nil {
		expires = ts
	}

	t.mu.Lock()
	t.tokens[creds.APIKey] = tradovateToken{accessToken: body.AccessToken, expiresAt: expires}
	t.mu.Unlock()

	return body.AccessToken, nil
}

func (t *TradovateClient) doAuthed(ctx context.Context, method, path, token string, payload interface{}, out interface{}) error {
	if err := t.wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("tradovate returned status %d: %s", resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func normalizeTradovateStatus(status string) string {
	switch status {
	case "Working", "PendingNew":
		return types.OrderStatusPending
	case "Filled":
		return types.OrderStatusFilled
	case "Canceled":
		return types.OrderStatusCancelled
	case "Rejected":
		return types.OrderStatusRejected
	default:
		return types.OrderStatusPending
	}
}
