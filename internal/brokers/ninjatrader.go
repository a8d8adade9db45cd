package brokers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

// NinjaTraderClient talks to a locally running NinjaTrader gateway exposing a
// small JSON API. The gateway authenticates with a static bearer token (the
// account's API key); the secret is unused.
type NinjaTraderClient struct {
	restClient
}

func NewNinjaTraderClient(baseURL string) *NinjaTraderClient {
	return &NinjaTraderClient{restClient: newRESTClient(baseURL, 5)}
}

func (n *NinjaTraderClient) Name() string { return types.BrokerNinjaTrader }

func (n *NinjaTraderClient) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	var body struct {
		Symbol string  `json:"symbol"`
		Last   float64 `json:"last"`
	}
	if err := n.do(ctx, http.MethodGet, "/quote/"+symbol, Credentials{}, nil, &body); err != nil {
		return nil, err
	}
	return &types.Ticker{Symbol: symbol, Price: body.Last, UpdatedAt: time.Now()}, nil
}

func (n *NinjaTraderClient) GetBalance(ctx context.Context, creds Credentials) ([]types.Balance, error) {
	if creds.APIKey == "" {
		return nil, ErrMissingCredential
	}
	var body struct {
		CashValue   float64 `json:"cashValue"`
		BuyingPower float64 `json:"buyingPower"`
	}
	if err := n.do(ctx, http.MethodGet, "/account", creds, nil, &body); err != nil {
		return nil, err
	}
	return []types.Balance{{Currency: "USD", Total: body.CashValue, Available: body.BuyingPower}}, nil
}

func (n *NinjaTraderClient) PlaceOrder(ctx context.Context, creds Credentials, req types.OrderRequest) (*types.OrderResult, error) {
	if creds.APIKey == "" {
		return nil, ErrMissingCredential
	}

	payload := map[string]interface{}{
		"instrument": req.Symbol,
		"action":     req.Side,
		"orderType":  req.OrderType,
		"quantity":   req.Quantity,
	}
	if req.OrderType == "LIMIT" {
		payload["limitPrice"] = req.Price
	}

	var body struct {
		OrderID string `json:"orderId"`
		State   string `json:"state"`
	}
	if err := n.do(ctx, http.MethodPost, "/orders", creds, payload, &body); err != nil {
		return nil, err
	}
	if body.State == "Rejected" {
		return nil, ErrOrderRejected
	}

	return &types.OrderResult{
		BrokerOrderID: body.OrderID,
		Status:        types.OrderStatusPending,
	}, nil
}

func (n *NinjaTraderClient) CancelOrder(ctx context.Context, creds Credentials, symbol, brokerOrderID string) error {
	return n.do(ctx, http.MethodDelete, "/orders/"+brokerOrderID, creds, nil, nil)
}

func (n *NinjaTraderClient) GetOrderStatus(ctx context.Context, creds Credentials, symbol, brokerOrderID string) (*types.OrderResult, error) {
	var body struct {
		OrderID  string  `json:"orderId"`
		State    string  `json:"state"`
		Filled   float64 `json:"filled"`
		AvgPrice float64 `json:"averageFillPrice"`
	}
	if err := n.do(ctx, http.MethodGet, "/orders/"+brokerOrderID, creds, nil, &body); err != nil {
		return nil, err
	}
	return &types.OrderResult{
		BrokerOrderID:  body.OrderID,
		Status:         normalizeNinjaStatus(body.State),
		FilledQuantity: body.Filled,
		AvgFillPrice:   body.AvgPrice,
	}, nil
}

func (n *NinjaTraderClient) GetOpenPositions(ctx context.Context, creds Credentials) ([]types.BrokerPosition, error) {
	var list []struct {
		Instrument   string  `json:"instrument"`
		MarketPos    string  `json:"marketPosition"`
		Quantity     float64 `json:"quantity"`
		AvgPrice     float64 `json:"averagePrice"`
	}
	if err := n.do(ctx, http.MethodGet, "/positions", creds, nil, &list); err != nil {
		return nil, err
	}

	var positions []types.BrokerPosition
	for _, p := range list {
		if p.Quantity == 0 {
			continue
		}
		side := "LONG"
		if p.MarketPos == "Short" {
			side = "SHORT"
		}
		positions = append(positions, types.BrokerPosition{
			Symbol:     p.Instrument,
			Side:       side,
			Quantity:   p.Quantity,
			EntryPrice: p.AvgPrice,
		})
	}
	return positions, nil
}

func (n *NinjaTraderClient) do(ctx context.Context, method, path string, creds Credentials, payload interface{}, out interface{}) error {
	if err := n.wait(ctx); err != nil {
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

	req, err := http.NewRequestWithContext(ctx, method, n.baseURL+path, body)
	if err != nil {
		return err
	}
	if creds.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ninjatrader gateway returned status %d: %s", resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func normalizeNinjaStatus(state string) string {
	switch state {
	case "Working", "Accepted", "Submitted":
		return types.OrderStatusPending
	case "Filled":
		return types.OrderStatusFilled
	case "PartFilled":
		return types.OrderStatusPartialFill
	case "Cancelled":
		return types.OrderStatusCancelled
	case "Rejected":
		return types.OrderStatusRejected
	default:
		return types.OrderStatusPending
	}
}
