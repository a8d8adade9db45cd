package types

import "time"

// Ticker is a point-in-time price for a symbol.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Candle is a single OHLCV bar.
type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// OrderRequest is the normalized order submission passed to broker clients.
type OrderRequest struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	OrderType string  `json:"order_type"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
}

// OrderResult is the normalized broker response to an order submission.
type OrderResult struct {
	BrokerOrderID  string  `json:"broker_order_id"`
	Status         string  `json:"status"`
	FilledQuantity float64 `json:"filled_quantity"`
	AvgFillPrice   float64 `json:"avg_fill_price"`
	Fee            float64 `json:"fee"`
}

// Balance is a broker account balance snapshot.
type Balance struct {
	Currency  string  `json:"currency"`
	Total     float64 `json:"total"`
	Available float64 `json:"available"`
}

// BrokerPosition is an open position as reported by a broker.
type BrokerPosition struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	MarkPrice  float64 `json:"mark_price"`
}
