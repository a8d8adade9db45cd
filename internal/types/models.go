package types

import (
	"time"

	"gorm.io/gorm"
)

// Broker identifiers accepted on trading accounts.
const (
	BrokerBinance     = "binance"
	BrokerBybit       = "bybit"
	BrokerTradovate   = "tradovate"
	BrokerNinjaTrader = "ninjatrader"
	BrokerDemo        = "demo"
)

// Order lifecycle statuses.
const (
	OrderStatusPending     = "PENDING"
	OrderStatusFilled      = "FILLED"
	OrderStatusPartialFill = "PARTIALLY_FILLED"
	OrderStatusCancelled   = "CANCELLED"
	OrderStatusRejected    = "REJECTED"
)

// Position statuses.
const (
	PositionStatusOpen   = "OPEN"
	PositionStatusClosed = "CLOSED"
)

// Subscription plans and statuses.
const (
	PlanFree  = "free"
	PlanPro   = "pro"
	PlanElite = "elite"

	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

type User struct {
	gorm.Model   `json:"-"`
	UserID       string    `gorm:"uniqueIndex" json:"user_id"`
	Email        string    `gorm:"uniqueIndex" json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Plan         string    `json:"plan"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type TradingAccount struct {
	gorm.Model `json:"-"`
	AccountID  string    `gorm:"uniqueIndex" json:"account_id"`
	UserID     string    `gorm:"index" json:"user_id"`
	Broker     string    `json:"broker"`
	Label      string    `json:"label"`
	APIKey     string    `json:"-"`
	APISecret  string    `json:"-"`
	DemoMode   bool      `json:"demo_mode"`
	Balance    float64   `json:"balance"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Portfolio struct {
	gorm.Model    `json:"-"`
	PortfolioID   string    `gorm:"uniqueIndex" json:"portfolio_id"`
	UserID        string    `gorm:"uniqueIndex" json:"user_id"`
	TotalValue    float64   `json:"total_value"`
	CashBalance   float64   `json:"cash_balance"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Position struct {
	gorm.Model    `json:"-"`
	PositionID    string     `gorm:"uniqueIndex" json:"position_id"`
	AccountID     string     `gorm:"index" json:"account_id"`
	UserID        string     `gorm:"index" json:"user_id"`
	Symbol        string     `json:"symbol"`
	Side          string     `json:"side"` // LONG or SHORT
	Quantity      float64    `json:"quantity"`
	EntryPrice    float64    `json:"entry_price"`
	MarkPrice     float64    `json:"mark_price"`
	UnrealizedPnL float64    `gorm:"column:unrealized_pnl" json:"unrealized_pnl"`
	RealizedPnL   float64    `gorm:"column:realized_pnl" json:"realized_pnl"`
	Status        string     `json:"status"`
	OpenedAt      time.Time  `json:"opened_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

type Order struct {
	gorm.Model     `json:"-"`
	OrderID        string    `gorm:"uniqueIndex" json:"order_id"`
	AccountID      string    `gorm:"index" json:"account_id"`
	ClientID       string    `gorm:"index" json:"client_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`       // BUY or SELL
	OrderType      string    `json:"order_type"` // MARKET or LIMIT
	Quantity       float64   `json:"quantity"`
	Price          float64   `json:"price"`
	FilledQuantity float64   `json:"filled_quantity"`
	AvgFillPrice   float64   `json:"avg_fill_price"`
	Status         string    `json:"status"`
	BrokerOrderID  string    `json:"broker_order_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Subscription struct {
	gorm.Model           `json:"-"`
	SubscriptionID       string    `gorm:"uniqueIndex" json:"subscription_id"`
	UserID               string    `gorm:"index" json:"user_id"`
	StripeCustomerID     string    `gorm:"index" json:"-"`
	StripeSubscriptionID string    `gorm:"index" json:"-"`
	Plan                 string    `json:"plan"`
	Status               string    `json:"status"`
	CurrentPeriodEnd     time.Time `json:"current_period_end"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}
