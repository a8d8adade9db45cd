// Package trading implements the unified trading manager: it resolves the
// broker behind a trading account, dispatches orders and normalizes the
// results into persisted records.
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/quantdesk/quantdesk-api/internal/accounts"
	"github.com/quantdesk/quantdesk-api/internal/brokers"
	"github.com/quantdesk/quantdesk-api/internal/types"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrPlanRequired       = errors.New("live trading requires an active paid subscription")
	ErrOrderNotCancelable = errors.New("order can no longer be cancelled")
	ErrInvalidOrder       = errors.New("invalid order")
)

// PlanChecker reports whether a user may trade against live brokers.
type PlanChecker interface {
	HasActivePaidPlan(userID string) (bool, error)
}

// Service is the unified trading manager.
type Service struct {
	db       *Database
	accounts *accounts.Service
	registry *brokers.Registry
	plans    PlanChecker
}

// NewService creates the trading manager.
func NewService(gormDB *gorm.DB, accountSvc *accounts.Service, registry *brokers.Registry, plans PlanChecker) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		accounts: accountSvc,
		registry: registry,
		plans:    plans,
	}
}

// PlaceOrderParams is the normalized order submission from the API layer.
type PlaceOrderParams struct {
	AccountID string
	Symbol    string
	Side      string
	OrderType string
	Quantity  float64
	Price     float64
}

func (p PlaceOrderParams) validate() error {
	switch {
	case p.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	case p.Side != "BUY" && p.Side != "SELL":
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	case p.OrderType != "MARKET" && p.OrderType != "LIMIT":
		return fmt.Errorf("%w: order_type must be MARKET or LIMIT", ErrInvalidOrder)
	case p.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	case p.OrderType == "LIMIT" && p.Price <= 0:
		return fmt.Errorf("%w: price is required for limit orders", ErrInvalidOrder)
	}
	return nil
}

// PlaceOrder routes the order to the account's broker and persists the
// normalized result. The idempotency key prevents duplicate submission.
func (s *Service) PlaceOrder(ctx context.Context, userID string, p PlaceOrderParams, idempotencyKey string) (*types.Order, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	// Replay returns the previously created order.
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err == nil && record != nil && record.ResourceID != "" && record.ExpiresAt.After(time.Now()) {
		return s.db.GetOrder(record.ResourceID)
	}

	account, err := s.accounts.Get(userID, p.AccountID)
	if err != nil {
		return nil, err
	}

	client, creds, err := s.resolveBroker(userID, account)
	if err != nil {
		return nil, err
	}

	order := &types.Order{
		OrderID:   uuid.New().String(),
		AccountID: account.AccountID,
		ClientID:  userID,
		Symbol:    p.Symbol,
		Side:      p.Side,
		OrderType: p.OrderType,
		Quantity:  p.Quantity,
		Price:     p.Price,
		Status:    types.OrderStatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	result, err := client.PlaceOrder(ctx, creds, types.OrderRequest{
		Symbol:    p.Symbol,
		Side:      p.Side,
		OrderType: p.OrderType,
		Quantity:  p.Quantity,
		Price:     p.Price,
	})
	if err != nil {
		if errors.Is(err, brokers.ErrOrderRejected) {
			order.Status = types.OrderStatusRejected
			if dbErr := s.db.CreateOrderWithIdempotency(order, idempotencyKey); dbErr != nil {
				return nil, dbErr
			}
			return order, nil
		}
		return nil, fmt.Errorf("broker %s: %w", client.Name(), err)
	}

	order.BrokerOrderID = result.BrokerOrderID
	order.Status = result.Status
	order.FilledQuantity = result.FilledQuantity
	order.AvgFillPrice = result.AvgFillPrice

	if err := s.db.CreateOrderWithIdempotency(order, idempotencyKey); err != nil {
		return nil, err
	}

	if order.FilledQuantity > 0 {
		if err := s.applyFill(order); err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to apply fill to positions")
		}
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("account_id", order.AccountID).
		Str("broker", client.Name()).
		Str("status", order.Status).
		Float64("filled_quantity", order.FilledQuantity).
		Msg("order placed")

	return order, nil
}

// CancelOrder cancels a pending order at the broker and marks it locally.
func (s *Service) CancelOrder(ctx context.Context, userID, orderID string) (*types.Order, error) {
	order, err := s.db.GetOrderByOrderIDAndClientID(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status != types.OrderStatusPending && order.Status != types.OrderStatusPartialFill {
		return nil, ErrOrderNotCancelable
	}

	account, err := s.accounts.Get(userID, order.AccountID)
	if err != nil {
		return nil, err
	}
	client, creds, err := s.resolveBroker(userID, account)
	if err != nil {
		return nil, err
	}

	if err := client.CancelOrder(ctx, creds, order.Symbol, order.BrokerOrderID); err != nil {
		return nil, fmt.Errorf("broker %s: %w", client.Name(), err)
	}

	order.Status = types.OrderStatusCancelled
	order.UpdatedAt = time.Now()
	if err := s.db.UpdateOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns an order scoped to the user.
func (s *Service) GetOrder(userID, orderID string) (*types.Order, error) {
	order, err := s.db.GetOrderByOrderIDAndClientID(orderID, userID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns the user's orders, most recent first.
func (s *Service) ListOrders(userID string, limit int) ([]types.Order, error) {
	return s.db.ListOrders(userID, limit)
}

// ListOpenPositions returns the user's open positions.
func (s *Service) ListOpenPositions(userID string) ([]types.Position, error) {
	return s.db.ListOpenPositions(userID)
}

// resolveBroker picks the demo broker for demo accounts, otherwise the live
// client, gated on the user's subscription.
func (s *Service) resolveBroker(userID string, account *types.TradingAccount) (brokers.Client, brokers.Credentials, error) {
	creds := brokers.Credentials{APIKey: account.APIKey, APISecret: account.APISecret}

	if account.DemoMode || account.Broker == types.BrokerDemo {
		// Demo fills are tracked per account.
		creds.APIKey = account.AccountID
		return s.registry.Demo(), creds, nil
	}

	if s.plans != nil {
		ok, err := s.plans.HasActivePaidPlan(userID)
		if err != nil {
			return nil, brokers.Credentials{}, err
		}
		if !ok {
			return nil, brokers.Credentials{}, ErrPlanRequired
		}
	}

	client, err := s.registry.Get(account.Broker)
	if err != nil {
		return nil, brokers.Credentials{}, err
	}
	return client, creds, nil
}

// applyFill nets a filled order into the account's position for the symbol.
func (s *Service) applyFill(order *types.Order) error {
	position, err := s.db.GetOpenPosition(order.AccountID, order.Symbol)
	if err != nil {
		return err
	}

	qty := order.FilledQuantity
	if order.Side == "SELL" {
		qty = -qty
	}

	if position == nil {
		side := "LONG"
		if qty < 0 {
			side = "SHORT"
			qty = -qty
		}
		return s.db.CreatePosition(&types.Position{
			PositionID: uuid.New().String(),
			AccountID:  order.AccountID,
			UserID:     order.ClientID,
			Symbol:     order.Symbol,
			Side:       side,
			Quantity:   qty,
			EntryPrice: order.AvgFillPrice,
			MarkPrice:  order.AvgFillPrice,
			Status:     types.PositionStatusOpen,
			OpenedAt:   time.Now(),
		})
	}

	signed := position.Quantity
	if position.Side == "SHORT" {
		signed = -signed
	}
	prior := signed
	signed += qty

	switch {
	case signed == 0:
		now := time.Now()
		position.RealizedPnL += realizedDelta(position, order.AvgFillPrice, prior)
		position.Quantity = 0
		position.Status = types.PositionStatusClosed
		position.ClosedAt = &now
	case (signed > 0) == (prior > 0) || prior == 0:
		// Same direction: blend the entry price over the combined size.
		newQty := abs(signed)
		if abs(signed) > abs(prior) {
			added := abs(signed) - abs(prior)
			position.EntryPrice = (position.EntryPrice*abs(prior) + order.AvgFillPrice*added) / newQty
		} else {
			position.RealizedPnL += realizedDelta(position, order.AvgFillPrice, prior-signed)
		}
		position.Quantity = newQty
	default:
		// Direction flipped: close out and re-open the remainder.
		position.RealizedPnL += realizedDelta(position, order.AvgFillPrice, prior)
		position.Quantity = abs(signed)
		position.EntryPrice = order.AvgFillPrice
		if signed > 0 {
			position.Side = "LONG"
		} else {
			position.Side = "SHORT"
		}
	}

	if signed > 0 {
		position.Side = "LONG"
	} else if signed < 0 {
		position.Side = "SHORT"
	}
	position.MarkPrice = order.AvgFillPrice

	return s.db.UpdatePosition(position)
}

// realizedDelta is the P&L realized by closing size units at exitPrice, where
// size carries the sign of the prior exposure.
func realizedDelta(position *types.Position, exitPrice, size float64) float64 {
	if size > 0 {
		return (exitPrice - position.EntryPrice) * size
	}
	return (position.EntryPrice - exitPrice) * (-size)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
