package trading

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) GetOrderByOrderIDAndClientID(orderID, clientID string) (*types.Order, error) {
	var order types.Order
	err := d.db.Where("order_id = ? AND client_id = ?", orderID, clientID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (d *Database) ListOrders(clientID string, limit int) ([]types.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var orders []types.Order
	err := d.db.Where("client_id = ?", clientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *Database) UpdateOrder(order *types.Order) error {
	return d.db.Save(order).Error
}

// CreateOrderWithIdempotency creates the order and its idempotency record in
// one transaction. An expired record holding the same key is cleared first so
// a key reused after the retention window starts a fresh order rather than
// tripping the unique index.
func (d *Database) CreateOrderWithIdempotency(order *types.Order, idempotencyKey string) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		err := tx.Where("idempotency_key = ? AND expires_at <= ?", idempotencyKey, time.Now()).
			Delete(&types.IdempotencyRecord{}).Error
		if err != nil {
			return err
		}
		record := types.IdempotencyRecord{
			IdempotencyKey: idempotencyKey,
			ResourceID:     order.OrderID,
			ResourceType:   "order",
			ExpiresAt:      time.Now().Add(24 * time.Hour),
		}
		return tx.Create(&record).Error
	})
}

// GetIdempotencyRecord retrieves an idempotency record by key. A missing key
// returns an empty record rather than an error.
func (d *Database) GetIdempotencyRecord(key string) (*types.IdempotencyRecord, error) {
	var record types.IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &record, nil
		}
		return nil, err
	}
	return &record, nil
}

func (d *Database) CreatePosition(position *types.Position) error {
	return d.db.Create(position).Error
}

func (d *Database) UpdatePosition(position *types.Position) error {
	return d.db.Save(position).Error
}

func (d *Database) GetOpenPosition(accountID, symbol string) (*types.Position, error) {
	var position types.Position
	err := d.db.Where("account_id = ? AND symbol = ? AND status = ?", accountID, symbol, types.PositionStatusOpen).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

func (d *Database) ListOpenPositions(userID string) ([]types.Position, error) {
	var positions []types.Position
	err := d.db.Where("user_id = ? AND status = ?", userID, types.PositionStatusOpen).
		Order("opened_at").
		Find(&positions).Error
	if err != nil {
		return nil, err
	}
	return positions, nil
}
