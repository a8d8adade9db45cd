package portfolio

import (
	"errors"

	"gorm.io/gorm"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
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

func (d *Database) UpdatePosition(position *types.Position) error {
	return d.db.Save(position).Error
}

func (d *Database) GetPortfolio(userID string) (*types.Portfolio, error) {
	var portfolio types.Portfolio
	if err := d.db.Where("user_id = ?", userID).First(&portfolio).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &portfolio, nil
}

func (d *Database) UpsertPortfolio(portfolio *types.Portfolio) error {
	return d.db.Save(portfolio).Error
}

// SumRealizedPnL totals realized P&L across all of the user's positions.
func (d *Database) SumRealizedPnL(userID string) (float64, error) {
	var total float64
	err := d.db.Model(&types.Position{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(realized_pnl), 0)").
		Scan(&total).Error
	return total, err
}

// ActiveUserIDs returns the distinct users holding open positions.
func (d *Database) ActiveUserIDs() ([]string, error) {
	var userIDs []string
	err := d.db.Model(&types.Position{}).
		Where("status = ?", types.PositionStatusOpen).
		Distinct().
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}
