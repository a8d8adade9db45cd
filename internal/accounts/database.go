package accounts

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

func (d *Database) CreateAccount(account *types.TradingAccount) error {
	return d.db.Create(account).Error
}

func (d *Database) ListAccounts(userID string) ([]types.TradingAccount, error) {
	var accounts []types.TradingAccount
	if err := d.db.Where("user_id = ?", userID).Order("created_at").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (d *Database) GetAccount(userID, accountID string) (*types.TradingAccount, error) {
	var account types.TradingAccount
	err := d.db.Where("user_id = ? AND account_id = ?", userID, accountID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (d *Database) DeleteAccount(account *types.TradingAccount) error {
	return d.db.Delete(account).Error
}
