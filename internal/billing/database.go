package billing

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

func (d *Database) GetByUserID(userID string) (*types.Subscription, error) {
	var sub types.Subscription
	if err := d.db.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (d *Database) GetByStripeSubscriptionID(stripeSubID string) (*types.Subscription, error) {
	var sub types.Subscription
	if err := d.db.Where("stripe_subscription_id = ?", stripeSubID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (d *Database) Upsert(sub *types.Subscription) error {
	return d.db.Save(sub).Error
}
