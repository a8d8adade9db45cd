package migrations

import (
	"gorm.io/gorm"
)

// AddTradingIndexes adds the composite indexes behind the dashboard's hottest
// query patterns: order history per user and open positions per account.
func AddTradingIndexes(db *gorm.DB) error {
	indexes := []string{
		// Order history listing, newest first
		`CREATE INDEX IF NOT EXISTS idx_orders_client_created
		 ON orders(client_id, created_at)`,

		// Open position lookups during fills and portfolio refresh
		`CREATE INDEX IF NOT EXISTS idx_positions_account_symbol_status
		 ON positions(account_id, symbol, status)`,

		// Portfolio refresher scanning per user
		`CREATE INDEX IF NOT EXISTS idx_positions_user_status
		 ON positions(user_id, status)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}
	return nil
}
