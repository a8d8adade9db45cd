package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/quantdesk/quantdesk-api/internal/database/migrations"
	"github.com/quantdesk/quantdesk-api/internal/types"
)

// NewDatabase opens the application database. A postgres DSN selects the
// production driver; an empty DSN falls back to a local sqlite file for
// development.
func NewDatabase(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if dsn != "" {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open("quantdesk.db")
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs schema migrations. Exposed so tests can migrate in-memory
// databases.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&types.User{},
		&types.TradingAccount{},
		&types.Portfolio{},
		&types.Position{},
		&types.Order{},
		&types.Subscription{},
		&types.IdempotencyRecord{},
	)
	if err != nil {
		return err
	}

	if err := migrations.AddTradingIndexes(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
