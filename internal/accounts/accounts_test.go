package accounts

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quantdesk/quantdesk-api/internal/database"
	"github.com/quantdesk/quantdesk-api/internal/types"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestCreate(t *testing.T) {
	svc := NewService(setupDB(t))

	t.Run("links a live account", func(t *testing.T) {
		account, err := svc.Create("user_1", CreateParams{
			Broker:    types.BrokerBinance,
			Label:     "main",
			APIKey:    "key",
			APISecret: "secret",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, account.AccountID)
		assert.False(t, account.DemoMode)
		assert.Equal(t, "USDT", account.Currency)
	})

	t.Run("missing credentials force demo mode", func(t *testing.T) {
		account, err := svc.Create("user_1", CreateParams{Broker: types.BrokerBybit})
		require.NoError(t, err)
		assert.True(t, account.DemoMode)
	})

	t.Run("demo broker is always demo", func(t *testing.T) {
		account, err := svc.Create("user_1", CreateParams{
			Broker:    types.BrokerDemo,
			APIKey:    "key",
			APISecret: "secret",
			DemoMode:  false,
		})
		require.NoError(t, err)
		assert.True(t, account.DemoMode)
	})

	t.Run("ninjatrader needs only an api key", func(t *testing.T) {
		account, err := svc.Create("user_1", CreateParams{
			Broker: types.BrokerNinjaTrader,
			APIKey: "gateway-token",
		})
		require.NoError(t, err)
		assert.False(t, account.DemoMode)
	})

	t.Run("rejects unknown broker", func(t *testing.T) {
		_, err := svc.Create("user_1", CreateParams{Broker: "etrade"})
		assert.ErrorIs(t, err, ErrInvalidBroker)
	})
}

func TestOwnershipScoping(t *testing.T) {
	svc := NewService(setupDB(t))

	mine, err := svc.Create("user_1", CreateParams{Broker: types.BrokerDemo})
	require.NoError(t, err)
	_, err = svc.Create("user_2", CreateParams{Broker: types.BrokerDemo})
	require.NoError(t, err)

	t.Run("list is scoped to the owner", func(t *testing.T) {
		list, err := svc.List("user_1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, mine.AccountID, list[0].AccountID)
	})

	t.Run("get refuses other users' accounts", func(t *testing.T) {
		_, err := svc.Get("user_2", mine.AccountID)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("delete removes the account", func(t *testing.T) {
		require.NoError(t, svc.Delete("user_1", mine.AccountID))
		_, err := svc.Get("user_1", mine.AccountID)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("delete refuses other users' accounts", func(t *testing.T) {
		other, err := svc.Create("user_2", CreateParams{Broker: types.BrokerDemo})
		require.NoError(t, err)
		assert.ErrorIs(t, svc.Delete("user_1", other.AccountID), ErrAccountNotFound)
	})
}
