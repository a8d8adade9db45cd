package billing

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
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

func TestGetSubscriptionDefaultsToFree(t *testing.T) {
	svc := NewService(setupDB(t))

	sub, err := svc.GetSubscription("user_1")
	require.NoError(t, err)
	assert.Equal(t, types.PlanFree, sub.Plan)
	assert.Equal(t, types.SubscriptionActive, sub.Status)

	active, err := svc.HasActivePaidPlan("user_1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestActivateSubscription(t *testing.T) {
	svc := NewService(setupDB(t))
	periodEnd := time.Now().Add(30 * 24 * time.Hour)

	sub, err := svc.ActivateSubscription("user_1", "cus_123", "sub_123", types.PlanPro, periodEnd)
	require.NoError(t, err)
	assert.Equal(t, types.PlanPro, sub.Plan)
	assert.Equal(t, types.SubscriptionActive, sub.Status)

	active, err := svc.HasActivePaidPlan("user_1")
	require.NoError(t, err)
	assert.True(t, active)

	t.Run("unknown plans default to pro", func(t *testing.T) {
		sub, err := svc.ActivateSubscription("user_2", "cus_456", "sub_456", "platinum", periodEnd)
		require.NoError(t, err)
		assert.Equal(t, types.PlanPro, sub.Plan)
	})

	t.Run("re-activation updates in place", func(t *testing.T) {
		upgraded, err := svc.ActivateSubscription("user_1", "cus_123", "sub_123", types.PlanElite, periodEnd)
		require.NoError(t, err)
		assert.Equal(t, sub.SubscriptionID, upgraded.SubscriptionID)
		assert.Equal(t, types.PlanElite, upgraded.Plan)
	})
}

func TestHasActivePaidPlan(t *testing.T) {
	t.Run("lapsed period is not active", func(t *testing.T) {
		svc := NewService(setupDB(t))
		_, err := svc.ActivateSubscription("user_1", "cus_1", "sub_1", types.PlanPro, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		active, err := svc.HasActivePaidPlan("user_1")
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("past_due is not active", func(t *testing.T) {
		svc := NewService(setupDB(t))
		_, err := svc.ActivateSubscription("user_1", "cus_1", "sub_1", types.PlanPro, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, svc.UpdateStatus("sub_1", types.SubscriptionPastDue, time.Time{}))

		active, err := svc.HasActivePaidPlan("user_1")
		require.NoError(t, err)
		assert.False(t, active)
	})
}

func TestUpdateStatus(t *testing.T) {
	svc := NewService(setupDB(t))
	_, err := svc.ActivateSubscription("user_1", "cus_1", "sub_1", types.PlanElite, time.Now().Add(time.Hour))
	require.NoError(t, err)

	t.Run("cancellation downgrades to free", func(t *testing.T) {
		require.NoError(t, svc.UpdateStatus("sub_1", types.SubscriptionCanceled, time.Time{}))

		sub, err := svc.GetSubscription("user_1")
		require.NoError(t, err)
		assert.Equal(t, types.PlanFree, sub.Plan)
		assert.Equal(t, types.SubscriptionCanceled, sub.Status)

		active, err := svc.HasActivePaidPlan("user_1")
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("unknown stripe subscription errors", func(t *testing.T) {
		assert.ErrorIs(t, svc.UpdateStatus("sub_unknown", types.SubscriptionActive, time.Time{}), ErrNoSubscription)
	})
}

func TestCheckoutCompletedWithoutUserReference(t *testing.T) {
	db := setupDB(t)
	svc := NewService(db)
	h := NewGinHandlers(svc, "whsec_test")

	event := stripe.Event{
		Type: "checkout.session.completed",
		Data: &stripe.EventData{
			Raw: json.RawMessage(`{"id": "cs_test_1", "client_reference_id": "", "metadata": {"plan": "pro"}}`),
		},
	}

	// The event is flagged as unmatchable so the webhook acknowledges it
	// instead of recording a subscription owned by nobody.
	assert.ErrorIs(t, h.processEvent(event), ErrNoSubscription)

	var count int64
	require.NoError(t, db.Model(&types.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMonthlyPrice(t *testing.T) {
	assert.True(t, MonthlyPrice(types.PlanFree).IsZero())
	assert.True(t, MonthlyPrice(types.PlanPro).Equal(decimal.NewFromInt(29)))
	assert.True(t, MonthlyPrice(types.PlanElite).Equal(decimal.NewFromInt(99)))
	assert.True(t, MonthlyPrice("bogus").IsZero())
}
