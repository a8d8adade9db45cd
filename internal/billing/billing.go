// Package billing keeps subscription records in sync with Stripe and answers
// plan-gating questions for the rest of the API.
package billing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/quantdesk/quantdesk-api/internal/types"
)

var ErrNoSubscription = errors.New("no subscription on record")

// Plan prices in USD per month, used for invoice summaries.
var planPrices = map[string]decimal.Decimal{
	types.PlanFree:  decimal.Zero,
	types.PlanPro:   decimal.NewFromInt(29),
	types.PlanElite: decimal.NewFromInt(99),
}

// Service manages subscription state.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{db: NewDatabase(gormDB)}
}

// GetSubscription returns the user's subscription, defaulting to the free
// plan when none exists.
func (s *Service) GetSubscription(userID string) (*types.Subscription, error) {
	sub, err := s.db.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &types.Subscription{
			SubscriptionID: "",
			UserID:         userID,
			Plan:           types.PlanFree,
			Status:         types.SubscriptionActive,
		}, nil
	}
	return sub, nil
}

// HasActivePaidPlan reports whether the user holds an active pro or elite
// subscription that has not lapsed.
func (s *Service) HasActivePaidPlan(userID string) (bool, error) {
	sub, err := s.db.GetByUserID(userID)
	if err != nil {
		return false, err
	}
	if sub == nil || sub.Plan == types.PlanFree {
		return false, nil
	}
	if sub.Status != types.SubscriptionActive {
		return false, nil
	}
	if !sub.CurrentPeriodEnd.IsZero() && sub.CurrentPeriodEnd.Before(time.Now()) {
		return false, nil
	}
	return true, nil
}

// ActivateSubscription records a newly purchased subscription for the user.
func (s *Service) ActivateSubscription(userID, customerID, stripeSubID, plan string, periodEnd time.Time) (*types.Subscription, error) {
	if _, ok := planPrices[plan]; !ok {
		plan = types.PlanPro
	}

	sub, err := s.db.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		sub = &types.Subscription{
			SubscriptionID: uuid.New().String(),
			UserID:         userID,
			CreatedAt:      time.Now(),
		}
	}

	sub.StripeCustomerID = customerID
	sub.StripeSubscriptionID = stripeSubID
	sub.Plan = plan
	sub.Status = types.SubscriptionActive
	sub.CurrentPeriodEnd = periodEnd
	sub.UpdatedAt = time.Now()

	if err := s.db.Upsert(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// UpdateStatus applies a status change pushed by Stripe for a known
// subscription.
func (s *Service) UpdateStatus(stripeSubID, status string, periodEnd time.Time) error {
	sub, err := s.db.GetByStripeSubscriptionID(stripeSubID)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrNoSubscription
	}

	sub.Status = status
	if !periodEnd.IsZero() {
		sub.CurrentPeriodEnd = periodEnd
	}
	if status == types.SubscriptionCanceled {
		sub.Plan = types.PlanFree
	}
	sub.UpdatedAt = time.Now()
	return s.db.Upsert(sub)
}

// MonthlyPrice returns the price of a plan as a decimal amount in USD.
func MonthlyPrice(plan string) decimal.Decimal {
	if price, ok := planPrices[plan]; ok {
		return price
	}
	return decimal.Zero
}
