package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/quantdesk/quantdesk-api/internal/types"
	"github.com/quantdesk/quantdesk-api/pkg/response"
)

const maxWebhookBody = 65536

// GinHandlers contains HTTP handlers for billing endpoints.
type GinHandlers struct {
	service       *Service
	webhookSecret string
}

func NewGinHandlers(service *Service, webhookSecret string) *GinHandlers {
	return &GinHandlers{
		service:       service,
		webhookSecret: webhookSecret,
	}
}

// SubscriptionHandler handles GET /billing/subscription.
func (h *GinHandlers) SubscriptionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := h.service.GetSubscription(c.GetString("userID"))
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		price := MonthlyPrice(sub.Plan)
		response.Success(c, gin.H{
			"subscription":  sub,
			"monthly_price": price.StringFixed(2),
		})
	}
}

// WebhookHandler handles POST /billing/webhook. The payload signature is
// verified against the endpoint secret before any state changes.
func (h *GinHandlers) WebhookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			response.BadRequest(c, "Failed to read webhook payload")
			return
		}

		event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
		if err != nil {
			log.Warn().Err(err).Msg("stripe webhook signature verification failed")
			response.BadRequest(c, "Invalid webhook signature")
			return
		}

		err = h.processEvent(event)
		if errors.Is(err, ErrNoSubscription) {
			// Events for subscriptions we never recorded are acknowledged so
			// Stripe stops retrying them.
			log.Warn().Str("event_type", string(event.Type)).Msg("stripe event references unknown subscription")
			err = nil
		}
		if err != nil {
			log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to process stripe event")
			response.InternalError(c, "Failed to process event")
			return
		}

		response.Success(c, gin.H{"received": true})
	}
}

func (h *GinHandlers) processEvent(event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return err
		}

		userID := session.ClientReferenceID
		if userID == "" {
			// Checkout sessions created outside our flow carry no user
			// reference. Acknowledge without creating an orphaned row.
			return fmt.Errorf("%w: checkout session %s has no client reference", ErrNoSubscription, session.ID)
		}
		plan := session.Metadata["plan"]
		if plan == "" {
			plan = types.PlanPro
		}

		customerID := ""
		if session.Customer != nil {
			customerID = session.Customer.ID
		}
		subID := ""
		if session.Subscription != nil {
			subID = session.Subscription.ID
		}

		_, err := h.service.ActivateSubscription(userID, customerID, subID, plan, time.Now().AddDate(0, 1, 0))
		return err

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		return h.service.UpdateStatus(sub.ID, normalizeStripeStatus(sub.Status), time.Unix(sub.CurrentPeriodEnd, 0))

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return err
		}
		return h.service.UpdateStatus(sub.ID, types.SubscriptionCanceled, time.Time{})

	default:
		// Unhandled event types are acknowledged without action.
		log.Debug().Str("event_type", string(event.Type)).Msg("ignoring stripe event")
		return nil
	}
}

func normalizeStripeStatus(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return types.SubscriptionActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return types.SubscriptionPastDue
	default:
		return types.SubscriptionCanceled
	}
}
