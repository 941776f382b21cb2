package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

var ErrWebhookSecret = errors.New("billing: webhook secret not configured")

// ParseEvent verifies a webhook payload. Without a secret the payload is
// only accepted when allowUnverified is set, which development does.
func (s *Service) ParseEvent(payload []byte, signature string, allowUnverified bool) (stripe.Event, error) {
	if s.cfg.WebhookSecret == "" {
		if !allowUnverified {
			return stripe.Event{}, ErrWebhookSecret
		}
		var ev stripe.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return stripe.Event{}, fmt.Errorf("decode event: %w", err)
		}
		s.logger.Warn("accepting unverified webhook event", "type", ev.Type)
		return ev, nil
	}
	return webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

// HandleEvent applies a Stripe event to profile tiers. Tier write failures
// are logged, not returned, so the event is acknowledged; only malformed
// payloads produce an error.
func (s *Service) HandleEvent(ctx context.Context, ev stripe.Event) error {
	logger := s.logger.With("event", ev.ID, "type", ev.Type)
	if ev.Data == nil {
		return errors.New("event has no data")
	}

	switch ev.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		userID := sess.Metadata["userId"]
		if userID == "" {
			return ErrMissingUser
		}
		s.applyTier(ctx, logger, userID, models.TierPremium)
		if sess.Customer != nil && sess.Customer.ID != "" {
			if err := s.store.SetStripeCustomer(ctx, userID, sess.Customer.ID); err != nil {
				logger.Warn("failed to record stripe customer", "user", userID, "error", err)
			}
		}

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		userID := sub.Metadata["userId"]
		if userID == "" {
			logger.Warn("subscription has no userId metadata", "subscription", sub.ID)
			return nil
		}
		tier := TierForStatus(&sub)
		if ev.Type == "customer.subscription.deleted" {
			tier = models.TierFree
		}
		logger.Info("subscription changed", "subscription", sub.ID, "status", sub.Status,
			"cancel_at_period_end", sub.CancelAtPeriodEnd)
		s.applyTier(ctx, logger, userID, tier)

	case "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		if inv.Subscription == nil || inv.Subscription.ID == "" {
			return nil
		}
		sub, err := s.api.GetSubscription(inv.Subscription.ID)
		if err != nil {
			logger.Error("failed to load subscription for invoice", "invoice", inv.ID, "error", err)
			return nil
		}
		userID := sub.Metadata["userId"]
		if userID == "" {
			logger.Warn("subscription has no userId metadata", "subscription", sub.ID)
			return nil
		}
		s.applyTier(ctx, logger, userID, TierForStatus(sub))

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		logger.Warn("invoice payment failed", "invoice", inv.ID, "amount_due", inv.AmountDue)

	default:
		logger.Debug("ignoring webhook event")
	}
	return nil
}

func (s *Service) applyTier(ctx context.Context, logger *slog.Logger, userID string, tier models.Tier) {
	if _, err := s.setTier(ctx, userID, tier); err != nil {
		logger.Error("webhook tier update failed", "user", userID, "tier", tier, "error", err)
	}
}
