package app

import (
	"log/slog"

	"github.com/Edjavier-collab/Main2MI-sub000/app/billing"
	"github.com/Edjavier-collab/Main2MI-sub000/app/config"
	"github.com/Edjavier-collab/Main2MI-sub000/app/store"
)

// NewBilling wires the Stripe API key and returns the billing service, or
// nil when no secret key is configured.
func NewBilling(cfg config.StripeConfig, st store.Store, logger *slog.Logger) Billing {
	if cfg.SecretKey == "" {
		logger.Warn("STRIPE_SECRET_KEY not set, billing routes disabled")
		return nil
	}
	if cfg.LegacyPlanInference {
		logger.Warn("STRIPE_LEGACY_PLAN_INFERENCE enabled; plans may be inferred from price amounts")
	}
	return billing.NewService(billing.NewStripeAPI(cfg.SecretKey), st, cfg, logger)
}
