package billing

import (
	"log/slog"

	"github.com/stripe/stripe-go/v79"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

// legacyAnnualThreshold is the unit amount in cents above which the
// deprecated inference assumes an annual price.
const legacyAnnualThreshold = 5000

// PlanResolver names the plan a subscription is on.
type PlanResolver struct {
	MonthlyPriceID string
	AnnualPriceID  string
	// Legacy enables price-amount inference as a last resort.
	Legacy bool
	Logger *slog.Logger
}

// Resolve checks, in order, the subscription's plan metadata, the configured
// price ids and the price's recurring interval. Only when all three are
// silent does the legacy amount inference run, if enabled.
func (r PlanResolver) Resolve(sub *stripe.Subscription) models.Plan {
	if sub == nil {
		return models.PlanUnknown
	}
	if p, err := models.ParsePlan(sub.Metadata["plan"]); err == nil && p != models.PlanUnknown {
		return p
	}

	price := firstPrice(sub)
	if price == nil {
		return models.PlanUnknown
	}
	switch {
	case price.ID != "" && price.ID == r.MonthlyPriceID:
		return models.PlanMonthly
	case price.ID != "" && price.ID == r.AnnualPriceID:
		return models.PlanAnnual
	}
	if price.Recurring != nil {
		switch price.Recurring.Interval {
		case stripe.PriceRecurringIntervalMonth:
			return models.PlanMonthly
		case stripe.PriceRecurringIntervalYear:
			return models.PlanAnnual
		}
	}

	if !r.Legacy {
		return models.PlanUnknown
	}
	plan := models.PlanMonthly
	if price.UnitAmount > legacyAnnualThreshold {
		plan = models.PlanAnnual
	}
	if r.Logger != nil {
		r.Logger.Warn("plan inferred from price amount; set plan metadata or price ids",
			"subscription", sub.ID, "price", price.ID, "amount", price.UnitAmount, "plan", plan)
	}
	return plan
}

func firstPrice(sub *stripe.Subscription) *stripe.Price {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0].Price
}

// TierForStatus maps a subscription status onto an access tier. Past-due
// subscriptions keep premium during the grace period.
func TierForStatus(sub *stripe.Subscription) models.Tier {
	if sub == nil {
		return models.TierFree
	}
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
		return models.TierPremium
	default:
		return models.TierFree
	}
}
