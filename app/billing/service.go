package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"

	"github.com/Edjavier-collab/Main2MI-sub000/app/config"
	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/app/store"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/retry"
)

var (
	ErrInvalidPlan      = errors.New("billing: plan must be monthly or annual")
	ErrNotConfigured    = errors.New("billing: stripe not configured")
	ErrNotPaid          = errors.New("billing: checkout session not paid")
	ErrMissingUser      = errors.New("billing: checkout session has no userId metadata")
	ErrNoCustomer       = errors.New("billing: no stripe customer")
	ErrNoSubscription   = errors.New("billing: no active subscription")
	ErrNothingToRestore = errors.New("billing: no subscription scheduled for cancellation")
	ErrAlreadyAnnual    = errors.New("billing: subscription is already annual")
	ErrNotMonthly       = errors.New("billing: only monthly subscriptions can be upgraded")
)

// SubscriptionError carries context for a missing subscription.
type SubscriptionError struct {
	Err error
	// PremiumMismatch is set when the profile says premium but Stripe has nothing.
	PremiumMismatch bool
	// Statuses lists non-active subscriptions found for the customer.
	Statuses []string
}

func (e *SubscriptionError) Error() string {
	msg := e.Err.Error()
	if len(e.Statuses) > 0 {
		msg += " (found: " + strings.Join(e.Statuses, ", ") + ")"
	}
	if e.PremiumMismatch {
		msg += "; account shows premium, contact support"
	}
	return msg
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// TierStore is the part of the profile store billing writes to.
type TierStore interface {
	GetUserProfile(ctx context.Context, userID string) (*models.Profile, error)
	CreateUserProfile(ctx context.Context, userID string, tier models.Tier) (*models.Profile, error)
	UpdateTier(ctx context.Context, userID string, tier models.Tier) (*models.Profile, error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
}

// Service implements checkout, subscription management and tier sync.
type Service struct {
	api    API
	store  TierStore
	cfg    config.StripeConfig
	plans  PlanResolver
	retry  retry.Runner
	logger *slog.Logger
}

func NewService(api API, st TierStore, cfg config.StripeConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "billing")
	return &Service{
		api:   api,
		store: st,
		cfg:   cfg,
		plans: PlanResolver{
			MonthlyPriceID: cfg.PriceIDMonthly,
			AnnualPriceID:  cfg.PriceIDAnnual,
			Legacy:         cfg.LegacyPlanInference,
			Logger:         logger,
		},
		logger: logger,
	}
}

// WithRetry replaces the runner used for tier writes.
func (s *Service) WithRetry(r retry.Runner) *Service {
	s.retry = r
	return s
}

func (s *Service) priceFor(plan models.Plan) (string, error) {
	var id string
	switch plan {
	case models.PlanMonthly:
		id = s.cfg.PriceIDMonthly
	case models.PlanAnnual:
		id = s.cfg.PriceIDAnnual
	default:
		return "", ErrInvalidPlan
	}
	if id == "" {
		return "", fmt.Errorf("%w: no price id for %s", ErrNotConfigured, plan)
	}
	return id, nil
}

// CreateCheckout opens a subscription checkout for userID. The success URL
// carries the session id back so the client can confirm the upgrade.
func (s *Service) CreateCheckout(ctx context.Context, userID, email string, plan models.Plan, baseURL string) (models.CheckoutSession, error) {
	priceID, err := s.priceFor(plan)
	if err != nil {
		return models.CheckoutSession{}, err
	}
	if baseURL == "" {
		baseURL = s.cfg.FrontendURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	meta := map[string]string{
		"userId": userID,
		"plan":   string(plan),
		"tier":   string(models.TierPremium),
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		SuccessURL:               stripe.String(baseURL + "?session_id={CHECKOUT_SESSION_ID}&plan=" + string(plan)),
		CancelURL:                stripe.String(baseURL),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := s.api.NewCheckoutSession(params)
	if err != nil {
		return models.CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	s.logger.Info("checkout session created", "session", sess.ID, "user", userID, "plan", plan)
	return models.CheckoutSession{SessionID: sess.ID, URL: sess.URL}, nil
}

// UpdateTierFromSession marks the checkout's user premium once Stripe
// reports the session paid.
func (s *Service) UpdateTierFromSession(ctx context.Context, sessionID string) (models.TierUpdate, error) {
	sess, err := s.api.GetCheckoutSession(sessionID)
	if err != nil {
		return models.TierUpdate{}, fmt.Errorf("retrieve checkout session: %w", err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return models.TierUpdate{}, fmt.Errorf("%w: %s", ErrNotPaid, sess.PaymentStatus)
	}
	userID := sess.Metadata["userId"]
	if userID == "" {
		return models.TierUpdate{}, ErrMissingUser
	}
	p, err := s.setTier(ctx, userID, models.TierPremium)
	if err != nil {
		return models.TierUpdate{}, err
	}
	if sess.Customer != nil && sess.Customer.ID != "" {
		if err := s.store.SetStripeCustomer(ctx, userID, sess.Customer.ID); err != nil {
			s.logger.Warn("failed to record stripe customer", "user", userID, "error", err)
		}
	}
	return models.TierUpdate{UserID: userID, Tier: p.Tier, UpdatedAt: p.UpdatedAt}, nil
}

// setTier writes tier with bounded retries, creating the profile if needed.
func (s *Service) setTier(ctx context.Context, userID string, tier models.Tier) (*models.Profile, error) {
	var out *models.Profile
	err := s.retry.Do(ctx, retry.BackendWrite, func(err error) bool {
		return store.Transient(err)
	}, func(ctx context.Context) error {
		p, err := s.store.UpdateTier(ctx, userID, tier)
		if errors.Is(err, store.ErrProfileNotFound) {
			p, err = s.store.CreateUserProfile(ctx, userID, tier)
		}
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set tier %s for %s: %w", tier, userID, err)
	}
	s.logger.Info("tier updated", "user", userID, "tier", tier)
	return out, nil
}

func (s *Service) customer(ctx context.Context, userID, email string) (*stripe.Customer, error) {
	if p, err := s.store.GetUserProfile(ctx, userID); err == nil && p != nil && p.StripeCustomerID != "" {
		return &stripe.Customer{ID: p.StripeCustomerID, Email: email}, nil
	}
	if email == "" {
		return nil, ErrNoCustomer
	}
	c, err := s.api.FindCustomerByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("find customer: %w", err)
	}
	if c == nil {
		return nil, ErrNoCustomer
	}
	return c, nil
}

func (s *Service) activeSubscription(ctx context.Context, userID, email string) (*stripe.Subscription, error) {
	c, err := s.customer(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	subs, err := s.api.ListSubscriptions(c.ID, string(stripe.SubscriptionStatusActive), 1)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil, ErrNoSubscription
	}
	return subs[0], nil
}

// GetSubscription describes the user's active subscription.
func (s *Service) GetSubscription(ctx context.Context, userID, email string) (models.SubscriptionDetails, error) {
	c, err := s.customer(ctx, userID, email)
	if errors.Is(err, ErrNoCustomer) {
		return models.SubscriptionDetails{}, &SubscriptionError{Err: ErrNoSubscription, PremiumMismatch: s.isPremium(ctx, userID)}
	}
	if err != nil {
		return models.SubscriptionDetails{}, err
	}
	subs, err := s.api.ListSubscriptions(c.ID, string(stripe.SubscriptionStatusActive), 1)
	if err != nil {
		return models.SubscriptionDetails{}, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		serr := &SubscriptionError{Err: ErrNoSubscription}
		others, err := s.api.ListSubscriptions(c.ID, "", 5)
		if err == nil {
			for _, sub := range others {
				serr.Statuses = append(serr.Statuses, string(sub.Status))
			}
		}
		if len(serr.Statuses) == 0 {
			serr.PremiumMismatch = s.isPremium(ctx, userID)
		}
		return models.SubscriptionDetails{}, serr
	}
	return s.details(c.ID, subs[0]), nil
}

func (s *Service) isPremium(ctx context.Context, userID string) bool {
	p, err := s.store.GetUserProfile(ctx, userID)
	return err == nil && p != nil && p.Tier == models.TierPremium
}

func (s *Service) details(customerID string, sub *stripe.Subscription) models.SubscriptionDetails {
	var current int64
	if price := firstPrice(sub); price != nil {
		current = price.UnitAmount
	}
	original := current
	discount := 0
	retention := false
	if sub.Discount != nil && sub.Discount.Coupon != nil {
		c := sub.Discount.Coupon
		retention = c.ID == s.cfg.RetentionCouponID
		switch {
		case c.PercentOff > 0 && c.PercentOff < 100:
			discount = int(c.PercentOff)
			original = int64(float64(current)/(1-c.PercentOff/100) + 0.5)
		case c.AmountOff > 0:
			original = current + c.AmountOff
			discount = int(float64(c.AmountOff)/float64(original)*100 + 0.5)
		}
	}
	return models.SubscriptionDetails{
		CustomerID:           customerID,
		SubscriptionID:       sub.ID,
		Plan:                 s.plans.Resolve(sub),
		Status:               string(sub.Status),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		CurrentPrice:         float64(current) / 100,
		OriginalPrice:        float64(original) / 100,
		DiscountPercent:      discount,
		HasRetentionDiscount: retention,
	}
}

// ensureRetentionCoupon fetches the retention coupon, creating it on first use.
func (s *Service) ensureRetentionCoupon() (string, error) {
	id := s.cfg.RetentionCouponID
	if _, err := s.api.GetCoupon(id); err == nil {
		return id, nil
	} else if !isMissing(err) {
		return "", fmt.Errorf("retrieve coupon: %w", err)
	}
	_, err := s.api.NewCoupon(&stripe.CouponParams{
		ID:         stripe.String(id),
		PercentOff: stripe.Float64(30),
		Duration:   stripe.String(string(stripe.CouponDurationForever)),
		Name:       stripe.String("Retention Offer - 30% Off"),
	})
	if err != nil {
		return "", fmt.Errorf("create coupon: %w", err)
	}
	return id, nil
}

// ApplyRetentionDiscount puts the retention coupon on the active
// subscription. Applying it twice is a no-op.
func (s *Service) ApplyRetentionDiscount(ctx context.Context, userID, email string) (models.SubscriptionDetails, error) {
	sub, err := s.activeSubscription(ctx, userID, email)
	if err != nil {
		return models.SubscriptionDetails{}, err
	}
	if sub.Discount != nil && sub.Discount.Coupon != nil && sub.Discount.Coupon.ID == s.cfg.RetentionCouponID {
		return s.details(customerID(sub), sub), nil
	}
	id, err := s.ensureRetentionCoupon()
	if err != nil {
		return models.SubscriptionDetails{}, err
	}
	updated, err := s.api.UpdateSubscription(sub.ID, &stripe.SubscriptionParams{
		Coupon:            stripe.String(id),
		CancelAtPeriodEnd: stripe.Bool(false),
	})
	if err != nil {
		return models.SubscriptionDetails{}, fmt.Errorf("apply discount: %w", err)
	}
	s.logger.Info("retention discount applied", "user", userID, "subscription", sub.ID)
	return s.details(customerID(updated), updated), nil
}

// Cancel either accepts the retention offer or schedules cancellation at
// period end and drops the profile to free.
func (s *Service) Cancel(ctx context.Context, userID, email string, acceptOffer bool) (models.SubscriptionDetails, error) {
	if acceptOffer {
		return s.ApplyRetentionDiscount(ctx, userID, email)
	}
	sub, err := s.activeSubscription(ctx, userID, email)
	if err != nil {
		return models.SubscriptionDetails{}, err
	}
	updated, err := s.api.UpdateSubscription(sub.ID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return models.SubscriptionDetails{}, fmt.Errorf("cancel subscription: %w", err)
	}
	if _, err := s.setTier(ctx, userID, models.TierFree); err != nil {
		// the subscription.deleted webhook settles it later
		s.logger.Warn("tier downgrade after cancel failed", "user", userID, "error", err)
	}
	return s.details(customerID(updated), updated), nil
}

// Restore lifts a scheduled cancellation and returns the user to premium.
func (s *Service) Restore(ctx context.Context, userID, email string) (models.SubscriptionDetails, error) {
	c, err := s.customer(ctx, userID, email)
	if err != nil {
		return models.SubscriptionDetails{}, err
	}
	subs, err := s.api.ListSubscriptions(c.ID, "", 5)
	if err != nil {
		return models.SubscriptionDetails{}, fmt.Errorf("list subscriptions: %w", err)
	}
	var target *stripe.Subscription
	for _, sub := range subs {
		if sub.Status == stripe.SubscriptionStatusActive && sub.CancelAtPeriodEnd {
			target = sub
			break
		}
	}
	if target == nil {
		return models.SubscriptionDetails{}, ErrNothingToRestore
	}
	updated, err := s.api.UpdateSubscription(target.ID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	})
	if err != nil {
		return models.SubscriptionDetails{}, fmt.Errorf("restore subscription: %w", err)
	}
	if _, err := s.setTier(ctx, userID, models.TierPremium); err != nil {
		s.logger.Warn("tier restore failed", "user", userID, "error", err)
	}
	return s.details(c.ID, updated), nil
}

// UpgradeToAnnual moves a monthly subscription to the annual price from the
// next period, without proration.
func (s *Service) UpgradeToAnnual(ctx context.Context, userID, email string) (models.SubscriptionDetails, error) {
	if s.cfg.PriceIDAnnual == "" || s.cfg.PriceIDMonthly == "" {
		return models.SubscriptionDetails{}, ErrNotConfigured
	}
	sub, err := s.activeSubscription(ctx, userID, email)
	if err != nil {
		return models.SubscriptionDetails{}, err
	}
	price := firstPrice(sub)
	switch {
	case price != nil && price.ID == s.cfg.PriceIDAnnual:
		return models.SubscriptionDetails{}, ErrAlreadyAnnual
	case price == nil || price.ID != s.cfg.PriceIDMonthly:
		return models.SubscriptionDetails{}, ErrNotMonthly
	}
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(s.cfg.PriceIDAnnual),
			},
		},
		ProrationBehavior: stripe.String("none"),
	}
	for k, v := range sub.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("plan", string(models.PlanAnnual))
	updated, err := s.api.UpdateSubscription(sub.ID, params)
	if err != nil {
		return models.SubscriptionDetails{}, fmt.Errorf("upgrade subscription: %w", err)
	}
	s.logger.Info("subscription upgraded to annual", "user", userID, "subscription", sub.ID)
	return s.details(customerID(updated), updated), nil
}

// CreatePortalSession opens the Stripe customer portal.
func (s *Service) CreatePortalSession(ctx context.Context, userID, email, returnURL string) (string, error) {
	c, err := s.customer(ctx, userID, email)
	if err != nil {
		return "", err
	}
	if returnURL == "" {
		returnURL = strings.TrimRight(s.cfg.FrontendURL, "/")
	}
	sess, err := s.api.NewPortalSession(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(c.ID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

func customerID(sub *stripe.Subscription) string {
	if sub == nil || sub.Customer == nil {
		return ""
	}
	return sub.Customer.ID
}
