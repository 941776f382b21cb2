package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/Edjavier-collab/Main2MI-sub000/app/config"
	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/app/store"
)

type fakeAPI struct {
	checkoutParams *stripe.CheckoutSessionParams
	sessions       map[string]*stripe.CheckoutSession
	customer       *stripe.Customer
	subs           []*stripe.Subscription
	coupons        map[string]*stripe.Coupon
	updates        []*stripe.SubscriptionParams
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		sessions: map[string]*stripe.CheckoutSession{},
		coupons:  map[string]*stripe.Coupon{},
	}
}

func (f *fakeAPI) NewCheckoutSession(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.checkoutParams = p
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeAPI) GetCheckoutSession(id string) (*stripe.CheckoutSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, &stripe.Error{Code: stripe.ErrorCodeResourceMissing}
	}
	return s, nil
}

func (f *fakeAPI) FindCustomerByEmail(string) (*stripe.Customer, error) {
	return f.customer, nil
}

func (f *fakeAPI) ListSubscriptions(_, status string, limit int64) ([]*stripe.Subscription, error) {
	var out []*stripe.Subscription
	for _, s := range f.subs {
		if status != "" && string(s.Status) != status {
			continue
		}
		out = append(out, s)
		if int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAPI) GetSubscription(id string) (*stripe.Subscription, error) {
	for _, s := range f.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, &stripe.Error{Code: stripe.ErrorCodeResourceMissing}
}

func (f *fakeAPI) UpdateSubscription(id string, p *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	f.updates = append(f.updates, p)
	sub, err := f.GetSubscription(id)
	if err != nil {
		return nil, err
	}
	if p.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *p.CancelAtPeriodEnd
	}
	if p.Coupon != nil {
		sub.Discount = &stripe.Discount{Coupon: f.coupons[*p.Coupon]}
	}
	return sub, nil
}

func (f *fakeAPI) GetCoupon(id string) (*stripe.Coupon, error) {
	c, ok := f.coupons[id]
	if !ok {
		return nil, &stripe.Error{Code: stripe.ErrorCodeResourceMissing}
	}
	return c, nil
}

func (f *fakeAPI) NewCoupon(p *stripe.CouponParams) (*stripe.Coupon, error) {
	c := &stripe.Coupon{ID: *p.ID, PercentOff: *p.PercentOff}
	f.coupons[c.ID] = c
	return c, nil
}

func (f *fakeAPI) NewPortalSession(p *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{URL: "https://billing.stripe.test/" + *p.Customer}, nil
}

func testConfig() config.StripeConfig {
	return config.StripeConfig{
		PriceIDMonthly:    "price_monthly",
		PriceIDAnnual:     "price_annual",
		FrontendURL:       "http://localhost:3000/",
		RetentionCouponID: "RETENTION_30",
	}
}

func newTestService(t *testing.T) (*Service, *fakeAPI, *store.Memory) {
	t.Helper()
	api := newFakeAPI()
	st := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(api, st, testConfig(), logger), api, st
}

func activeSub(priceID string, amount int64) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: "cus_1"},
		Metadata: map[string]string{"userId": "user-1"},
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{
			{ID: "si_1", Price: &stripe.Price{ID: priceID, UnitAmount: amount}},
		}},
	}
}

func TestCreateCheckout(t *testing.T) {
	svc, api, _ := newTestService(t)

	out, err := svc.CreateCheckout(context.Background(), "user-1", "a@b.c", models.PlanAnnual, "")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", out.SessionID)

	p := api.checkoutParams
	require.NotNil(t, p)
	assert.Equal(t, "price_annual", *p.LineItems[0].Price)
	assert.Equal(t, "http://localhost:3000?session_id={CHECKOUT_SESSION_ID}&plan=annual", *p.SuccessURL)
	assert.Equal(t, "user-1", p.Metadata["userId"])
	assert.Equal(t, "premium", p.Metadata["tier"])
	assert.Equal(t, "annual", p.SubscriptionData.Metadata["plan"])
	assert.Equal(t, "a@b.c", *p.CustomerEmail)
}

func TestCreateCheckoutRejectsUnknownPlan(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateCheckout(context.Background(), "user-1", "", models.PlanUnknown, "")
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestUpdateTierFromSession(t *testing.T) {
	svc, api, st := newTestService(t)
	ctx := context.Background()
	_, err := st.CreateUserProfile(ctx, "user-1", models.TierFree)
	require.NoError(t, err)

	api.sessions["cs_unpaid"] = &stripe.CheckoutSession{
		ID:            "cs_unpaid",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		Metadata:      map[string]string{"userId": "user-1"},
	}
	_, err = svc.UpdateTierFromSession(ctx, "cs_unpaid")
	assert.ErrorIs(t, err, ErrNotPaid)

	api.sessions["cs_anon"] = &stripe.CheckoutSession{ID: "cs_anon", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid}
	_, err = svc.UpdateTierFromSession(ctx, "cs_anon")
	assert.ErrorIs(t, err, ErrMissingUser)

	api.sessions["cs_paid"] = &stripe.CheckoutSession{
		ID:            "cs_paid",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:      map[string]string{"userId": "user-1"},
		Customer:      &stripe.Customer{ID: "cus_1"},
	}
	upd, err := svc.UpdateTierFromSession(ctx, "cs_paid")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, upd.Tier)

	p, err := st.GetUserProfile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, p.Tier)
	assert.Equal(t, "cus_1", p.StripeCustomerID)
}

func TestResolvePlanOrder(t *testing.T) {
	r := PlanResolver{MonthlyPriceID: "price_monthly", AnnualPriceID: "price_annual"}

	sub := activeSub("price_other", 9999)
	sub.Metadata["plan"] = "monthly"
	assert.Equal(t, models.PlanMonthly, r.Resolve(sub), "metadata wins")

	assert.Equal(t, models.PlanAnnual, r.Resolve(activeSub("price_annual", 100)))

	sub = activeSub("price_other", 100)
	sub.Items.Data[0].Price.Recurring = &stripe.PriceRecurring{Interval: stripe.PriceRecurringIntervalYear}
	assert.Equal(t, models.PlanAnnual, r.Resolve(sub))

	assert.Equal(t, models.PlanUnknown, r.Resolve(activeSub("price_other", 9999)), "amount ignored by default")

	r.Legacy = true
	assert.Equal(t, models.PlanAnnual, r.Resolve(activeSub("price_other", 9999)))
	assert.Equal(t, models.PlanMonthly, r.Resolve(activeSub("price_other", 999)))
}

func TestTierForStatus(t *testing.T) {
	for status, want := range map[stripe.SubscriptionStatus]models.Tier{
		stripe.SubscriptionStatusActive:     models.TierPremium,
		stripe.SubscriptionStatusTrialing:   models.TierPremium,
		stripe.SubscriptionStatusPastDue:    models.TierPremium,
		stripe.SubscriptionStatusCanceled:   models.TierFree,
		stripe.SubscriptionStatusUnpaid:     models.TierFree,
		stripe.SubscriptionStatusIncomplete: models.TierFree,
	} {
		assert.Equal(t, want, TierForStatus(&stripe.Subscription{Status: status}), string(status))
	}
	assert.Equal(t, models.TierFree, TierForStatus(nil))
}

func TestGetSubscriptionDetails(t *testing.T) {
	svc, api, _ := newTestService(t)
	api.customer = &stripe.Customer{ID: "cus_1"}
	sub := activeSub("price_monthly", 700)
	sub.CurrentPeriodEnd = 1767225600
	sub.Discount = &stripe.Discount{Coupon: &stripe.Coupon{ID: "RETENTION_30", PercentOff: 30}}
	api.subs = []*stripe.Subscription{sub}

	d, err := svc.GetSubscription(context.Background(), "user-1", "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, models.PlanMonthly, d.Plan)
	assert.Equal(t, 7.0, d.CurrentPrice)
	assert.Equal(t, 10.0, d.OriginalPrice)
	assert.Equal(t, 30, d.DiscountPercent)
	assert.True(t, d.HasRetentionDiscount)
	assert.Equal(t, int64(1767225600), d.CurrentPeriodEnd.Unix())
}

func TestGetSubscriptionPremiumMismatch(t *testing.T) {
	svc, _, st := newTestService(t)
	ctx := context.Background()
	_, err := st.CreateUserProfile(ctx, "user-1", models.TierPremium)
	require.NoError(t, err)

	_, err = svc.GetSubscription(ctx, "user-1", "a@b.c")
	var serr *SubscriptionError
	require.True(t, errors.As(err, &serr))
	assert.True(t, serr.PremiumMismatch)
	assert.ErrorIs(t, err, ErrNoSubscription)
}

func TestCancelAndRestore(t *testing.T) {
	svc, api, st := newTestService(t)
	ctx := context.Background()
	_, err := st.CreateUserProfile(ctx, "user-1", models.TierPremium)
	require.NoError(t, err)
	api.customer = &stripe.Customer{ID: "cus_1"}
	api.subs = []*stripe.Subscription{activeSub("price_monthly", 999)}

	d, err := svc.Cancel(ctx, "user-1", "a@b.c", false)
	require.NoError(t, err)
	assert.True(t, d.CancelAtPeriodEnd)
	p, _ := st.GetUserProfile(ctx, "user-1")
	assert.Equal(t, models.TierFree, p.Tier)

	d, err = svc.Restore(ctx, "user-1", "a@b.c")
	require.NoError(t, err)
	assert.False(t, d.CancelAtPeriodEnd)
	p, _ = st.GetUserProfile(ctx, "user-1")
	assert.Equal(t, models.TierPremium, p.Tier)

	_, err = svc.Restore(ctx, "user-1", "a@b.c")
	assert.ErrorIs(t, err, ErrNothingToRestore)
}

func TestAcceptRetentionOfferCreatesCouponOnce(t *testing.T) {
	svc, api, _ := newTestService(t)
	api.customer = &stripe.Customer{ID: "cus_1"}
	api.subs = []*stripe.Subscription{activeSub("price_monthly", 1000)}

	d, err := svc.Cancel(context.Background(), "user-1", "a@b.c", true)
	require.NoError(t, err)
	assert.True(t, d.HasRetentionDiscount)
	assert.Contains(t, api.coupons, "RETENTION_30")
	require.Len(t, api.updates, 1)

	_, err = svc.ApplyRetentionDiscount(context.Background(), "user-1", "a@b.c")
	require.NoError(t, err)
	assert.Len(t, api.updates, 1, "second application is a no-op")
}

func TestUpgradeToAnnual(t *testing.T) {
	svc, api, _ := newTestService(t)
	api.customer = &stripe.Customer{ID: "cus_1"}
	api.subs = []*stripe.Subscription{activeSub("price_annual", 9000)}

	_, err := svc.UpgradeToAnnual(context.Background(), "user-1", "a@b.c")
	assert.ErrorIs(t, err, ErrAlreadyAnnual)

	api.subs = []*stripe.Subscription{activeSub("price_monthly", 900)}
	_, err = svc.UpgradeToAnnual(context.Background(), "user-1", "a@b.c")
	require.NoError(t, err)
	require.Len(t, api.updates, 1)
	up := api.updates[0]
	assert.Equal(t, "price_annual", *up.Items[0].Price)
	assert.Equal(t, "none", *up.ProrationBehavior)
	assert.Equal(t, "annual", up.Metadata["plan"])
	assert.Equal(t, "user-1", up.Metadata["userId"])
}

func rawEvent(t *testing.T, typ string, obj any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return stripe.Event{ID: "evt_1", Type: stripe.EventType(typ), Data: &stripe.EventData{Raw: raw}}
}

func TestHandleEvent(t *testing.T) {
	svc, api, st := newTestService(t)
	ctx := context.Background()

	err := svc.HandleEvent(ctx, rawEvent(t, "checkout.session.completed", map[string]any{
		"id":       "cs_1",
		"metadata": map[string]string{"userId": "user-1"},
		"customer": "cus_1",
	}))
	require.NoError(t, err)
	p, _ := st.GetUserProfile(ctx, "user-1")
	require.NotNil(t, p, "profile created on first payment")
	assert.Equal(t, models.TierPremium, p.Tier)
	assert.Equal(t, "cus_1", p.StripeCustomerID)

	err = svc.HandleEvent(ctx, rawEvent(t, "customer.subscription.updated", map[string]any{
		"id":       "sub_1",
		"status":   "unpaid",
		"metadata": map[string]string{"userId": "user-1"},
	}))
	require.NoError(t, err)
	p, _ = st.GetUserProfile(ctx, "user-1")
	assert.Equal(t, models.TierFree, p.Tier)

	api.subs = []*stripe.Subscription{activeSub("price_monthly", 999)}
	err = svc.HandleEvent(ctx, rawEvent(t, "invoice.payment_succeeded", map[string]any{
		"id":           "in_1",
		"subscription": "sub_1",
	}))
	require.NoError(t, err)
	p, _ = st.GetUserProfile(ctx, "user-1")
	assert.Equal(t, models.TierPremium, p.Tier)

	err = svc.HandleEvent(ctx, rawEvent(t, "customer.subscription.deleted", map[string]any{
		"id":       "sub_1",
		"status":   "active",
		"metadata": map[string]string{"userId": "user-1"},
	}))
	require.NoError(t, err)
	p, _ = st.GetUserProfile(ctx, "user-1")
	assert.Equal(t, models.TierFree, p.Tier)

	assert.NoError(t, svc.HandleEvent(ctx, rawEvent(t, "invoice.payment_failed", map[string]any{"id": "in_2"})))
	assert.NoError(t, svc.HandleEvent(ctx, rawEvent(t, "charge.refunded", map[string]any{"id": "ch_1"})))
	assert.ErrorIs(t, svc.HandleEvent(ctx, rawEvent(t, "checkout.session.completed", map[string]any{"id": "cs_2"})), ErrMissingUser)
}

func TestParseEventWithoutSecret(t *testing.T) {
	svc, _, _ := newTestService(t)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)

	_, err := svc.ParseEvent(payload, "", false)
	assert.ErrorIs(t, err, ErrWebhookSecret)

	ev, err := svc.ParseEvent(payload, "", true)
	require.NoError(t, err)
	assert.Equal(t, stripe.EventType("checkout.session.completed"), ev.Type)
}
