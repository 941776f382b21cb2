// Package billing drives Stripe subscriptions and keeps profile tiers in step with them.
package billing

import (
	"errors"

	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/coupon"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
)

// API is the slice of Stripe the service calls.
type API interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(id string) (*stripe.CheckoutSession, error)
	// FindCustomerByEmail returns (nil, nil) when no customer matches.
	FindCustomerByEmail(email string) (*stripe.Customer, error)
	ListSubscriptions(customerID, status string, limit int64) ([]*stripe.Subscription, error)
	GetSubscription(id string) (*stripe.Subscription, error)
	UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	GetCoupon(id string) (*stripe.Coupon, error)
	NewCoupon(params *stripe.CouponParams) (*stripe.Coupon, error)
	NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// NewStripeAPI sets the package-level Stripe key and returns the live client.
func NewStripeAPI(secretKey string) API {
	stripe.Key = secretKey
	return stripeAPI{}
}

type stripeAPI struct{}

func (stripeAPI) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (stripeAPI) GetCheckoutSession(id string) (*stripe.CheckoutSession, error) {
	return session.Get(id, nil)
}

func (stripeAPI) FindCustomerByEmail(email string) (*stripe.Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Limit = stripe.Int64(1)
	it := customer.List(params)
	if it.Next() {
		return it.Customer(), nil
	}
	return nil, it.Err()
}

func (stripeAPI) ListSubscriptions(customerID, status string, limit int64) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{Customer: stripe.String(customerID)}
	if status != "" {
		params.Status = stripe.String(status)
	}
	params.Limit = stripe.Int64(limit)
	it := subscription.List(params)
	var out []*stripe.Subscription
	for it.Next() && int64(len(out)) < limit {
		out = append(out, it.Subscription())
	}
	return out, it.Err()
}

func (stripeAPI) GetSubscription(id string) (*stripe.Subscription, error) {
	return subscription.Get(id, nil)
}

func (stripeAPI) UpdateSubscription(id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return subscription.Update(id, params)
}

func (stripeAPI) GetCoupon(id string) (*stripe.Coupon, error) {
	return coupon.Get(id, nil)
}

func (stripeAPI) NewCoupon(params *stripe.CouponParams) (*stripe.Coupon, error) {
	return coupon.New(params)
}

func (stripeAPI) NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return portal.New(params)
}

// isMissing reports whether err is Stripe's resource_missing.
func isMissing(err error) bool {
	var serr *stripe.Error
	return errors.As(err, &serr) && serr.Code == stripe.ErrorCodeResourceMissing
}
