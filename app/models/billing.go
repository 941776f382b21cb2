package models

import "time"

type SubscriptionDetails struct {
	CustomerID           string    `json:"customerId"`
	SubscriptionID       string    `json:"subscriptionId"`
	Plan                 Plan      `json:"plan"`
	Status               string    `json:"status"`
	CurrentPeriodEnd     time.Time `json:"currentPeriodEnd"`
	CancelAtPeriodEnd    bool      `json:"cancelAtPeriodEnd"`
	CurrentPrice         float64   `json:"currentPrice"`
	OriginalPrice        float64   `json:"originalPrice"`
	DiscountPercent      int       `json:"discountPercent"`
	HasRetentionDiscount bool      `json:"hasRetentionDiscount"`
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// TierUpdate is returned after a tier has been written from a payment.
type TierUpdate struct {
	UserID    string    `json:"userId"`
	Tier      Tier      `json:"tier"`
	UpdatedAt time.Time `json:"updated_at"`
}
