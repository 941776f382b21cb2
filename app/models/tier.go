// Package models defines the tier, profile, session and feedback records shared by the API and the coach client.
package models

import (
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier accepts the two known tiers, case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFree:
		return TierFree, nil
	case TierPremium:
		return TierPremium, nil
	}
	return "", fmt.Errorf("unknown tier %q", s)
}

func (t Tier) Valid() bool {
	return t == TierFree || t == TierPremium
}

type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanAnnual  Plan = "annual"
	PlanUnknown Plan = "unknown"
)

func ParsePlan(s string) (Plan, error) {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanMonthly:
		return PlanMonthly, nil
	case PlanAnnual:
		return PlanAnnual, nil
	}
	return "", fmt.Errorf("unknown plan %q", s)
}

type Profile struct {
	UserID           string    `json:"user_id" db:"user_id"`
	Tier             Tier      `json:"tier" db:"tier"`
	StripeCustomerID string    `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Identity is who is driving the app. An empty UserID means anonymous.
type Identity struct {
	UserID   string `json:"userId,omitempty"`
	Email    string `json:"email,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
}

func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

func (i Identity) String() string {
	if i.Anonymous() {
		return "anonymous"
	}
	return "user:" + i.UserID
}
