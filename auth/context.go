// Package auth provides request context helpers for verified Supabase claims
// and anonymous device identities.
package auth

import (
	"context"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

type ctxKey int

const (
	claimsKey ctxKey = iota
	deviceKey
)

// Claims contains the verified Supabase token details we care about.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Raw       map[string]any
}

// WithClaims stores auth claims in a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns claims from a context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// WithDeviceID stores the anonymous device id in a context.
func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deviceKey, id)
}

// IdentityFromContext returns the signed-in user, or an anonymous identity
// carrying the device id when no claims are present.
func IdentityFromContext(ctx context.Context) models.Identity {
	device, _ := ctx.Value(deviceKey).(string)
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims == nil || claims.Subject == "" {
		return models.Identity{DeviceID: device}
	}
	return models.Identity{UserID: claims.Subject, Email: claims.Email, DeviceID: device}
}
