package coach

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/retry"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/router"
)

// TierSource records where a resolved tier came from.
type TierSource string

const (
	SourceBackend TierSource = "backend"
	SourceCache   TierSource = "cache"
	SourceDefault TierSource = "default"
)

// TierState is a resolved tier and its origin.
type TierState struct {
	Tier       models.Tier
	Source     TierSource
	VerifiedAt time.Time
}

// CheckoutResult describes how a checkout return was settled.
type CheckoutResult struct {
	Confirmed bool
	Tier      models.Tier
	// Polls is the number of profile reads made after the direct update
	// failed.
	Polls  int
	Notice string
}

const checkoutTimeoutNotice = "Payment received, but your upgrade has not shown up yet. Refresh in a minute to unlock premium."

type TierResolver struct {
	backend Backend
	billing Billing
	cache   kv.Store
	retry   retry.Runner
	polling retry.Policy
	now     func() time.Time
	logger  *slog.Logger
}

func NewTierResolver(backend Backend, billing Billing, cache kv.Store, sleep retry.Sleeper, logger *slog.Logger) *TierResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TierResolver{
		backend: backend,
		billing: billing,
		cache:   cache,
		retry:   retry.Runner{Sleep: sleep},
		polling: retry.CheckoutPolling,
		now:     time.Now,
		logger:  logger,
	}
}

// Resolve determines the identity's tier. Anonymous identities are always
// free. A missing profile is created as free. When the backend cannot be
// reached the cached tier is used, and free when nothing valid is cached.
func (r *TierResolver) Resolve(ctx context.Context, id models.Identity) TierState {
	if id.Anonymous() {
		r.ClearCache(ctx)
		return TierState{Tier: models.TierFree, Source: SourceDefault}
	}

	tier, err := r.fetch(ctx, id.UserID)
	if err == nil {
		r.writeCache(ctx, tier)
		return TierState{Tier: tier, Source: SourceBackend, VerifiedAt: r.now()}
	}
	r.logger.Warn("tier fetch failed, using cache", "user_id", id.UserID, "error", err)

	if cached, ok := r.readCache(ctx); ok {
		return TierState{Tier: cached, Source: SourceCache}
	}
	r.writeCache(ctx, models.TierFree)
	return TierState{Tier: models.TierFree, Source: SourceDefault}
}

func (r *TierResolver) fetch(ctx context.Context, userID string) (models.Tier, error) {
	if r.backend == nil {
		return "", errors.New("no backend configured")
	}
	profile, err := r.backend.GetUserProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile == nil {
		profile, err = r.backend.CreateUserProfile(ctx, userID, models.TierFree)
		if err != nil {
			return "", err
		}
		r.logger.Info("profile created", "user_id", userID, "tier", profile.Tier)
	}
	if !profile.Tier.Valid() {
		return models.TierFree, nil
	}
	return profile.Tier, nil
}

// ConfirmCheckout settles a checkout return. It first asks billing to apply
// the tier directly, then polls the profile on the checkout schedule.
func (r *TierResolver) ConfirmCheckout(ctx context.Context, id models.Identity, ret router.CheckoutReturn) CheckoutResult {
	if id.Anonymous() {
		return CheckoutResult{Tier: models.TierFree, Notice: "Sign in to finish upgrading."}
	}

	if r.billing != nil {
		upd, err := r.billing.UpdateTierFromSession(ctx, ret.SessionID)
		if err == nil && upd.Tier == models.TierPremium {
			r.writeCache(ctx, models.TierPremium)
			r.logger.Info("checkout confirmed directly", "user_id", id.UserID, "plan", ret.Plan)
			return CheckoutResult{Confirmed: true, Tier: models.TierPremium}
		}
		r.logger.Warn("direct tier update failed, polling profile",
			"user_id", id.UserID, "session_id", ret.SessionID, "error", err)
	}

	polls := 0
	err := r.retry.Until(ctx, r.polling, func(ctx context.Context) (bool, error) {
		polls++
		tier, err := r.fetch(ctx, id.UserID)
		if err != nil {
			return false, err
		}
		return tier == models.TierPremium, nil
	})
	if err == nil {
		r.writeCache(ctx, models.TierPremium)
		r.logger.Info("checkout confirmed by polling", "user_id", id.UserID, "polls", polls)
		return CheckoutResult{Confirmed: true, Tier: models.TierPremium, Polls: polls}
	}

	r.logger.Error("checkout not confirmed", "user_id", id.UserID, "polls", polls, "error", err)
	last := models.TierFree
	if cached, ok := r.readCache(ctx); ok {
		last = cached
	}
	return CheckoutResult{Tier: last, Polls: polls, Notice: checkoutTimeoutNotice}
}

// Store records tier as the current cached value.
func (r *TierResolver) Store(ctx context.Context, tier models.Tier) {
	r.writeCache(ctx, tier)
}

func (r *TierResolver) ClearCache(ctx context.Context) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, kv.KeyTier); err != nil {
		r.logger.Warn("tier cache clear failed", "error", err)
	}
}

func (r *TierResolver) readCache(ctx context.Context) (models.Tier, bool) {
	if r.cache == nil {
		return "", false
	}
	raw, err := kv.GetString(ctx, r.cache, kv.KeyTier)
	if err != nil || raw == "" {
		return "", false
	}
	tier, err := models.ParseTier(raw)
	if err != nil {
		return "", false
	}
	return tier, true
}

func (r *TierResolver) writeCache(ctx context.Context, tier models.Tier) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, kv.KeyTier, []byte(tier)); err != nil {
		r.logger.Warn("tier cache write failed", "error", err)
	}
}
