package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Edjavier-collab/Main2MI-sub000/coach"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// SetupCheck reports which integrations are configured, without secrets.
func (s *Server) SetupCheck(c *gin.Context) {
	env := "production"
	if s.cfg.IsDevelopment() {
		env = "development"
	}
	db := gin.H{"configured": s.cfg.DB.Configured()}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		db["connection"] = "error: " + err.Error()
	} else {
		db["connection"] = "ok"
	}

	c.JSON(http.StatusOK, gin.H{
		"timestamp":   s.now().UTC().Format(time.RFC3339),
		"environment": env,
		"mode":        s.mode.String(),
		"stripe": gin.H{
			"secretKeyConfigured":     s.cfg.Stripe.SecretKey != "",
			"webhookSecretConfigured": s.cfg.Stripe.WebhookSecret != "",
			"priceIds": gin.H{
				"monthly": s.cfg.Stripe.PriceIDMonthly != "",
				"annual":  s.cfg.Stripe.PriceIDAnnual != "",
			},
		},
		"supabase": gin.H{
			"urlConfigured":    s.cfg.Supabase.URL != "",
			"secretConfigured": s.cfg.Supabase.JWTSecret != "",
		},
		"gemini":   gin.H{"configured": s.cfg.Gemini.APIKey != ""},
		"redis":    gin.H{"configured": s.cfg.Redis.URL != ""},
		"database": db,
	})
}

// Me returns the caller's tier and monthly allowance.
func (s *Server) Me(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity(c)

	tier, err := s.tierFor(ctx, id)
	if err != nil {
		s.logger.Warn("tier lookup failed, treating as free", "identity", id.String(), "error", err)
	}
	quota := s.quota(id)
	access := coach.NewAccess(quota, s.mode, s.logger)

	c.JSON(http.StatusOK, gin.H{
		"userId":       id.UserID,
		"anonymous":    id.Anonymous(),
		"tier":         tier,
		"remaining":    quota.Remaining(ctx, id, tier),
		"monthlyLimit": coach.FreeMonthlyLimit,
		"canStart":     access.CanStart(ctx, id, tier),
	})
}
