// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Edjavier-collab/Main2MI-sub000/auth"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server) (*gin.Engine, error) {
	if !s.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))
	corsCfg := cors.Config{
		AllowOrigins:     s.cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Stripe-Signature", auth.DeviceHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	}
	router.Use(cors.New(corsCfg))

	router.GET("/health", Health)
	router.GET("/api/setup-check", s.SetupCheck)
	router.POST("/api/stripe-webhook", s.StripeWebhook)

	verifier, err := auth.NewVerifierFromConfig(s.cfg.Supabase)
	if err != nil && !auth.AuthDisabled() {
		if !s.cfg.IsDevelopment() {
			return nil, err
		}
		s.logger.Warn("auth verifier unavailable, only anonymous access works", "error", err)
	}

	optional := router.Group("/api")
	optional.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		AllowAnonymous:  true,
		OnAuthenticated: s.EnsureProfile,
		Logger:          s.logger,
	}))
	optional.GET("/me", s.Me)
	optional.GET("/sessions", s.ListSessions)
	optional.POST("/sessions", s.SaveSession)
	optional.GET("/sessions/count", s.SessionCount)
	optional.GET("/progress", s.Progress)
	optional.GET("/report", s.Report)
	optional.POST("/practice/start", s.PracticeStart)
	optional.POST("/chat", s.Chat)

	protected := router.Group("/api")
	protected.Use(auth.Middleware(verifier, auth.MiddlewareConfig{
		OnAuthenticated: s.EnsureProfile,
		Logger:          s.logger,
	}))
	protected.GET("/profile", s.GetProfile)
	protected.POST("/profile", s.CreateProfile)
	protected.POST("/analyze-session", s.AnalyzeSession)
	protected.POST("/coaching-summary", s.CoachingSummary)
	protected.POST("/create-checkout-session", s.CreateCheckoutSession)
	protected.POST("/update-tier-from-session", s.UpdateTierFromSession)
	protected.POST("/create-billing-portal-session", s.CreatePortalSession)
	protected.GET("/get-subscription", s.GetSubscription)
	protected.POST("/cancel-subscription", s.CancelSubscription)
	protected.POST("/restore-subscription", s.RestoreSubscription)
	protected.POST("/apply-retention-discount", s.ApplyRetentionDiscount)
	protected.POST("/upgrade-subscription", s.UpgradeSubscription)

	return router, nil
}
