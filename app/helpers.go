package app

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Edjavier-collab/Main2MI-sub000/app/billing"
	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/auth"
	"github.com/Edjavier-collab/Main2MI-sub000/coach"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/sessions"
)

// identity returns the caller, signed in or anonymous.
func identity(c *gin.Context) models.Identity {
	return auth.IdentityFromContext(c.Request.Context())
}

// requireUser aborts with 401 unless the caller is signed in.
func requireUser(c *gin.Context) (models.Identity, bool) {
	id := identity(c)
	if id.Anonymous() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "sign in required"})
		return id, false
	}
	return id, true
}

// deviceSessions is the anonymous session list for one device.
func (s *Server) deviceSessions(id models.Identity) *sessions.Store {
	return sessions.New(s.store, kv.Prefixed(s.devices, "device:"+id.DeviceID), s.logger)
}

func (s *Server) quota(id models.Identity) *coach.QuotaCounter {
	var backend coach.Backend
	if s.store != nil {
		backend = s.store
	}
	return coach.NewQuotaCounter(backend, s.deviceSessions(id), s.now, s.logger)
}

// requestBaseURL prefers the caller's Origin so checkout returns to the
// page that started it.
func (s *Server) requestBaseURL(c *gin.Context) string {
	if origin := c.GetHeader("Origin"); origin != "" && s.allowedOrigin(origin) {
		return strings.TrimRight(origin, "/")
	}
	return strings.TrimRight(s.cfg.Stripe.FrontendURL, "/")
}

func (s *Server) allowedOrigin(origin string) bool {
	for _, o := range s.cfg.Server.AllowOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// billingStatus maps billing errors onto HTTP statuses.
func billingStatus(err error) int {
	var serr *billing.SubscriptionError
	switch {
	case errors.As(err, &serr):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrInvalidPlan),
		errors.Is(err, billing.ErrNotPaid),
		errors.Is(err, billing.ErrMissingUser),
		errors.Is(err, billing.ErrAlreadyAnnual),
		errors.Is(err, billing.ErrNotMonthly):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrNoCustomer),
		errors.Is(err, billing.ErrNoSubscription),
		errors.Is(err, billing.ErrNothingToRestore):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondBillingError(c *gin.Context, op string, err error) {
	status := billingStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("billing request failed", "op", op, "error", err)
	}
	body := gin.H{"error": err.Error()}
	var serr *billing.SubscriptionError
	if errors.As(err, &serr) && serr.PremiumMismatch {
		body["hasPremiumTier"] = true
	}
	c.JSON(status, body)
}

// requestLogger logs one line per request at info, or warn for 5xx.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
