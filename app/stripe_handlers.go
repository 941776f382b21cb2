package app

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

const maxWebhookBytes = int64(65536)

// requireBilling aborts with 503 when Stripe is not configured.
func (s *Server) requireBilling(c *gin.Context) bool {
	if s.billing == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "billing not configured"})
		return false
	}
	return true
}

type checkoutRequest struct {
	Plan models.Plan `json:"plan"`
}

// CreateCheckoutSession starts a Stripe Checkout Session for the caller.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok || !s.requireBilling(c) {
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	plan, err := models.ParsePlan(string(req.Plan))
	if err != nil || plan == models.PlanUnknown {
		c.JSON(http.StatusBadRequest, gin.H{"error": `invalid plan, must be "monthly" or "annual"`})
		return
	}
	out, err := s.billing.CreateCheckout(c.Request.Context(), id.UserID, id.Email, plan, s.requestBaseURL(c))
	if err != nil {
		s.respondBillingError(c, "checkout", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type tierFromSessionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// UpdateTierFromSession confirms a paid checkout without waiting for the webhook.
func (s *Server) UpdateTierFromSession(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok || !s.requireBilling(c) {
		return
	}
	var req tierFromSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sessionId"})
		return
	}
	upd, err := s.billing.UpdateTierFromSession(c.Request.Context(), req.SessionID)
	if err != nil {
		s.respondBillingError(c, "update-tier", err)
		return
	}
	if upd.UserID != id.UserID {
		s.logger.Warn("checkout session belongs to another user", "caller", id.UserID, "owner", upd.UserID)
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"userId":     upd.UserID,
		"tier":       upd.Tier,
		"updated_at": upd.UpdatedAt,
	})
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl"`
}

// CreatePortalSession opens the Stripe customer portal for the caller.
func (s *Server) CreatePortalSession(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok || !s.requireBilling(c) {
		return
	}
	var req portalRequest
	_ = c.ShouldBindJSON(&req)
	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = s.requestBaseURL(c)
	}
	url, err := s.billing.CreatePortalSession(c.Request.Context(), id.UserID, id.Email, returnURL)
	if err != nil {
		s.respondBillingError(c, "portal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// GetSubscription describes the caller's active subscription.
func (s *Server) GetSubscription(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok || !s.requireBilling(c) {
		return
	}
	d, err := s.billing.GetSubscription(c.Request.Context(), id.UserID, id.Email)
	if err != nil {
		s.respondBillingError(c, "get-subscription", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type cancelRequest struct {
	Action string `json:"action"`
}

// CancelSubscription either accepts the retention offer or cancels at period end.
func (s *Server) CancelSubscription(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok || !s.requireBilling(c) {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Action != "accept_offer" && req.Action != "cancel") {
		c.JSON(http.StatusBadRequest, gin.H{"error": `invalid action, must be "accept_offer" or "cancel"`})
		return
	}
	acceptOffer := req.Action == "accept_offer"
	d, err := s.billing.Cancel(c.Request.Context(), id.UserID, id.Email, acceptOffer)
	if err != nil {
		s.respondBillingError(c, "cancel", err)
		return
	}
	msg := "Subscription will be cancelled at the end of the billing period"
	if acceptOffer {
		msg = "Retention discount applied successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"action":       req.Action,
		"subscription": d,
		"message":      msg,
	})
}

// ApplyRetentionDiscount applies the retention coupon to the caller's subscription.
func (s *Server) ApplyRetentionDiscount(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok || !s.requireBilling(c) {
		return
	}
	d, err := s.billing.ApplyRetentionDiscount(c.Request.Context(), id.UserID, id.Email)
	if err != nil {
		s.respondBillingError(c, "retention", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "subscription": d})
}

// RestoreSubscription lifts a scheduled cancellation.
func (s *Server) RestoreSubscription(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok || !s.requireBilling(c) {
		return
	}
	d, err := s.billing.Restore(c.Request.Context(), id.UserID, id.Email)
	if err != nil {
		s.respondBillingError(c, "restore", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"subscription": d,
		"message":      "Subscription restored successfully",
	})
}

// UpgradeSubscription moves a monthly subscription to annual at period end.
func (s *Server) UpgradeSubscription(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok || !s.requireBilling(c) {
		return
	}
	d, err := s.billing.UpgradeToAnnual(c.Request.Context(), id.UserID, id.Email)
	if err != nil {
		s.respondBillingError(c, "upgrade", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "subscription": d})
}

// StripeWebhook verifies and applies Stripe subscription events.
func (s *Server) StripeWebhook(c *gin.Context) {
	if !s.requireBilling(c) {
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		s.logger.Warn("stripe webhook read failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ev, err := s.billing.ParseEvent(body, c.GetHeader("Stripe-Signature"), s.cfg.IsDevelopment())
	if err != nil {
		s.logger.Warn("stripe webhook rejected", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}
	if err := s.billing.HandleEvent(c.Request.Context(), ev); err != nil {
		s.logger.Warn("stripe webhook payload invalid", "event", ev.ID, "type", ev.Type, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
