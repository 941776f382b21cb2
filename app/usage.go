package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/coach"
)

type practiceRequest struct {
	// Scenario is honoured for premium callers only; free callers get a
	// random patient.
	Scenario *models.PatientProfile `json:"scenario,omitempty"`
}

// PracticeStart is the quota gate. Denied free callers get 403 with
// remaining 0; allowed callers receive the patient to practice with.
func (s *Server) PracticeStart(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity(c)

	var req practiceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	tier, err := s.tierFor(ctx, id)
	if err != nil {
		s.logger.Warn("tier lookup failed, treating as free", "identity", id.String(), "error", err)
	}
	quota := s.quota(id)
	if !coach.NewAccess(quota, s.mode, s.logger).CanStart(ctx, id, tier) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "monthly practice limit reached",
			"tier":      tier,
			"remaining": 0,
		})
		return
	}

	patient := coach.GeneratePatient(nil)
	if tier == models.TierPremium && req.Scenario != nil {
		patient = *req.Scenario
	}
	c.JSON(http.StatusOK, gin.H{
		"allowed":   true,
		"tier":      tier,
		"remaining": quota.Remaining(ctx, id, tier),
		"patient":   patient,
	})
}

// SessionCount returns this month's free-tagged session count.
func (s *Server) SessionCount(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity(c)
	used, err := s.quota(id).SessionsThisMonth(ctx, id)
	if err != nil {
		s.logger.Error("session count failed", "identity", id.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count sessions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count": used,
		"since": coach.MonthStart(s.now()),
	})
}
