package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Edjavier-collab/Main2MI-sub000/app/llm"
	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/app/store"
	"github.com/Edjavier-collab/Main2MI-sub000/coach"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/progress"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/retry"
)

const llmTimeout = 45 * time.Second

// ListSessions returns the caller's sessions, oldest first.
func (s *Server) ListSessions(c *gin.Context) {
	list, ok := s.loadSessions(c)
	if !ok {
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

// loadSessions reads the caller's history, writing the error response
// itself when that fails.
func (s *Server) loadSessions(c *gin.Context) ([]models.Session, bool) {
	ctx := c.Request.Context()
	id := identity(c)

	var (
		list []models.Session
		err  error
	)
	if id.Anonymous() {
		list, err = s.deviceSessions(id).Load(ctx, id)
	} else {
		list, err = s.store.GetUserSessions(ctx, id.UserID)
	}
	if err != nil {
		s.logger.Error("session list failed", "identity", id.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sessions"})
		return nil, false
	}
	return list, true
}

// Progress reports streak, experience, badges and the current goal. Days
// are counted in the tz query zone, or the server's zone when absent.
func (s *Server) Progress(c *gin.Context) {
	now := s.now()
	if tz := c.Query("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown time zone"})
			return
		}
		now = now.In(loc)
	}
	list, ok := s.loadSessions(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, progress.Compute(list, now))
}

// Report returns the competency report for the caller's history.
func (s *Server) Report(c *gin.Context) {
	list, ok := s.loadSessions(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, progress.BuildReport(list))
}

// SaveSession appends a finished session. Saves are never refused for
// quota reasons; the gate is PracticeStart.
func (s *Server) SaveSession(c *gin.Context) {
	ctx := c.Request.Context()
	id := identity(c)

	var sess models.Session
	if err := c.ShouldBindJSON(&sess); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session"})
		return
	}

	tier, err := s.tierFor(ctx, id)
	if err != nil {
		s.logger.Warn("tier lookup failed, tagging session free", "identity", id.String(), "error", err)
	}
	// a session never claims more than the caller has
	if !sess.Tier.Valid() || tier == models.TierFree {
		sess.Tier = tier
	}
	if sess.ID == "" || sess.Date.IsZero() {
		stamped := models.NewSession(s.now(), sess.Tier, sess.Patient, sess.Transcript, sess.Feedback)
		if sess.ID != "" {
			stamped.ID = sess.ID
		}
		sess = stamped
	}
	sess.Date = clampSessionDate(sess.Date, s.now())
	sess.Sync = ""

	if id.Anonymous() {
		saved := s.deviceSessions(id).Save(ctx, id, sess)
		c.JSON(http.StatusOK, saved)
		return
	}

	err = retry.Runner{}.Do(ctx, retry.BackendWrite, store.Transient, func(ctx context.Context) error {
		return s.store.SaveSession(ctx, id.UserID, sess)
	})
	if err != nil {
		s.logger.Error("session save failed", "user", id.UserID, "session", sess.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save session"})
		return
	}
	sess.Sync = models.SyncSynced
	c.JSON(http.StatusOK, sess)
}

// clampSessionDate keeps a client date only when it falls inside the current
// quota month; anything else would slip past the monthly count.
func clampSessionDate(d, now time.Time) time.Time {
	if d.Before(coach.MonthStart(now)) || d.After(now) {
		return now
	}
	return d
}

type chatRequest struct {
	Patient models.PatientProfile `json:"patient"`
	History []models.ChatMessage  `json:"history"`
	Message string                `json:"message" binding:"required"`
}

// Chat returns the simulated patient's reply to the clinician's message.
func (s *Server) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), llmTimeout)
	defer cancel()

	reply, err := s.llm.PatientReply(ctx, req.Patient, req.History, req.Message)
	if err != nil {
		s.respondLLMError(c, "chat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reply": reply,
		"mood":  llm.InferMood(reply, req.Patient),
	})
}

type analyzeRequest struct {
	Patient    models.PatientProfile `json:"patient"`
	Transcript []models.ChatMessage  `json:"transcript"`
}

// AnalyzeSession scores a transcript. A transcript with no clinician turns
// yields the insufficient-data feedback without calling the model.
func (s *Server) AnalyzeSession(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if models.ClinicianTurns(req.Transcript) == 0 {
		c.JSON(http.StatusOK, llm.InsufficientFeedback())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), llmTimeout)
	defer cancel()

	fb, err := s.llm.AnalyzeSession(ctx, req.Patient, req.Transcript)
	if err != nil {
		s.respondLLMError(c, "analyze", err)
		return
	}
	c.JSON(http.StatusOK, fb)
}

// CoachingSummary summarises the caller's premium sessions.
func (s *Server) CoachingSummary(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	tier, err := s.tierFor(ctx, id)
	if err != nil {
		s.logger.Error("tier lookup failed", "user", id.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	list, err := s.store.GetUserSessions(ctx, id.UserID)
	if err != nil {
		s.logger.Error("session list failed", "user", id.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sessions"})
		return
	}
	switch err := coach.CanGenerateSummary(tier, list); {
	case errors.Is(err, coach.ErrPremiumRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "premium required"})
		return
	case errors.Is(err, coach.ErrNoPremiumSessions):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no premium sessions to summarise"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()
	summary, err := s.llm.CoachingSummary(ctx, coach.PremiumSessions(list))
	if err != nil {
		s.respondLLMError(c, "coaching-summary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) respondLLMError(c *gin.Context, op string, err error) {
	s.logger.Error("model request failed", "op", op, "error", err)
	status := http.StatusBadGateway
	if errors.Is(err, llm.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": "coach model unavailable"})
}
