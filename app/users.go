// Package app serves the practice coach HTTP API.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/auth"
)

// EnsureProfile creates a free profile the first time a user authenticates.
func (s *Server) EnsureProfile(c *gin.Context, claims *auth.Claims) error {
	if claims == nil || claims.Subject == "" {
		return nil
	}
	_, err := s.store.CreateUserProfile(c.Request.Context(), claims.Subject, models.TierFree)
	return err
}

// tierFor returns the caller's tier. Anonymous callers are always free.
func (s *Server) tierFor(ctx context.Context, id models.Identity) (models.Tier, error) {
	if id.Anonymous() {
		return models.TierFree, nil
	}
	p, err := s.store.GetUserProfile(ctx, id.UserID)
	if err != nil {
		return models.TierFree, fmt.Errorf("load profile: %w", err)
	}
	if p == nil || !p.Tier.Valid() {
		return models.TierFree, nil
	}
	return p.Tier, nil
}

// GetProfile returns the caller's profile, or 404 when none exists.
func (s *Server) GetProfile(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}
	p, err := s.store.GetUserProfile(c.Request.Context(), id.UserID)
	if err != nil {
		s.logger.Error("profile lookup failed", "user", id.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateProfile creates a free profile. An existing profile is returned
// unchanged; tiers only move through billing.
func (s *Server) CreateProfile(c *gin.Context) {
	id, ok := requireUser(c)
	if !ok {
		return
	}
	p, err := s.store.CreateUserProfile(c.Request.Context(), id.UserID, models.TierFree)
	if err != nil {
		s.logger.Error("profile create failed", "user", id.UserID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create profile"})
		return
	}
	c.JSON(http.StatusOK, p)
}
