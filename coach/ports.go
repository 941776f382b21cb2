// Package coach is the client-side application controller: it resolves the
// user's tier, counts the monthly quota, decides whether practice may start
// and drives the view router.
package coach

import (
	"context"
	"errors"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/sessions"
)

// Backend is the hosted database, reached directly or through the API.
type Backend interface {
	sessions.Remote
	// GetUserProfile returns (nil, nil) when the user has no profile yet.
	GetUserProfile(ctx context.Context, userID string) (*models.Profile, error)
	CreateUserProfile(ctx context.Context, userID string, tier models.Tier) (*models.Profile, error)
	// GetSessionCount counts free-tagged sessions dated from since up to now.
	GetSessionCount(ctx context.Context, userID string, since time.Time) (int, error)
}

// Billing confirms a finished checkout.
type Billing interface {
	UpdateTierFromSession(ctx context.Context, sessionID string) (models.TierUpdate, error)
}

// Summarizer builds the premium coaching summary.
type Summarizer interface {
	CoachingSummary(ctx context.Context, sessions []models.Session) (models.CoachingSummary, error)
}

// Authenticator ends the auth provider session.
type Authenticator interface {
	SignOut(ctx context.Context) error
}

var (
	ErrPremiumRequired   = errors.New("coach: premium tier required")
	ErrNoPremiumSessions = errors.New("coach: no premium sessions to summarise")
	ErrSignInRequired    = errors.New("coach: sign in required")
)
