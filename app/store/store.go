// Package store persists profiles and practice sessions for the API.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

var ErrProfileNotFound = errors.New("store: profile not found")

// Store is the hosted profile and session database.
type Store interface {
	// GetUserProfile returns (nil, nil) when the user has no profile.
	GetUserProfile(ctx context.Context, userID string) (*models.Profile, error)
	// CreateUserProfile is a no-op for an existing profile and returns it.
	CreateUserProfile(ctx context.Context, userID string, tier models.Tier) (*models.Profile, error)
	// UpdateTier returns ErrProfileNotFound when no row matched.
	UpdateTier(ctx context.Context, userID string, tier models.Tier) (*models.Profile, error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	GetUserSessions(ctx context.Context, userID string) ([]models.Session, error)
	// SaveSession inserts s; a session id already stored for the user is ignored.
	SaveSession(ctx context.Context, userID string, s models.Session) error
	// GetSessionCount counts free-tagged sessions dated from since up to now.
	GetSessionCount(ctx context.Context, userID string, since time.Time) (int, error)
	Ping(ctx context.Context) error
}
