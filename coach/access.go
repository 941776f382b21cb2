package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

// Mode selects how quota errors are treated.
type Mode int

const (
	// ModeOnline denies practice when the quota cannot be checked.
	ModeOnline Mode = iota
	// ModeOfflineDev allows practice when the quota cannot be checked.
	ModeOfflineDev
)

func (m Mode) String() string {
	if m == ModeOfflineDev {
		return "offline-dev"
	}
	return "online"
}

// ParseMode reads a mode setting; empty means online.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "online":
		return ModeOnline, nil
	case "offline", "offline-dev", "dev":
		return ModeOfflineDev, nil
	}
	return ModeOnline, fmt.Errorf("unknown mode %q", s)
}

// Access decides whether a practice session may start.
type Access struct {
	quota  *QuotaCounter
	mode   Mode
	logger *slog.Logger
}

func NewAccess(quota *QuotaCounter, mode Mode, logger *slog.Logger) *Access {
	if logger == nil {
		logger = slog.Default()
	}
	return &Access{quota: quota, mode: mode, logger: logger}
}

func (a *Access) Mode() Mode {
	return a.mode
}

// CanStart reports whether a new practice session may begin.
func (a *Access) CanStart(ctx context.Context, id models.Identity, tier models.Tier) bool {
	if tier == models.TierPremium {
		return true
	}
	used, err := a.quota.SessionsThisMonth(ctx, id)
	if err != nil {
		allowed := a.mode == ModeOfflineDev
		a.logger.Warn("quota check failed",
			"identity", id.String(), "mode", a.mode.String(), "allowed", allowed, "error", err)
		return allowed
	}
	allowed := used < FreeMonthlyLimit
	a.logger.Debug("quota check", "identity", id.String(), "used", used, "allowed", allowed)
	return allowed
}

// CanGenerateSummary requires premium and at least one premium session.
func CanGenerateSummary(tier models.Tier, list []models.Session) error {
	if tier != models.TierPremium {
		return ErrPremiumRequired
	}
	if len(PremiumSessions(list)) == 0 {
		return ErrNoPremiumSessions
	}
	return nil
}

func PremiumSessions(list []models.Session) []models.Session {
	var out []models.Session
	for _, s := range list {
		if s.Tier == models.TierPremium {
			out = append(out, s)
		}
	}
	return out
}
