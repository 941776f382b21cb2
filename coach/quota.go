package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/sessions"
)

// FreeMonthlyLimit is the number of free-tagged sessions allowed per
// calendar month.
const FreeMonthlyLimit = 3

// MonthStart returns midnight on the first day of now's month, in now's
// location.
func MonthStart(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
}

// CountFreeThisMonth counts free-tagged sessions dated between the start of
// now's month and now. Dates are compared in now's location.
func CountFreeThisMonth(list []models.Session, now time.Time) int {
	start := MonthStart(now)
	n := 0
	for _, s := range list {
		if s.Tier != models.TierFree {
			continue
		}
		d := s.Date.In(now.Location())
		if !d.Before(start) && !d.After(now) {
			n++
		}
	}
	return n
}

// RemainingFrom is max(0, FreeMonthlyLimit-used).
func RemainingFrom(used int) int {
	if left := FreeMonthlyLimit - used; left > 0 {
		return left
	}
	return 0
}

type QuotaCounter struct {
	backend Backend
	store   *sessions.Store
	now     func() time.Time
	logger  *slog.Logger
}

// NewQuotaCounter counts through backend for signed-in users and store otherwise.
func NewQuotaCounter(backend Backend, store *sessions.Store, now func() time.Time, logger *slog.Logger) *QuotaCounter {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaCounter{backend: backend, store: store, now: now, logger: logger}
}

// SessionsThisMonth counts this month's free sessions. Signed-in users are
// counted by the backend, falling back to scanning their session list.
func (q *QuotaCounter) SessionsThisMonth(ctx context.Context, id models.Identity) (int, error) {
	now := q.now()
	if id.Anonymous() {
		list, err := q.store.Load(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("count device sessions: %w", err)
		}
		return CountFreeThisMonth(list, now), nil
	}
	if q.backend == nil {
		return 0, errors.New("quota: no backend configured")
	}

	n, err := q.backend.GetSessionCount(ctx, id.UserID, MonthStart(now))
	if err == nil {
		return n, nil
	}
	q.logger.Warn("session count failed, scanning session list", "user_id", id.UserID, "error", err)

	list, lerr := q.backend.GetUserSessions(ctx, id.UserID)
	if lerr != nil {
		return 0, fmt.Errorf("count sessions: %w", errors.Join(err, lerr))
	}
	return CountFreeThisMonth(list, now), nil
}

// Remaining is nil for premium. For free it is the sessions left this
// month, or 0 when the count cannot be obtained at all.
func (q *QuotaCounter) Remaining(ctx context.Context, id models.Identity, tier models.Tier) *int {
	if tier == models.TierPremium {
		return nil
	}
	used, err := q.SessionsThisMonth(ctx, id)
	if err != nil {
		q.logger.Error("quota unavailable, reporting none left", "identity", id.String(), "error", err)
		zero := 0
		return &zero
	}
	left := RemainingFrom(used)
	return &left
}
