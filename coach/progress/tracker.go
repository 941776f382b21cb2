package progress

import (
	"context"
	"errors"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
)

type storedXP struct {
	CurrentXP int `json:"currentXP"`
}

type storedBadge struct {
	BadgeID    string    `json:"badgeId"`
	UnlockedAt time.Time `json:"unlockedAt"`
	Seen       bool      `json:"seen"`
}

// Tracker keeps the device copy of a learner's streak, experience and
// badges. The copy stands in when the session history cannot be read.
type Tracker struct {
	device kv.Store
}

func NewTracker(device kv.Store) *Tracker {
	return &Tracker{device: device}
}

// Save stores the streak and experience of p. A longer stored streak is
// kept.
func (t *Tracker) Save(ctx context.Context, p Progress) error {
	var prev Streak
	if err := kv.GetJSON(ctx, t.device, kv.KeyStreak, &prev); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	s := p.Streak
	s.Longest = max(s.Longest, prev.Longest)
	if err := kv.SetJSON(ctx, t.device, kv.KeyStreak, s); err != nil {
		return err
	}
	return kv.SetJSON(ctx, t.device, kv.KeyXP, storedXP{CurrentXP: p.XP})
}

// Load rebuilds progress from the stored copy. It reports false when
// nothing was stored.
func (t *Tracker) Load(ctx context.Context, now time.Time) (Progress, bool, error) {
	var (
		s  Streak
		xp storedXP
	)
	errS := kv.GetJSON(ctx, t.device, kv.KeyStreak, &s)
	errX := kv.GetJSON(ctx, t.device, kv.KeyXP, &xp)
	for _, err := range []error{errS, errX} {
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			return Progress{}, false, err
		}
	}
	if errS != nil && errX != nil {
		return Progress{}, false, nil
	}

	p := fromXP(xp.CurrentXP)
	p.Streak = s.Validate(now)
	badges, err := t.badges(ctx)
	if err != nil {
		return Progress{}, false, err
	}
	for _, b := range badges {
		if def, ok := BadgeByID(b.BadgeID); ok {
			p.Badges = append(p.Badges, def)
		}
	}
	p.Goal = MasteryGoal(p.Level.Level, nil, nil)
	return p, true, nil
}

func (t *Tracker) badges(ctx context.Context) ([]storedBadge, error) {
	var list []storedBadge
	err := kv.GetJSON(ctx, t.device, kv.KeyBadges, &list)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	return list, err
}

// Unseen records any newly unlocked badges and returns every badge the
// learner has not acknowledged yet.
func (t *Tracker) Unseen(ctx context.Context, unlocked []Badge, now time.Time) ([]Badge, error) {
	list, err := t.badges(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(list))
	for _, b := range list {
		known[b.BadgeID] = true
	}
	added := false
	for _, b := range unlocked {
		if !known[b.ID] {
			list = append(list, storedBadge{BadgeID: b.ID, UnlockedAt: now})
			added = true
		}
	}
	if added {
		if err := kv.SetJSON(ctx, t.device, kv.KeyBadges, list); err != nil {
			return nil, err
		}
	}

	var out []Badge
	for _, b := range list {
		if b.Seen {
			continue
		}
		if def, ok := BadgeByID(b.BadgeID); ok {
			out = append(out, def)
		}
	}
	return out, nil
}

// MarkSeen acknowledges every unlocked badge.
func (t *Tracker) MarkSeen(ctx context.Context) error {
	list, err := t.badges(ctx)
	if err != nil || len(list) == 0 {
		return err
	}
	for i := range list {
		list[i].Seen = true
	}
	return kv.SetJSON(ctx, t.device, kv.KeyBadges, list)
}
