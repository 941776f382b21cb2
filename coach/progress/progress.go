// Package progress derives practice streaks, experience levels, badges,
// competency reports and mastery goals from a session history.
package progress

import (
	"math"
	"slices"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

// XPPerHour converts experience points to clinical hours.
const XPPerHour = 10

// Experience awarded per finished session.
const (
	BaseSessionXP   = 10
	StrongEmpathyXP = 10
	GoodEmpathyXP   = 5
)

type Level struct {
	Level       int    `json:"level"`
	Name        string `json:"name"`
	MinHours    int    `json:"minHours"`
	MinXP       int    `json:"minXP"`
	Description string `json:"description"`
}

// Levels is the proficiency ladder, lowest first.
var Levels = []Level{
	{1, "Novice Clinician", 0, 0, "Learning foundational MI concepts"},
	{2, "Advanced Beginner", 5, 50, "Applying skills in structured scenarios"},
	{3, "Competent Practitioner", 20, 200, "Handling complex patient interactions"},
	{4, "Proficient Clinician", 50, 500, "Demonstrating consistent clinical excellence"},
	{5, "Expert", 100, 1000, "Mastery of MI techniques"},
}

// LevelFor returns the highest level whose threshold xp has reached.
func LevelFor(xp int) Level {
	lvl := Levels[0]
	for _, l := range Levels {
		if xp >= l.MinXP {
			lvl = l
		}
	}
	return lvl
}

// XPToNext is the experience still needed for the next level, 0 at the top.
func XPToNext(xp int) int {
	cur := LevelFor(xp)
	if cur.Level >= len(Levels) {
		return 0
	}
	return Levels[cur.Level].MinXP - xp
}

// LevelProgress is the percentage of the way through the current level.
func LevelProgress(xp int) int {
	cur := LevelFor(xp)
	if cur.Level >= len(Levels) {
		return 100
	}
	next := Levels[cur.Level]
	return int(math.Round(float64(xp-cur.MinXP) / float64(next.MinXP-cur.MinXP) * 100))
}

func ClinicalHours(xp int) float64 {
	return float64(xp) / XPPerHour
}

// SessionXP is the experience a session earns: a base award plus a bonus
// for a high empathy score.
func SessionXP(f models.Feedback) int {
	xp := BaseSessionXP
	switch {
	case f.EmpathyScore >= 5:
		xp += StrongEmpathyXP
	case f.EmpathyScore >= 4:
		xp += GoodEmpathyXP
	}
	return xp
}

type BadgeCategory string

const (
	CategoryConsistency BadgeCategory = "consistency"
	CategoryDedication  BadgeCategory = "dedication"
)

type Badge struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    BadgeCategory `json:"category"`
	Requirement int           `json:"requirement"`
}

// Badges lists every badge. Consistency badges need a streak of
// Requirement days, dedication badges a session total.
var Badges = []Badge{
	{"consistency-3", "Consistent Learner", "Practice for 3 consecutive days", CategoryConsistency, 3},
	{"consistency-7", "Weekly Commitment", "Practice for 7 consecutive days", CategoryConsistency, 7},
	{"consistency-30", "Monthly Dedication", "Practice for 30 consecutive days", CategoryConsistency, 30},
	{"consistency-90", "Quarterly Excellence", "Practice for 90 consecutive days", CategoryConsistency, 90},
	{"sessions-1", "Getting Started", "Complete your first practice session", CategoryDedication, 1},
	{"sessions-10", "Clinical Foundations", "Complete 10 practice sessions", CategoryDedication, 10},
	{"sessions-50", "Dedicated Practitioner", "Complete 50 practice sessions", CategoryDedication, 50},
	{"sessions-100", "MI Specialist", "Complete 100 practice sessions", CategoryDedication, 100},
}

func BadgeByID(id string) (Badge, bool) {
	for _, b := range Badges {
		if b.ID == id {
			return b, true
		}
	}
	return Badge{}, false
}

// Unlocked returns the badges earned with the given best streak and
// session total. A badge stays earned once the streak that won it breaks.
func Unlocked(longestStreak, sessions int) []Badge {
	var out []Badge
	for _, b := range Badges {
		n := sessions
		if b.Category == CategoryConsistency {
			n = longestStreak
		}
		if n >= b.Requirement {
			out = append(out, b)
		}
	}
	return out
}

const dayLayout = "2006-01-02"

// Streak counts consecutive calendar days with practice.
type Streak struct {
	Current      int    `json:"currentStreak"`
	Longest      int    `json:"longestStreak"`
	LastPractice string `json:"lastPracticeDate,omitempty"`
}

func dayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// Record applies a practice on day, in day's own time zone. A second
// practice on the same day changes nothing.
func (s Streak) Record(day time.Time) Streak {
	today := dayKey(day)
	if s.LastPractice == today {
		return s
	}
	if s.LastPractice == dayKey(day.AddDate(0, 0, -1)) {
		s.Current++
	} else {
		s.Current = 1
	}
	s.LastPractice = today
	s.Longest = max(s.Longest, s.Current)
	return s
}

// Validate drops the current streak when the last practice was before
// yesterday. The longest streak is kept.
func (s Streak) Validate(now time.Time) Streak {
	if s.LastPractice == "" {
		return s
	}
	if s.LastPractice != dayKey(now) && s.LastPractice != dayKey(now.AddDate(0, 0, -1)) {
		s.Current = 0
	}
	return s
}

// StreakFrom replays the session dates, read in now's time zone.
func StreakFrom(list []models.Session, now time.Time) Streak {
	days := make([]time.Time, 0, len(list))
	for _, sess := range list {
		if sess.Date.After(now) {
			continue
		}
		days = append(days, sess.Date.In(now.Location()))
	}
	slices.SortFunc(days, func(a, b time.Time) int { return a.Compare(b) })

	var s Streak
	for _, d := range days {
		s = s.Record(d)
	}
	return s.Validate(now)
}

// Progress is everything the dashboard shows about a learner's growth.
type Progress struct {
	Streak        Streak  `json:"streak"`
	XP            int     `json:"currentXP"`
	Level         Level   `json:"level"`
	XPToNext      int     `json:"xpToNextLevel"`
	LevelProgress int     `json:"levelProgress"`
	ClinicalHours float64 `json:"clinicalHours"`
	TotalSessions int     `json:"totalSessions"`
	Badges        []Badge `json:"badges"`
	Goal          Goal    `json:"goal"`
}

func fromXP(xp int) Progress {
	return Progress{
		XP:            xp,
		Level:         LevelFor(xp),
		XPToNext:      XPToNext(xp),
		LevelProgress: LevelProgress(xp),
		ClinicalHours: ClinicalHours(xp),
	}
}

// Compute derives progress from a full session history.
func Compute(list []models.Session, now time.Time) Progress {
	xp := 0
	for _, sess := range list {
		xp += SessionXP(sess.Feedback)
	}
	p := fromXP(xp)
	p.Streak = StreakFrom(list, now)
	p.TotalSessions = len(list)
	p.Badges = Unlocked(p.Streak.Longest, p.TotalSessions)
	p.Goal = MasteryGoal(p.Level.Level, list, BuildReport(list).SkillScores)
	return p
}
