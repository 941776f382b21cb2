package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
)

func day(d, hour int) time.Time {
	return time.Date(2026, 3, d, hour, 0, 0, 0, time.UTC)
}

func scored(at time.Time, empathy int, skills map[string]int) models.Session {
	return models.NewSession(at, models.TierFree, models.PatientProfile{Name: "Alex"}, nil,
		models.Feedback{EmpathyScore: empathy, SkillCounts: skills})
}

func ids(badges []Badge) []string {
	out := []string{}
	for _, b := range badges {
		out = append(out, b.ID)
	}
	return out
}

func TestLevels(t *testing.T) {
	cases := []struct {
		xp, level int
	}{
		{0, 1}, {49, 1}, {50, 2}, {199, 2}, {200, 3}, {999, 4}, {1000, 5}, {5000, 5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelFor(tc.xp).Level, "xp %d", tc.xp)
	}

	assert.Equal(t, 50, XPToNext(0))
	assert.Equal(t, 140, XPToNext(60))
	assert.Equal(t, 0, XPToNext(1200))
	assert.Equal(t, 50, LevelProgress(125))
	assert.Equal(t, 100, LevelProgress(1000))
	assert.Equal(t, 12.5, ClinicalHours(125))
}

func TestSessionXP(t *testing.T) {
	assert.Equal(t, 20, SessionXP(models.Feedback{EmpathyScore: 5}))
	assert.Equal(t, 15, SessionXP(models.Feedback{EmpathyScore: 4}))
	assert.Equal(t, 10, SessionXP(models.Feedback{EmpathyScore: 3}))
	assert.Equal(t, 10, SessionXP(models.Feedback{}))
}

func TestStreakRecordAndValidate(t *testing.T) {
	var s Streak
	s = s.Record(day(1, 9))
	assert.Equal(t, Streak{Current: 1, Longest: 1, LastPractice: "2026-03-01"}, s)

	assert.Equal(t, s, s.Record(day(1, 20)))

	s = s.Record(day(2, 8))
	assert.Equal(t, 2, s.Current)
	s = s.Record(day(5, 8))
	assert.Equal(t, Streak{Current: 1, Longest: 2, LastPractice: "2026-03-05"}, s)

	assert.Equal(t, 1, s.Validate(day(6, 23)).Current)
	stale := s.Validate(day(7, 0))
	assert.Equal(t, 0, stale.Current)
	assert.Equal(t, 2, stale.Longest)
}

func TestStreakFromUsesLocalDays(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	list := []models.Session{
		scored(day(3, 14), 3, nil),
		scored(day(2, 3), 3, nil),
		scored(day(2, 15), 3, nil),
		scored(day(9, 12), 3, nil),
	}
	now := time.Date(2026, 3, 3, 20, 0, 0, 0, est)

	s := StreakFrom(list, now)
	assert.Equal(t, 3, s.Current)
	assert.Equal(t, 3, s.Longest)
	assert.Equal(t, "2026-03-03", s.LastPractice)

	assert.Equal(t, 2, StreakFrom(list, day(3, 20)).Current)
}

func TestUnlocked(t *testing.T) {
	assert.Empty(t, Unlocked(0, 0))
	assert.Equal(t, []string{"consistency-3", "sessions-1", "sessions-10"}, ids(Unlocked(3, 10)))
	assert.Equal(t, []string{"consistency-3", "consistency-7", "consistency-30", "consistency-90", "sessions-1"}, ids(Unlocked(120, 1)))
}

func TestCompute(t *testing.T) {
	skills := map[string]int{"Reflections": 2}
	list := []models.Session{
		scored(day(1, 10), 3, skills),
		scored(day(2, 10), 4, skills),
		scored(day(3, 10), 5, skills),
	}

	p := Compute(list, day(3, 18))
	assert.Equal(t, 45, p.XP)
	assert.Equal(t, 1, p.Level.Level)
	assert.Equal(t, 5, p.XPToNext)
	assert.Equal(t, 90, p.LevelProgress)
	assert.Equal(t, 4.5, p.ClinicalHours)
	assert.Equal(t, 3, p.TotalSessions)
	assert.Equal(t, 3, p.Streak.Current)
	assert.Equal(t, []string{"consistency-3", "sessions-1"}, ids(p.Badges))

	assert.Equal(t, TierNovice, p.Goal.MasteryTier)
	assert.Equal(t, "Open Questions", p.Goal.FocusArea)
	assert.Equal(t, "Curious Beginner (Level 1): Focus on mastering Open Questions. Your solid progress shows promise. Complete 1 more practice sessions this week to unlock deeper insights.", p.Goal.Text)

	empty := Compute(nil, day(3, 18))
	assert.Equal(t, 0, empty.XP)
	assert.Empty(t, empty.Badges)
	assert.Equal(t, "Reflective Listening", empty.Goal.FocusArea)
	assert.Contains(t, empty.Goal.Text, "starting your journey")
}

func TestBuildReport(t *testing.T) {
	list := []models.Session{
		scored(day(1, 10), 2, map[string]int{"Summaries": 1, "Small Talk": 5}),
		scored(day(3, 10), 5, map[string]int{"open questions": 1, "Reflections": 1}),
		scored(day(4, 10), 5, map[string]int{"Open Questions": 3}),
		scored(day(2, 10), 3, map[string]int{"Reflections": 2}),
	}

	r := BuildReport(list)
	assert.Equal(t, 4, r.SessionCount)
	assert.Equal(t, 69, r.OverallScore)
	assert.Equal(t, 38, r.PreviousScore)
	assert.Equal(t, Improving, r.Trend)
	require.NotNil(t, r.PeriodStart)
	assert.Equal(t, day(1, 10), *r.PeriodStart)
	assert.Equal(t, day(4, 10), *r.PeriodEnd)

	byName := map[string]SkillScore{}
	for _, s := range r.SkillScores {
		byName[s.Name] = s
	}
	assert.Len(t, r.SkillScores, len(Competencies))
	assert.Equal(t, SkillScore{Name: "Open Questions", Score: 100, Count: 4, Trend: Improving}, byName["Open Questions"])
	assert.Equal(t, SkillScore{Name: "Reflective Listening", Score: 75, Count: 3, Trend: Stable}, byName["Reflective Listening"])
	assert.Equal(t, 25, byName["Summarizing"].Score)
	assert.Equal(t, 0, byName["Affirmations"].Score)

	require.NotNil(t, r.TopStrength)
	assert.Equal(t, "Open Questions", r.TopStrength.Name)
	require.NotNil(t, r.AreaToImprove)
	assert.Equal(t, "Summarizing", r.AreaToImprove.Name)
	assert.Equal(t, 25, r.CurrentSkillScores[0].Score)

	require.Len(t, r.DailyScores, 4)
	assert.Equal(t, DailyScore{Date: "2026-03-01", Score: 25, SessionCount: 1}, r.DailyScores[0])
	assert.Equal(t, "Your MI competency is strong, particularly in open questions, and showing consistent improvement.", r.Summary)
}

func TestBuildReportFewSessions(t *testing.T) {
	r := BuildReport(nil)
	assert.Equal(t, Stable, r.Trend)
	assert.Nil(t, r.TopStrength)
	assert.Equal(t, "Complete your first practice session to see your MI competency report.", r.Summary)

	one := BuildReport([]models.Session{scored(day(1, 10), 4, nil)})
	assert.Equal(t, 75, one.OverallScore)
	assert.Equal(t, 75, one.PreviousScore)
	assert.Contains(t, one.Summary, "first session")
}

func TestGoals(t *testing.T) {
	assert.Equal(t, TierNovice, MasteryTierFor(5))
	assert.Equal(t, TierIntermediate, MasteryTierFor(6))
	assert.Equal(t, TierIntermediate, MasteryTierFor(15))
	assert.Equal(t, TierMaster, MasteryTierFor(16))

	gaps := SkillGaps([]SkillScore{{Name: "A", Score: 90}, {Name: "B", Score: 40}, {Name: "C", Score: 10}, {Name: "D", Score: 69}})
	assert.Equal(t, []string{"C", "B"}, gaps)

	g := MasteryGoal(16, nil, nil)
	assert.Equal(t, "Rolling with Resistance", g.FocusArea)
	assert.Contains(t, g.Text, "MI Champion (Level 16)")
}

func TestTrackerSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(kv.NewMemory())

	_, ok, err := tr.Load(ctx, day(3, 12))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tr.Save(ctx, Progress{XP: 60, Streak: Streak{Current: 4, Longest: 4, LastPractice: "2026-03-03"}}))
	require.NoError(t, tr.Save(ctx, Progress{XP: 70, Streak: Streak{Current: 1, Longest: 1, LastPractice: "2026-03-05"}}))

	p, ok, err := tr.Load(ctx, day(5, 12))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 70, p.XP)
	assert.Equal(t, 2, p.Level.Level)
	assert.Equal(t, Streak{Current: 1, Longest: 4, LastPractice: "2026-03-05"}, p.Streak)

	later, _, err := tr.Load(ctx, day(8, 12))
	require.NoError(t, err)
	assert.Equal(t, 0, later.Streak.Current)
	assert.Equal(t, 4, later.Streak.Longest)
}

func TestTrackerUnseenBadges(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(kv.NewMemory())

	unseen, err := tr.Unseen(ctx, Unlocked(0, 1), day(1, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{"sessions-1"}, ids(unseen))

	require.NoError(t, tr.MarkSeen(ctx))
	unseen, err = tr.Unseen(ctx, Unlocked(3, 1), day(3, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{"consistency-3"}, ids(unseen))

	p, ok, err := tr.Load(ctx, day(3, 10))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, p.Badges)
}
