package progress

import (
	"fmt"
	"slices"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

type MasteryTier string

const (
	TierNovice       MasteryTier = "novice"
	TierIntermediate MasteryTier = "intermediate"
	TierMaster       MasteryTier = "master"
)

// GapThreshold is the competency score below which a skill needs work.
const GapThreshold = 70

// Goal is the next thing a learner should work on.
type Goal struct {
	Text        string      `json:"goal"`
	MasteryTier MasteryTier `json:"masteryTier"`
	Level       int         `json:"currentLevel"`
	FocusArea   string      `json:"focusArea"`
}

func MasteryTierFor(level int) MasteryTier {
	switch {
	case level <= 5:
		return TierNovice
	case level <= 15:
		return TierIntermediate
	}
	return TierMaster
}

func defaultFocus(t MasteryTier) string {
	switch t {
	case TierNovice:
		return "Reflective Listening"
	case TierIntermediate:
		return "Evoking Change Talk"
	}
	return "Rolling with Resistance"
}

// SkillGaps returns up to two competencies scoring under GapThreshold,
// weakest first.
func SkillGaps(scores []SkillScore) []string {
	var gaps []SkillScore
	for _, s := range scores {
		if s.Score < GapThreshold {
			gaps = append(gaps, s)
		}
	}
	slices.SortStableFunc(gaps, func(a, b SkillScore) int { return a.Score - b.Score })
	var out []string
	for _, g := range gaps[:min(2, len(gaps))] {
		out = append(out, g.Name)
	}
	return out
}

// MasteryGoal writes a goal from the learner's level, their five most
// recent sessions and their competency scores.
func MasteryGoal(level int, list []models.Session, scores []SkillScore) Goal {
	tier := MasteryTierFor(level)
	focus := defaultFocus(tier)
	if gaps := SkillGaps(scores); len(gaps) > 0 {
		focus = gaps[0]
	}

	recent := slices.Clone(list)
	slices.SortStableFunc(recent, func(a, b models.Session) int { return b.Date.Compare(a.Date) })
	recent = recent[:min(5, len(recent))]
	avg, _ := averageEmpathy(recent)

	note := "starting your journey"
	switch {
	case avg >= 80:
		note = "excellent performance"
	case avg >= 60:
		note = "solid progress"
	case avg > 0:
		note = "building foundational skills"
	}

	var text string
	switch tier {
	case TierNovice:
		text = fmt.Sprintf("Curious Beginner (Level %d): Focus on mastering %s. Your %s shows promise. Complete %d more practice sessions this week to unlock deeper insights.",
			level, focus, note, max(1, 3-len(recent)))
	case TierIntermediate:
		text = fmt.Sprintf("Engaged Learner (Level %d): Elevate your %s technique. With %s, you're ready for advanced scenarios. Practice %s in 2-3 sessions this week to reach Master tier.",
			level, focus, note, focus)
	default:
		text = fmt.Sprintf("MI Champion (Level %d): Refine %s to mentor-level precision. Your %s demonstrates expertise. Guide others by documenting your %s strategies in your next session.",
			level, focus, note, focus)
	}
	return Goal{Text: text, MasteryTier: tier, Level: level, FocusArea: focus}
}
