package llm

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

var stageReplies = map[models.StageOfChange][]string{
	models.StagePrecontemplation: {
		"Honestly, I don't really see what the big deal is.",
		"Everyone keeps telling me to change, but I'm fine the way things are.",
		"I only came in because my family pushed me to.",
	},
	models.StageContemplation: {
		"I know it's probably not great for me, but it's hard to imagine stopping.",
		"Part of me wants to change, but part of me thinks it helps me cope.",
		"I guess I've been thinking about it more lately.",
	},
	models.StagePreparation: {
		"I've been looking into some options, I'm just not sure where to start.",
		"I want to make a plan this month. What have other people tried?",
		"I think I'm ready to try something different.",
	},
	models.StageAction: {
		"I've cut back over the last couple of weeks and it's been tough.",
		"I started making changes, but some days are harder than others.",
		"I'm trying to stick with it. It feels good to make progress.",
	},
	models.StageMaintenance: {
		"It's been a few months now and I'm mostly keeping it up.",
		"I worry about slipping back when things get stressful.",
		"I'm proud of how far I've come, but I still have to work at it.",
	},
}

var skillCues = []struct {
	skill string
	cues  []string
}{
	{"Reflections", []string{"it sounds like", "you feel", "you're feeling", "you're saying", "you seem"}},
	{"Affirmations", []string{"great job", "i appreciate", "that takes", "well done", "you've worked"}},
	{"Summaries", []string{"so far", "to summarize", "let me see if i", "what i'm hearing"}},
	{"Eliciting Change Talk", []string{"what would", "how would", "why might", "what makes you want"}},
	{"Developing Discrepancy", []string{"on one hand", "on the other hand", "compared to", "matters to you"}},
	{"Rolling with Resistance", []string{"it's your choice", "up to you", "you decide", "that's okay"}},
	{"Supporting Self-Efficacy", []string{"you can", "confident", "you've done", "you're capable"}},
}

// Mock is a deterministic offline Provider.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) PatientReply(_ context.Context, patient models.PatientProfile, history []models.ChatMessage, message string) (string, error) {
	replies, ok := stageReplies[patient.StageOfChange]
	if !ok {
		replies = stageReplies[models.StageContemplation]
	}
	if len(history) == 0 && strings.TrimSpace(message) == "" && patient.ChiefComplaint != "" {
		return patient.ChiefComplaint, nil
	}
	h := xxhash.Sum64String(message + "|" + string(patient.StageOfChange))
	return replies[h%uint64(len(replies))], nil
}

// DetectSkills counts MI skills in clinician turns by surface cues.
func DetectSkills(transcript []models.ChatMessage) map[string]int {
	counts := map[string]int{}
	for _, msg := range transcript {
		if msg.Author != models.AuthorUser {
			continue
		}
		lower := strings.ToLower(msg.Text)
		if strings.Contains(lower, "?") && !strings.HasPrefix(strings.TrimSpace(lower), "do ") &&
			!strings.HasPrefix(strings.TrimSpace(lower), "are ") && !strings.HasPrefix(strings.TrimSpace(lower), "is ") {
			counts["Open Questions"]++
		}
		for _, c := range skillCues {
			for _, cue := range c.cues {
				if strings.Contains(lower, cue) {
					counts[c.skill]++
					break
				}
			}
		}
	}
	return counts
}

func (m *Mock) AnalyzeSession(_ context.Context, _ models.PatientProfile, transcript []models.ChatMessage) (models.Feedback, error) {
	if models.ClinicianTurns(transcript) == 0 {
		return InsufficientFeedback(), nil
	}
	counts := DetectSkills(transcript)
	used := make([]string, 0, len(counts))
	for _, s := range models.Skills {
		if counts[s] > 0 {
			used = append(used, s)
		}
	}

	score := 1 + len(used)
	if score > 5 {
		score = 5
	}
	raw := rawFeedback{
		KeySkillsUsed:  used,
		SkillsDetected: used,
	}
	raw.EmpathyScore = json.RawMessage(strconv.Itoa(score))
	fb := normalizeFeedback(raw)
	fb.SkillCounts = counts
	if len(used) > 0 {
		fb.WhatWentRight = "You used " + strings.Join(used, ", ") + " during the conversation."
		fb.KeyTakeaway = "Keep building on " + used[0] + "."
	}
	return fb, nil
}

func (m *Mock) CoachingSummary(_ context.Context, sessions []models.Session) (models.CoachingSummary, error) {
	totals := map[string]int{}
	for _, s := range sessions {
		for k, v := range s.Feedback.SkillCounts {
			totals[k] += v
		}
		for _, k := range s.Feedback.KeySkillsUsed {
			if s.Feedback.SkillCounts[k] == 0 {
				totals[k]++
			}
		}
	}

	var progression []models.SkillProgression
	var missing []string
	for _, skill := range models.Skills {
		n := totals[skill]
		if n == 0 {
			missing = append(missing, skill)
			continue
		}
		progression = append(progression, models.SkillProgression{
			Skill:          skill,
			Frequency:      n,
			Trend:          "steady",
			Recommendation: "Keep using " + strings.ToLower(skill) + " early in the conversation.",
		})
	}
	sort.SliceStable(progression, func(i, j int) bool { return progression[i].Frequency > progression[j].Frequency })
	if len(missing) > 3 {
		missing = missing[:3]
	}

	strengths := "Keep practicing to build a clearer picture of your strengths."
	if len(progression) > 0 {
		strengths = "Your most frequent skill is " + progression[0].Skill + "."
	}
	steps := make([]string, 0, len(missing))
	for _, s := range missing {
		steps = append(steps, "Practice "+strings.ToLower(s)+" in your next session.")
	}
	return models.CoachingSummary{
		TotalSessions:       len(sessions),
		DateRange:           dateRange(sessions),
		StrengthsAndTrends:  strengths,
		AreasForFocus:       strings.Join(missing, ", "),
		SummaryAndNextSteps: "Continue regular practice and focus on the skills you use least.",
		SkillProgression:    progression,
		TopSkillsToImprove:  missing,
		SpecificNextSteps:   steps,
	}, nil
}
