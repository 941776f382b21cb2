package progress

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

type Trend string

const (
	Improving Trend = "improving"
	Stable    Trend = "stable"
	Declining Trend = "declining"
)

// Competencies are the report's skill groups, in display order.
var Competencies = []string{
	"Reflective Listening",
	"Open Questions",
	"Affirmations",
	"Summarizing",
	"Evoking Change Talk",
	"Rolling with Resistance",
}

var competencyAliases = map[string][]string{
	"Reflective Listening":    {"Reflections", "Reflective Listening"},
	"Open Questions":          {"Open Questions"},
	"Affirmations":            {"Affirmations"},
	"Summarizing":             {"Summaries", "Summarizing"},
	"Evoking Change Talk":     {"Eliciting Change Talk", "Evoking Change Talk", "Developing Discrepancy"},
	"Rolling with Resistance": {"Rolling with Resistance", "Supporting Self-Efficacy"},
}

// Competency maps a detected skill name onto its competency, ignoring case.
func Competency(skill string) (string, bool) {
	for _, name := range Competencies {
		for _, alias := range competencyAliases[name] {
			if strings.EqualFold(alias, skill) {
				return name, true
			}
		}
	}
	return "", false
}

// EmpathyPercent maps a 1 to 5 empathy score onto 0 to 100.
func EmpathyPercent(score int) int {
	return int(math.Round(float64(score-1) / 4 * 100))
}

type SkillScore struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Count int    `json:"count"`
	Trend Trend  `json:"trend"`
}

type DailyScore struct {
	Date         string `json:"date"`
	Score        int    `json:"score"`
	SessionCount int    `json:"sessionCount"`
}

type Report struct {
	OverallScore        int          `json:"overallScore"`
	PreviousScore       int          `json:"previousScore"`
	Trend               Trend        `json:"trend"`
	SkillScores         []SkillScore `json:"skillScores"`
	CurrentSkillScores  []SkillScore `json:"currentSkillScores"`
	PreviousSkillScores []SkillScore `json:"previousSkillScores"`
	DailyScores         []DailyScore `json:"dailyScores"`
	SessionCount        int          `json:"sessionCount"`
	PeriodStart         *time.Time   `json:"periodStart"`
	PeriodEnd           *time.Time   `json:"periodEnd"`
	TopStrength         *SkillScore  `json:"topStrength"`
	AreaToImprove       *SkillScore  `json:"areaToImprove"`
	Summary             string       `json:"performanceSummary"`
}

const firstSessionPrompt = "Complete your first practice session to see your MI competency report."

// BuildReport scores a session history. The newer half of the sessions is
// compared against the older half to find trends.
func BuildReport(list []models.Session) Report {
	if len(list) == 0 {
		return Report{
			Trend:               Stable,
			SkillScores:         []SkillScore{},
			CurrentSkillScores:  []SkillScore{},
			PreviousSkillScores: []SkillScore{},
			DailyScores:         []DailyScore{},
			Summary:             firstSessionPrompt,
		}
	}

	sorted := slices.Clone(list)
	slices.SortStableFunc(sorted, func(a, b models.Session) int { return b.Date.Compare(a.Date) })
	mid := (len(sorted) + 1) / 2
	recent, older := sorted[:mid], sorted[mid:]

	end, start := sorted[0].Date, sorted[len(sorted)-1].Date
	r := Report{
		SessionCount: len(sorted),
		PeriodStart:  &start,
		PeriodEnd:    &end,
		Trend:        Stable,
	}
	r.OverallScore, _ = averageEmpathy(sorted)
	if prev, ok := averageEmpathy(older); ok {
		r.PreviousScore = prev
	} else {
		r.PreviousScore = r.OverallScore
	}
	switch diff := r.OverallScore - r.PreviousScore; {
	case diff >= 5:
		r.Trend = Improving
	case diff <= -5:
		r.Trend = Declining
	}

	r.SkillScores = skillScores(sorted, recent, older)
	r.CurrentSkillScores = skillScores(recent, recent, nil)
	r.PreviousSkillScores = skillScores(older, older, nil)
	r.DailyScores = dailyScores(sorted)

	ranked := slices.Clone(r.SkillScores)
	slices.SortStableFunc(ranked, func(a, b SkillScore) int { return cmp.Compare(b.Score, a.Score) })
	top := ranked[0]
	r.TopStrength = &top
	weakest := ranked[len(ranked)-1]
	for _, s := range ranked {
		if s.Count > 0 {
			weakest = s
		}
	}
	r.AreaToImprove = &weakest
	r.Summary = summaryText(r.OverallScore, r.Trend, r.SessionCount, r.TopStrength)
	return r
}

// averageEmpathy averages the percent scores of sessions that were scored.
func averageEmpathy(list []models.Session) (int, bool) {
	sum, n := 0, 0
	for _, s := range list {
		if s.Feedback.EmpathyScore > 0 {
			sum += EmpathyPercent(s.Feedback.EmpathyScore)
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return int(math.Round(float64(sum) / float64(n))), true
}

func countSkills(list []models.Session) map[string]int {
	counts := make(map[string]int, len(Competencies))
	for _, s := range list {
		for skill, n := range s.Feedback.SkillCounts {
			if name, ok := Competency(skill); ok {
				counts[name] += n
			}
		}
	}
	return counts
}

// skillScores rates each competency against the most used one.
func skillScores(all, recent, older []models.Session) []SkillScore {
	total, rc, oc := countSkills(all), countSkills(recent), countSkills(older)
	maxTotal := 1
	for _, n := range total {
		maxTotal = max(maxTotal, n)
	}

	out := make([]SkillScore, 0, len(Competencies))
	for _, name := range Competencies {
		s := SkillScore{
			Name:  name,
			Count: total[name],
			Score: int(math.Round(float64(total[name]) / float64(maxTotal) * 100)),
			Trend: Stable,
		}
		if len(recent) > 0 && len(older) > 0 {
			diff := float64(rc[name])/float64(len(recent)) - float64(oc[name])/float64(len(older))
			switch {
			case diff > 0.5:
				s.Trend = Improving
			case diff < -0.5:
				s.Trend = Declining
			}
		}
		out = append(out, s)
	}
	return out
}

// dailyScores averages the scored sessions of each UTC day, oldest first.
func dailyScores(list []models.Session) []DailyScore {
	type day struct{ sum, scored, count int }
	byDate := map[string]*day{}
	for _, s := range list {
		key := dayKey(s.Date.UTC())
		d := byDate[key]
		if d == nil {
			d = &day{}
			byDate[key] = d
		}
		d.count++
		if s.Feedback.EmpathyScore > 0 {
			d.sum += EmpathyPercent(s.Feedback.EmpathyScore)
			d.scored++
		}
	}

	out := make([]DailyScore, 0, len(byDate))
	for date, d := range byDate {
		p := DailyScore{Date: date, SessionCount: d.count}
		if d.scored > 0 {
			p.Score = int(math.Round(float64(d.sum) / float64(d.scored)))
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b DailyScore) int { return strings.Compare(a.Date, b.Date) })
	return out
}

func summaryText(overall int, trend Trend, sessions int, top *SkillScore) string {
	switch sessions {
	case 0:
		return firstSessionPrompt
	case 1:
		return "You've completed your first session! Keep practicing to build your MI skills."
	}

	level := "emerging"
	switch {
	case overall >= 80:
		level = "excellent"
	case overall >= 60:
		level = "strong"
	case overall >= 40:
		level = "developing"
	}
	phrase := "with steady consistency"
	switch trend {
	case Improving:
		phrase = "and showing consistent improvement"
	case Declining:
		phrase = "with room to regain momentum"
	}
	strength := ""
	if top != nil {
		strength = ", particularly in " + strings.ToLower(top.Name)
	}
	return fmt.Sprintf("Your MI competency is %s%s, %s.", level, strength, phrase)
}
