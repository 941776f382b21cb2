package models

type AnalysisStatus string

const (
	AnalysisComplete         AnalysisStatus = "complete"
	AnalysisInsufficientData AnalysisStatus = "insufficient-data"
)

// Skills is the fixed MI skill vocabulary.
var Skills = []string{
	"Open Questions",
	"Affirmations",
	"Reflections",
	"Summaries",
	"Developing Discrepancy",
	"Eliciting Change Talk",
	"Rolling with Resistance",
	"Supporting Self-Efficacy",
}

func IsSkill(name string) bool {
	for _, s := range Skills {
		if s == name {
			return true
		}
	}
	return false
}

type Feedback struct {
	WhatWentRight        string         `json:"whatWentRight"`
	KeyTakeaway          string         `json:"keyTakeaway,omitempty"`
	EmpathyScore         int            `json:"empathyScore"`
	EmpathyBreakdown     string         `json:"empathyBreakdown,omitempty"`
	ConstructiveFeedback string         `json:"constructiveFeedback"`
	AreasForGrowth       string         `json:"areasForGrowth"`
	KeySkillsUsed        []string       `json:"keySkillsUsed"`
	SkillsDetected       []string       `json:"skillsDetected,omitempty"`
	SkillCounts          map[string]int `json:"skillCounts,omitempty"`
	NextPracticeFocus    string         `json:"nextPracticeFocus,omitempty"`
	NextFocus            string         `json:"nextFocus,omitempty"`
	AnalysisStatus       AnalysisStatus `json:"analysisStatus,omitempty"`
	AnalysisMessage      string         `json:"analysisMessage,omitempty"`
}

type SkillProgression struct {
	Skill          string `json:"skill"`
	Frequency      int    `json:"frequency"`
	Trend          string `json:"trend"`
	Recommendation string `json:"recommendation"`
}

type CoachingSummary struct {
	TotalSessions       int                `json:"totalSessions"`
	DateRange           string             `json:"dateRange"`
	StrengthsAndTrends  string             `json:"strengthsAndTrends"`
	AreasForFocus       string             `json:"areasForFocus"`
	SummaryAndNextSteps string             `json:"summaryAndNextSteps"`
	SkillProgression    []SkillProgression `json:"skillProgression,omitempty"`
	TopSkillsToImprove  []string           `json:"topSkillsToImprove,omitempty"`
	SpecificNextSteps   []string           `json:"specificNextSteps,omitempty"`
}
