package llm

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

const (
	defaultWhatWentRight        = "You showed up and engaged with the patient, which is the first step in building rapport."
	defaultConstructiveFeedback = "Try to use more open questions and reflective listening to draw out the patient's own motivations."
	defaultAreasForGrowth       = "Focus on reflecting the patient's statements before offering information or advice."
	defaultNextPracticeFocus    = "In your next session, aim for at least two complex reflections before asking another question."
	insufficientMessage         = "There wasn't enough conversation to analyze. Try exchanging a few more messages with the patient before ending the session."
)

// rawFeedback is the model's JSON before normalisation. Fields that models
// return in inconsistent shapes are kept raw.
type rawFeedback struct {
	WhatWentRight        string          `json:"whatWentRight"`
	KeyTakeaway          string          `json:"keyTakeaway"`
	EmpathyScore         json.RawMessage `json:"empathyScore"`
	EmpathyBreakdown     string          `json:"empathyBreakdown"`
	ConstructiveFeedback string          `json:"constructiveFeedback"`
	AreasForGrowth       string          `json:"areasForGrowth"`
	KeySkillsUsed        []string        `json:"keySkillsUsed"`
	SkillsDetected       []string        `json:"skillsDetected"`
	SkillCounts          json.RawMessage `json:"skillCounts"`
	NextPracticeFocus    string          `json:"nextPracticeFocus"`
	NextFocus            string          `json:"nextFocus"`
}

// InsufficientFeedback is returned when the clinician said nothing.
func InsufficientFeedback() models.Feedback {
	return models.Feedback{
		WhatWentRight:        "",
		EmpathyScore:         0,
		ConstructiveFeedback: insufficientMessage,
		AreasForGrowth:       "",
		KeySkillsUsed:        []string{},
		SkillsDetected:       []string{},
		SkillCounts:          map[string]int{},
		AnalysisStatus:       models.AnalysisInsufficientData,
		AnalysisMessage:      insufficientMessage,
	}
}

// ParseFeedback decodes a model response and normalises it.
func ParseFeedback(data []byte) (models.Feedback, error) {
	var raw rawFeedback
	if err := json.Unmarshal([]byte(stripFences(string(data))), &raw); err != nil {
		return models.Feedback{}, err
	}
	return normalizeFeedback(raw), nil
}

// normalizeFeedback clamps the score to 0..5, keeps only known skills and
// fills defaults for missing text.
func normalizeFeedback(raw rawFeedback) models.Feedback {
	counts := parseSkillCounts(raw.SkillCounts)

	used := filterSkills(raw.KeySkillsUsed)
	detected := filterSkills(raw.SkillsDetected)
	if len(detected) == 0 {
		for _, s := range models.Skills {
			if counts[s] > 0 {
				detected = append(detected, s)
			}
		}
	}
	if len(used) == 0 {
		used = append([]string{}, detected...)
	}

	fb := models.Feedback{
		WhatWentRight:        orDefault(raw.WhatWentRight, defaultWhatWentRight),
		KeyTakeaway:          strings.TrimSpace(raw.KeyTakeaway),
		EmpathyScore:         parseScore(raw.EmpathyScore),
		EmpathyBreakdown:     strings.TrimSpace(raw.EmpathyBreakdown),
		ConstructiveFeedback: orDefault(raw.ConstructiveFeedback, defaultConstructiveFeedback),
		AreasForGrowth:       orDefault(raw.AreasForGrowth, defaultAreasForGrowth),
		KeySkillsUsed:        used,
		SkillsDetected:       detected,
		SkillCounts:          counts,
		NextPracticeFocus:    orDefault(raw.NextPracticeFocus, defaultNextPracticeFocus),
		NextFocus:            strings.TrimSpace(raw.NextFocus),
		AnalysisStatus:       models.AnalysisComplete,
	}
	if fb.NextFocus == "" {
		fb.NextFocus = fb.NextPracticeFocus
	}
	return fb
}

func parseScore(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
	}
	if math.IsNaN(f) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(5, f))))
}

// parseSkillCounts accepts an object or a JSON-encoded object string.
func parseSkillCounts(raw json.RawMessage) map[string]int {
	out := map[string]int{}
	if len(raw) == 0 {
		return out
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = json.RawMessage(asString)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return out
	}
	for k, v := range generic {
		if !models.IsSkill(k) {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n > 0 {
				out[k] = int(math.Round(n))
			}
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil && i > 0 {
				out[k] = i
			}
		}
	}
	return out
}

func filterSkills(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if models.IsSkill(s) && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if t := strings.TrimSpace(s); t != "" {
		return t
	}
	return def
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
