package llm

import (
	"fmt"
	"strings"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

func patientInstruction(p models.PatientProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are role-playing a patient named %s, a %d-year-old %s, in a motivational interviewing practice session.\n", p.Name, p.Age, p.Sex)
	fmt.Fprintf(&b, "Background: %s\nPresenting problem: %s\nHistory: %s\n", p.Background, p.PresentingProblem, p.History)
	fmt.Fprintf(&b, "Your opening concern: %q\n", p.ChiefComplaint)
	fmt.Fprintf(&b, "You are in the %s stage of change.", p.StageOfChange)
	if p.PersonalityTrait != "" {
		fmt.Fprintf(&b, " Your manner is %s.", p.PersonalityTrait)
	}
	b.WriteString("\nStay in character. Reply in one to three sentences. Never give advice to the clinician or mention that you are an AI.")
	return b.String()
}

func transcriptText(t []models.ChatMessage) string {
	var b strings.Builder
	for _, m := range t {
		who := "Patient"
		if m.Author == models.AuthorUser {
			who = "Clinician"
		}
		fmt.Fprintf(&b, "%s: %s\n", who, m.Text)
	}
	return b.String()
}

const feedbackInstruction = `You are an expert motivational interviewing (MI) supervisor. Evaluate only the clinician's turns.
Return JSON with keys: whatWentRight, keyTakeaway, empathyScore (integer 1-5), empathyBreakdown,
constructiveFeedback, areasForGrowth, keySkillsUsed (array), skillsDetected (array), skillCounts (object),
nextPracticeFocus. Skill names must come from this list: ` + "Open Questions, Affirmations, Reflections, Summaries, Developing Discrepancy, Eliciting Change Talk, Rolling with Resistance, Supporting Self-Efficacy."

const summaryInstruction = `You are an MI coach reviewing a clinician's recent practice sessions.
Return JSON with keys: totalSessions, dateRange, strengthsAndTrends, areasForFocus, summaryAndNextSteps,
skillProgression (array of {skill, frequency, trend, recommendation}), topSkillsToImprove (array), specificNextSteps (array).`

func feedbackPrompt(p models.PatientProfile, t []models.ChatMessage) string {
	return fmt.Sprintf("Patient: %s, %s stage, topic %q.\n\nTranscript:\n%s", p.Name, p.StageOfChange, p.Topic, transcriptText(t))
}

func summaryPrompt(sessions []models.Session) string {
	var b strings.Builder
	for i, s := range sessions {
		fmt.Fprintf(&b, "Session %d (%s, %s): empathy %d/5, skills %s. Growth area: %s\n",
			i+1, s.Date.Format("2006-01-02"), s.Patient.Topic, s.Feedback.EmpathyScore,
			strings.Join(s.Feedback.KeySkillsUsed, ", "), s.Feedback.AreasForGrowth)
	}
	return b.String()
}
