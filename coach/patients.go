package coach

import (
	"math/rand/v2"

	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

type patientTemplate struct {
	topic     string
	problem   string
	complaint string
	history   string
}

var patientTemplates = []patientTemplate{
	{"alcohol use", "Drinking most evenings to unwind after work", "My partner says I drink too much.", "Drinking increased after a job change two years ago."},
	{"smoking", "Smokes a pack a day and has a persistent cough", "I'm only here because my doctor keeps bringing it up.", "Quit once for three months, relapsed during a stressful move."},
	{"medication adherence", "Skips blood pressure medication several days a week", "The pills make me feel tired.", "Diagnosed with hypertension last year."},
	{"physical activity", "Sedentary lifestyle with rising blood sugar", "I don't have time to exercise.", "Prediabetes noted at the last check-up."},
	{"diet", "Frequent fast food meals and weight gain", "Cooking feels like a chore after long shifts.", "Gained weight steadily over the last five years."},
	{"cannabis use", "Daily cannabis use affecting motivation", "It helps me sleep, so what's the problem?", "Started using in college, now using every night."},
}

var patientNames = []string{"Alex", "Jordan", "Sam", "Taylor", "Morgan", "Casey", "Riley", "Jamie"}

var patientTraits = []models.PersonalityTrait{
	models.TraitGuarded, models.TraitTalkative, models.TraitAnxious,
	models.TraitDefensive, models.TraitAmbivalent, models.TraitCooperative,
}

// GeneratePatient builds a random patient for a free practice session.
func GeneratePatient(rng *rand.Rand) models.PatientProfile {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	t := patientTemplates[rng.IntN(len(patientTemplates))]
	sex := "female"
	if rng.IntN(2) == 0 {
		sex = "male"
	}
	return models.PatientProfile{
		Name:              patientNames[rng.IntN(len(patientNames))],
		Age:               22 + rng.IntN(45),
		Sex:               sex,
		Background:        "Referred by primary care for a routine follow-up.",
		PresentingProblem: t.problem,
		Topic:             t.topic,
		History:           t.history,
		ChiefComplaint:    t.complaint,
		StageOfChange:     models.Stages[rng.IntN(len(models.Stages))],
		PersonalityTrait:  patientTraits[rng.IntN(len(patientTraits))],
		Difficulty:        models.DifficultyBeginner,
	}
}
