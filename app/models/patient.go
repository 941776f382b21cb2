package models

type StageOfChange string

const (
	StagePrecontemplation StageOfChange = "Precontemplation"
	StageContemplation    StageOfChange = "Contemplation"
	StagePreparation      StageOfChange = "Preparation"
	StageAction           StageOfChange = "Action"
	StageMaintenance      StageOfChange = "Maintenance"
)

var Stages = []StageOfChange{
	StagePrecontemplation,
	StageContemplation,
	StagePreparation,
	StageAction,
	StageMaintenance,
}

type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "Beginner"
	DifficultyIntermediate DifficultyLevel = "Intermediate"
	DifficultyAdvanced     DifficultyLevel = "Advanced"
)

type PersonalityTrait string

const (
	TraitGuarded     PersonalityTrait = "guarded"
	TraitTalkative   PersonalityTrait = "talkative"
	TraitAnxious     PersonalityTrait = "anxious"
	TraitDefensive   PersonalityTrait = "defensive"
	TraitAmbivalent  PersonalityTrait = "ambivalent"
	TraitCooperative PersonalityTrait = "cooperative"
)

// PatientProfile is the simulated patient snapshot stored with a session.
type PatientProfile struct {
	Name              string           `json:"name"`
	Age               int              `json:"age"`
	Sex               string           `json:"sex"`
	Background        string           `json:"background"`
	PresentingProblem string           `json:"presentingProblem"`
	Topic             string           `json:"topic,omitempty"`
	History           string           `json:"history"`
	ChiefComplaint    string           `json:"chiefComplaint"`
	StageOfChange     StageOfChange    `json:"stageOfChange"`
	PersonalityTrait  PersonalityTrait `json:"personalityTrait,omitempty"`
	Difficulty        DifficultyLevel  `json:"difficulty,omitempty"`
	VariantID         string           `json:"variantId,omitempty"`
}
