// Package llm generates simulated patient replies, session feedback and
// coaching summaries, either from Gemini or from a deterministic mock.
package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Edjavier-collab/Main2MI-sub000/app/config"
	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
)

type Provider interface {
	PatientReply(ctx context.Context, patient models.PatientProfile, history []models.ChatMessage, message string) (string, error)
	AnalyzeSession(ctx context.Context, patient models.PatientProfile, transcript []models.ChatMessage) (models.Feedback, error)
	CoachingSummary(ctx context.Context, sessions []models.Session) (models.CoachingSummary, error)
}

// New returns a Gemini provider, or the mock when no API key is set.
func New(cfg config.GeminiConfig, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, using mock responder")
		return NewMock()
	}
	return NewGemini(cfg.APIKey, cfg.Model, logger)
}

type Mood string

const (
	MoodResistant  Mood = "resistant"
	MoodAmbivalent Mood = "ambivalent"
	MoodOpen       Mood = "open"
	MoodNeutral    Mood = "neutral"
)

var moodCues = []struct {
	mood  Mood
	words []string
}{
	{MoodResistant, []string{"not a problem", "don't need", "leave me", "why does everyone", "i'm fine", "whatever"}},
	{MoodAmbivalent, []string{"but ", "i guess", "maybe", "not sure", "part of me"}},
	{MoodOpen, []string{"i want", "i could", "i'd like", "ready", "i should try", "willing"}},
}

// InferMood labels a patient reply for display.
func InferMood(reply string, patient models.PatientProfile) Mood {
	lower := strings.ToLower(reply)
	for _, c := range moodCues {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.mood
			}
		}
	}
	switch patient.StageOfChange {
	case models.StagePrecontemplation:
		return MoodResistant
	case models.StageContemplation:
		return MoodAmbivalent
	case models.StagePreparation, models.StageAction:
		return MoodOpen
	}
	return MoodNeutral
}
