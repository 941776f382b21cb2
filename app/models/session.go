package models

import "time"

type Author string

const (
	AuthorUser    Author = "user"
	AuthorPatient Author = "patient"
)

type ChatMessage struct {
	Author Author `json:"author"`
	Text   string `json:"text"`
}

// SyncStatus records whether a session reached durable storage.
type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncPending SyncStatus = "pending"
	SyncLocal   SyncStatus = "local"
)

// Session is immutable once created. Its ID is the creation timestamp.
type Session struct {
	ID         string         `json:"id"`
	Date       time.Time      `json:"date"`
	Patient    PatientProfile `json:"patient"`
	Transcript []ChatMessage  `json:"transcript"`
	Feedback   Feedback       `json:"feedback"`
	Tier       Tier           `json:"tier"`
	Sync       SyncStatus     `json:"sync,omitempty"`
}

// NewSession stamps a session at now with the tier active at creation.
func NewSession(now time.Time, tier Tier, patient PatientProfile, transcript []ChatMessage, feedback Feedback) Session {
	return Session{
		ID:         now.UTC().Format(time.RFC3339Nano),
		Date:       now,
		Patient:    patient,
		Transcript: transcript,
		Feedback:   feedback,
		Tier:       tier,
	}
}

// ClinicianTurns returns the number of non-empty clinician messages.
func ClinicianTurns(transcript []ChatMessage) int {
	n := 0
	for _, m := range transcript {
		if m.Author == AuthorUser && len(m.Text) > 0 {
			n++
		}
	}
	return n
}
