package domain

import (
	"time"
)

// Conversation is a persisted dialogue transcript for one encounter session.
type Conversation struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	EncounterID   string     `json:"encounter_id"`
	SessionNumber int        `json:"session_number"`
	Messages      Transcript `json:"messages"`
	IsCompleted   bool       `json:"is_completed"`
	ThoughtDepth  int        `json:"thought_depth"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CollectedQuote is a quote the narrator surfaced during a dialogue.
// Repeats are stored as separate rows.
type CollectedQuote struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	EncounterID string    `json:"encounter_id"`
	Quote       string    `json:"quote"`
	Author      string    `json:"author"`
	CollectedAt time.Time `json:"collected_at"`
}
