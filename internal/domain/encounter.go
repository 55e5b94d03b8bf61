package domain

import (
	"time"
)

// Tier groups encounters into unlockable content levels.
type Tier int

// Encounter is a unit of curated content the user dialogues about.
type Encounter struct {
	ID                  string        `json:"id" yaml:"id"`
	Tier                Tier          `json:"tier" yaml:"tier"`
	Title               string        `json:"title" yaml:"title"`
	Author              string        `json:"author" yaml:"author"`
	Book                string        `json:"book" yaml:"book"`
	CoreTheme           string        `json:"core_theme" yaml:"core_theme"`
	Sessions            int           `json:"sessions" yaml:"sessions"`
	TemperamentAffinity []Temperament `json:"temperament_affinity" yaml:"temperament_affinity"`
	Description         string        `json:"description" yaml:"description"`
}

// HasAffinity returns true if the encounter suits the given temperament.
func (e *Encounter) HasAffinity(t Temperament) bool {
	for _, a := range e.TemperamentAffinity {
		if a == t {
			return true
		}
	}
	return false
}

// TemperamentInfo describes one temperament for display.
type TemperamentInfo struct {
	ID                Temperament `json:"id" yaml:"id"`
	Name              string      `json:"name" yaml:"name"`
	Subtitle          string      `json:"subtitle" yaml:"subtitle"`
	QuestionDirection string      `json:"question_direction" yaml:"question_direction"`
	EntryThought      string      `json:"entry_thought" yaml:"entry_thought"`
	TargetAudience    string      `json:"target_audience" yaml:"target_audience"`
	Emoji             string      `json:"emoji" yaml:"emoji"`
}

// EncounterProgress tracks how far a user has come through an encounter.
type EncounterProgress struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	EncounterID    string     `json:"encounter_id"`
	CurrentSession int        `json:"current_session"`
	TotalSessions  int        `json:"total_sessions"`
	IsCompleted    bool       `json:"is_completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Advance moves progress to session n if it is ahead of the current one and
// marks completion once the final session is reached.
func (p *EncounterProgress) Advance(n int, now time.Time) {
	if n > p.CurrentSession {
		p.CurrentSession = n
	}
	if !p.IsCompleted && p.TotalSessions > 0 && p.CurrentSession >= p.TotalSessions {
		p.IsCompleted = true
		p.CompletedAt = &now
	}
}
