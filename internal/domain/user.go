// Package domain contains core domain types for the junrei application.
package domain

import (
	"time"
)

// Temperament is one of the five fixed archetypes assigned during onboarding.
type Temperament string

const (
	TemperamentMirror  Temperament = "mirror"
	TemperamentNumber  Temperament = "number"
	TemperamentAbyss   Temperament = "abyss"
	TemperamentStory   Temperament = "story"
	TemperamentBreaker Temperament = "breaker"
)

// Temperaments lists every known temperament in display order.
var Temperaments = []Temperament{
	TemperamentMirror,
	TemperamentNumber,
	TemperamentAbyss,
	TemperamentStory,
	TemperamentBreaker,
}

// Valid reports whether t is one of the known temperaments.
func (t Temperament) Valid() bool {
	for _, known := range Temperaments {
		if t == known {
			return true
		}
	}
	return false
}

// UserProfile represents a user's progression state.
type UserProfile struct {
	UserID         string      `json:"user_id"`
	DisplayName    string      `json:"display_name,omitempty"`
	Temperament    Temperament `json:"temperament,omitempty"`
	SubTemperament Temperament `json:"sub_temperament,omitempty"`
	Level          int         `json:"level"`
	Exp            int         `json:"exp"`
	Title          string      `json:"title"`
	OnboardingDone bool        `json:"onboarding_done"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewUserProfile returns a level 1 profile with no experience.
func NewUserProfile(userID string, now time.Time) *UserProfile {
	return &UserProfile{
		UserID:    userID,
		Level:     1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasTemperament returns true once onboarding assigned a primary temperament.
func (p *UserProfile) HasTemperament() bool {
	return p.Temperament != ""
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	DisplayName    *string
	Temperament    *Temperament
	SubTemperament *Temperament
	Level          *int
	Exp            *int
	Title          *string
	OnboardingDone *bool

	// Award is applied after the absolute fields, against the stored exp.
	Award *ExpAward
}

// ExpAward adds exp relative to the stored profile so concurrent awards
// accumulate instead of overwriting each other.
type ExpAward struct {
	Delta int
	// LevelFor maps total exp to a level. The level never goes down.
	LevelFor func(exp int) int
	// FirstTitle is set only when the profile has no title yet.
	FirstTitle string
}

// Apply adds the award to profile.
func (a ExpAward) Apply(profile *UserProfile) {
	profile.Exp += a.Delta
	if a.LevelFor != nil {
		if level := a.LevelFor(profile.Exp); level > profile.Level {
			profile.Level = level
		}
	}
	if profile.Title == "" && a.FirstTitle != "" {
		profile.Title = a.FirstTitle
	}
}

// IsEmpty returns true if the patch changes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.DisplayName == nil && p.Temperament == nil && p.SubTemperament == nil &&
		p.Level == nil && p.Exp == nil && p.Title == nil && p.OnboardingDone == nil &&
		p.Award == nil
}

// Apply copies the set fields of the patch onto the profile.
func (p ProfilePatch) Apply(profile *UserProfile) {
	if p.DisplayName != nil {
		profile.DisplayName = *p.DisplayName
	}
	if p.Temperament != nil {
		profile.Temperament = *p.Temperament
	}
	if p.SubTemperament != nil {
		profile.SubTemperament = *p.SubTemperament
	}
	if p.Level != nil {
		profile.Level = *p.Level
	}
	if p.Exp != nil {
		profile.Exp = *p.Exp
	}
	if p.Title != nil {
		profile.Title = *p.Title
	}
	if p.OnboardingDone != nil {
		profile.OnboardingDone = *p.OnboardingDone
	}
	if p.Award != nil {
		p.Award.Apply(profile)
	}
}
