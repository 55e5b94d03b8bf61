package domain

import (
	"testing"
	"time"
)

func TestTranscriptAppendDoesNotAlias(t *testing.T) {
	base := Transcript{{Role: RoleUser, Content: "a"}}
	snapshot := base.Append(ChatMessage{Role: RoleAssistant, Content: "b"})
	next := snapshot.Append(ChatMessage{Role: RoleUser, Content: "c"})

	if len(base) != 1 || len(snapshot) != 2 || len(next) != 3 {
		t.Fatalf("unexpected lengths %d %d %d", len(base), len(snapshot), len(next))
	}
	next[0].Content = "changed"
	if snapshot[0].Content != "a" {
		t.Errorf("append shared backing array with its receiver")
	}
}

func TestTranscriptLastAndRecent(t *testing.T) {
	var empty Transcript
	if _, ok := empty.Last(); ok {
		t.Error("empty transcript should have no last message")
	}
	if empty.Clone() != nil {
		t.Error("clone of nil should stay nil")
	}

	tr := Transcript{{Content: "1"}, {Content: "2"}, {Content: "3"}}
	if last, _ := tr.Last(); last.Content != "3" {
		t.Errorf("Last = %q, want 3", last.Content)
	}
	if got := tr.Recent(2); len(got) != 2 || got[0].Content != "2" {
		t.Errorf("Recent(2) = %+v", got)
	}
	if got := tr.Recent(10); len(got) != 3 {
		t.Errorf("Recent(10) should return everything, got %d", len(got))
	}
}

func TestTemperamentValid(t *testing.T) {
	tests := []struct {
		in   Temperament
		want bool
	}{
		{TemperamentMirror, true},
		{TemperamentBreaker, true},
		{"", false},
		{"Abyss", false},
		{"dragon", false},
	}
	for _, tt := range tests {
		if got := tt.in.Valid(); got != tt.want {
			t.Errorf("Temperament(%q).Valid() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProfilePatchApply(t *testing.T) {
	p := NewUserProfile("u1", time.Now())
	if !(ProfilePatch{}).IsEmpty() {
		t.Fatal("zero patch should be empty")
	}

	exp, level, done := 250, 2, true
	abyss := TemperamentAbyss
	patch := ProfilePatch{Exp: &exp, Level: &level, Temperament: &abyss, OnboardingDone: &done}
	if patch.IsEmpty() {
		t.Fatal("patch with fields should not be empty")
	}
	patch.Apply(p)

	if p.Exp != 250 || p.Level != 2 || p.Temperament != TemperamentAbyss || !p.OnboardingDone {
		t.Errorf("patch not applied: %+v", p)
	}
	if p.Title != "" || p.SubTemperament != "" {
		t.Errorf("unset fields changed: %+v", p)
	}
}

func TestEncounterProgressAdvance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		start         EncounterProgress
		session       int
		wantSession   int
		wantCompleted bool
	}{
		{"moves forward", EncounterProgress{CurrentSession: 1, TotalSessions: 5}, 2, 2, false},
		{"never moves back", EncounterProgress{CurrentSession: 3, TotalSessions: 5}, 1, 3, false},
		{"completes on final session", EncounterProgress{CurrentSession: 4, TotalSessions: 5}, 5, 5, true},
		{"unknown total never completes", EncounterProgress{CurrentSession: 0}, 9, 9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.start
			p.Advance(tt.session, now)
			if p.CurrentSession != tt.wantSession || p.IsCompleted != tt.wantCompleted {
				t.Errorf("got session %d completed %v", p.CurrentSession, p.IsCompleted)
			}
			if tt.wantCompleted && (p.CompletedAt == nil || !p.CompletedAt.Equal(now)) {
				t.Errorf("CompletedAt = %v, want %v", p.CompletedAt, now)
			}
		})
	}
}

func TestEncounterHasAffinity(t *testing.T) {
	e := Encounter{TemperamentAffinity: []Temperament{TemperamentStory, TemperamentMirror}}
	if !e.HasAffinity(TemperamentMirror) {
		t.Error("expected mirror affinity")
	}
	if e.HasAffinity(TemperamentNumber) {
		t.Error("unexpected number affinity")
	}
}
