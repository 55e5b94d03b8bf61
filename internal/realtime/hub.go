package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/junrei/internal/dialogue"
	"github.com/ashureev/junrei/internal/onboarding"
)

const (
	variantDialogue   = "dialogue"
	variantOnboarding = "onboarding"
)

// OnboardingConfig is the fixed part of every onboarding classifier.
type OnboardingConfig struct {
	Deps         onboarding.Deps
	SystemPrompt string
	Policy       onboarding.Policy
	Logger       *slog.Logger
}

// Hub owns the live sessions of the service and their connections.
type Hub struct {
	Dialogues   *Registry[*dialogue.Session]
	Onboardings *Registry[*onboarding.Classifier]
	Conns       *ConnManager

	factory    *dialogue.Factory
	onboarding OnboardingConfig

	// retired tracks detached writes of dialogues that already left the
	// registry.
	retired sync.WaitGroup
}

// NewHub creates a hub. onChange receives registry sizes and may be nil.
func NewHub(factory *dialogue.Factory, ob OnboardingConfig, onChange func(variant string, n int)) *Hub {
	h := &Hub{
		Dialogues:   NewRegistry[*dialogue.Session](variantDialogue, onChange),
		Onboardings: NewRegistry[*onboarding.Classifier](variantOnboarding, onChange),
		Conns:       NewConnManager(),
		factory:     factory,
		onboarding:  ob,
	}
	h.Dialogues.OnRemove(h.retire)
	return h
}

func (h *Hub) retire(s *dialogue.Session) {
	h.retired.Add(1)
	go func() {
		defer h.retired.Done()
		s.Wait()
	}()
}

// Dialogue returns the live session for key, creating it if needed.
func (h *Hub) Dialogue(ctx context.Context, key Key) (*dialogue.Session, bool, error) {
	return h.Dialogues.GetOrCreate(key, func() (*dialogue.Session, error) {
		return h.factory.New(ctx, key.UserID, key.EncounterID)
	})
}

// Onboarding returns the live classifier for key, creating it if needed.
// EncounterID is ignored.
func (h *Hub) Onboarding(key Key) (*onboarding.Classifier, bool, error) {
	key.EncounterID = ""
	return h.Onboardings.GetOrCreate(key, func() (*onboarding.Classifier, error) {
		return onboarding.NewClassifier(h.onboarding.Deps, onboarding.Options{
			UserID:       key.UserID,
			SystemPrompt: h.onboarding.SystemPrompt,
			Policy:       h.onboarding.Policy,
			Logger:       h.onboarding.Logger,
		})
	})
}

// EvictIdle drops sessions idle since before cutoff and closes their
// connections. It returns how many sessions were dropped.
func (h *Hub) EvictIdle(cutoff time.Time) int {
	evicted := h.Dialogues.EvictIdle(cutoff)
	for _, k := range evicted {
		h.Conns.Close(k, "session expired")
	}
	return len(evicted) + len(h.Onboardings.EvictIdle(cutoff))
}

// CloseUser drops every session and connection belonging to userID.
func (h *Hub) CloseUser(userID string) {
	h.Conns.CloseUser(userID)
	h.Dialogues.RemoveUser(userID)
	h.Onboardings.RemoveUser(userID)
}

// Wait blocks until detached writes of every dialogue, live or already
// removed, have finished.
func (h *Hub) Wait() {
	var sessions []*dialogue.Session
	h.Dialogues.Each(func(_ Key, s *dialogue.Session) {
		sessions = append(sessions, s)
	})
	for _, s := range sessions {
		s.Wait()
	}
	h.retired.Wait()
}
