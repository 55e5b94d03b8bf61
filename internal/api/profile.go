package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/junrei/internal/domain"
	"github.com/ashureev/junrei/internal/identity"
	"github.com/ashureev/junrei/internal/progression"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers every API route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/encounters", h.ListEncounters)
		r.Get("/quotes", h.ListQuotes)
		r.Get("/progress", h.ListProgress)

		r.Route("/dialogues/{encounterID}", func(r chi.Router) {
			r.Get("/", h.GetDialogue)
			r.Post("/open", h.OpenDialogue)
			r.Post("/messages", h.SendDialogueMessage)
			r.Post("/resume", h.ResumeDialogue)
		})

		r.Route("/onboarding", func(r chi.Router) {
			r.Post("/start", h.StartOnboarding)
			r.Post("/messages", h.SendOnboardingMessage)
			r.Post("/complete", h.CompleteOnboarding)
		})
	})
}

type meResponse struct {
	*domain.UserProfile
	ExpToNextLevel  int                     `json:"exp_to_next_level"`
	TemperamentInfo *domain.TemperamentInfo `json:"temperament_info,omitempty"`
}

// GetMe returns the current user's profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.repo.GetProfile(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to get profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if profile == nil {
		Error(w, http.StatusNotFound, "profile not found")
		return
	}

	resp := meResponse{
		UserProfile:    profile,
		ExpToNextLevel: progression.ExpToNextLevel(profile.Exp, h.progression.Thresholds),
	}
	if profile.HasTemperament() {
		if info, ok := h.catalog.Temperament(profile.Temperament); ok {
			resp.TemperamentInfo = info
		}
	}
	JSON(w, http.StatusOK, resp)
}

type encounterView struct {
	domain.Encounter
	Recommended bool                      `json:"recommended"`
	Progress    *domain.EncounterProgress `json:"progress,omitempty"`
}

// ListEncounters returns the catalog with the user's progress and affinity.
func (h *Handler) ListEncounters(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	ctx := r.Context()

	profile, err := h.repo.GetProfile(ctx, userID)
	if err != nil {
		slog.Error("Failed to get profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	progress, err := h.repo.ListEncounterProgress(ctx, userID)
	if err != nil {
		slog.Error("Failed to list progress", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	byEncounter := make(map[string]*domain.EncounterProgress, len(progress))
	for _, p := range progress {
		byEncounter[p.EncounterID] = p
	}

	all := h.catalog.All()
	views := make([]encounterView, 0, len(all))
	for i := range all {
		e := all[i]
		v := encounterView{Encounter: e, Progress: byEncounter[e.ID]}
		if profile != nil && profile.HasTemperament() {
			v.Recommended = e.HasAffinity(profile.Temperament)
		}
		views = append(views, v)
	}
	JSON(w, http.StatusOK, map[string]interface{}{"encounters": views})
}

// ListQuotes returns the user's collected quotes.
func (h *Handler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	quotes, err := h.repo.ListQuotes(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list quotes", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load quotes")
		return
	}
	if quotes == nil {
		quotes = []*domain.CollectedQuote{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"quotes": quotes})
}

// ListProgress returns the user's per-encounter progress.
func (h *Handler) ListProgress(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	progress, err := h.repo.ListEncounterProgress(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list progress", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	if progress == nil {
		progress = []*domain.EncounterProgress{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"progress": progress})
}
