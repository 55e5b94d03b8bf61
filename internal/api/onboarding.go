package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/junrei/internal/identity"
	"github.com/ashureev/junrei/internal/onboarding"
	"github.com/ashureev/junrei/internal/realtime"
)

// completeLocks prevents concurrent onboarding completion for the same user.
var completeLocks sync.Map

func (h *Handler) classifier(w http.ResponseWriter, r *http.Request) (*onboarding.Classifier, realtime.Key, bool) {
	key := realtime.Key{
		UserID: identity.UserIDFromContext(r.Context()),
		TabID:  identity.SessionIDFromContext(r.Context()),
	}
	if key.UserID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, key, false
	}
	c, _, err := h.hub.Onboarding(key)
	if err != nil {
		slog.Error("Failed to create onboarding session", "error", err, "user_id", key.UserID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return nil, key, false
	}
	return c, key, true
}

// StartOnboarding returns the narrator's opening line.
func (h *Handler) StartOnboarding(w http.ResponseWriter, r *http.Request) {
	c, key, ok := h.classifier(w, r)
	if !ok {
		return
	}
	if !h.allow(w, key.UserID) {
		return
	}

	msg, started := c.Start(r.Context())
	if !started {
		JSON(w, http.StatusOK, map[string]interface{}{"messages": c.Messages()})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"message":  msg,
		"messages": c.Messages(),
	})
}

// SendOnboardingMessage runs one onboarding exchange.
func (h *Handler) SendOnboardingMessage(w http.ResponseWriter, r *http.Request) {
	c, key, ok := h.classifier(w, r)
	if !ok {
		return
	}
	if !h.allow(w, key.UserID) {
		return
	}

	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, sent := c.SendMessage(r.Context(), req.Content)
	if !sent {
		Error(w, http.StatusConflict, "message_ignored")
		return
	}

	resp := map[string]interface{}{"message": msg}
	if res, ok := c.Result(); ok {
		resp["result"] = res
	}
	JSON(w, http.StatusOK, resp)
}

// CompleteOnboarding stores the classified temperament on the profile.
func (h *Handler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	c, key, ok := h.classifier(w, r)
	if !ok {
		return
	}

	lock, _ := completeLocks.LoadOrStore(key.UserID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Onboarding completion already in progress", "user_id", key.UserID)
		Error(w, http.StatusConflict, "completion_in_progress")
		return
	}
	defer func() {
		mutex.Unlock()
		completeLocks.Delete(key.UserID)
	}()

	profile, err := c.Complete(r.Context())
	if err != nil {
		if errors.Is(err, onboarding.ErrNoResult) {
			Error(w, http.StatusConflict, "no_result_yet")
			return
		}
		slog.Error("Failed to complete onboarding", "error", err, "user_id", key.UserID)
		Error(w, http.StatusInternalServerError, "failed to complete onboarding")
		return
	}

	h.hub.Onboardings.Remove(key)
	slog.Info("Onboarding completed", "user_id", key.UserID, "temperament", profile.Temperament)
	JSON(w, http.StatusOK, profile)
}
