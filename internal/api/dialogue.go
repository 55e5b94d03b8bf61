package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/junrei/internal/dialogue"
	"github.com/ashureev/junrei/internal/identity"
	"github.com/ashureev/junrei/internal/realtime"
	"github.com/ashureev/junrei/internal/store"
	"github.com/go-chi/chi/v5"
)

type messageRequest struct {
	Content string `json:"content"`
}

type resumeRequest struct {
	ConversationID string `json:"conversation_id"`
}

func dialogueKey(r *http.Request) realtime.Key {
	return realtime.Key{
		UserID:      identity.UserIDFromContext(r.Context()),
		TabID:       identity.SessionIDFromContext(r.Context()),
		EncounterID: chi.URLParam(r, "encounterID"),
	}
}

// session resolves the live dialogue for the request, writing the error
// response on failure.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*dialogue.Session, bool) {
	key := dialogueKey(r)
	if key.UserID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	sess, _, err := h.hub.Dialogue(r.Context(), key)
	if err != nil {
		if errors.Is(err, dialogue.ErrUnknownEncounter) {
			Error(w, http.StatusNotFound, "unknown encounter")
			return nil, false
		}
		slog.Error("Failed to create dialogue session", "error", err, "user_id", key.UserID, "encounter_id", key.EncounterID)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return nil, false
	}
	return sess, true
}

// GetDialogue returns the live transcript and state.
func (h *Handler) GetDialogue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": sess.ConversationID(),
		"state":           sess.State().String(),
		"messages":        sess.Messages(),
	})
}

// OpenDialogue lets the narrator speak first on an empty transcript.
func (h *Handler) OpenDialogue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.allow(w, sess.UserID()) {
		return
	}
	h.writeTurn(w, sess.Open(r.Context()))
}

// SendDialogueMessage runs one exchange.
func (h *Handler) SendDialogueMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.allow(w, sess.UserID()) {
		return
	}

	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.writeTurn(w, sess.SendMessage(r.Context(), req.Content))
}

// ResumeDialogue loads a persisted conversation into the live session.
func (h *Handler) ResumeDialogue(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req resumeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ConversationID == "" {
		Error(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	if err := sess.LoadConversation(r.Context(), req.ConversationID); err != nil {
		switch {
		case errors.Is(err, dialogue.ErrBusy):
			Error(w, http.StatusConflict, "exchange_in_progress")
		case errors.Is(err, dialogue.ErrForeignConversation), errors.Is(err, store.ErrNotFound):
			Error(w, http.StatusNotFound, "conversation not found")
		default:
			slog.Error("Failed to resume conversation", "error", err, "conversation_id", req.ConversationID)
			Error(w, http.StatusInternalServerError, "failed to resume conversation")
		}
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": sess.ConversationID(),
		"messages":        sess.Messages(),
	})
}

// writeTurn maps an ignored turn to 409 so that clients can tell a dropped
// send from a reply.
func (h *Handler) writeTurn(w http.ResponseWriter, turn dialogue.Turn) {
	reply := realtime.ReplyFromTurn(turn)
	if turn.Status == dialogue.TurnIgnored {
		JSON(w, http.StatusConflict, reply)
		return
	}
	JSON(w, http.StatusOK, reply)
}
