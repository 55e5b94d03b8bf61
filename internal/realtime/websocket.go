package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/junrei/internal/annotation"
	"github.com/ashureev/junrei/internal/dialogue"
	"github.com/ashureev/junrei/internal/domain"
	"github.com/ashureev/junrei/internal/identity"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const writeTimeout = 10 * time.Second

// Reply is the wire form of a dialogue turn.
type Reply struct {
	Status       string              `json:"status"`
	Message      *domain.ChatMessage `json:"message,omitempty"`
	ThoughtDepth int                 `json:"thought_depth,omitempty"`
	Bonus        string              `json:"bonus,omitempty"`
	ExpAwarded   int                 `json:"exp_awarded,omitempty"`
	Quote        *annotation.Quote   `json:"quote,omitempty"`
	Level        int                 `json:"level,omitempty"`
	Exp          int                 `json:"exp,omitempty"`
	Title        string              `json:"title,omitempty"`
}

// ReplyFromTurn converts a turn for transport.
func ReplyFromTurn(t dialogue.Turn) Reply {
	switch t.Status {
	case dialogue.TurnIgnored:
		return Reply{Status: "ignored"}
	case dialogue.TurnFailed:
		msg := t.Reply
		return Reply{Status: "failed", Message: &msg}
	}

	msg := t.Reply
	r := Reply{
		Status:       "completed",
		Message:      &msg,
		ThoughtDepth: t.ThoughtDepth,
		Bonus:        t.Bonus.String(),
		ExpAwarded:   t.ExpAwarded,
	}
	if q, ok := t.Quote.Get(); ok {
		r.Quote = &q
	}
	if t.Profile != nil {
		r.Level = t.Profile.Level
		r.Exp = t.Profile.Exp
		r.Title = t.Profile.Title
	}
	return r
}

// wsMessage is a client frame.
type wsMessage struct {
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// wsEvent is a server frame.
type wsEvent struct {
	Type           string            `json:"type"`
	ConversationID string            `json:"conversation_id,omitempty"`
	State          string            `json:"state,omitempty"`
	Messages       domain.Transcript `json:"messages,omitempty"`
	Reply          *Reply            `json:"reply,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// WebSocketHandler serves a dialogue session over WebSocket.
type WebSocketHandler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(hub *Hub, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := Key{
		UserID:      identity.UserIDFromContext(r.Context()),
		TabID:       identity.SessionIDFromContext(r.Context()),
		EncounterID: chi.URLParam(r, "encounterID"),
	}
	log := slog.With("user_id", key.UserID, "tab_id", key.TabID, "encounter_id", key.EncounterID)
	log.Info("WebSocket connection request", "ip", identity.IPFromRequest(r))

	if key.UserID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	sess, _, err := h.hub.Dialogue(r.Context(), key)
	if err != nil {
		if errors.Is(err, dialogue.ErrUnknownEncounter) {
			http.Error(w, "unknown encounter", http.StatusNotFound)
			return
		}
		log.Error("Failed to create dialogue session", "error", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			log.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.hub.Conns.Register(key, ws)
	defer h.hub.Conns.Unregister(key, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	if err := h.writeJSON(ctx, ws, historyEvent(sess)); err != nil {
		log.Debug("Failed to send history", "error", err)
		return
	}

	h.readLoop(ctx, ws, sess, &wg, log)
	log.Info("Dialogue connection ended")
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sess *dialogue.Session, wg *sync.WaitGroup, log *slog.Logger) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				log.Debug("WebSocket closed by client")
			} else {
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = h.writeJSON(ctx, ws, wsEvent{Type: "error", Error: "invalid_message"})
			continue
		}

		switch msg.Type {
		case "ping":
			if err := h.writeJSON(ctx, ws, wsEvent{Type: "pong"}); err != nil {
				log.Debug("Failed to send pong", "error", err)
			}
		case "open":
			h.runTurn(ctx, ws, wg, log, func() dialogue.Turn { return sess.Open(ctx) })
		case "message":
			content := msg.Content
			h.runTurn(ctx, ws, wg, log, func() dialogue.Turn { return sess.SendMessage(ctx, content) })
		case "load":
			if err := sess.LoadConversation(ctx, msg.ConversationID); err != nil {
				log.Warn("Failed to load conversation", "conversation_id", msg.ConversationID, "error", err)
				_ = h.writeJSON(ctx, ws, wsEvent{Type: "error", Error: loadErrorCode(err)})
				continue
			}
			_ = h.writeJSON(ctx, ws, historyEvent(sess))
		case "close":
			_ = h.writeJSON(ctx, ws, wsEvent{Type: "closed"})
			return
		default:
			_ = h.writeJSON(ctx, ws, wsEvent{Type: "error", Error: "unknown_type"})
		}
	}
}

// runTurn runs fn off the read loop so that sends arriving mid-exchange reach
// the session and are ignored there.
func (h *WebSocketHandler) runTurn(ctx context.Context, ws *websocket.Conn, wg *sync.WaitGroup, log *slog.Logger, fn func() dialogue.Turn) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		reply := ReplyFromTurn(fn())
		if err := h.writeJSON(ctx, ws, wsEvent{Type: "reply", Reply: &reply}); err != nil {
			log.Debug("Failed to send reply", "error", err)
		}
	}()
}

func historyEvent(sess *dialogue.Session) wsEvent {
	return wsEvent{
		Type:           "history",
		ConversationID: sess.ConversationID(),
		State:          sess.State().String(),
		Messages:       sess.Messages(),
	}
}

func loadErrorCode(err error) string {
	switch {
	case errors.Is(err, dialogue.ErrBusy):
		return "busy"
	case errors.Is(err, dialogue.ErrForeignConversation):
		return "forbidden"
	default:
		return "not_found"
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(wctx, websocket.MessageText, data)
}
