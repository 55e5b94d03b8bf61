package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/junrei/internal/catalog"
	"github.com/ashureev/junrei/internal/dialogue"
	"github.com/ashureev/junrei/internal/identity"
	"github.com/ashureev/junrei/internal/llm"
	"github.com/ashureev/junrei/internal/onboarding"
	"github.com/ashureev/junrei/internal/progression"
	"github.com/ashureev/junrei/internal/realtime"
	"github.com/ashureev/junrei/internal/store"
	"github.com/go-chi/chi/v5"
)

const fullReply = `ようこそ、巡礼者。[THOUGHT_DEPTH]5[/THOUGHT_DEPTH]` +
	`[QUOTE]{"text":"本当に大切なものは目に見えない","author":"キツネ"}[/QUOTE]` +
	`[TEMPERAMENT_RESULT]{"main":"abyss","sub":"story"}[/TEMPERAMENT_RESULT]`

type testEnv struct {
	t      *testing.T
	router http.Handler
	hub    *realtime.Hub
	repo   *store.SQLiteStore
	cookie *http.Cookie
}

func newTestEnv(t *testing.T, reply string, limiter *RateLimiter) *testEnv {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "junrei.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	completer := llm.CompleterFunc(func(context.Context, string, []llm.Message) (string, error) {
		return reply, nil
	})
	cat := catalog.MustLoad()
	prog := progression.DefaultConfig()
	hub := realtime.NewHub(&dialogue.Factory{
		Deps: dialogue.Deps{
			Completer:     completer,
			Profiles:      repo,
			Conversations: repo,
			Quotes:        repo,
			Progress:      repo,
		},
		Catalog:     cat,
		Progression: prog,
	}, realtime.OnboardingConfig{
		Deps:         onboarding.Deps{Completer: completer, Profiles: repo},
		SystemPrompt: cat.OnboardingPrompt(),
	}, nil)

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, true))
	NewHandler(repo, hub, cat, prog, limiter).RegisterRoutes(r)

	return &testEnv{t: t, router: r, hub: hub, repo: repo}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)

	if e.cookie == nil {
		for _, c := range rr.Result().Cookies() {
			if c.Name == identity.AnonCookieName {
				e.cookie = c
			}
		}
	}
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
}

func TestDialogueFlow(t *testing.T) {
	env := newTestEnv(t, fullReply, nil)

	rr := env.do(http.MethodGet, "/api/me", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/me: %d %s", rr.Code, rr.Body.String())
	}
	var me meResponse
	decode(t, rr, &me)
	if me.Level != 1 || me.Exp != 0 || me.ExpToNextLevel != 200 {
		t.Errorf("unexpected fresh profile %+v", me)
	}

	rr = env.do(http.MethodPost, "/api/dialogues/little-prince/open", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("open: %d %s", rr.Code, rr.Body.String())
	}
	var reply realtime.Reply
	decode(t, rr, &reply)
	if reply.Status != "completed" || reply.Message.Content != "ようこそ、巡礼者。" {
		t.Errorf("unexpected open reply %+v", reply)
	}
	if reply.Bonus != "mid" || reply.ExpAwarded != 150 {
		t.Errorf("expected mid bonus worth 150, got %s %d", reply.Bonus, reply.ExpAwarded)
	}

	rr = env.do(http.MethodPost, "/api/dialogues/little-prince/open", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("second open should be ignored, got %d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/api/dialogues/little-prince/messages", messageRequest{Content: "キツネの言葉が好き"})
	if rr.Code != http.StatusOK {
		t.Fatalf("message: %d %s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &reply)
	if reply.Exp != 300 || reply.Level != 2 {
		t.Errorf("expected 300 exp at level 2, got %d at %d", reply.Exp, reply.Level)
	}

	rr = env.do(http.MethodPost, "/api/dialogues/little-prince/messages", messageRequest{Content: "   "})
	if rr.Code != http.StatusConflict {
		t.Errorf("blank message should be ignored, got %d", rr.Code)
	}

	rr = env.do(http.MethodGet, "/api/dialogues/little-prince/", nil)
	var transcript struct {
		ConversationID string            `json:"conversation_id"`
		State          string            `json:"state"`
		Messages       []json.RawMessage `json:"messages"`
	}
	decode(t, rr, &transcript)
	if transcript.ConversationID == "" || transcript.State != "idle" || len(transcript.Messages) != 4 {
		t.Errorf("unexpected transcript %+v", transcript)
	}

	env.hub.Wait()
	rr = env.do(http.MethodGet, "/api/quotes", nil)
	var quotes struct {
		Quotes []struct {
			Quote  string `json:"quote"`
			Author string `json:"author"`
		} `json:"quotes"`
	}
	decode(t, rr, &quotes)
	if len(quotes.Quotes) != 2 || quotes.Quotes[0].Author != "キツネ" {
		t.Errorf("expected two collected quotes, got %+v", quotes)
	}

	rr = env.do(http.MethodGet, "/api/progress", nil)
	var progress struct {
		Progress []struct {
			EncounterID    string `json:"encounter_id"`
			CurrentSession int    `json:"current_session"`
			TotalSessions  int    `json:"total_sessions"`
		} `json:"progress"`
	}
	decode(t, rr, &progress)
	if len(progress.Progress) != 1 || progress.Progress[0].CurrentSession != 1 || progress.Progress[0].TotalSessions != 5 {
		t.Errorf("unexpected progress %+v", progress)
	}
}

func TestUnknownEncounter(t *testing.T) {
	env := newTestEnv(t, fullReply, nil)
	rr := env.do(http.MethodPost, "/api/dialogues/no-such-book/messages", messageRequest{Content: "hi"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestInvalidBody(t *testing.T) {
	env := newTestEnv(t, fullReply, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/dialogues/adler/messages", bytes.NewBufferString("{not json"))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestMessageRateLimited(t *testing.T) {
	env := newTestEnv(t, fullReply, NewRateLimiter(1, time.Minute))

	if rr := env.do(http.MethodPost, "/api/dialogues/adler/messages", messageRequest{Content: "一"}); rr.Code != http.StatusOK {
		t.Fatalf("first message: %d", rr.Code)
	}
	if rr := env.do(http.MethodPost, "/api/dialogues/adler/messages", messageRequest{Content: "二"}); rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rr.Code)
	}
	env.hub.Wait()
}

func TestResumeUnknownConversation(t *testing.T) {
	env := newTestEnv(t, fullReply, nil)
	rr := env.do(http.MethodPost, "/api/dialogues/adler/resume", resumeRequest{ConversationID: "missing"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
	rr = env.do(http.MethodPost, "/api/dialogues/adler/resume", resumeRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestOnboardingFlow(t *testing.T) {
	env := newTestEnv(t, fullReply, nil)

	rr := env.do(http.MethodPost, "/api/onboarding/start", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodPost, "/api/onboarding/messages", messageRequest{Content: "夜空を見て考えごとをする"})
	if rr.Code != http.StatusOK {
		t.Fatalf("message: %d %s", rr.Code, rr.Body.String())
	}
	var sent struct {
		Result *onboarding.Result `json:"result"`
	}
	decode(t, rr, &sent)
	if sent.Result == nil || sent.Result.Main != "abyss" {
		t.Fatalf("expected abyss result, got %+v", sent.Result)
	}

	rr = env.do(http.MethodPost, "/api/onboarding/complete", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodGet, "/api/me", nil)
	var me meResponse
	decode(t, rr, &me)
	if !me.OnboardingDone || me.Temperament != "abyss" || me.SubTemperament != "story" {
		t.Errorf("profile not updated: %+v", me.UserProfile)
	}
	if me.TemperamentInfo == nil {
		t.Error("expected temperament info for classified user")
	}
	if me.Exp != 0 {
		t.Errorf("onboarding must not award exp, got %d", me.Exp)
	}
}

func TestOnboardingCompleteWithoutResult(t *testing.T) {
	env := newTestEnv(t, "君のことを教えて。", nil)
	env.do(http.MethodPost, "/api/onboarding/start", nil)

	rr := env.do(http.MethodPost, "/api/onboarding/complete", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, fullReply, nil)
	r := chi.NewRouter()
	NewHealthHandler(env.repo, env.hub.Dialogues.Len).RegisterHealth(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Status         string            `json:"status"`
		Checks         map[string]string `json:"checks"`
		ActiveSessions int               `json:"active_sessions"`
	}
	decode(t, rr, &body)
	if body.Status != "healthy" || body.Checks["database"] != "ok" {
		t.Errorf("unexpected health body %+v", body)
	}

	_ = env.repo.Close()
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after close, got %d", rr.Code)
	}
}
