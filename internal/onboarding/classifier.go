// Package onboarding runs the first conversation with a new user and
// classifies their temperament from the narrator's replies.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/junrei/internal/annotation"
	"github.com/ashureev/junrei/internal/domain"
	"github.com/ashureev/junrei/internal/llm"
	"github.com/ashureev/junrei/internal/store"
)

const (
	// Greeting seeds the transcript when the opening call fails.
	Greeting = "やあ、はじめまして。僕はこの旅の語り部。君のことをもう少し知りたいんだ。"

	// RetryMessage replaces the narrator's reply when the AI call fails.
	RetryMessage = "接続に問題が発生しました。もう一度試してください。"

	variant = "onboarding"
)

// ErrNoResult is returned by Complete before any temperament was classified.
var ErrNoResult = errors.New("no temperament result yet")

// Policy decides what happens when the narrator emits a second result.
type Policy int

const (
	// FirstWins keeps the first valid result for the rest of the session.
	FirstWins Policy = iota
	// Refresh replaces the stored result with every new valid one.
	Refresh
)

func (p Policy) String() string {
	if p == Refresh {
		return "refresh"
	}
	return "first_wins"
}

// Result is a classified temperament pair. Sub may be empty.
type Result struct {
	Main domain.Temperament `json:"main"`
	Sub  domain.Temperament `json:"sub,omitempty"`
}

// Recorder receives exchange metrics.
type Recorder interface {
	ObserveExchange(variant, outcome string)
}

// Deps are the classifier's collaborators. Recorder is optional.
type Deps struct {
	Completer llm.Completer
	Profiles  store.ProfileStore
	Recorder  Recorder
}

// Options configure a classifier.
type Options struct {
	UserID       string
	SystemPrompt string
	Policy       Policy
	Logger       *slog.Logger
	Now          func() time.Time
}

// Classifier holds one onboarding conversation. At most one exchange runs
// at a time; the transcript is never persisted.
type Classifier struct {
	deps Deps
	opts Options
	log  *slog.Logger

	mu         sync.Mutex
	sending    bool
	messages   domain.Transcript
	result     *Result
	lastActive time.Time
}

// NewClassifier creates a classifier with an empty transcript.
func NewClassifier(deps Deps, opts Options) (*Classifier, error) {
	if deps.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if deps.Profiles == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		deps:       deps,
		opts:       opts,
		log:        logger.With("user_id", opts.UserID, "variant", variant),
		lastActive: opts.Now(),
	}, nil
}

// Start asks the narrator for its opening line. It does nothing if the
// transcript is not empty or an exchange is running.
func (c *Classifier) Start(ctx context.Context) (domain.ChatMessage, bool) {
	c.mu.Lock()
	if c.sending || len(c.messages) > 0 {
		c.mu.Unlock()
		return domain.ChatMessage{}, false
	}
	c.sending = true
	c.mu.Unlock()
	defer c.finish()

	raw, err := c.deps.Completer.Complete(ctx, c.opts.SystemPrompt, nil)
	if err != nil {
		c.log.Error("onboarding opening failed", "error", err)
		c.observe("failed")
		return c.appendAssistant(Greeting), true
	}

	c.observe("completed")
	return c.accept(raw), true
}

// SendMessage runs one exchange. Empty input and calls made while another
// exchange is in flight are ignored.
func (c *Classifier) SendMessage(ctx context.Context, text string) (domain.ChatMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, false
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return domain.ChatMessage{}, false
	}
	c.messages = c.messages.Append(domain.ChatMessage{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: c.opts.Now(),
	})
	c.sending = true
	history := toHistory(c.messages)
	c.mu.Unlock()
	defer c.finish()

	raw, err := c.deps.Completer.Complete(ctx, c.opts.SystemPrompt, history)
	if err != nil {
		c.log.Error("onboarding completion failed", "error", err)
		c.observe("failed")
		return c.appendAssistant(RetryMessage), true
	}

	c.observe("completed")
	return c.accept(raw), true
}

// accept parses raw, stores any temperament result and appends the display
// text.
func (c *Classifier) accept(raw string) domain.ChatMessage {
	ann := annotation.Parse(raw)
	if tr, ok := ann.Temperament.Get(); ok {
		c.record(tr)
	}
	return c.appendAssistant(ann.DisplayText)
}

func (c *Classifier) record(tr annotation.TemperamentResult) {
	main := domain.Temperament(tr.Main)
	if !main.Valid() {
		c.log.Warn("ignoring unknown temperament", "main", tr.Main)
		return
	}
	sub := domain.Temperament(tr.Sub)
	if !sub.Valid() || sub == main {
		sub = ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result != nil && c.opts.Policy == FirstWins {
		return
	}
	c.result = &Result{Main: main, Sub: sub}
	c.log.Info("temperament classified", "main", main, "sub", sub)
}

// Result returns the classified temperament, if any.
func (c *Classifier) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// Messages returns a copy of the transcript.
func (c *Classifier) Messages() domain.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages.Clone()
}

// Busy reports whether an exchange is in flight.
func (c *Classifier) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// LastActive returns when the classifier last finished an exchange.
func (c *Classifier) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Complete writes the classified temperament to the profile and marks
// onboarding as done.
func (c *Classifier) Complete(ctx context.Context) (*domain.UserProfile, error) {
	res, ok := c.Result()
	if !ok {
		return nil, ErrNoResult
	}

	done := true
	main, sub := res.Main, res.Sub
	profile, err := c.deps.Profiles.UpdateProfile(ctx, c.opts.UserID, domain.ProfilePatch{
		Temperament:    &main,
		SubTemperament: &sub,
		OnboardingDone: &done,
	})
	if err != nil {
		return nil, fmt.Errorf("complete onboarding: %w", err)
	}
	c.log.Info("onboarding completed", "temperament", main)
	return profile, nil
}

func (c *Classifier) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	c.lastActive = c.opts.Now()
}

func (c *Classifier) appendAssistant(content string) domain.ChatMessage {
	msg := domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: c.opts.Now(),
	}
	c.mu.Lock()
	c.messages = c.messages.Append(msg)
	c.mu.Unlock()
	return msg
}

func (c *Classifier) observe(outcome string) {
	if c.deps.Recorder != nil {
		c.deps.Recorder.ObserveExchange(variant, outcome)
	}
}

func toHistory(t domain.Transcript) []llm.Message {
	out := make([]llm.Message, 0, len(t))
	for _, m := range t {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case domain.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		}
	}
	return out
}
