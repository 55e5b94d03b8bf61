// Package dialogue runs a narrator conversation about one encounter: it sends
// the transcript to the AI collaborator, parses the reply's markers, persists
// the conversation and awards experience.
package dialogue

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
	"github.com/ashureev/junrei/internal/progression"
	"github.com/ashureev/junrei/internal/store"
)

const (
	// ArrivalMessage opens a session so the narrator speaks first.
	ArrivalMessage = "（巡礼者が訪れた）"

	// RetryMessage replaces the narrator's reply when the AI call fails.
	RetryMessage = "接続に問題が発生しました。少し待ってからもう一度試してください。"

	variant = "dialogue"
)

var (
	// ErrBusy is returned by operations that cannot run while a send is in flight.
	ErrBusy = errors.New("exchange in flight")
	// ErrForeignConversation is returned when loading a conversation that
	// belongs to a different user or encounter.
	ErrForeignConversation = errors.New("conversation belongs to another user or encounter")
)

// State is the exchange state of a session.
type State int

const (
	StateIdle State = iota
	StateSending
)

func (s State) String() string {
	if s == StateSending {
		return "sending"
	}
	return "idle"
}

// Recorder receives exchange metrics. All methods must be safe for
// concurrent use.
type Recorder interface {
	ObserveExchange(variant, outcome string)
	ObserveExp(amount int)
	ObserveQuote()
}

// Deps are the collaborators a session talks to. Progress and Recorder are
// optional.
type Deps struct {
	Completer     llm.Completer
	Profiles      store.ProfileStore
	Conversations store.ConversationStore
	Quotes        store.QuoteStore
	Progress      store.ProgressStore
	Recorder      Recorder
}

// Options identify the session and carry its fixed configuration.
type Options struct {
	UserID        string
	EncounterID   string
	SessionNumber int
	// TotalSessions is the encounter's expected session count, used for
	// progress tracking.
	TotalSessions int
	SystemPrompt  string
	Progression   progression.Config
	Logger        *slog.Logger
	Now           func() time.Time
}

// TurnStatus describes how a SendMessage call ended.
type TurnStatus int

const (
	// TurnIgnored means the input was empty or a send was already in flight.
	TurnIgnored TurnStatus = iota
	// TurnCompleted means the narrator replied.
	TurnCompleted
	// TurnFailed means the AI call failed and RetryMessage was appended.
	TurnFailed
)

// Turn is the outcome of one SendMessage call.
type Turn struct {
	Status       TurnStatus
	Reply        domain.ChatMessage
	ThoughtDepth int
	Bonus        progression.Tier
	ExpAwarded   int
	Quote        annotation.Result[annotation.Quote]
	// Profile is the profile after progression; nil if it was not applied.
	Profile *domain.UserProfile
}

// Session is one live conversation between a user and the narrator about an
// encounter. At most one exchange runs at a time.
type Session struct {
	deps Deps
	opts Options
	log  *slog.Logger

	mu               sync.Mutex
	state            State
	messages         domain.Transcript
	conversationID   string
	progressRecorded bool
	lastActive       time.Time

	detached sync.WaitGroup
}

// NewSession creates an idle session with an empty transcript.
func NewSession(deps Deps, opts Options) (*Session, error) {
	if deps.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if deps.Profiles == nil || deps.Conversations == nil || deps.Quotes == nil {
		return nil, fmt.Errorf("profile, conversation and quote stores are required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if opts.EncounterID == "" {
		return nil, fmt.Errorf("encounter id is required")
	}
	if opts.SessionNumber < 1 {
		opts.SessionNumber = 1
	}
	if len(opts.Progression.Thresholds) == 0 {
		opts.Progression = progression.DefaultConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		deps:       deps,
		opts:       opts,
		log:        logger.With("user_id", opts.UserID, "encounter_id", opts.EncounterID),
		lastActive: opts.Now(),
	}, nil
}

// State returns the current exchange state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether an exchange is in flight.
func (s *Session) Busy() bool { return s.State() == StateSending }

// Messages returns a copy of the transcript.
func (s *Session) Messages() domain.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages.Clone()
}

// ConversationID returns the persisted conversation id, or "" before the
// first successful exchange.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// LastActive returns when the session last finished an exchange.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// UserID returns the owner of the session.
func (s *Session) UserID() string { return s.opts.UserID }

// EncounterID returns the encounter being discussed.
func (s *Session) EncounterID() string { return s.opts.EncounterID }

// Open sends ArrivalMessage if the transcript is empty. It is a no-op otherwise.
func (s *Session) Open(ctx context.Context) Turn {
	s.mu.Lock()
	empty := len(s.messages) == 0
	s.mu.Unlock()
	if !empty {
		return Turn{Status: TurnIgnored}
	}
	return s.SendMessage(ctx, ArrivalMessage)
}

// SendMessage runs one exchange. Empty input and calls made while another
// exchange is in flight are ignored. AI failures are reported in the
// transcript, never as an error.
func (s *Session) SendMessage(ctx context.Context, text string) Turn {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{Status: TurnIgnored}
	}

	history, ok := s.begin(text)
	if !ok {
		s.log.Debug("send ignored, exchange in flight")
		return Turn{Status: TurnIgnored}
	}
	defer s.finish()

	raw, err := s.deps.Completer.Complete(ctx, s.opts.SystemPrompt, history)
	if err != nil {
		s.log.Error("narrator completion failed", "error", err)
		reply := s.appendAssistant(RetryMessage)
		s.observeExchange("failed")
		return Turn{Status: TurnFailed, Reply: reply}
	}

	ann := annotation.Parse(raw)
	reply := s.appendAssistant(ann.DisplayText)

	s.persistConversation(ctx, ann.ThoughtDepth)

	tier, _ := s.opts.Progression.Bonus(ann.ThoughtDepth)
	award := s.opts.Progression.TurnAward(ann.ThoughtDepth)
	profile := s.awardExp(ctx, award)

	s.recordProgress(ctx)

	if q, ok := ann.Quote.Get(); ok {
		s.saveQuoteDetached(ctx, q)
	}

	s.observeExchange("completed")

	return Turn{
		Status:       TurnCompleted,
		Reply:        reply,
		ThoughtDepth: ann.ThoughtDepth,
		Bonus:        tier,
		ExpAwarded:   award,
		Quote:        ann.Quote,
		Profile:      profile,
	}
}

// begin appends the user message and enters StateSending. It returns the
// outbound history, or false if an exchange is already running.
func (s *Session) begin(text string) ([]llm.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateSending {
		return nil, false
	}
	s.messages = s.messages.Append(domain.ChatMessage{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: s.opts.Now(),
	})
	s.state = StateSending
	return toHistory(s.messages), true
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.lastActive = s.opts.Now()
}

func (s *Session) appendAssistant(content string) domain.ChatMessage {
	msg := domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: s.opts.Now(),
	}
	s.mu.Lock()
	s.messages = s.messages.Append(msg)
	s.mu.Unlock()
	return msg
}

// toHistory maps the transcript to provider messages, dropping system entries.
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

// persistConversation creates the conversation on the first successful
// exchange and updates it afterwards. A failed create leaves the id empty so
// the next exchange tries again.
func (s *Session) persistConversation(ctx context.Context, depth int) {
	s.mu.Lock()
	snapshot := s.messages.Clone()
	id := s.conversationID
	s.mu.Unlock()

	if id != "" {
		if err := s.deps.Conversations.UpdateConversation(ctx, id, snapshot, depth); err != nil {
			s.log.Warn("failed to update conversation", "conversation_id", id, "error", err)
		}
		return
	}

	newID, err := s.deps.Conversations.CreateConversation(ctx, &domain.Conversation{
		UserID:        s.opts.UserID,
		EncounterID:   s.opts.EncounterID,
		SessionNumber: s.opts.SessionNumber,
		Messages:      snapshot,
		ThoughtDepth:  depth,
	})
	if err != nil {
		s.log.Warn("failed to create conversation", "error", err)
		return
	}

	s.mu.Lock()
	s.conversationID = newID
	s.mu.Unlock()
	s.log.Info("conversation created", "conversation_id", newID, "session_number", s.opts.SessionNumber)
}

// awardExp adds amount to the stored profile in a single store write, so
// exchanges running in other sessions of the same user are not lost. The
// first award for an untitled profile also grants the first dialogue title.
func (s *Session) awardExp(ctx context.Context, amount int) *domain.UserProfile {
	award := s.opts.Progression.Award(amount)
	if title, ok := progression.TitleFor(progression.TitleFirstDialogue); ok {
		award.FirstTitle = title
	}

	updated, err := s.deps.Profiles.UpdateProfile(ctx, s.opts.UserID, domain.ProfilePatch{Award: &award})
	if err != nil {
		s.log.Warn("failed to apply exp award", "amount", amount, "error", err)
		return nil
	}

	if s.deps.Recorder != nil {
		s.deps.Recorder.ObserveExp(amount)
	}
	if before := award.LevelFor(updated.Exp - amount); updated.Level > before {
		s.log.Info("level up", "from", before, "to", updated.Level, "exp", updated.Exp)
	}
	return updated
}

// recordProgress marks this session number as reached, once per session.
func (s *Session) recordProgress(ctx context.Context) {
	if s.deps.Progress == nil {
		return
	}
	s.mu.Lock()
	done := s.progressRecorded
	s.mu.Unlock()
	if done {
		return
	}

	p, err := s.deps.Progress.GetEncounterProgress(ctx, s.opts.UserID, s.opts.EncounterID)
	if err != nil {
		s.log.Warn("failed to load encounter progress", "error", err)
		return
	}
	if p == nil {
		p = &domain.EncounterProgress{
			UserID:        s.opts.UserID,
			EncounterID:   s.opts.EncounterID,
			TotalSessions: s.opts.TotalSessions,
		}
	}
	if s.opts.TotalSessions > 0 {
		p.TotalSessions = s.opts.TotalSessions
	}
	p.Advance(s.opts.SessionNumber, s.opts.Now())

	if err := s.deps.Progress.UpsertEncounterProgress(ctx, p); err != nil {
		s.log.Warn("failed to save encounter progress", "error", err)
		return
	}

	s.mu.Lock()
	s.progressRecorded = true
	s.mu.Unlock()
}

// saveQuoteDetached stores q without holding up the exchange. The write
// outlives ctx cancellation; Wait blocks until it finishes.
func (s *Session) saveQuoteDetached(ctx context.Context, q annotation.Quote) {
	quote := &domain.CollectedQuote{
		UserID:      s.opts.UserID,
		EncounterID: s.opts.EncounterID,
		Quote:       q.Text,
		Author:      q.Author,
		CollectedAt: s.opts.Now(),
	}
	detachedCtx := context.WithoutCancel(ctx)

	s.detached.Add(1)
	go func() {
		defer s.detached.Done()
		if _, err := s.deps.Quotes.InsertQuote(detachedCtx, quote); err != nil {
			s.log.Warn("failed to save quote", "error", err)
			return
		}
		if s.deps.Recorder != nil {
			s.deps.Recorder.ObserveQuote()
		}
	}()
}

// Wait blocks until detached quote writes have finished.
func (s *Session) Wait() {
	s.detached.Wait()
}

// LoadConversation replaces the transcript with a persisted conversation and
// continues updating that record.
func (s *Session) LoadConversation(ctx context.Context, id string) error {
	if s.State() == StateSending {
		return ErrBusy
	}

	conv, err := s.deps.Conversations.GetConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return fmt.Errorf("load conversation %s: %w", id, store.ErrNotFound)
	}
	if conv.UserID != s.opts.UserID || conv.EncounterID != s.opts.EncounterID {
		return ErrForeignConversation
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSending {
		return ErrBusy
	}
	s.conversationID = conv.ID
	s.messages = conv.Messages.Clone()
	return nil
}

func (s *Session) observeExchange(outcome string) {
	if s.deps.Recorder != nil {
		s.deps.Recorder.ObserveExchange(variant, outcome)
	}
}
