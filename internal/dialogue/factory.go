package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/junrei/internal/catalog"
	"github.com/ashureev/junrei/internal/progression"
)

// ErrUnknownEncounter is returned for encounter ids missing from the catalog.
var ErrUnknownEncounter = errors.New("unknown encounter")

// Factory builds sessions for catalog encounters.
type Factory struct {
	Deps        Deps
	Catalog     *catalog.Catalog
	Progression progression.Config
	Logger      *slog.Logger
}

// New creates a session for userID and encounterID. The session number is
// one past the user's stored conversations for the encounter, capped at the
// encounter's session count.
func (f *Factory) New(ctx context.Context, userID, encounterID string) (*Session, error) {
	enc, ok := f.Catalog.Encounter(encounterID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncounter, encounterID)
	}

	past, err := f.Deps.Conversations.ListConversations(ctx, userID, encounterID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	number := len(past) + 1
	if enc.Sessions > 0 && number > enc.Sessions {
		number = enc.Sessions
	}

	return NewSession(f.Deps, Options{
		UserID:        userID,
		EncounterID:   encounterID,
		SessionNumber: number,
		TotalSessions: enc.Sessions,
		SystemPrompt:  f.Catalog.DialoguePrompt(encounterID),
		Progression:   f.Progression,
		Logger:        f.Logger,
	})
}
