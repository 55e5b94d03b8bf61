// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/junrei/internal/domain"
)

// ErrNotFound is returned by updates that target a missing record.
var ErrNotFound = errors.New("record not found")

// ProfileStore persists user profiles.
type ProfileStore interface {
	// GetProfile retrieves a profile. Returns nil, nil if it does not exist.
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)

	// CreateProfile inserts a profile if none exists for the user.
	CreateProfile(ctx context.Context, profile *domain.UserProfile) error

	// UpdateProfile applies patch and returns the re-read profile.
	UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.UserProfile, error)
}

// ConversationStore persists dialogue transcripts.
type ConversationStore interface {
	// CreateConversation inserts a conversation and returns its generated id.
	CreateConversation(ctx context.Context, conv *domain.Conversation) (string, error)

	// UpdateConversation replaces the messages and thought depth of a conversation.
	UpdateConversation(ctx context.Context, id string, messages domain.Transcript, thoughtDepth int) error

	// GetConversation retrieves a conversation. Returns nil, nil if it does not exist.
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)

	// ListConversations returns a user's conversations for an encounter, newest first.
	ListConversations(ctx context.Context, userID, encounterID string) ([]*domain.Conversation, error)
}

// QuoteStore persists collected quotes. Quotes are append-only.
type QuoteStore interface {
	// InsertQuote stores a quote and returns its generated id.
	InsertQuote(ctx context.Context, quote *domain.CollectedQuote) (string, error)

	// ListQuotes returns a user's quotes, newest first.
	ListQuotes(ctx context.Context, userID string) ([]*domain.CollectedQuote, error)
}

// ProgressStore persists per-encounter session progress.
type ProgressStore interface {
	// GetEncounterProgress retrieves progress. Returns nil, nil if none exists.
	GetEncounterProgress(ctx context.Context, userID, encounterID string) (*domain.EncounterProgress, error)

	// UpsertEncounterProgress creates or updates progress for (user, encounter).
	UpsertEncounterProgress(ctx context.Context, progress *domain.EncounterProgress) error

	// ListEncounterProgress returns all progress rows for a user.
	ListEncounterProgress(ctx context.Context, userID string) ([]*domain.EncounterProgress, error)
}

// Repository is the full persistence surface.
type Repository interface {
	ProfileStore
	ConversationStore
	QuoteStore
	ProgressStore

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
