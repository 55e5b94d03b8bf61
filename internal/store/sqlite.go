package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/junrei/internal/domain"
	"github.com/ashureev/junrei/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // Serializes read-modify-write sequences to avoid SQLITE_BUSY
	now     func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		temperament TEXT NOT NULL DEFAULT '',
		sub_temperament TEXT NOT NULL DEFAULT '',
		level INTEGER NOT NULL DEFAULT 1,
		exp INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		onboarding_done INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		encounter_id TEXT NOT NULL,
		session_number INTEGER NOT NULL DEFAULT 1,
		messages_json TEXT NOT NULL,
		is_completed INTEGER NOT NULL DEFAULT 0,
		thought_depth INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_encounter ON conversations(user_id, encounter_id, updated_at);

	CREATE TABLE IF NOT EXISTS collected_quotes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		encounter_id TEXT NOT NULL,
		quote TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		collected_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_collected_quotes_user ON collected_quotes(user_id, collected_at);

	CREATE TABLE IF NOT EXISTS encounter_progress (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		encounter_id TEXT NOT NULL,
		current_session INTEGER NOT NULL DEFAULT 0,
		total_sessions INTEGER NOT NULL DEFAULT 0,
		is_completed INTEGER NOT NULL DEFAULT 0,
		completed_at INTEGER,
		created_at INTEGER NOT NULL,
		UNIQUE(user_id, encounter_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const profileColumns = `user_id, display_name, temperament, sub_temperament,
	level, exp, title, onboarding_done, created_at, updated_at`

func scanProfile(row rowScanner) (*domain.UserProfile, error) {
	var p domain.UserProfile
	var temperament, subTemperament string
	var createdAt, updatedAt int64

	if err := row.Scan(
		&p.UserID, &p.DisplayName, &temperament, &subTemperament,
		&p.Level, &p.Exp, &p.Title, &p.OnboardingDone, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	p.Temperament = domain.Temperament(temperament)
	p.SubTemperament = domain.Temperament(subTemperament)
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// GetProfile retrieves a profile by user ID.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}
	return p, nil
}

// CreateProfile inserts a profile if the user has none.
func (s *SQLiteStore) CreateProfile(ctx context.Context, p *domain.UserProfile) error {
	query := `
	INSERT INTO profiles (` + profileColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO NOTHING`

	level := p.Level
	if level < 1 {
		level = 1
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	return shared.RetryOnConflict(ctx, "create profile", shared.DefaultRetryPolicy, func() error {
		_, err := s.db.ExecContext(ctx, query,
			p.UserID, p.DisplayName, string(p.Temperament), string(p.SubTemperament),
			level, p.Exp, p.Title, p.OnboardingDone, created.Unix(), created.Unix(),
		)
		return err
	})
}

// UpdateProfile applies patch in a transaction and returns the stored result.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.UserProfile, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var updated *domain.UserProfile
	err := shared.RetryOnConflict(ctx, "update profile", shared.DefaultRetryPolicy, func() error {
		p, err := s.updateProfileOnce(ctx, userID, patch)
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLiteStore) updateProfileOnce(ctx context.Context, userID string, patch domain.ProfilePatch) (p *domain.UserProfile, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.Warn("failed to roll back profile update", "user_id", userID, "error", rbErr)
			}
		}
	}()

	p, err = scanProfile(tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile row: %w", err)
	}

	patch.Apply(p)
	p.UpdatedAt = s.now()

	_, err = tx.ExecContext(ctx, `
		UPDATE profiles SET display_name = ?, temperament = ?, sub_temperament = ?,
			level = ?, exp = ?, title = ?, onboarding_done = ?, updated_at = ?
		WHERE user_id = ?`,
		p.DisplayName, string(p.Temperament), string(p.SubTemperament),
		p.Level, p.Exp, p.Title, p.OnboardingDone, p.UpdatedAt.Unix(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit profile update: %w", err)
	}
	return p, nil
}

const conversationColumns = `id, user_id, encounter_id, session_number, messages_json,
	is_completed, thought_depth, created_at, updated_at`

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var c domain.Conversation
	var messagesJSON string
	var createdAt, updatedAt int64

	if err := row.Scan(
		&c.ID, &c.UserID, &c.EncounterID, &c.SessionNumber, &messagesJSON,
		&c.IsCompleted, &c.ThoughtDepth, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messagesJSON), &c.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}

func encodeMessages(messages domain.Transcript) (string, error) {
	if messages == nil {
		messages = domain.Transcript{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	return string(data), nil
}

// CreateConversation inserts a conversation with a generated id.
func (s *SQLiteStore) CreateConversation(ctx context.Context, c *domain.Conversation) (string, error) {
	messagesJSON, err := encodeMessages(c.Messages)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	now := s.now().Unix()
	sessionNumber := c.SessionNumber
	if sessionNumber < 1 {
		sessionNumber = 1
	}

	err = shared.RetryOnConflict(ctx, "insert conversation", shared.DefaultRetryPolicy, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (`+conversationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, c.UserID, c.EncounterID, sessionNumber, messagesJSON,
			c.IsCompleted, c.ThoughtDepth, now, now,
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateConversation replaces messages and thought depth for id.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id string, messages domain.Transcript, thoughtDepth int) error {
	messagesJSON, err := encodeMessages(messages)
	if err != nil {
		return err
	}

	var rows int64
	err = shared.RetryOnConflict(ctx, "update conversation", shared.DefaultRetryPolicy, func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE conversations SET messages_json = ?, thought_depth = ?, updated_at = ? WHERE id = ?`,
			messagesJSON, thoughtDepth, s.now().Unix(), id,
		)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("update conversation %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	return c, nil
}

// ListConversations returns a user's conversations for one encounter.
func (s *SQLiteStore) ListConversations(ctx context.Context, userID, encounterID string) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = ? AND encounter_id = ?
		ORDER BY updated_at DESC, created_at DESC`, userID, encounterID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	var out []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// InsertQuote stores a collected quote.
func (s *SQLiteStore) InsertQuote(ctx context.Context, q *domain.CollectedQuote) (string, error) {
	id := uuid.New().String()
	collected := q.CollectedAt
	if collected.IsZero() {
		collected = s.now()
	}

	err := shared.RetryOnConflict(ctx, "insert quote", shared.DefaultRetryPolicy, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO collected_quotes (id, user_id, encounter_id, quote, author, collected_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, q.UserID, q.EncounterID, q.Quote, q.Author, collected.Unix(),
		)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListQuotes returns a user's collected quotes.
func (s *SQLiteStore) ListQuotes(ctx context.Context, userID string) ([]*domain.CollectedQuote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, encounter_id, quote, author, collected_at
		FROM collected_quotes WHERE user_id = ?
		ORDER BY collected_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query quotes: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close quote rows", "error", closeErr)
		}
	}()

	var out []*domain.CollectedQuote
	for rows.Next() {
		var q domain.CollectedQuote
		var collectedAt int64
		if err := rows.Scan(&q.ID, &q.UserID, &q.EncounterID, &q.Quote, &q.Author, &collectedAt); err != nil {
			return nil, fmt.Errorf("scan quote row: %w", err)
		}
		q.CollectedAt = time.Unix(collectedAt, 0)
		out = append(out, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return out, nil
}

const progressColumns = `id, user_id, encounter_id, current_session, total_sessions,
	is_completed, completed_at, created_at`

func scanProgress(row rowScanner) (*domain.EncounterProgress, error) {
	var p domain.EncounterProgress
	var completedAt sql.NullInt64
	var createdAt int64

	if err := row.Scan(
		&p.ID, &p.UserID, &p.EncounterID, &p.CurrentSession, &p.TotalSessions,
		&p.IsCompleted, &completedAt, &createdAt,
	); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		ts := time.Unix(completedAt.Int64, 0)
		p.CompletedAt = &ts
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	return &p, nil
}

// GetEncounterProgress retrieves progress for (user, encounter).
func (s *SQLiteStore) GetEncounterProgress(ctx context.Context, userID, encounterID string) (*domain.EncounterProgress, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM encounter_progress WHERE user_id = ? AND encounter_id = ?`,
		userID, encounterID)
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress row: %w", err)
	}
	return p, nil
}

// UpsertEncounterProgress creates or updates progress for (user, encounter).
// The stored current session never moves backwards.
func (s *SQLiteStore) UpsertEncounterProgress(ctx context.Context, p *domain.EncounterProgress) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	var completedAt interface{}
	if p.CompletedAt != nil {
		completedAt = p.CompletedAt.Unix()
	}

	query := `
	INSERT INTO encounter_progress (` + progressColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, encounter_id) DO UPDATE SET
		current_session = MAX(encounter_progress.current_session, excluded.current_session),
		total_sessions = excluded.total_sessions,
		is_completed = MAX(encounter_progress.is_completed, excluded.is_completed),
		completed_at = COALESCE(encounter_progress.completed_at, excluded.completed_at)`

	return shared.RetryOnConflict(ctx, "upsert encounter progress", shared.DefaultRetryPolicy, func() error {
		_, err := s.db.ExecContext(ctx, query,
			p.ID, p.UserID, p.EncounterID, p.CurrentSession, p.TotalSessions,
			p.IsCompleted, completedAt, created.Unix(),
		)
		return err
	})
}

// ListEncounterProgress returns all progress rows for a user.
func (s *SQLiteStore) ListEncounterProgress(ctx context.Context, userID string) ([]*domain.EncounterProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM encounter_progress WHERE user_id = ? ORDER BY created_at, encounter_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close progress rows", "error", closeErr)
		}
	}()

	var out []*domain.EncounterProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return out, nil
}

var _ Repository = (*SQLiteStore)(nil)
