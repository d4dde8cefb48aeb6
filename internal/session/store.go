package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/haldis/webchat/internal/relay"
)

// Session is one stored conversation.
type Session struct {
	ID             string
	Model          string
	LastResponseID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SessionSummary is a session row with its turn count, for listings.
type SessionSummary struct {
	ID        string
	Model     string
	TurnCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoredTurn is one persisted conversation turn.
type StoredTurn struct {
	ID        int64
	SessionID string
	Sequence  int
	Role      relay.Role
	Content   string
	CreatedAt time.Time
}

// Config controls store location and cleanup.
type Config struct {
	Path       string // database file; defaults under the user config dir
	MaxAgeDays int    // delete sessions idle longer than this (0 = keep)
	MaxCount   int    // keep at most this many sessions (0 = unlimited)
}

// Store persists conversation transcripts in SQLite.
type Store struct {
	db  *sql.DB
	cfg Config
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    model TEXT NOT NULL,
    last_response_id TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_turns_session_id ON turns(session_id, sequence);
`

// Open creates or opens the transcript store.
func Open(cfg Config) (*Store, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		return nil, fmt.Errorf("session store path not set")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	store := &Store{db: db, cfg: cfg}

	if err := store.cleanup(); err != nil {
		// Log but don't fail
		fmt.Fprintf(os.Stderr, "warning: session cleanup failed: %v\n", err)
	}

	return store, nil
}

// cleanup removes old sessions based on configuration.
func (s *Store) cleanup() error {
	ctx := context.Background()

	if s.cfg.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.MaxAgeDays)
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM sessions WHERE updated_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("delete old sessions: %w", err)
		}
	}

	if s.cfg.MaxCount > 0 {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM sessions WHERE id IN (
				SELECT id FROM sessions
				ORDER BY updated_at DESC
				LIMIT -1 OFFSET ?
			)`, s.cfg.MaxCount)
		if err != nil {
			return fmt.Errorf("enforce max count: %w", err)
		}
	}

	return nil
}

// Create inserts a new session.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = sess.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, model, last_response_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Model, nullString(sess.LastResponseID), sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID. Returns (nil, nil) when not found.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model, last_response_id, created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	var sess Session
	var lastResponseID sql.NullString
	err := row.Scan(&sess.ID, &sess.Model, &lastResponseID, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if lastResponseID.Valid {
		sess.LastResponseID = lastResponseID.String
	}
	return &sess, nil
}

// SetLastResponseID records the identifier of the most recent completed
// exchange and bumps the session timestamp.
func (s *Store) SetLastResponseID(ctx context.Context, sessionID, responseID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_response_id = ?, updated_at = ? WHERE id = ?`,
		nullString(responseID), time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// Delete removes a session and its turns.
func (s *Store) Delete(ctx context.Context, id string) error {
	// Foreign key cascade handles turns
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// List returns the most recently active sessions.
func (s *Store) List(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.model, s.created_at, s.updated_at,
		       (SELECT COUNT(*) FROM turns WHERE session_id = s.id) as turn_count
		FROM sessions s
		ORDER BY s.updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var results []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		err := rows.Scan(&sum.ID, &sum.Model, &sum.CreatedAt, &sum.UpdatedAt, &sum.TurnCount)
		if err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		results = append(results, sum)
	}
	return results, rows.Err()
}

// AppendTurns persists turns in order, continuing the session's sequence.
func (s *Store) AppendTurns(ctx context.Context, sessionID string, turns []relay.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	var next int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence), 0) FROM turns WHERE session_id = ?", sessionID).Scan(&next)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	now := time.Now()
	for _, turn := range turns {
		next++
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO turns (session_id, sequence, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, next, string(turn.Role), turn.Content, now)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, "UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID)
	if err != nil {
		return fmt.Errorf("update session timestamp: %w", err)
	}
	return nil
}

// Turns retrieves a session's turns in chronological order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]StoredTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sequence, role, content, created_at
		FROM turns
		WHERE session_id = ?
		ORDER BY sequence ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []StoredTurn
	for rows.Next() {
		var turn StoredTurn
		var role string
		err := rows.Scan(&turn.ID, &turn.SessionID, &turn.Sequence, &role, &turn.Content, &turn.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = relay.Role(role)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// Clear removes a session's turns and last response id, keeping the row.
// Matches an explicit in-browser reset.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete turns: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_response_id = NULL, updated_at = ? WHERE id = ?`,
		time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DefaultPath returns the standard database location under dataDir.
func DefaultPath(dataDir string) string {
	return filepath.Join(dataDir, "sessions.db")
}

// nullString converts an empty string to NULL for database storage.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
