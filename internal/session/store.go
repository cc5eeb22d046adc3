package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSessionNotFound is returned when a session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// Store persists session checkpoints and the per-turn message log in SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS dialogue_sessions (
	session_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	order_id TEXT NOT NULL,
	state_json TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON dialogue_sessions(user_id);
CREATE TABLE IF NOT EXISTS session_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON session_messages(session_id);
`

// NewStore creates the store and its schema.
func NewStore(db *sql.DB, logger *zap.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create session schema: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.Named("session"),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Lock acquires the per-session turn lock and returns its release func. At
// most one turn per session may be in flight; last-writer-wins on the
// checkpoint is only safe under that guarantee.
func (s *Store) Lock(sessionID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Create registers a new session.
func (s *Store) Create(ctx context.Context, state *State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dialogue_sessions (session_id, user_id, order_id, state_json) VALUES (?, ?, ?, ?)`,
		state.SessionID, state.UserID, state.OrderID, string(stateJSON))
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", state.SessionID, err)
	}
	s.logger.Info("session created", zap.String("session_id", state.SessionID),
		zap.String("order_id", state.OrderID))
	return nil
}

// Load reads the latest checkpoint for a session.
func (s *Store) Load(ctx context.Context, sessionID string) (*State, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM dialogue_sessions WHERE session_id = ?`, sessionID,
	).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var state State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("corrupt checkpoint for session %s: %w", sessionID, err)
	}
	return &state, nil
}

// Save overwrites the full checkpoint. INSERT OR REPLACE keeps the write
// idempotent; deltas are never applied.
func (s *Store) Save(ctx context.Context, state *State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO dialogue_sessions (session_id, user_id, order_id, state_json, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		state.SessionID, state.UserID, state.OrderID, string(stateJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	return nil
}

// Message is one logged conversation message.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendMessage logs a user or assistant message for the session.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content)
	if err != nil {
		return fmt.Errorf("failed to append message to session %s: %w", sessionID, err)
	}
	return nil
}

// Messages returns the session's messages, oldest first.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM session_messages
		 WHERE session_id = ? ORDER BY id LIMIT ?`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Summary identifies a conversation without its state.
type Summary struct {
	SessionID string    `json:"session_id"`
	OrderID   string    `json:"order_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListByUser returns the user's conversations, most recently active first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, order_id, updated_at FROM dialogue_sessions
		 WHERE user_id = ? ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.SessionID, &sum.OrderID, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
