package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/shopbot/internal/session"
)

// sessionStore implements session.Store using SQLite.
type sessionStore struct {
	db  *DB
	now func() time.Time
}

func newSessionStore(db *DB) *sessionStore {
	return &sessionStore{db: db, now: time.Now}
}

// Ensure sessionStore implements session.Store.
var _ session.Store = (*sessionStore)(nil)

// Get returns the stored state for userID.
func (s *sessionStore) Get(ctx context.Context, userID string) (session.State, bool, error) {
	var model SessionModel
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT user_id, state, updated_at FROM sessions WHERE user_id = ?`,
		userID,
	).Scan(&model.UserID, &model.State, &model.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get session: %w", err)
	}
	state, err := model.toDomain()
	if err != nil {
		return "", true, err
	}
	return state, true, nil
}

// Set upserts the state for userID.
func (s *sessionStore) Set(ctx context.Context, userID string, state session.State) error {
	if !state.IsValid() {
		return &session.InvalidStateError{Token: string(state)}
	}
	model := toSessionModel(userID, state, s.now())
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO sessions (user_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		model.UserID, model.State, model.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the row for userID.
func (s *sessionStore) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the owning database.
func (s *sessionStore) Close() error {
	return s.db.Close()
}
