package sqlite

import (
	"time"

	"github.com/zjrosen/shopbot/internal/session"
)

// SessionModel represents the database row for the sessions table.
type SessionModel struct {
	UserID    string
	State     string
	UpdatedAt int64 // Unix timestamp
}

func toSessionModel(userID string, state session.State, now time.Time) SessionModel {
	return SessionModel{
		UserID:    userID,
		State:     state.String(),
		UpdatedAt: now.Unix(),
	}
}

// toDomain converts the stored token. An unknown token yields an
// *session.InvalidStateError so the caller can fall back to the start state.
func (m SessionModel) toDomain() (session.State, error) {
	return session.ParseState(m.State)
}
