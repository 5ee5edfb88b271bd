package session

import (
	"context"
	"errors"
	"time"
)

// ErrContention is returned when an atomic update keeps losing to
// concurrent writers of the same session.
var ErrContention = errors.New("session: too much contention on session record")

// AuthState is a pending OAuth state token for one provider.
type AuthState struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is the server-side record behind the session cookie.
type Session struct {
	SessionID string               `json:"session_id"`
	UserID    int64                `json:"user_id,omitempty"`
	Permanent bool                 `json:"permanent,omitempty"`
	States    map[string]AuthState `json:"states,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// Authenticated reports whether a user has been attached to the session.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != 0
}

// UpdateFunc mutates a session in place. Returning an error aborts the
// update and nothing is written.
type UpdateFunc func(s *Session) error

// Store persists sessions keyed by their opaque ID.
//
// Update is the only read-modify-write primitive and must be atomic per
// session: two concurrent updates of the same ID never both observe the
// same prior state. A missing session is handed to fn as a fresh record
// with SessionID and CreatedAt set. The record is stored until its
// ExpiresAt; a record whose ExpiresAt is not in the future is deleted.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, sessionID string, fn UpdateFunc) error
	Delete(ctx context.Context, sessionID string) error
}

func newSession(sessionID string) *Session {
	return &Session{
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}
}
