// Package state issues and verifies the single-use OAuth state tokens that
// tie an authorization request to its callback.
package state

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/devhaven/auth-service/internal/session"
	"github.com/devhaven/auth-service/internal/utils"
)

const (
	DefaultTTL = 10 * time.Minute
	tokenBytes = 32
)

var errNoState = errors.New("state: nothing to consume")

// Store keeps one live state per (session, provider) inside the session
// record. Atomicity comes from session.Store.Update.
type Store struct {
	sessions session.Store
	ttl      time.Duration
	now      func() time.Time
}

func New(sessions session.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{sessions: sessions, ttl: ttl, now: time.Now}
}

// Generate stores a fresh token for (sessionID, provider), replacing any
// previous one.
func (s *Store) Generate(ctx context.Context, sessionID, provider string) (string, error) {
	if sessionID == "" {
		return "", errors.New("state: missing session_id")
	}

	token, err := utils.RandomToken(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("state: generate token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)

	err = s.sessions.Update(ctx, sessionID, func(sess *session.Session) error {
		if sess.States == nil {
			sess.States = make(map[string]session.AuthState)
		}
		for name, st := range sess.States {
			if !now.Before(st.ExpiresAt) {
				delete(sess.States, name)
			}
		}
		sess.States[provider] = session.AuthState{Token: token, ExpiresAt: expiresAt}

		// Anonymous sessions only live as long as their pending states.
		if sess.ExpiresAt.Before(expiresAt) {
			sess.ExpiresAt = expiresAt
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("state: store token: %w", err)
	}
	return token, nil
}

// VerifyAndConsume removes the stored token for (sessionID, provider) and
// reports whether it matched candidate and had not expired. The entry is
// removed even on mismatch, so each issued token is checked at most once.
func (s *Store) VerifyAndConsume(ctx context.Context, sessionID, provider, candidate string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}

	var ok bool
	now := s.now()

	err := s.sessions.Update(ctx, sessionID, func(sess *session.Session) error {
		st, found := sess.States[provider]
		if !found {
			return errNoState
		}
		delete(sess.States, provider)

		ok = candidate != "" &&
			now.Before(st.ExpiresAt) &&
			subtle.ConstantTimeCompare([]byte(st.Token), []byte(candidate)) == 1
		return nil
	})
	if errors.Is(err, errNoState) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: consume token: %w", err)
	}
	return ok, nil
}
