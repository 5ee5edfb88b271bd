// Package manager drives the OAuth login handshake: it issues state,
// completes callbacks and owns the authenticated-user field of the session.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devhaven/auth-service/internal/account"
	"github.com/devhaven/auth-service/internal/auth"
	"github.com/devhaven/auth-service/internal/auth/provider"
	"github.com/devhaven/auth-service/internal/logger"
	"github.com/devhaven/auth-service/internal/metrics"
	"github.com/devhaven/auth-service/internal/session"
)

const DefaultSessionLifetime = 7 * 24 * time.Hour

// Step is the last state a login attempt reached.
type Step string

const (
	StepIdle               Step = "idle"
	StepStateIssued        Step = "state_issued"
	StepTokenExchanged     Step = "token_exchanged"
	StepProfileFetched     Step = "profile_fetched"
	StepLinked             Step = "linked"
	StepSessionEstablished Step = "session_established"
)

// StateStore issues and consumes per-(session, provider) CSRF tokens.
type StateStore interface {
	Generate(ctx context.Context, sessionID, provider string) (string, error)
	VerifyAndConsume(ctx context.Context, sessionID, provider, candidate string) (bool, error)
}

// Linker maps a provider identity to a local user.
type Linker interface {
	LinkOrUpdate(ctx context.Context, provider string, profile *auth.Profile, token *auth.Token) (*account.User, error)
}

type UserFinder interface {
	GetUser(ctx context.Context, id int64) (*account.User, error)
}

type Options struct {
	// DefaultRedirectURI is used when neither the caller nor RedirectURIs
	// name a callback URL.
	DefaultRedirectURI string
	// RedirectURIs holds the configured callback URL per provider.
	RedirectURIs map[string]string

	SessionLifetime time.Duration
	Metrics         *metrics.Metrics
}

type Manager struct {
	providers *provider.Registry
	states    StateStore
	sessions  session.Store
	linker    Linker
	users     UserFinder
	opts      Options
	now       func() time.Time
}

func New(
	providers *provider.Registry,
	states StateStore,
	sessions session.Store,
	linker Linker,
	users UserFinder,
	opts Options,
) *Manager {
	if opts.SessionLifetime <= 0 {
		opts.SessionLifetime = DefaultSessionLifetime
	}
	return &Manager{
		providers: providers,
		states:    states,
		sessions:  sessions,
		linker:    linker,
		users:     users,
		opts:      opts,
		now:       time.Now,
	}
}

// SessionLifetime is how long an authenticated session stays valid.
func (m *Manager) SessionLifetime() time.Duration {
	return m.opts.SessionLifetime
}

// Login issues a state for (sessionID, providerName) and returns the
// provider authorization URL carrying it.
func (m *Manager) Login(ctx context.Context, sessionID, providerName, redirectURI string) (authURL, state string, err error) {
	if providerName == "" {
		return "", "", fail(auth.Errorf(auth.KindValidation, "provider is required"), providerName, StepIdle)
	}
	p, ok := m.providers.Get(providerName)
	if !ok {
		return "", "", fail(&auth.Error{Kind: auth.KindUnknownProvider}, providerName, StepIdle)
	}

	state, err = m.states.Generate(ctx, sessionID, providerName)
	if err != nil {
		return "", "", fail(auth.StorageError(err), providerName, StepIdle)
	}

	if redirectURI == "" {
		redirectURI = m.redirectURI(providerName)
	}
	authURL = p.AuthorizationURL(state, redirectURI)

	m.opts.Metrics.LoginStarted(providerName)
	logger.From(ctx).Debug("authorization url issued",
		logger.Provider(providerName),
		logger.Step(string(StepStateIssued)),
	)
	return authURL, state, nil
}

// EnsureSession returns sessionID when it names a live session record and a
// freshly generated id otherwise. issued reports whether the id is new and
// must be handed to the client.
func (m *Manager) EnsureSession(ctx context.Context, sessionID string) (sid string, issued bool, err error) {
	if sessionID != "" {
		sess, err := m.sessions.Get(ctx, sessionID)
		if err != nil {
			return "", false, auth.StorageError(fmt.Errorf("load session: %w", err))
		}
		if sess != nil {
			return sessionID, false, nil
		}
	}

	sid, err = session.GenerateID()
	if err != nil {
		return "", false, auth.StorageError(err)
	}
	return sid, true, nil
}

// Callback completes a login and returns the id of the authenticated
// session, which replaces sessionID. The session is only written after
// every other step succeeded, so a failure never leaves it half
// authenticated.
func (m *Manager) Callback(ctx context.Context, sessionID, providerName, code, stateToken string) (user *account.User, newSessionID string, err error) {
	step := StepStateIssued
	log := logger.From(ctx).With(logger.Provider(providerName))

	defer func() {
		if err != nil {
			err = fail(err, providerName, step)
			m.opts.Metrics.CallbackFinished(providerName, auth.KindOf(err).String(), string(step))
			level := zap.WarnLevel
			if auth.HTTPStatus(err) >= 500 {
				level = zap.ErrorLevel
			}
			log.Log(level, "login failed", logger.Step(string(step)), logger.Err(err))
			return
		}
		m.opts.Metrics.CallbackFinished(providerName, "success", string(step))
		log.Info("login succeeded", logger.UserID(user.ID))
	}()

	if code == "" || stateToken == "" {
		return nil, "", auth.Errorf(auth.KindValidation, "code and state are required")
	}
	p, ok := m.providers.Get(providerName)
	if !ok {
		return nil, "", &auth.Error{Kind: auth.KindUnknownProvider}
	}

	valid, err := m.states.VerifyAndConsume(ctx, sessionID, providerName, stateToken)
	if err != nil {
		return nil, "", auth.StorageError(err)
	}
	if !valid {
		return nil, "", &auth.Error{Kind: auth.KindInvalidState}
	}

	start := m.now()
	token, err := p.ExchangeCode(ctx, code, m.redirectURI(providerName))
	m.opts.Metrics.ObserveProvider(providerName, "exchange", m.now().Sub(start))
	if err != nil {
		return nil, "", err
	}
	step = StepTokenExchanged
	log.Debug("code exchanged", logger.Step(string(step)))

	start = m.now()
	profile, err := p.FetchUserInfo(ctx, token.AccessToken)
	m.opts.Metrics.ObserveProvider(providerName, "userinfo", m.now().Sub(start))
	if err != nil {
		return nil, "", err
	}
	step = StepProfileFetched
	log.Debug("profile fetched", logger.Step(string(step)))

	user, err = m.linker.LinkOrUpdate(ctx, providerName, profile, token)
	if err != nil {
		return nil, "", err
	}
	step = StepLinked

	newSessionID, err = m.establish(ctx, sessionID, user.ID)
	if err != nil {
		return nil, "", auth.StorageError(err)
	}
	step = StepSessionEstablished
	return user, newSessionID, nil
}

// establish moves the session to a new id carrying the user. The previous id
// is dropped so a session id known before login never becomes authenticated.
func (m *Manager) establish(ctx context.Context, sessionID string, userID int64) (string, error) {
	prev, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}

	newID, err := session.GenerateID()
	if err != nil {
		return "", err
	}

	expiresAt := m.now().Add(m.opts.SessionLifetime)
	err = m.sessions.Update(ctx, newID, func(s *session.Session) error {
		if prev != nil && len(prev.States) > 0 {
			s.States = prev.States
		}
		s.UserID = userID
		s.Permanent = true
		s.ExpiresAt = expiresAt
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("write session: %w", err)
	}

	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		_ = m.sessions.Delete(ctx, newID)
		return "", fmt.Errorf("drop previous session: %w", err)
	}
	return newID, nil
}

// Logout removes the whole session record. Logging out twice is fine.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := m.sessions.Delete(ctx, sessionID); err != nil {
		return auth.StorageError(fmt.Errorf("delete session: %w", err))
	}
	return nil
}

// AvailableProviders lists the configured providers in registration order.
func (m *Manager) AvailableProviders() []string {
	return m.providers.Names()
}

// CurrentUser returns the user attached to sessionID, or nil when the
// session is anonymous, expired, or its user is gone or inactive.
func (m *Manager) CurrentUser(ctx context.Context, sessionID string) (*account.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, auth.StorageError(fmt.Errorf("load session: %w", err))
	}
	if !sess.Authenticated() || !m.now().Before(sess.ExpiresAt) {
		return nil, nil
	}

	user, err := m.users.GetUser(ctx, sess.UserID)
	if errors.Is(err, account.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, auth.StorageError(fmt.Errorf("load user %d: %w", sess.UserID, err))
	}
	if !user.IsActive {
		return nil, nil
	}
	return user, nil
}

func (m *Manager) redirectURI(providerName string) string {
	if uri := m.opts.RedirectURIs[providerName]; uri != "" {
		return uri
	}
	return m.opts.DefaultRedirectURI
}

// fail stamps provider and step onto err without overwriting what an inner
// layer already set.
func fail(err error, providerName string, step Step) error {
	var ae *auth.Error
	if !errors.As(err, &ae) {
		ae = &auth.Error{Kind: auth.KindStorage, Err: err}
	} else {
		cp := *ae
		ae = &cp
	}
	if ae.Provider == "" {
		ae.Provider = providerName
	}
	if ae.Step == "" {
		ae.Step = string(step)
	}
	return ae
}
