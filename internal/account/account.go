// Package account holds the local user model and the transactional store
// contract used by identity linking.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("account: not found")

	// ErrConflict reports a violation of the (provider, provider_user_id)
	// uniqueness constraint.
	ErrConflict = errors.New("account: oauth identity already linked")
)

// User is a local account. Email is optional and not unique.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// OAuthAccount links one User to one identity at one provider.
type OAuthAccount struct {
	ID               int64
	UserID           int64
	Provider         string
	ProviderUserID   string
	ProviderUsername string
	AccessToken      string
	RefreshToken     string
	TokenExpiresAt   *time.Time
	RawData          json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Tx is the unit of work available inside Store.WithinTx.
type Tx interface {
	FindOAuthAccount(ctx context.Context, provider, providerUserID string) (*OAuthAccount, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	// CreateUser assigns ID and CreatedAt.
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
	// CreateOAuthAccount assigns ID and timestamps. Returns ErrConflict when
	// the provider identity is already linked.
	CreateOAuthAccount(ctx context.Context, a *OAuthAccount) error
	UpdateOAuthAccount(ctx context.Context, a *OAuthAccount) error
}

// Store is the account persistence boundary.
type Store interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	// WithinTx runs fn in one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise; the error from fn is returned
	// unchanged. A commit-time uniqueness violation surfaces as ErrConflict.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
