// Package postgres implements account.Store on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/devhaven/auth-service/internal/account"
	"github.com/devhaven/auth-service/internal/db"
)

const uniqueViolation = "23505"

type Store struct {
	db *db.DB
}

func New(db *db.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) GetUser(ctx context.Context, id int64) (*account.User, error) {
	return getUser(ctx, s.db, id)
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx account.Tx) error) error {
	err := s.db.WithinTx(ctx, func(tx *sql.Tx) error {
		return fn(&txStore{q: tx})
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", account.ErrConflict, err)
	}
	return err
}

type txStore struct {
	q querier
}

func (t *txStore) FindOAuthAccount(ctx context.Context, provider, providerUserID string) (*account.OAuthAccount, error) {
	var (
		a         account.OAuthAccount
		username  sql.NullString
		access    sql.NullString
		refresh   sql.NullString
		expiresAt sql.NullTime
		raw       []byte
	)

	err := t.q.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_user_id, provider_username,
		       access_token, refresh_token, token_expires_at, raw_data,
		       created_at, updated_at
		FROM oauth_accounts
		WHERE provider = $1
		  AND provider_user_id = $2
	`, provider, providerUserID).Scan(
		&a.ID, &a.UserID, &a.Provider, &a.ProviderUserID, &username,
		&access, &refresh, &expiresAt, &raw,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find oauth account: %w", err)
	}

	a.ProviderUsername = username.String
	a.AccessToken = access.String
	a.RefreshToken = refresh.String
	if expiresAt.Valid {
		exp := expiresAt.Time
		a.TokenExpiresAt = &exp
	}
	a.RawData = raw
	return &a, nil
}

func (t *txStore) GetUser(ctx context.Context, id int64) (*account.User, error) {
	return getUser(ctx, t.q, id)
}

func (t *txStore) CreateUser(ctx context.Context, u *account.User) error {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO users (email, username, avatar_url, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, nullString(u.Email), u.Username, nullString(u.AvatarURL), u.IsActive).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}

func (t *txStore) UpdateUser(ctx context.Context, u *account.User) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE users
		SET email = $2, username = $3, avatar_url = $4, is_active = $5
		WHERE id = $1
	`, u.ID, nullString(u.Email), u.Username, nullString(u.AvatarURL), u.IsActive)
	if err != nil {
		return fmt.Errorf("postgres: update user: %w", err)
	}
	return nil
}

func (t *txStore) CreateOAuthAccount(ctx context.Context, a *account.OAuthAccount) error {
	err := t.q.QueryRowContext(ctx, `
		INSERT INTO oauth_accounts (
			user_id, provider, provider_user_id, provider_username,
			access_token, refresh_token, token_expires_at, raw_data
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`,
		a.UserID, a.Provider, a.ProviderUserID, nullString(a.ProviderUsername),
		nullString(a.AccessToken), nullString(a.RefreshToken), a.TokenExpiresAt, rawJSON(a.RawData),
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s/%s", account.ErrConflict, a.Provider, a.ProviderUserID)
	}
	if err != nil {
		return fmt.Errorf("postgres: create oauth account: %w", err)
	}
	return nil
}

func (t *txStore) UpdateOAuthAccount(ctx context.Context, a *account.OAuthAccount) error {
	err := t.q.QueryRowContext(ctx, `
		UPDATE oauth_accounts
		SET provider_username = $2,
		    access_token = $3,
		    refresh_token = $4,
		    token_expires_at = $5,
		    raw_data = $6,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`,
		a.ID, nullString(a.ProviderUsername), nullString(a.AccessToken),
		nullString(a.RefreshToken), a.TokenExpiresAt, rawJSON(a.RawData),
	).Scan(&a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return account.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres: update oauth account: %w", err)
	}
	return nil
}

func getUser(ctx context.Context, q querier, id int64) (*account.User, error) {
	var (
		u      account.User
		email  sql.NullString
		avatar sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, email, username, avatar_url, is_active, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &email, &u.Username, &avatar, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	u.Email = email.String
	u.AvatarURL = avatar.String
	u.CreatedAt = u.CreatedAt.In(time.UTC)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func rawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
