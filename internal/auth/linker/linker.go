// Package linker maps provider identities onto local user accounts.
// It is the only writer of users and OAuth accounts.
package linker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devhaven/auth-service/internal/account"
	"github.com/devhaven/auth-service/internal/auth"
	"github.com/devhaven/auth-service/internal/logger"
)

// maxAttempts covers one lost create race: the retry finds the winner's
// account and takes the update path.
const maxAttempts = 2

type Linker struct {
	store account.Store
}

func New(store account.Store) *Linker {
	return &Linker{store: store}
}

// LinkOrUpdate finds or creates the user owning (provider, profile.ID) and
// refreshes the stored tokens, all in one transaction. Failures are
// reported as auth.KindStorage; nothing is written on failure.
func (l *Linker) LinkOrUpdate(
	ctx context.Context,
	provider string,
	profile *auth.Profile,
	token *auth.Token,
) (*account.User, error) {
	if profile == nil || profile.ID == "" {
		return nil, auth.ProviderError("invalid_profile", "profile has no id")
	}
	if token == nil {
		token = &auth.Token{}
	}

	var (
		user *account.User
		err  error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		user, err = l.link(ctx, provider, profile, token)
		if !errors.Is(err, account.ErrConflict) {
			break
		}
		logger.From(ctx).Info("identity created concurrently, retrying as update",
			logger.Provider(provider),
		)
	}
	if err != nil {
		return nil, auth.StorageError(fmt.Errorf("link %s identity: %w", provider, err))
	}
	return user, nil
}

func (l *Linker) link(
	ctx context.Context,
	provider string,
	profile *auth.Profile,
	token *auth.Token,
) (*account.User, error) {
	var user *account.User

	err := l.store.WithinTx(ctx, func(tx account.Tx) error {
		acct, err := tx.FindOAuthAccount(ctx, provider, profile.ID)
		switch {
		case err == nil:
			user, err = update(ctx, tx, acct, profile, token)
		case errors.Is(err, account.ErrNotFound):
			user, err = create(ctx, tx, provider, profile, token)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func create(
	ctx context.Context,
	tx account.Tx,
	provider string,
	profile *auth.Profile,
	token *auth.Token,
) (*account.User, error) {
	username := profile.Username
	if username == "" {
		username = "user_" + profile.ID
	}

	user := &account.User{
		Email:     profile.Email,
		Username:  username,
		AvatarURL: profile.AvatarURL,
		IsActive:  true,
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	acct := &account.OAuthAccount{
		UserID:         user.ID,
		Provider:       provider,
		ProviderUserID: profile.ID,
	}
	applyToken(acct, profile, token)
	if err := tx.CreateOAuthAccount(ctx, acct); err != nil {
		return nil, err
	}

	logger.From(ctx).Info("user created",
		logger.Provider(provider),
		logger.UserID(user.ID),
	)
	return user, nil
}

// update refreshes the link on a returning login. Email is only backfilled
// when empty; avatar is replaced whenever the profile has one.
func update(
	ctx context.Context,
	tx account.Tx,
	acct *account.OAuthAccount,
	profile *auth.Profile,
	token *auth.Token,
) (*account.User, error) {
	user, err := tx.GetUser(ctx, acct.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", acct.UserID, err)
	}

	applyToken(acct, profile, token)
	if err := tx.UpdateOAuthAccount(ctx, acct); err != nil {
		return nil, err
	}

	changed := false
	if user.Email == "" && profile.Email != "" {
		user.Email = profile.Email
		changed = true
	}
	if profile.AvatarURL != "" && profile.AvatarURL != user.AvatarURL {
		user.AvatarURL = profile.AvatarURL
		changed = true
	}
	if changed {
		if err := tx.UpdateUser(ctx, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func applyToken(acct *account.OAuthAccount, profile *auth.Profile, token *auth.Token) {
	acct.ProviderUsername = profile.Username
	acct.AccessToken = token.AccessToken
	acct.RefreshToken = token.RefreshToken
	acct.TokenExpiresAt = nil
	if !token.Expiry.IsZero() {
		exp := token.Expiry.UTC().Truncate(time.Second)
		acct.TokenExpiresAt = &exp
	}
	acct.RawData = profile.Raw
}
