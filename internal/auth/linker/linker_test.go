package linker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devhaven/auth-service/internal/account"
	"github.com/devhaven/auth-service/internal/account/memstore"
	"github.com/devhaven/auth-service/internal/auth"
)

func githubProfile(id, login, email, avatar string) *auth.Profile {
	return &auth.Profile{
		Provider:  "github",
		ID:        id,
		Username:  login,
		Email:     email,
		AvatarURL: avatar,
		Raw:       json.RawMessage(`{"id":` + id + `}`),
	}
}

func TestLinkCreatesUserAndAccount(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l := New(store)

	expiry := time.Now().Add(time.Hour)
	user, err := l.LinkOrUpdate(ctx, "github",
		githubProfile("12345", "alice", "a@x.com", "https://avatars/a"),
		&auth.Token{AccessToken: "at", RefreshToken: "rt", Expiry: expiry},
	)
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, "https://avatars/a", user.AvatarURL)
	assert.True(t, user.IsActive)

	require.Len(t, store.Users(), 1)
	accounts := store.Accounts()
	require.Len(t, accounts, 1)
	acct := accounts[0]
	assert.Equal(t, user.ID, acct.UserID)
	assert.Equal(t, "github", acct.Provider)
	assert.Equal(t, "12345", acct.ProviderUserID)
	assert.Equal(t, "alice", acct.ProviderUsername)
	assert.Equal(t, "at", acct.AccessToken)
	assert.Equal(t, "rt", acct.RefreshToken)
	require.NotNil(t, acct.TokenExpiresAt)
	assert.WithinDuration(t, expiry, *acct.TokenExpiresAt, time.Second)
	assert.JSONEq(t, `{"id":12345}`, string(acct.RawData))
}

func TestLinkFallsBackToSynthesizedUsername(t *testing.T) {
	l := New(memstore.New())

	user, err := l.LinkOrUpdate(context.Background(), "github",
		githubProfile("777", "", "", ""), &auth.Token{AccessToken: "at"})
	require.NoError(t, err)
	assert.Equal(t, "user_777", user.Username)
}

func TestLinkUpdatesExistingAccountInPlace(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l := New(store)

	first, err := l.LinkOrUpdate(ctx, "github",
		githubProfile("42", "old-login", "", ""), &auth.Token{AccessToken: "at-1", RefreshToken: "rt-1"})
	require.NoError(t, err)

	second, err := l.LinkOrUpdate(ctx, "github",
		githubProfile("42", "new-login", "", ""), &auth.Token{AccessToken: "at-2"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "old-login", second.Username)
	require.Len(t, store.Users(), 1)

	accounts := store.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "new-login", accounts[0].ProviderUsername)
	assert.Equal(t, "at-2", accounts[0].AccessToken)
	assert.Empty(t, accounts[0].RefreshToken)
	assert.Nil(t, accounts[0].TokenExpiresAt)
}

func TestLinkEmailBackfillAndAvatarRefresh(t *testing.T) {
	ctx := context.Background()
	tok := &auth.Token{AccessToken: "at"}

	t.Run("email is backfilled only when empty", func(t *testing.T) {
		store := memstore.New()
		l := New(store)

		_, err := l.LinkOrUpdate(ctx, "github", githubProfile("1", "u", "", ""), tok)
		require.NoError(t, err)
		user, err := l.LinkOrUpdate(ctx, "github", githubProfile("1", "u", "first@x.com", ""), tok)
		require.NoError(t, err)
		assert.Equal(t, "first@x.com", user.Email)

		user, err = l.LinkOrUpdate(ctx, "github", githubProfile("1", "u", "second@x.com", ""), tok)
		require.NoError(t, err)
		assert.Equal(t, "first@x.com", user.Email)
	})

	t.Run("avatar is overwritten whenever supplied", func(t *testing.T) {
		store := memstore.New()
		l := New(store)

		_, err := l.LinkOrUpdate(ctx, "github", githubProfile("1", "u", "", "https://a/1"), tok)
		require.NoError(t, err)
		user, err := l.LinkOrUpdate(ctx, "github", githubProfile("1", "u", "", "https://a/2"), tok)
		require.NoError(t, err)
		assert.Equal(t, "https://a/2", user.AvatarURL)

		user, err = l.LinkOrUpdate(ctx, "github", githubProfile("1", "u", "", ""), tok)
		require.NoError(t, err)
		assert.Equal(t, "https://a/2", user.AvatarURL)

		stored, err := store.GetUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://a/2", stored.AvatarURL)
	})
}

func TestLinkSameIDDifferentProvidersAreDistinct(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l := New(store)

	a, err := l.LinkOrUpdate(ctx, "github", githubProfile("5", "gh", "", ""), &auth.Token{})
	require.NoError(t, err)
	b, err := l.LinkOrUpdate(ctx, "keycloak", githubProfile("5", "kc", "", ""), &auth.Token{})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, store.Users(), 2)
}

func TestLinkRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	boom := errors.New("disk on fire")
	store.Fail = func(op string) error {
		if op == "CreateOAuthAccount" {
			return boom
		}
		return nil
	}
	l := New(store)

	_, err := l.LinkOrUpdate(ctx, "github", githubProfile("9", "x", "", ""), &auth.Token{AccessToken: "secret-token"})
	require.Error(t, err)
	assert.True(t, auth.IsKind(err, auth.KindStorage))
	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, err.Error(), "secret-token")

	assert.Empty(t, store.Users())
	assert.Empty(t, store.Accounts())
}

func TestLinkRetriesAsUpdateAfterLostRace(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l := New(store)

	var winner *account.User
	store.BeforeCommit(func() {
		var err error
		winner, err = New(store).LinkOrUpdate(ctx, "github",
			githubProfile("12345", "alice", "", ""), &auth.Token{AccessToken: "winner"})
		require.NoError(t, err)
	})

	user, err := l.LinkOrUpdate(ctx, "github",
		githubProfile("12345", "alice", "a@x.com", ""), &auth.Token{AccessToken: "loser"})
	require.NoError(t, err)
	require.NotNil(t, winner)

	assert.Equal(t, winner.ID, user.ID)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Len(t, store.Users(), 1)

	accounts := store.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "loser", accounts[0].AccessToken)
}

func TestConcurrentLinksCreateSingleUser(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l := New(store)

	const callers = 10
	ids := make([]int64, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := l.LinkOrUpdate(ctx, "github", githubProfile("999", "race", "", ""), &auth.Token{AccessToken: "at"})
			errs[i] = err
			if err == nil {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Len(t, store.Users(), 1)
	assert.Len(t, store.Accounts(), 1)
}

func TestLinkRejectsProfileWithoutID(t *testing.T) {
	_, err := New(memstore.New()).LinkOrUpdate(context.Background(), "github", &auth.Profile{}, nil)
	require.Error(t, err)
	assert.True(t, auth.IsKind(err, auth.KindProvider))
}
