// Package memstore is an in-memory account.Store.
//
// Transactions buffer their writes and apply them on commit. The
// (provider, provider_user_id) constraint is checked both on insert and on
// commit, so two concurrent transactions can race exactly like they would
// against a database.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devhaven/auth-service/internal/account"
)

// Store is safe for concurrent use.
type Store struct {
	// Fail, when set, is consulted before every transactional operation.
	// A non-nil return makes that operation fail with the returned error.
	Fail func(op string) error

	mu          sync.Mutex
	lastUserID  int64
	lastAcctID  int64
	users       map[int64]account.User
	accounts    map[int64]account.OAuthAccount
	byIdentity  map[string]int64
	commitHooks []func()
}

func New() *Store {
	return &Store{
		users:      make(map[int64]account.User),
		accounts:   make(map[int64]account.OAuthAccount),
		byIdentity: make(map[string]int64),
	}
}

// BeforeCommit registers fn to run before the next commit applies its writes,
// outside the store lock.
func (s *Store) BeforeCommit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHooks = append(s.commitHooks, fn)
}

func identityKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

func (s *Store) GetUser(_ context.Context, id int64) (*account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &u, nil
}

// Users returns a snapshot of all committed users.
func (s *Store) Users() []account.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]account.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out
}

// Accounts returns a snapshot of all committed OAuth accounts.
func (s *Store) Accounts() []account.OAuthAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]account.OAuthAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx account.Tx) error) error {
	tx := &tx{
		s:        s,
		users:    make(map[int64]account.User),
		accounts: make(map[int64]account.OAuthAccount),
	}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	hooks := s.commitHooks
	s.commitHooks = nil
	s.mu.Unlock()
	for _, h := range hooks {
		h()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range t.accounts {
		if owner, ok := s.byIdentity[identityKey(a.Provider, a.ProviderUserID)]; ok && owner != id {
			return fmt.Errorf("%w: %s/%s", account.ErrConflict, a.Provider, a.ProviderUserID)
		}
	}
	for id, u := range t.users {
		s.users[id] = u
	}
	for id, a := range t.accounts {
		s.accounts[id] = a
		s.byIdentity[identityKey(a.Provider, a.ProviderUserID)] = id
	}
	return nil
}

type tx struct {
	s        *Store
	users    map[int64]account.User
	accounts map[int64]account.OAuthAccount
}

func (t *tx) fail(op string) error {
	if t.s.Fail == nil {
		return nil
	}
	return t.s.Fail(op)
}

func (t *tx) FindOAuthAccount(_ context.Context, provider, providerUserID string) (*account.OAuthAccount, error) {
	if err := t.fail("FindOAuthAccount"); err != nil {
		return nil, err
	}
	for _, a := range t.accounts {
		if a.Provider == provider && a.ProviderUserID == providerUserID {
			return &a, nil
		}
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	id, ok := t.s.byIdentity[identityKey(provider, providerUserID)]
	if !ok {
		return nil, account.ErrNotFound
	}
	a := t.s.accounts[id]
	return &a, nil
}

func (t *tx) GetUser(_ context.Context, id int64) (*account.User, error) {
	if err := t.fail("GetUser"); err != nil {
		return nil, err
	}
	if u, ok := t.users[id]; ok {
		return &u, nil
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	u, ok := t.s.users[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &u, nil
}

func (t *tx) CreateUser(_ context.Context, u *account.User) error {
	if err := t.fail("CreateUser"); err != nil {
		return err
	}
	t.s.mu.Lock()
	t.s.lastUserID++
	u.ID = t.s.lastUserID
	t.s.mu.Unlock()

	u.CreatedAt = time.Now().UTC()
	t.users[u.ID] = *u
	return nil
}

func (t *tx) UpdateUser(_ context.Context, u *account.User) error {
	if err := t.fail("UpdateUser"); err != nil {
		return err
	}
	t.users[u.ID] = *u
	return nil
}

func (t *tx) CreateOAuthAccount(_ context.Context, a *account.OAuthAccount) error {
	if err := t.fail("CreateOAuthAccount"); err != nil {
		return err
	}
	key := identityKey(a.Provider, a.ProviderUserID)
	for _, staged := range t.accounts {
		if identityKey(staged.Provider, staged.ProviderUserID) == key {
			return fmt.Errorf("%w: %s/%s", account.ErrConflict, a.Provider, a.ProviderUserID)
		}
	}

	t.s.mu.Lock()
	if _, ok := t.s.byIdentity[key]; ok {
		t.s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", account.ErrConflict, a.Provider, a.ProviderUserID)
	}
	t.s.lastAcctID++
	a.ID = t.s.lastAcctID
	t.s.mu.Unlock()

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	t.accounts[a.ID] = *a
	return nil
}

func (t *tx) UpdateOAuthAccount(_ context.Context, a *account.OAuthAccount) error {
	if err := t.fail("UpdateOAuthAccount"); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	t.accounts[a.ID] = *a
	return nil
}
