package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpdateCreatesSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = store.Update(ctx, "sid", func(s *Session) error {
		assert.Equal(t, "sid", s.SessionID)
		assert.False(t, s.CreatedAt.IsZero())
		s.UserID = 42
		s.ExpiresAt = time.Now().Add(time.Hour)
		return nil
	})
	require.NoError(t, err)

	got, err = store.Get(ctx, "sid")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Authenticated())
	assert.Equal(t, int64(42), got.UserID)
}

func TestMemoryStoreUpdateAbortDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	err := store.Update(ctx, "sid", func(s *Session) error {
		s.UserID = 1
		s.ExpiresAt = time.Now().Add(time.Hour)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreExpiredRecordIsDeleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Update(ctx, "sid", func(s *Session) error {
		s.ExpiresAt = time.Now().Add(time.Hour)
		return nil
	}))
	require.NoError(t, store.Update(ctx, "sid", func(s *Session) error {
		s.ExpiresAt = time.Now().Add(-time.Second)
		return nil
	}))

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Delete(ctx, "missing"))
	require.NoError(t, store.Delete(ctx, "missing"))
}

func TestMemoryStoreUpdatesAreSerialized(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, "sid", func(s *Session) error {
				s.UserID++
				s.ExpiresAt = time.Now().Add(time.Hour)
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.UserID)
}
