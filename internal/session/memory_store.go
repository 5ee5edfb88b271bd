package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process memory. It is meant for local
// development and tests; sessions do not survive restarts and are not
// shared between replicas.
type MemoryStore struct {
	mu sync.Mutex
	c  *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	return m.load(sessionID)
}

func (m *MemoryStore) Update(_ context.Context, sessionID string, fn UpdateFunc) error {
	if sessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		s = newSession(sessionID)
	}
	if err := fn(s); err != nil {
		return err
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		m.c.Delete(sessionID)
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	m.c.Set(sessionID, data, ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Delete(sessionID)
	return nil
}

// load returns a private copy so callers never alias stored state.
func (m *MemoryStore) load(sessionID string) (*Session, error) {
	v, ok := m.c.Get(sessionID)
	if !ok {
		return nil, nil
	}
	var s Session
	if err := json.Unmarshal(v.([]byte), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}
