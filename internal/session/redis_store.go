package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 5

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
	}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	return decode(r.client.Get(ctx, r.key(sessionID)))
}

// Update runs fn inside a WATCH/MULTI optimistic transaction and retries
// when another client modified the key in between.
func (r *RedisStore) Update(ctx context.Context, sessionID string, fn UpdateFunc) error {
	if sessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}
	key := r.key(sessionID)

	txf := func(tx *redis.Tx) error {
		s, err := decode(tx.Get(ctx, key))
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
		var data []byte
		if ttl > 0 {
			if data, err = json.Marshal(s); err != nil {
				return fmt.Errorf("session: failed to marshal: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl <= 0 {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContention
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.key(sessionID)).Err()
}

func decode(cmd *redis.StringCmd) (*Session, error) {
	val, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &s, nil
}
