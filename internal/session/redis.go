// Package session provides the correlation store implementations and the
// cookie middleware that gives every browser a stable session identifier.
// The dpm core only sees the dpm.Store interface; anything session-shaped
// can be swapped in by the host application.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/merchkit/dpm-relay/internal/dpm"
)

// RedisStore keeps sessions as JSON values in Redis. Eviction is the store's
// job: every write refreshes the TTL, and an expired session simply reads
// back as absent.
type RedisStore struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

// Get returns the session for the given id, or (nil, nil) when absent.
func (s RedisStore) Get(ctx context.Context, sessionID string) (*dpm.Session, error) {
	raw, err := s.Client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var sess dpm.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Set writes the session back, refreshing its TTL. A nil session deletes.
func (s RedisStore) Set(ctx context.Context, sessionID string, sess *dpm.Session) error {
	if sess == nil {
		return s.Client.Del(ctx, s.key(sessionID)).Err()
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.Client.Set(ctx, s.key(sessionID), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

func (s RedisStore) key(sessionID string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "sess:"
	}
	return prefix + sessionID
}
