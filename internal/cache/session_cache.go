package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/santierhq/santier/internal/models"
)

const sessionKeyPrefix = "session:"

// SessionCache caches session rows keyed by refresh token hash. It satisfies
// the auth package's SessionCache interface.
type SessionCache struct {
	store Store
}

// NewSessionCache wraps a Store for session lookups.
func NewSessionCache(store Store) (*SessionCache, error) {
	if store == nil {
		return nil, errors.New("session cache: store is required")
	}
	return &SessionCache{store: store}, nil
}

// Get returns the cached session or nil on a miss.
func (c *SessionCache) Get(ctx context.Context, tokenHash string) (*models.Session, error) {
	raw, ok, err := c.store.Get(ctx, sessionKeyPrefix+tokenHash)
	if err != nil || !ok {
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		// A corrupt entry behaves like a miss; the DB remains authoritative.
		_ = c.store.Delete(ctx, sessionKeyPrefix+tokenHash)
		return nil, nil
	}
	return &session, nil
}

// Set stores the session under its token hash.
func (c *SessionCache) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if session == nil || session.TokenHash == "" {
		return errors.New("session cache: session with token hash is required")
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, sessionKeyPrefix+session.TokenHash, raw, ttl)
}

// Delete drops the cached entry for a token hash.
func (c *SessionCache) Delete(ctx context.Context, tokenHash string) error {
	return c.store.Delete(ctx, sessionKeyPrefix+tokenHash)
}
