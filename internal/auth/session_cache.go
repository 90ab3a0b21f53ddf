package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/jasamarket/internal/cache"
	"github.com/charlesng35/jasamarket/internal/models"
)

const sessionCacheKeyPrefix = "auth:sessions:refresh:"

// NewStoreSessionCache wraps a shared cache store (redis or database) inside a SessionCache.
func NewStoreSessionCache(store cache.Store) SessionCache {
	if store == nil {
		return nil
	}
	return &sessionStoreCache{store: store}
}

type sessionStoreCache struct {
	store cache.Store
}

// cachedSession mirrors models.Session including the digest, which the model hides from JSON.
type cachedSession struct {
	models.Session
	Digest string `json:"digest"`
}

func (c *sessionStoreCache) Get(ctx context.Context, tokenHash string) (*models.Session, error) {
	key := cacheKey(tokenHash)
	if key == "" {
		return nil, errSessionCacheMiss
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errSessionCacheMiss
	}

	var entry cachedSession
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	session := entry.Session
	session.RefreshToken = entry.Digest
	return &session, nil
}

func (c *sessionStoreCache) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if session == nil {
		return errors.New("session cache: session is nil")
	}
	key := cacheKey(session.RefreshToken)
	if key == "" {
		return errors.New("session cache: refresh token missing")
	}

	payload, err := json.Marshal(cachedSession{Session: *session, Digest: session.RefreshToken})
	if err != nil {
		return fmt.Errorf("session cache: marshal: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	return c.store.Set(ctx, key, payload, ttl)
}

func (c *sessionStoreCache) Delete(ctx context.Context, tokenHash string) error {
	key := cacheKey(tokenHash)
	if key == "" {
		return nil
	}
	return c.store.Delete(ctx, key)
}

func cacheKey(tokenHash string) string {
	token := strings.TrimSpace(tokenHash)
	if token == "" {
		return ""
	}
	return sessionCacheKeyPrefix + token
}
