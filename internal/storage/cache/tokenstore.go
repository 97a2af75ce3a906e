// Package cache adds a Redis read-aside caching layer to a TokenStore.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/proxemics-lab/go-push-service/pkg/dispatch"
	"github.com/proxemics-lab/go-push-service/pkg/push"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or an error when the key is absent.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTokenStore is a decorator that adds read-aside caching to any
// TokenStore. Writes go to the real store first and then invalidate the
// cached token list, so a removed token stops being served immediately.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (read-aside) ---

func (s *CachedTokenStore) Tokens(ctx context.Context, customerID string) ([]string, error) {
	key := s.cacheKey(customerID)

	var cached []string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.Tokens(ctx, customerID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization, not a transaction; if Redis is down we
	// just serve from the real store.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)

	return fresh, nil
}

// --- WRITE PATHS (invalidate-on-write) ---

func (s *CachedTokenStore) RegisterToken(ctx context.Context, customerID string, agent push.Agent, token string) error {
	if err := s.realStore.RegisterToken(ctx, customerID, agent, token); err != nil {
		return err
	}
	return s.invalidate(ctx, customerID)
}

// RemoveToken deletes the token and clears the cached list. Even when the
// store write succeeds the cache MUST be cleared, or an invalidated token
// keeps receiving notifications until the TTL expires.
func (s *CachedTokenStore) RemoveToken(ctx context.Context, customerID, token string) error {
	if err := s.realStore.RemoveToken(ctx, customerID, token); err != nil {
		return err
	}
	return s.invalidate(ctx, customerID)
}

func (s *CachedTokenStore) ReplaceToken(ctx context.Context, customerID string, agent push.Agent, newToken, oldToken string) error {
	if err := s.realStore.ReplaceToken(ctx, customerID, agent, newToken, oldToken); err != nil {
		return err
	}
	return s.invalidate(ctx, customerID)
}

// --- Helpers ---

func (s *CachedTokenStore) invalidate(ctx context.Context, customerID string) error {
	// The next Tokens call is forced back to the real store.
	return s.cache.Del(ctx, s.cacheKey(customerID))
}

func (s *CachedTokenStore) cacheKey(customerID string) string {
	return fmt.Sprintf("push:tokens:%s", customerID)
}
