package payments

import (
	"context"
	"sync"
	"time"
)

// RefreshFunc fetches a fresh auth token and its expiry from the provider.
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenCache holds one provider auth token with its expiry. It is an
// explicit, injected dependency of the status client that needs it; there is
// no package-level token state. Get refreshes on demand and Invalidate
// forces a refresh after a 401.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	// skew renews the token slightly before its real expiry so an
	// in-flight request does not race the deadline.
	skew time.Duration
	now  func() time.Time
}

// NewTokenCache creates an empty token cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{
		skew: 30 * time.Second,
		now:  time.Now,
	}
}

// Get returns the cached token, refreshing it via refresh when missing or
// within the expiry skew.
func (c *TokenCache) Get(ctx context.Context, refresh RefreshFunc) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(c.skew).Before(c.expiresAt) {
		return c.token, nil
	}

	token, expiresAt, err := refresh(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expiresAt = expiresAt
	return token, nil
}

// Invalidate drops the cached token so the next Get refreshes.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
