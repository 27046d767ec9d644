package payments

import (
	"context"
	"errors"
	"testing"
	"time"
)

func countingRefresh(token string, lifetime time.Duration, calls *int) RefreshFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		*calls++
		return token, time.Now().Add(lifetime), nil
	}
}

func TestTokenCacheReusesFreshToken(t *testing.T) {
	cache := NewTokenCache()
	calls := 0
	refresh := countingRefresh("tok-1", 10*time.Minute, &calls)

	for i := 0; i < 3; i++ {
		token, err := cache.Get(context.Background(), refresh)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if token != "tok-1" {
			t.Fatalf("token = %q", token)
		}
	}
	if calls != 1 {
		t.Fatalf("refresh calls = %d, want 1", calls)
	}
}

func TestTokenCacheRefreshesWithinSkew(t *testing.T) {
	cache := NewTokenCache()
	calls := 0
	// lifetime shorter than the renewal skew: always refreshed
	refresh := countingRefresh("tok-1", 10*time.Second, &calls)

	if _, err := cache.Get(context.Background(), refresh); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := cache.Get(context.Background(), refresh); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("refresh calls = %d, want 2", calls)
	}
}

func TestTokenCacheRefreshesAfterExpiry(t *testing.T) {
	cache := NewTokenCache()
	clock := time.Now()
	cache.now = func() time.Time { return clock }

	calls := 0
	refresh := func(ctx context.Context) (string, time.Time, error) {
		calls++
		return "tok", clock.Add(10 * time.Minute), nil
	}

	if _, err := cache.Get(context.Background(), refresh); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	clock = clock.Add(11 * time.Minute)
	if _, err := cache.Get(context.Background(), refresh); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("refresh calls = %d, want 2", calls)
	}
}

func TestTokenCacheInvalidateForcesRefresh(t *testing.T) {
	cache := NewTokenCache()
	calls := 0
	refresh := countingRefresh("tok-1", 10*time.Minute, &calls)

	if _, err := cache.Get(context.Background(), refresh); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	cache.Invalidate()
	if _, err := cache.Get(context.Background(), refresh); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("refresh calls = %d, want 2", calls)
	}
}

func TestTokenCacheSurfacesRefreshError(t *testing.T) {
	cache := NewTokenCache()
	boom := errors.New("login failed")
	refresh := func(ctx context.Context) (string, time.Time, error) {
		return "", time.Time{}, boom
	}

	if _, err := cache.Get(context.Background(), refresh); !errors.Is(err, boom) {
		t.Fatalf("Get() error = %v, want %v", err, boom)
	}
}
