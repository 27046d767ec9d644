package lock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix namespaces all lock keys in the shared store
	KeyPrefix = "webhook_lock:"

	// DefaultTTL must exceed worst-case processing latency (including one
	// outbound provider status call) while letting a crashed holder
	// self-heal within a user-visible time bound.
	DefaultTTL = 90 * time.Second
)

// Locker is a named, short-lived mutual exclusion token shared by all
// processing instances. Acquire is non-blocking single-shot set-if-absent;
// a false return means a peer already holds the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// WebhookKey derives the lock key for one logical webhook event. Distinct
// reported states for the same transaction lock independently; identical
// redeliveries collide.
func WebhookKey(provider, reference, state string) string {
	return fmt.Sprintf("%s:%s:%s",
		strings.ToLower(strings.TrimSpace(provider)),
		strings.TrimSpace(reference),
		strings.ToLower(strings.TrimSpace(state)),
	)
}

// redisLocker implements Locker on Redis SET NX PX. Each locker instance
// writes its own owner token so Release cannot delete a lock that expired
// and was re-acquired by a peer.
type redisLocker struct {
	client  redis.UniversalClient
	owner   string
	release *redis.Script
}

// NewRedisLocker creates a Locker backed by the shared Redis instance
func NewRedisLocker(client redis.UniversalClient) Locker {
	return &redisLocker{
		client: client,
		owner:  uuid.NewString(),
		release: redis.NewScript(`
			if redis.call("GET", KEYS[1]) == ARGV[1] then
				return redis.call("DEL", KEYS[1])
			end
			return 0
		`),
	}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := l.client.SetNX(ctx, KeyPrefix+key, l.owner, ttl).Result()
	if err != nil {
		// Lock store unavailability fails closed: report "not acquired"
		// alongside the error, never "proceed without locking".
		return false, fmt.Errorf("lock acquire %s: %w", key, err)
	}
	return ok, nil
}

func (l *redisLocker) Release(ctx context.Context, key string) error {
	err := l.release.Run(ctx, l.client, []string{KeyPrefix + key}, l.owner).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("lock release %s: %w", key, err)
	}
	return nil
}

// memoryLocker is a single-process Locker used by tests and local tooling.
type memoryLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewMemoryLocker creates an in-process Locker
func NewMemoryLocker() Locker {
	return &memoryLocker{
		held:  make(map[string]time.Time),
		clock: time.Now,
	}
}

func (l *memoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if expiry, ok := l.held[key]; ok && expiry.After(now) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

func (l *memoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
