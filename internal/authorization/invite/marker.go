package invite

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Marker records that an invitation was consumed. Claim returns false when
// the invitation was already claimed.
type Marker interface {
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jti string) error
}

type InMemoryMarker struct {
	mu      sync.Mutex
	claimed map[string]time.Time
	now     func() time.Time
}

func NewInMemoryMarker() *InMemoryMarker {
	return &InMemoryMarker{claimed: make(map[string]time.Time), now: time.Now}
}

func (m *InMemoryMarker) Claim(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if until, ok := m.claimed[jti]; ok && now.Before(until) {
		return false, nil
	}
	m.claimed[jti] = now.Add(ttl)
	return true, nil
}

func (m *InMemoryMarker) Release(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claimed, jti)
	return nil
}

// RedisMarker uses SETNX so that replicas agree on the first claimant.
type RedisMarker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisMarker(client redis.UniversalClient) *RedisMarker {
	return &RedisMarker{client: client, prefix: "policykernel:invite:used:"}
}

func (m *RedisMarker) Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	return m.client.SetNX(ctx, m.prefix+jti, "1", ttl).Result()
}

func (m *RedisMarker) Release(ctx context.Context, jti string) error {
	return m.client.Del(ctx, m.prefix+jti).Err()
}
