// Package idempotency remembers which issuance an Idempotency-Key produced.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record binds a key to the hash of the request that first used it. An
// empty IssuanceID means that request is still in flight.
type Record struct {
	RequestHash string `json:"requestHash"`
	IssuanceID  string `json:"issuanceId,omitempty"`
}

func (r *Record) Pending() bool {
	return r.IssuanceID == ""
}

// Store reserves keys across replicas. Reserve returns reserved=true when
// the caller owns the key; otherwise it returns the existing record.
type Store interface {
	Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (*Record, bool, error)
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type entry struct {
	rec     Record
	expires time.Time
}

type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]entry), now: time.Now}
}

func (s *InMemoryStore) Reserve(_ context.Context, key, requestHash string, ttl time.Duration) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		rec := e.rec
		return &rec, false, nil
	}
	s.entries[key] = entry{rec: Record{RequestHash: requestHash}, expires: now.Add(ttl)}
	return nil, true, nil
}

func (s *InMemoryStore) Complete(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{rec: rec, expires: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

const keyPrefix = "policykernel:idempotency:"

// RedisStore reserves with SETNX so only one replica runs a given key.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (*Record, bool, error) {
	pending, err := json.Marshal(Record{RequestHash: requestHash})
	if err != nil {
		return nil, false, err
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, true, nil
	}
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; report as in flight so the caller retries.
		return &Record{RequestHash: requestHash}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load idempotency key: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, false, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, raw, ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}
