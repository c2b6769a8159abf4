// Package store keeps drafts for their TTL plus a grace period, so an
// expired token can still be told apart from one that never existed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"policykernel/internal/draft/models"
	"policykernel/pkg/platform/sentinel"
)

// Retention is how long a draft is kept after it expires.
const Retention = time.Hour

type InMemoryStore struct {
	mu     sync.Mutex
	drafts map[string]*models.Draft
	now    func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{drafts: make(map[string]*models.Draft), now: time.Now}
}

func (s *InMemoryStore) Save(_ context.Context, d *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	if _, ok := s.drafts[d.Token]; ok {
		return sentinel.ErrConflict
	}
	c := *d
	s.drafts[d.Token] = &c
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, token string) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	d, ok := s.drafts[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *d
	return &c, nil
}

func (s *InMemoryStore) sweep() {
	now := s.now()
	for token, d := range s.drafts {
		if now.After(d.ExpiresAt.Add(Retention)) {
			delete(s.drafts, token)
		}
	}
}

const keyPrefix = "policykernel:draft:"

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, d *models.Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	ttl := time.Until(d.ExpiresAt) + Retention
	ok, err := s.client.SetNX(ctx, keyPrefix+d.Token, raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (*models.Draft, error) {
	raw, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	var d models.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}
