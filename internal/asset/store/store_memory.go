package store

import (
	"context"
	"sync"
	"time"

	"policykernel/internal/asset/models"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/sentinel"
)

// InMemoryStore keeps asset records in memory. Used in development and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.AssetID]*models.Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.AssetID]*models.Record)}
}

// Get returns the record for assetID or sentinel.ErrNotFound.
func (s *InMemoryStore) Get(_ context.Context, assetID id.AssetID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[assetID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// Put inserts or replaces a record.
func (s *InMemoryStore) Put(_ context.Context, r *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Asset.ID] = r.Clone()
	return nil
}

// Touch applies mutate to a stored record, standing in for registry edits.
func (s *InMemoryStore) Touch(_ context.Context, assetID id.AssetID, now time.Time, mutate func(*models.Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[assetID]
	if !ok {
		return sentinel.ErrNotFound
	}
	c := r.Clone()
	mutate(c)
	c.Asset.UpdatedAt = now
	s.records[assetID] = c
	return nil
}
