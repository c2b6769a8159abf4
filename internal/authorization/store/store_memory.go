// Package store persists authorization requests, authorizations and their
// transition history.
package store

import (
	"context"
	"sync"

	"policykernel/internal/authorization/models"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/sentinel"
)

type pairKey struct {
	asset  id.AssetID
	holder string
}

// InMemoryStore enforces the same uniqueness as the Postgres partial
// indexes: one INVITED request and one non-closed authorization per pair.
type InMemoryStore struct {
	mu             sync.RWMutex
	requests       map[id.AuthorizationRequestID]*models.AuthorizationRequest
	authorizations map[id.AuthorizationID]*models.Authorization
	history        map[id.AuthorizationID][]*models.HistoryEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		requests:       make(map[id.AuthorizationRequestID]*models.AuthorizationRequest),
		authorizations: make(map[id.AuthorizationID]*models.Authorization),
		history:        make(map[id.AuthorizationID][]*models.HistoryEntry),
	}
}

func (s *InMemoryStore) CreateRequest(_ context.Context, req *models.AuthorizationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; ok {
		return sentinel.ErrConflict
	}
	key := pairKey{req.AssetID, req.HolderAddress}
	for _, r := range s.requests {
		if r.Status == models.RequestInvited && (pairKey{r.AssetID, r.HolderAddress}) == key {
			return sentinel.ErrConflict
		}
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *InMemoryStore) FindRequest(_ context.Context, reqID id.AuthorizationRequestID) (*models.AuthorizationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[reqID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// InvitedRequest returns the INVITED request of a pair, expired or not.
func (s *InMemoryStore) InvitedRequest(_ context.Context, assetID id.AssetID, holder string) (*models.AuthorizationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.AssetID == assetID && r.HolderAddress == holder && r.Status == models.RequestInvited {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) UpdateRequest(_ context.Context, req *models.AuthorizationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

func (s *InMemoryStore) CreateAuthorization(_ context.Context, auth *models.Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authorizations[auth.ID]; ok {
		return sentinel.ErrConflict
	}
	if s.activeLocked(auth.AssetID, auth.HolderAddress) != nil {
		return sentinel.ErrConflict
	}
	s.authorizations[auth.ID] = auth.Clone()
	return nil
}

func (s *InMemoryStore) FindAuthorization(_ context.Context, authID id.AuthorizationID) (*models.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authorizations[authID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

// FindByRequest returns the authorization created by fulfilling a request.
func (s *InMemoryStore) FindByRequest(_ context.Context, reqID id.AuthorizationRequestID) (*models.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.authorizations {
		if a.RequestID != nil && *a.RequestID == reqID {
			return a.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ActiveAuthorization returns the non-closed authorization of a pair.
func (s *InMemoryStore) ActiveAuthorization(_ context.Context, assetID id.AssetID, holder string) (*models.Authorization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a := s.activeLocked(assetID, holder); a != nil {
		return a.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) activeLocked(assetID id.AssetID, holder string) *models.Authorization {
	for _, a := range s.authorizations {
		if a.AssetID == assetID && a.HolderAddress == holder && a.Status.IsActive() {
			return a
		}
	}
	return nil
}

func (s *InMemoryStore) UpdateAuthorization(_ context.Context, auth *models.Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authorizations[auth.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.authorizations[auth.ID] = auth.Clone()
	return nil
}

func (s *InMemoryStore) AppendHistory(_ context.Context, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.authorizations[entry.AuthorizationID]; !ok {
		return sentinel.ErrNotFound
	}
	c := *entry
	s.history[entry.AuthorizationID] = append(s.history[entry.AuthorizationID], &c)
	return nil
}

func (s *InMemoryStore) History(_ context.Context, authID id.AuthorizationID) ([]*models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[authID]
	out := make([]*models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}
