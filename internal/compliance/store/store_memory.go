// Package store persists requirement instances.
package store

import (
	"context"
	"sort"
	"sync"

	"policykernel/internal/compliance/models"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/sentinel"
)

type assetTemplateKey struct {
	asset    id.AssetID
	template string
}

// InMemoryStore keeps instances in memory. Reads return copies so callers
// never observe a half-applied write.
type InMemoryStore struct {
	mu         sync.RWMutex
	instances  map[id.InstanceID]*models.RequirementInstance
	assetLevel map[assetTemplateKey]id.InstanceID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances:  make(map[id.InstanceID]*models.RequirementInstance),
		assetLevel: make(map[assetTemplateKey]id.InstanceID),
	}
}

// AppendAll inserts every instance or none. An asset-level instance for an
// (asset, template) pair that already has one yields sentinel.ErrConflict.
func (s *InMemoryStore) AppendAll(_ context.Context, instances []*models.RequirementInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[assetTemplateKey]bool, len(instances))
	for _, inst := range instances {
		if _, ok := s.instances[inst.ID]; ok {
			return sentinel.ErrConflict
		}
		if !inst.IsAssetLevel() {
			continue
		}
		key := assetTemplateKey{inst.AssetID, inst.TemplateID}
		if _, ok := s.assetLevel[key]; ok || batch[key] {
			return sentinel.ErrConflict
		}
		batch[key] = true
	}
	for _, inst := range instances {
		s.instances[inst.ID] = inst.Clone()
		if inst.IsAssetLevel() {
			s.assetLevel[assetTemplateKey{inst.AssetID, inst.TemplateID}] = inst.ID
		}
	}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, instanceID id.InstanceID) (*models.RequirementInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return inst.Clone(), nil
}

// ListByAsset returns the live asset-level instances of an asset.
func (s *InMemoryStore) ListByAsset(_ context.Context, assetID id.AssetID) ([]*models.RequirementInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.RequirementInstance
	for _, inst := range s.instances {
		if inst.AssetID == assetID && inst.IsAssetLevel() {
			out = append(out, inst.Clone())
		}
	}
	sortInstances(out)
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, filter models.Filter, page models.Page) (*models.ListResult, error) {
	page = page.Normalize()
	s.mu.RLock()
	var matched []*models.RequirementInstance
	for _, inst := range s.instances {
		if filter.Matches(inst) {
			matched = append(matched, inst.Clone())
		}
	}
	s.mu.RUnlock()

	sortInstances(matched)
	res := &models.ListResult{Total: len(matched), Limit: page.Limit, Offset: page.Offset, Items: []*models.RequirementInstance{}}
	if page.Offset < len(matched) {
		end := min(page.Offset+page.Limit, len(matched))
		res.Items = matched[page.Offset:end]
	}
	return res, nil
}

// Execute validates and mutates one instance under the store lock.
func (s *InMemoryStore) Execute(_ context.Context, instanceID id.InstanceID, validate func(*models.RequirementInstance) error, mutate func(*models.RequirementInstance)) (*models.RequirementInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[instanceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := inst.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.instances[instanceID] = working
	return working.Clone(), nil
}

// sortInstances orders by creation, then template id, then id.
func sortInstances(list []*models.RequirementInstance) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.TemplateID != b.TemplateID {
			return a.TemplateID < b.TemplateID
		}
		return a.ID.String() < b.ID.String()
	})
}
