package memory

import (
	"context"
	"sync"

	audit "policykernel/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[string][]audit.Event)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.AssetID] = append(s.events[event.AssetID], event)
	return nil
}

// ListByAsset returns events for one asset in append order.
func (s *InMemoryStore) ListByAsset(_ context.Context, assetID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[assetID]...), nil
}

// CountAction counts events with the given action across all assets.
func (s *InMemoryStore) CountAction(action audit.AuditEvent) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, events := range s.events {
		for _, e := range events {
			if e.Action == string(action) {
				n++
			}
		}
	}
	return n
}
