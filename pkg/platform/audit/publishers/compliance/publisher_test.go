package compliance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "policykernel/pkg/platform/audit"
	"policykernel/pkg/platform/audit/store/memory"
)

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }

func TestPublisherEmit(t *testing.T) {
	ctx := context.Background()

	t.Run("persists event with derived category", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		p := New(store)

		err := p.Emit(ctx, audit.Event{
			AssetID: "asset-1",
			Action:  string(audit.EventRequirementStatusChanged),
		})
		require.NoError(t, err)

		events, err := store.ListByAsset(ctx, "asset-1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.CategoryCompliance, events[0].Category)
		assert.False(t, events[0].Timestamp.IsZero())
	})

	t.Run("rejects events without asset", func(t *testing.T) {
		p := New(memory.NewInMemoryStore())
		err := p.Emit(ctx, audit.Event{Action: "x"})
		assert.Error(t, err)
	})

	t.Run("fails closed when store fails", func(t *testing.T) {
		p := New(failingStore{})
		err := p.Emit(ctx, audit.Event{AssetID: "a", Action: string(audit.EventIssuanceCreated)})
		assert.ErrorContains(t, err, "disk full")
	})
}
