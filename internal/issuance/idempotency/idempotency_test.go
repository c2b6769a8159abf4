package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	s := NewInMemoryStore()
	s.now = func() time.Time { return now }

	t.Run("first reserve owns the key", func(t *testing.T) {
		rec, ok, err := s.Reserve(ctx, "k1", "hash-a", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Nil(t, rec)
	})

	t.Run("second reserve sees the pending record", func(t *testing.T) {
		rec, ok, err := s.Reserve(ctx, "k1", "hash-b", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "hash-a", rec.RequestHash)
		assert.True(t, rec.Pending())
	})

	t.Run("completed record carries the issuance", func(t *testing.T) {
		require.NoError(t, s.Complete(ctx, "k1", Record{RequestHash: "hash-a", IssuanceID: "iss-1"}, time.Hour))
		rec, ok, err := s.Reserve(ctx, "k1", "hash-a", time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, rec.Pending())
		assert.Equal(t, "iss-1", rec.IssuanceID)
	})

	t.Run("expired key can be reserved again", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		_, ok, err := s.Reserve(ctx, "k1", "hash-c", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("released key can be reserved again", func(t *testing.T) {
		require.NoError(t, s.Release(ctx, "k1"))
		_, ok, err := s.Reserve(ctx, "k1", "hash-d", time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
