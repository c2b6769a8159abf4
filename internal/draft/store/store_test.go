package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policykernel/internal/draft/models"
	"policykernel/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	s := NewInMemoryStore()
	s.now = func() time.Time { return now }

	d := &models.Draft{Token: "tok-1", HolderAddress: "rHolder", CreatedAt: now, ExpiresAt: now.Add(30 * time.Minute)}
	require.NoError(t, s.Save(ctx, d))

	t.Run("duplicate token conflicts", func(t *testing.T) {
		assert.ErrorIs(t, s.Save(ctx, d), sentinel.ErrConflict)
	})

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := s.Get(ctx, "tok-1")
		require.NoError(t, err)
		got.HolderAddress = "changed"
		again, err := s.Get(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "rHolder", again.HolderAddress)
	})

	t.Run("expired drafts are retained for the grace period", func(t *testing.T) {
		now = d.ExpiresAt.Add(Retention / 2)
		got, err := s.Get(ctx, "tok-1")
		require.NoError(t, err)
		assert.True(t, got.IsExpired(now))
	})

	t.Run("then swept", func(t *testing.T) {
		now = d.ExpiresAt.Add(Retention + time.Second)
		_, err := s.Get(ctx, "tok-1")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
