package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrincipal(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Principal(ctx).IsAnonymous())
	assert.Equal(t, "system", Actor(ctx))

	ctx = WithPrincipal(ctx, NewPrincipal("issuer@acme", CapApproveAuthorizations))
	p := Principal(ctx)
	assert.Equal(t, "issuer@acme", p.Subject)
	assert.True(t, p.Has(CapApproveAuthorizations))
	assert.False(t, p.Has(CapManageCompliance))
	assert.Equal(t, "issuer@acme", Actor(ctx))
}

func TestNow(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))
	assert.WithinDuration(t, time.Now(), Now(context.Background()), time.Second)
}
