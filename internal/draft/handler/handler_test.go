package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assetstore "policykernel/internal/asset/store"
	"policykernel/internal/draft/service"
	"policykernel/internal/draft/store"
	"policykernel/pkg/requestcontext"
	"policykernel/pkg/testutil"
)

const holder = "rPT1Sjq2YGrBMTttX4GZHjKu9dyfzbpAYe"

func newRouter(t *testing.T, clock *time.Time) http.Handler {
	t.Helper()
	assets := assetstore.NewInMemoryStore()
	require.NoError(t, assetstore.SeedDemo(context.Background(), assets, *clock))
	svc := service.New(store.NewInMemoryStore(), assets, service.WithTTL(5*time.Minute))
	h := New(svc, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithTime(req.Context(), *clock)))
		})
	})
	h.Register(r)
	return r
}

func TestDraftHandoff(t *testing.T) {
	clock := time.Now().UTC().Truncate(time.Second)
	router := newRouter(t, &clock)
	do := func(req *http.Request, caps ...requestcontext.Capability) int {
		if caps == nil {
			caps = testutil.AllCapabilities
		}
		return testutil.DoRequest(router, testutil.WithPrincipal(req, "issuer@demo", caps...)).Code
	}

	rr := testutil.DoRequest(router, testutil.WithPrincipal(testutil.NewJSONRequest(t, http.MethodPost, "/v1/drafts", map[string]string{
		"assetId":       assetstore.DemoARTAssetID.String(),
		"holderAddress": holder,
		"amount":        "50",
	}), "issuer@demo", requestcontext.CapCreateIssuances))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.True(t, created.ExpiresAt.Equal(clock.Add(5*time.Minute)))

	t.Run("authorization flow reads the draft", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/v1/drafts/"+created.Token),
			"approver@demo", requestcontext.CapApproveAuthorizations))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), holder)
	})

	t.Run("unknown token", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, do(testutil.NewRequest(t, http.MethodGet, "/v1/drafts/"+uuid.NewString())))
	})

	t.Run("issuer without approval cannot read", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, do(testutil.NewRequest(t, http.MethodGet, "/v1/drafts/"+created.Token),
			requestcontext.CapCreateIssuances))
	})

	t.Run("missing holder", func(t *testing.T) {
		assert.Equal(t, http.StatusUnprocessableEntity, do(testutil.NewJSONRequest(t, http.MethodPost, "/v1/drafts",
			map[string]string{"assetId": assetstore.DemoARTAssetID.String()})))
	})

	t.Run("expired draft is 410", func(t *testing.T) {
		clock = clock.Add(6 * time.Minute)
		assert.Equal(t, http.StatusGone, do(testutil.NewRequest(t, http.MethodGet, "/v1/drafts/"+created.Token)))
	})
}
