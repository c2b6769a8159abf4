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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	assetstore "policykernel/internal/asset/store"
	"policykernel/internal/compliance/evaluator"
	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/predicate"
	"policykernel/internal/compliance/regime"
	"policykernel/internal/compliance/service"
	"policykernel/internal/compliance/store"
	"policykernel/internal/enforcement"
	"policykernel/pkg/requestcontext"
	"policykernel/pkg/testutil"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	assets := assetstore.NewInMemoryStore()
	require.NoError(t, assetstore.SeedDemo(context.Background(), assets, now))
	engine, err := predicate.NewEngine()
	require.NoError(t, err)
	registry, err := regime.NewDefaultRegistry(engine, "")
	require.NoError(t, err)
	svc := service.New(facts.NewBuilder(assets), registry, evaluator.New(engine), store.NewInMemoryStore())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithTime(req.Context(), now)))
		})
	})
	New(enforcement.NewGate(svc), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).Register(r)
	return r
}

func TestHandlePlan(t *testing.T) {
	router := newRouter(t)
	path := "/v1/assets/" + assetstore.DemoARTAssetID.String() + "/enforcement-plan"

	t.Run("returns the plan", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, path), "viewer", requestcontext.CapViewCompliance)
		rr := testutil.DoRequest(router, req)
		require.Equal(t, http.StatusOK, rr.Code)

		var plan enforcement.Plan
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &plan))
		assert.Equal(t, "XRPL", string(plan.ActiveLedger))
		assert.Len(t, plan.Intents, 4)
		assert.Len(t, plan.Adapters, 3)
	})

	t.Run("requires view capability", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, path), "issuer", requestcontext.CapCreateIssuances)
		testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusForbidden)
	})

	t.Run("malformed asset id", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/v1/assets/nope/enforcement-plan"), "viewer", requestcontext.CapViewCompliance)
		testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusBadRequest)
	})

	t.Run("unknown asset", func(t *testing.T) {
		req := testutil.WithPrincipal(testutil.NewRequest(t, http.MethodGet, "/v1/assets/6f1c1d3e-7a0b-4c55-9a43-0e7d1b9affff/enforcement-plan"), "viewer", requestcontext.CapViewCompliance)
		testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusNotFound)
	})
}
