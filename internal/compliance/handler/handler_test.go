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
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	assetstore "policykernel/internal/asset/store"
	"policykernel/internal/compliance/evaluator"
	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/predicate"
	"policykernel/internal/compliance/regime"
	"policykernel/internal/compliance/service"
	"policykernel/internal/compliance/store"
	"policykernel/pkg/requestcontext"
	"policykernel/pkg/testutil"
)

var handlerNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type HandlerSuite struct {
	suite.Suite
	router http.Handler
	store  *store.InMemoryStore
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctx := context.Background()
	assets := assetstore.NewInMemoryStore()
	s.Require().NoError(assetstore.SeedDemo(ctx, assets, handlerNow))

	engine, err := predicate.NewEngine()
	s.Require().NoError(err)
	mica, err := regime.LoadEmbedded("mica")
	s.Require().NoError(err)
	registry := regime.NewRegistry(engine)
	s.Require().NoError(registry.PublishAll(mica))

	s.store = store.NewInMemoryStore()
	svc := service.New(facts.NewBuilder(assets), registry, evaluator.New(engine), s.store)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithTime(req.Context(), handlerNow)))
		})
	})
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(req *http.Request, caps ...requestcontext.Capability) *testResponse {
	if caps == nil {
		caps = testutil.AllCapabilities
	}
	rr := testutil.DoRequest(s.router, testutil.WithPrincipal(req, "ops@platform", caps...))
	return &testResponse{t: s.T(), code: rr.Code, body: rr.Body.Bytes()}
}

func (s *HandlerSuite) evaluate() *service.EvaluationResult {
	res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/compliance/evaluate",
		map[string]string{"assetId": assetstore.DemoARTAssetID.String()}))
	s.Require().Equal(http.StatusOK, res.code)
	var out service.EvaluationResult
	res.decode(&out)
	return &out
}

func (s *HandlerSuite) instanceID(templateID string) string {
	list, err := s.store.ListByAsset(context.Background(), assetstore.DemoARTAssetID)
	s.Require().NoError(err)
	for _, inst := range list {
		if inst.TemplateID == templateID {
			return inst.ID.String()
		}
	}
	s.FailNow("missing template " + templateID)
	return ""
}

// =============================================================================
// Access control
// =============================================================================

func (s *HandlerSuite) TestCapabilities() {
	s.Run("anonymous callers get 401", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/compliance/instances"))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("view capability cannot change status", func() {
		res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/compliance/evaluate",
			map[string]string{"assetId": assetstore.DemoARTAssetID.String()}), requestcontext.CapViewCompliance)
		s.Equal(http.StatusForbidden, res.code)
	})

	s.Run("acknowledgement needs the platform operator", func() {
		s.evaluate()
		res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/v1/compliance/requirements/"+s.instanceID("mica.art.reserve")+"/platform-acknowledge",
			map[string]string{"acknowledgmentReason": "ok"}), requestcontext.CapManageCompliance)
		s.Equal(http.StatusForbidden, res.code)
	})
}

// =============================================================================
// Lifecycle
// =============================================================================

func (s *HandlerSuite) TestEvaluateAndList() {
	out := s.evaluate()
	s.Equal(models.Counters{Evaluated: 10, Applicable: 3, Required: 3}, out.Counters)

	res := s.do(testutil.NewRequest(s.T(), http.MethodGet,
		"/v1/compliance/instances?assetId="+assetstore.DemoARTAssetID.String()+"&status=required&limit=2"))
	s.Require().Equal(http.StatusOK, res.code)
	var list models.ListResult
	res.decode(&list)
	s.Equal(3, list.Total)
	s.Len(list.Items, 2)
	s.Equal(2, list.Limit)
}

func (s *HandlerSuite) TestListValidation() {
	for _, q := range []string{"?limit=500", "?limit=-1", "?scope=everything", "?status=DONE", "?assetId=nope"} {
		res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/compliance/instances"+q))
		s.GreaterOrEqual(res.code, 400, q)
		s.Less(res.code, 500, q)
	}
}

func (s *HandlerSuite) TestUpdateStatus() {
	s.evaluate()
	path := "/v1/compliance/requirements/" + s.instanceID("mica.art.reserve")

	s.Run("missing exception reason", func() {
		res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, path, map[string]string{"status": "EXCEPTION"}))
		s.Equal(http.StatusUnprocessableEntity, res.code)
		s.Equal("MissingExceptionReason", res.errorBody()["reason"])
	})

	s.Run("exception recorded", func() {
		res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, path,
			map[string]string{"status": "EXCEPTION", "exceptionReason": "pending legal opinion"}))
		s.Require().Equal(http.StatusOK, res.code)
		var inst models.RequirementInstance
		res.decode(&inst)
		s.Equal(models.StatusException, inst.Status)
		s.Equal("pending legal opinion", inst.ExceptionReason)
	})

	s.Run("reversal conflicts", func() {
		res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, path, map[string]string{"status": "SATISFIED"}))
		s.Equal(http.StatusConflict, res.code)
		s.Equal("InvalidTransition", res.errorBody()["reason"])
	})

	s.Run("unknown fields are rejected", func() {
		res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, path, map[string]string{"state": "SATISFIED"}))
		s.Equal(http.StatusBadRequest, res.code)
	})
}

func (s *HandlerSuite) TestPlatformAcknowledge() {
	s.evaluate()
	instID := s.instanceID("mica.art.authorisation")
	ackPath := "/v1/compliance/requirements/" + instID + "/platform-acknowledge"

	res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, ackPath, map[string]string{"acknowledgmentReason": "ok"}))
	s.Equal(http.StatusUnprocessableEntity, res.code)
	s.Equal("NotSatisfied", res.errorBody()["reason"])

	res = s.do(testutil.NewJSONRequest(s.T(), http.MethodPatch, "/v1/compliance/requirements/"+instID,
		map[string]string{"status": "SATISFIED"}))
	s.Require().Equal(http.StatusOK, res.code)

	res = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, ackPath, map[string]string{"acknowledgmentReason": "licence verified"}))
	s.Require().Equal(http.StatusOK, res.code)
	var inst models.RequirementInstance
	res.decode(&inst)
	s.True(inst.PlatformAcknowledged)
	s.Equal("ops@platform", inst.PlatformAcknowledgedBy)

	res = s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, ackPath, map[string]string{"acknowledgmentReason": "again"}))
	s.Equal(http.StatusConflict, res.code)
	s.Equal("AlreadyAcknowledged", res.errorBody()["reason"])
}

func (s *HandlerSuite) TestSummaryAndTemplates() {
	res := s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/compliance/assets/"+assetstore.DemoARTAssetID.String()+"/summary"))
	s.Require().Equal(http.StatusOK, res.code)
	var summary service.Summary
	res.decode(&summary)
	s.Equal(3, summary.Counters.Applicable)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/compliance/templates?assetId="+assetstore.DemoARTAssetID.String()))
	s.Require().Equal(http.StatusOK, res.code)
	var templates struct {
		Items []models.RequirementInstance `json:"items"`
	}
	res.decode(&templates)
	s.Len(templates.Items, 3)
	s.Equal(models.StatusAvailable, templates.Items[0].Status)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/compliance/assets/6f1c1d3e-7a0b-4c55-9a43-0e7d1b9affff/summary"))
	s.Equal(http.StatusNotFound, res.code)
}

type testResponse struct {
	t    *testing.T
	code int
	body []byte
}

func (r *testResponse) decode(v any) {
	r.t.Helper()
	require.NoError(r.t, json.Unmarshal(r.body, v))
}

func (r *testResponse) errorBody() map[string]string {
	r.t.Helper()
	var out map[string]string
	require.NoError(r.t, json.Unmarshal(r.body, &out))
	return out
}
