package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	assetstore "policykernel/internal/asset/store"
	"policykernel/internal/authorization/invite"
	"policykernel/internal/authorization/models"
	"policykernel/internal/authorization/service"
	"policykernel/internal/authorization/store"
	"policykernel/internal/compliance/evaluator"
	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/predicate"
	"policykernel/internal/compliance/regime"
	complianceservice "policykernel/internal/compliance/service"
	compliancestore "policykernel/internal/compliance/store"
	"policykernel/internal/enforcement"
	"policykernel/pkg/requestcontext"
	"policykernel/pkg/testutil"
)

const holder = "rPT1Sjq2YGrBMTttX4GZHjKu9dyfzbpAYe"

var handlerNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type HandlerSuite struct {
	suite.Suite
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	assets := assetstore.NewInMemoryStore()
	s.Require().NoError(assetstore.SeedDemo(context.Background(), assets, handlerNow))
	engine, err := predicate.NewEngine()
	s.Require().NoError(err)
	registry, err := regime.NewDefaultRegistry(engine, "")
	s.Require().NoError(err)
	compliance := complianceservice.New(facts.NewBuilder(assets), registry, evaluator.New(engine), compliancestore.NewInMemoryStore())

	svc := service.New(store.NewInMemoryStore(), enforcement.NewGate(compliance),
		invite.NewSigner("handler-test-key", "policykernel", "https://kernel.example.com"),
		invite.NewInMemoryMarker(),
	)
	h := New(svc, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(requestcontext.WithTime(req.Context(), handlerNow)))
		})
	})
	h.RegisterPublic(r)
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) do(req *http.Request, caps ...requestcontext.Capability) *testResponse {
	if caps == nil {
		caps = testutil.AllCapabilities
	}
	rr := testutil.DoRequest(s.router, testutil.WithPrincipal(req, "issuer@demo", caps...))
	return &testResponse{t: s.T(), code: rr.Code, body: rr.Body.Bytes()}
}

func (s *HandlerSuite) post(path string, body any) *testResponse {
	return s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, path, body))
}

func (s *HandlerSuite) invite() *service.Invitation {
	res := s.post("/v1/authorization-requests", map[string]string{
		"assetId":        assetstore.DemoARTAssetID.String(),
		"holderAddress":  holder,
		"requestedLimit": "1000",
	})
	s.Require().Equal(http.StatusCreated, res.code, string(res.body))
	var inv service.Invitation
	res.decode(&inv)
	return &inv
}

func (s *HandlerSuite) fulfil(inv *service.Invitation) *models.Authorization {
	u, err := url.Parse(inv.AuthURL)
	s.Require().NoError(err)
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/v1/authorization-requests/fulfill", map[string]string{"token": u.Query().Get("token"), "txHash": "ABC"}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	var a models.Authorization
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &a))
	return &a
}

// =============================================================================
// Access control
// =============================================================================

func (s *HandlerSuite) TestCapabilities() {
	s.Run("anonymous callers get 401", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/v1/authorization-requests", map[string]string{}))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("viewers cannot approve", func() {
		res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/authorization-requests", map[string]string{
			"assetId": assetstore.DemoARTAssetID.String(), "holderAddress": holder, "requestedLimit": "1",
		}), requestcontext.CapViewCompliance)
		s.Equal(http.StatusForbidden, res.code)
	})

	s.Run("fulfilment needs no principal", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost,
			"/v1/authorization-requests/fulfill", map[string]string{"token": "not-a-jwt"}))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})
}

// =============================================================================
// Handshake
// =============================================================================

func (s *HandlerSuite) TestHandshake() {
	inv := s.invite()
	s.Equal(models.RequestInvited, inv.Request.Status)

	res := s.post("/v1/authorization-requests", map[string]string{
		"assetId": assetstore.DemoARTAssetID.String(), "holderAddress": holder, "requestedLimit": "1",
	})
	s.Equal(http.StatusConflict, res.code)
	s.Equal("DuplicateRequest", res.errorBody()["reason"])

	res = s.post("/v1/authorization-requests/"+inv.Request.ID.String()+"/authorize", nil)
	s.Equal(http.StatusConflict, res.code)
	s.Equal("NotAwaitingAuthorization", res.errorBody()["reason"])

	a := s.fulfil(inv)
	s.Equal(models.StateAwaitingIssuerAuthorization, a.Status)

	res = s.post("/v1/authorization-requests/"+inv.Request.ID.String()+"/authorize", nil)
	s.Require().Equal(http.StatusOK, res.code)
	var authorized service.Authorized
	res.decode(&authorized)
	s.Equal(models.StateIssuerAuthorized, authorized.Authorization.Status)
	s.Require().NotNil(authorized.Transaction)
	s.Equal("TrustSet", authorized.Transaction.Type)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet, "/v1/authorizations/"+a.ID.String()+"/history"))
	s.Require().Equal(http.StatusOK, res.code)
	var history struct {
		Items []models.HistoryEntry `json:"items"`
	}
	res.decode(&history)
	s.Len(history.Items, 3)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet,
		"/v1/assets/"+assetstore.DemoARTAssetID.String()+"/authorizations/"+holder))
	s.Require().Equal(http.StatusOK, res.code)
	var st service.HolderStatus
	res.decode(&st)
	s.Require().NotNil(st.Authorization)
	s.Equal(a.ID, st.Authorization.ID)
}

func (s *HandlerSuite) TestFreezeCloseLifecycle() {
	a := s.fulfil(s.invite())
	base := "/v1/authorizations/" + a.ID.String()

	res := s.post(base+"/freeze", nil)
	s.Equal(http.StatusConflict, res.code, "awaiting issuer cannot be frozen")

	s.Require().Equal(http.StatusOK, s.post("/v1/authorization-requests/"+a.RequestID.String()+"/authorize", nil).code)

	res = s.post(base+"/limit", map[string]string{"limit": "2500"})
	s.Require().Equal(http.StatusOK, res.code)
	var change service.LimitChange
	res.decode(&change)
	s.Equal("2500", change.Authorization.Limit)

	res = s.post(base+"/freeze", nil)
	s.Require().Equal(http.StatusOK, res.code)
	var frozen service.Authorized
	res.decode(&frozen)
	s.Equal(models.StateFrozen, frozen.Authorization.Status)

	s.Equal(http.StatusOK, s.post(base+"/unfreeze", nil).code)
	s.Equal(http.StatusOK, s.post(base+"/close", nil).code)

	res = s.post(base+"/limit", map[string]string{"limit": "1"})
	s.Equal(http.StatusConflict, res.code)
	s.Equal("InvalidTransition", res.errorBody()["reason"])
}

func (s *HandlerSuite) TestRegisterExternal() {
	body := map[string]string{
		"assetId":        assetstore.DemoARTAssetID.String(),
		"holderAddress":  holder,
		"currency":       "BSKT",
		"issuerAddress":  "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh",
		"limit":          "100",
		"externalSource": "ledger-scan",
	}
	res := s.post("/v1/authorizations/external", body)
	s.Require().Equal(http.StatusCreated, res.code, string(res.body))
	var a models.Authorization
	res.decode(&a)
	s.Equal(models.StateExternal, a.Status)
	s.True(a.External)

	res = s.post("/v1/authorizations/external", body)
	s.Equal(http.StatusConflict, res.code)
}

func (s *HandlerSuite) TestWalletUpsert() {
	path := "/v1/assets/" + assetstore.DemoARTAssetID.String() + "/authorizations/" + holder
	body := map[string]any{
		"params":  map[string]string{"limit": "500"},
		"signing": map[string]string{"mode": "wallet"},
	}
	res := s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, path, body))
	s.Require().Equal(http.StatusOK, res.code, string(res.body))
	var out service.WalletUpsert
	res.decode(&out)
	s.Require().NotNil(out.Request)
	s.Require().NotNil(out.Transaction)
	s.Equal(holder, out.Transaction.Account)
	s.NotEmpty(out.AuthURL)

	res = s.do(testutil.NewJSONRequest(s.T(), http.MethodPut, path, map[string]any{
		"params":  map[string]string{"limit": "500"},
		"signing": map[string]string{"mode": "custodian"},
	}))
	s.Equal(http.StatusUnprocessableEntity, res.code)
}

func (s *HandlerSuite) TestValidation() {
	res := s.post("/v1/authorization-requests", map[string]string{
		"assetId": "nope", "holderAddress": holder, "requestedLimit": "1",
	})
	s.Equal(http.StatusBadRequest, res.code)

	res = s.post("/v1/authorization-requests", map[string]string{
		"assetId": assetstore.DemoARTAssetID.String(), "holderAddress": "0x1234", "requestedLimit": "1",
	})
	s.Equal(http.StatusUnprocessableEntity, res.code)

	res = s.post("/v1/authorizations/not-an-id/close", nil)
	s.Equal(http.StatusBadRequest, res.code)

	res = s.post("/v1/authorizations/6f1c1d3e-7a0b-4c55-9a43-0e7d1b9affff/close", nil)
	s.Equal(http.StatusNotFound, res.code)

	res = s.do(testutil.NewRequest(s.T(), http.MethodGet,
		"/v1/assets/"+assetstore.DemoARTAssetID.String()+"/authorizations/"+holder))
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
