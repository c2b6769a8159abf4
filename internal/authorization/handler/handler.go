package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"policykernel/internal/authorization/models"
	"policykernel/internal/authorization/service"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/httputil"
	"policykernel/pkg/platform/middleware/auth"
	"policykernel/pkg/requestcontext"
)

// Service defines the authorization operations exposed over HTTP.
type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*service.Invitation, error)
	Fulfill(ctx context.Context, token, txHash string) (*models.Authorization, error)
	AuthorizeRequest(ctx context.Context, reqID id.AuthorizationRequestID) (*service.Authorized, error)
	RegisterExternal(ctx context.Context, req service.RegisterExternalRequest) (*models.Authorization, error)
	UpdateLimit(ctx context.Context, authID id.AuthorizationID, limit string) (*service.LimitChange, error)
	Close(ctx context.Context, authID id.AuthorizationID) (*models.Authorization, error)
	Freeze(ctx context.Context, authID id.AuthorizationID) (*service.Authorized, error)
	Unfreeze(ctx context.Context, authID id.AuthorizationID) (*service.Authorized, error)
	Lookup(ctx context.Context, assetID id.AssetID, holder string) (*service.HolderStatus, error)
	History(ctx context.Context, authID id.AuthorizationID) ([]*models.HistoryEntry, error)
	UpsertForWallet(ctx context.Context, assetID id.AssetID, holder, limit string) (*service.WalletUpsert, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the invitation fulfilment endpoint. The signed
// invitation token is the credential, so no capability is checked.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/v1/authorization-requests/fulfill", h.HandleFulfill)
}

// Register mounts the issuer-facing endpoints behind capability checks.
func (h *Handler) Register(r chi.Router) {
	view := auth.RequireCapability(requestcontext.CapViewCompliance, h.logger)
	approve := auth.RequireCapability(requestcontext.CapApproveAuthorizations, h.logger)

	r.With(approve).Post("/v1/authorization-requests", h.HandleCreate)
	r.With(approve).Post("/v1/authorization-requests/{id}/authorize", h.HandleAuthorize)
	r.With(approve).Post("/v1/authorizations/external", h.HandleRegisterExternal)
	r.With(view).Get("/v1/assets/{assetId}/authorizations/{holder}", h.HandleLookup)
	r.With(approve).Put("/v1/assets/{assetId}/authorizations/{holder}", h.HandleWalletUpsert)
	r.With(approve).Post("/v1/authorizations/{id}/limit", h.HandleUpdateLimit)
	r.With(approve).Post("/v1/authorizations/{id}/close", h.HandleClose)
	r.With(approve).Post("/v1/authorizations/{id}/freeze", h.HandleFreeze)
	r.With(approve).Post("/v1/authorizations/{id}/unfreeze", h.HandleUnfreeze)
	r.With(view).Get("/v1/authorizations/{id}/history", h.HandleHistory)
}

// HandleCreate handles POST /v1/authorization-requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	inv, err := h.service.Create(ctx, req.ToService())
	if err != nil {
		h.logger.WarnContext(ctx, "authorization request rejected",
			"request_id", requestID,
			"asset_id", req.AssetID,
			"actor", requestcontext.Actor(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, inv)
}

// HandleFulfill handles POST /v1/authorization-requests/fulfill.
func (h *Handler) HandleFulfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[FulfillRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	a, err := h.service.Fulfill(ctx, req.Token, req.TxHash)
	if err != nil {
		h.logger.WarnContext(ctx, "invitation fulfilment rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// HandleAuthorize handles POST /v1/authorization-requests/{id}/authorize.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	reqID, err := id.ParseAuthorizationRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.AuthorizeRequest(ctx, reqID)
	if err != nil {
		h.logger.WarnContext(ctx, "issuer authorization rejected",
			"request_id", requestID,
			"authorization_request_id", reqID.String(),
			"actor", requestcontext.Actor(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "holder authorized",
		"request_id", requestID,
		"authorization_id", res.Authorization.ID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleRegisterExternal handles POST /v1/authorizations/external.
func (h *Handler) HandleRegisterExternal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterExternalRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	a, err := h.service.RegisterExternal(ctx, req.ToService())
	if err != nil {
		h.logger.WarnContext(ctx, "external authorization rejected",
			"request_id", requestID,
			"asset_id", req.AssetID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

// HandleLookup handles GET /v1/assets/{assetId}/authorizations/{holder}.
func (h *Handler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	st, err := h.service.Lookup(ctx, assetID, chi.URLParam(r, "holder"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

// HandleWalletUpsert handles PUT /v1/assets/{assetId}/authorizations/{holder}.
func (h *Handler) HandleWalletUpsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[WalletRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.UpsertForWallet(ctx, assetID, chi.URLParam(r, "holder"), req.Params.Limit)
	if err != nil {
		h.logger.WarnContext(ctx, "wallet authorization upsert rejected",
			"request_id", requestID,
			"asset_id", assetID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleUpdateLimit handles POST /v1/authorizations/{id}/limit.
func (h *Handler) HandleUpdateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	authID, err := id.ParseAuthorizationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[LimitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.UpdateLimit(ctx, authID, req.Limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleClose handles POST /v1/authorizations/{id}/close.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	authID, err := id.ParseAuthorizationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.Close(r.Context(), authID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// HandleFreeze handles POST /v1/authorizations/{id}/freeze.
func (h *Handler) HandleFreeze(w http.ResponseWriter, r *http.Request) {
	h.toggleFreeze(w, r, h.service.Freeze)
}

// HandleUnfreeze handles POST /v1/authorizations/{id}/unfreeze.
func (h *Handler) HandleUnfreeze(w http.ResponseWriter, r *http.Request) {
	h.toggleFreeze(w, r, h.service.Unfreeze)
}

func (h *Handler) toggleFreeze(w http.ResponseWriter, r *http.Request, apply func(context.Context, id.AuthorizationID) (*service.Authorized, error)) {
	ctx := r.Context()
	authID, err := id.ParseAuthorizationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := apply(ctx, authID)
	if err != nil {
		h.logger.WarnContext(ctx, "freeze toggle rejected",
			"request_id", requestcontext.RequestID(ctx),
			"authorization_id", authID.String(),
			"actor", requestcontext.Actor(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleHistory handles GET /v1/authorizations/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	authID, err := id.ParseAuthorizationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.History(r.Context(), authID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}
