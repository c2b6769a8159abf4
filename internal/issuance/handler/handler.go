package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"policykernel/internal/issuance/models"
	"policykernel/internal/issuance/service"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/platform/httputil"
	"policykernel/pkg/platform/middleware/auth"
	"policykernel/pkg/requestcontext"
)

const idempotencyKeyHeader = "Idempotency-Key"

type Service interface {
	Preflight(ctx context.Context, assetID id.AssetID, holder string) (*models.Preflight, error)
	Create(ctx context.Context, assetID id.AssetID, key string, req service.CreateRequest) (*service.Result, error)
	Get(ctx context.Context, issuanceID id.IssuanceID) (*models.Issuance, error)
	List(ctx context.Context, assetID id.AssetID) ([]*models.Issuance, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	view := auth.RequireCapability(requestcontext.CapViewCompliance, h.logger)
	issue := auth.RequireCapability(requestcontext.CapCreateIssuances, h.logger)

	r.With(view).Post("/v1/assets/{assetId}/preflight", h.HandlePreflight)
	r.With(issue).Post("/v1/assets/{assetId}/issuances", h.HandleCreate)
	r.With(view).Get("/v1/assets/{assetId}/issuances", h.HandleList)
	r.With(view).Get("/v1/issuances/{id}", h.HandleGet)
}

// blockedResponse is the 422 body of a create rejected by preflight.
type blockedResponse struct {
	httputil.ErrorResponse
	Blockers []models.Blocker `json:"blockers"`
}

// HandlePreflight handles POST /v1/assets/{assetId}/preflight.
func (h *Handler) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[PreflightRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	pf, err := h.service.Preflight(ctx, assetID, req.HolderAddress)
	if err != nil {
		h.logger.ErrorContext(ctx, "preflight failed",
			"request_id", requestID,
			"asset_id", assetID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pf)
}

// HandleCreate handles POST /v1/assets/{assetId}/issuances. A replayed key
// answers 200 with the original issuance.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Create(ctx, assetID, r.Header.Get(idempotencyKeyHeader), req.ToService())
	if err != nil {
		h.logger.WarnContext(ctx, "issuance rejected",
			"request_id", requestID,
			"asset_id", assetID.String(),
			"actor", requestcontext.Actor(ctx),
			"error", err,
		)
		var blocked *service.BlockedError
		if errors.As(err, &blocked) {
			de, _ := dErrors.As(err)
			httputil.WriteJSON(w, http.StatusUnprocessableEntity, blockedResponse{
				ErrorResponse: httputil.ErrorResponse{
					Error:            string(de.Code),
					Reason:           string(de.Reason),
					ErrorDescription: de.Message,
				},
				Blockers: blocked.Preflight.Blockers,
			})
			return
		}
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, res)
}

// HandleGet handles GET /v1/issuances/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	issuanceID, err := id.ParseIssuanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	iss, err := h.service.Get(ctx, issuanceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, iss)
}

// HandleList handles GET /v1/assets/{assetId}/issuances.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.service.List(ctx, assetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": list})
}
