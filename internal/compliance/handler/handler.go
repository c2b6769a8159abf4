package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/service"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/httputil"
	"policykernel/pkg/platform/middleware/auth"
	"policykernel/pkg/requestcontext"
)

// Service defines the compliance operations exposed over HTTP.
type Service interface {
	Evaluate(ctx context.Context, assetID id.AssetID, productID id.ProductID) (*service.EvaluationResult, error)
	UpdateStatus(ctx context.Context, instanceID id.InstanceID, req service.UpdateStatusRequest) (*models.RequirementInstance, error)
	PlatformAcknowledge(ctx context.Context, instanceID id.InstanceID, reason string) (*models.RequirementInstance, error)
	Get(ctx context.Context, instanceID id.InstanceID) (*models.RequirementInstance, error)
	List(ctx context.Context, filter models.Filter, page models.Page) (*models.ListResult, error)
	Summary(ctx context.Context, assetID id.AssetID) (*service.Summary, error)
	Templates(ctx context.Context, assetID id.AssetID) ([]*models.RequirementInstance, error)
}

// Handler wires compliance endpoints to the compliance service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts compliance endpoints. Callers must have installed the
// authentication middleware; each route checks its own capability.
func (h *Handler) Register(r chi.Router) {
	view := auth.RequireCapability(requestcontext.CapViewCompliance, h.logger)
	manage := auth.RequireCapability(requestcontext.CapManageCompliance, h.logger)
	operator := auth.RequireCapability(requestcontext.CapPlatformOperator, h.logger)

	r.With(view).Get("/v1/compliance/instances", h.HandleList)
	r.With(view).Get("/v1/compliance/requirements/{id}", h.HandleGet)
	r.With(view).Get("/v1/compliance/assets/{id}/summary", h.HandleSummary)
	r.With(view).Get("/v1/compliance/templates", h.HandleTemplates)
	r.With(manage).Patch("/v1/compliance/requirements/{id}", h.HandleUpdateStatus)
	r.With(manage).Post("/v1/compliance/evaluate", h.HandleEvaluate)
	r.With(operator).Post("/v1/compliance/requirements/{id}/platform-acknowledge", h.HandlePlatformAcknowledge)
}

// HandleList handles GET /v1/compliance/instances.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	filter, page, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.logger.WarnContext(ctx, "invalid instance query",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.List(ctx, filter, page)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list requirement instances",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleGet handles GET /v1/compliance/requirements/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID, err := id.ParseInstanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	inst, err := h.service.Get(ctx, instanceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inst)
}

// HandleSummary handles GET /v1/compliance/assets/{id}/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	assetID, err := id.ParseAssetID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.service.Summary(ctx, assetID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to summarize asset",
			"request_id", requestID,
			"asset_id", assetID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

// HandleTemplates handles GET /v1/compliance/templates?assetId=.
func (h *Handler) HandleTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := id.ParseAssetID(r.URL.Query().Get("assetId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, err := h.service.Templates(ctx, assetID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to browse templates",
			"request_id", requestcontext.RequestID(ctx),
			"asset_id", assetID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// HandleUpdateStatus handles PATCH /v1/compliance/requirements/{id}.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	instanceID, err := id.ParseInstanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	inst, err := h.service.UpdateStatus(ctx, instanceID, req.ToService())
	if err != nil {
		h.logger.WarnContext(ctx, "requirement status update rejected",
			"request_id", requestID,
			"instance_id", instanceID.String(),
			"status", req.Status,
			"actor", requestcontext.Actor(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "requirement status updated",
		"request_id", requestID,
		"instance_id", instanceID.String(),
		"status", inst.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, inst)
}

// HandlePlatformAcknowledge handles
// POST /v1/compliance/requirements/{id}/platform-acknowledge.
func (h *Handler) HandlePlatformAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	instanceID, err := id.ParseInstanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AcknowledgeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	inst, err := h.service.PlatformAcknowledge(ctx, instanceID, req.AcknowledgmentReason)
	if err != nil {
		h.logger.WarnContext(ctx, "platform acknowledgement rejected",
			"request_id", requestID,
			"instance_id", instanceID.String(),
			"actor", requestcontext.Actor(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inst)
}

// HandleEvaluate handles POST /v1/compliance/evaluate.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Evaluate(ctx, req.parsedAssetID, req.parsedProductID)
	if err != nil {
		h.logger.ErrorContext(ctx, "evaluation failed",
			"request_id", requestID,
			"asset_id", req.AssetID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "asset evaluated",
		"request_id", requestID,
		"asset_id", req.AssetID,
		"created", len(res.Created),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}
