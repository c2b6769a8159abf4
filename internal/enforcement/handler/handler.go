package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"policykernel/internal/enforcement"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/httputil"
	"policykernel/pkg/platform/middleware/auth"
	"policykernel/pkg/requestcontext"
)

type Gate interface {
	Plan(ctx context.Context, assetID id.AssetID) (*enforcement.Plan, error)
}

type Handler struct {
	gate   Gate
	logger *slog.Logger
}

func New(gate Gate, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.With(auth.RequireCapability(requestcontext.CapViewCompliance, h.logger)).
		Get("/v1/assets/{assetId}/enforcement-plan", h.HandlePlan)
}

// HandlePlan handles GET /v1/assets/{assetId}/enforcement-plan.
func (h *Handler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assetID, err := id.ParseAssetID(chi.URLParam(r, "assetId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	plan, err := h.gate.Plan(ctx, assetID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build enforcement plan",
			"request_id", requestcontext.RequestID(ctx),
			"asset_id", assetID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, plan)
}
