package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"policykernel/internal/draft/models"
	"policykernel/internal/draft/service"
	"policykernel/pkg/platform/httputil"
	"policykernel/pkg/platform/middleware/auth"
	"policykernel/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, req service.CreateRequest) (*models.Draft, error)
	Get(ctx context.Context, token string) (*models.Draft, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	issue := auth.RequireCapability(requestcontext.CapCreateIssuances, h.logger)
	approve := auth.RequireCapability(requestcontext.CapApproveAuthorizations, h.logger)

	r.With(issue).Post("/v1/drafts", h.HandleCreate)
	r.With(approve).Get("/v1/drafts/{token}", h.HandleGet)
}

type createResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleCreate handles POST /v1/drafts.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	d, err := h.service.Create(ctx, req.ToService())
	if err != nil {
		h.logger.WarnContext(ctx, "draft rejected",
			"request_id", requestID,
			"asset_id", req.AssetID,
			"actor", requestcontext.Actor(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, createResponse{Token: d.Token, ExpiresAt: d.ExpiresAt})
}

// HandleGet handles GET /v1/drafts/{token}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	d, err := h.service.Get(ctx, chi.URLParam(r, "token"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}
