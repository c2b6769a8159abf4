package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"policykernel/internal/export"
	id "policykernel/pkg/domain"
	"policykernel/pkg/platform/httputil"
	"policykernel/pkg/platform/middleware/auth"
	"policykernel/pkg/requestcontext"
)

type Exporter interface {
	Manifest(ctx context.Context, assetID id.AssetID) (*export.Manifest, error)
}

type Handler struct {
	exporter Exporter
	logger   *slog.Logger
}

func New(exporter Exporter, logger *slog.Logger) *Handler {
	return &Handler{exporter: exporter, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	view := auth.RequireCapability(requestcontext.CapViewCompliance, h.logger)
	r.With(view).Get("/v1/compliance/assets/{id}/export", h.HandleExport)
}

// HandleExport handles GET /v1/compliance/assets/{id}/export?format=json|csv|zip.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	assetID, err := id.ParseAssetID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	m, err := h.exporter.Manifest(ctx, assetID)
	if err != nil {
		h.logger.WarnContext(ctx, "evidence export failed",
			"request_id", requestID,
			"asset_id", assetID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, m, format); err != nil {
		h.logger.ErrorContext(ctx, "failed to render evidence export",
			"request_id", requestID,
			"asset_id", assetID.String(),
			"format", string(format),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="evidence-`+assetID.String()+`.`+string(format)+`"`)
	w.Header().Set("X-Manifest-Hash", m.Hash)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())

	h.logger.InfoContext(ctx, "evidence exported",
		"request_id", requestID,
		"asset_id", assetID.String(),
		"format", string(format),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
