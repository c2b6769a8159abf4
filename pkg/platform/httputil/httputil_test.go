package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "policykernel/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("conflict carries reason", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.NewReason(dErrors.CodeConflict, dErrors.ReasonDuplicateRequest, "already pending"))

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["reason"] != "DuplicateRequest" {
			t.Fatalf("expected reason DuplicateRequest, got %q", body["reason"])
		}
	})
}

type pingRequest struct {
	Name string `json:"name"`
}

func (r *pingRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"  x "}`))
		w := httptest.NewRecorder()
		req, ok := DecodeAndPrepare[pingRequest](w, r, logger, context.Background(), "req-1")
		if !ok || req.Name != "x" {
			t.Fatalf("expected trimmed name, got %+v ok=%v", req, ok)
		}
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[pingRequest](w, r, logger, context.Background(), "req-2")
		if ok || w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("validation failure", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
		w := httptest.NewRecorder()
		_, ok := DecodeAndPrepare[pingRequest](w, r, logger, context.Background(), "req-3")
		if ok || w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", w.Code)
		}
	})
}
