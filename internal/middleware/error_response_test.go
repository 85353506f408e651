package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/hitoshi/uniconnect/internal/model"
)

func TestWriteErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusForbidden, model.NewAuthDomainRejectedError("@ucaldas.edu.co"))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.Code != model.ErrCodeAuthDomainRejected || body.Category != "auth" || body.Action == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unauthorized", model.NewUnauthorizedError(), http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"validation", model.NewProfileValidationError("x"), http.StatusBadRequest, model.ErrCodeProfileValidation},
		{"wrapped profile error", fmt.Errorf("load: %w", model.NewProfileRequestError("Error: 500", nil)), http.StatusBadGateway, model.ErrCodeProfileRequest},
		{"domain rejected", model.NewAuthDomainRejectedError("@ucaldas.edu.co"), http.StatusForbidden, model.ErrCodeAuthDomainRejected},
		{"plain error", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorResponseBody
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}
