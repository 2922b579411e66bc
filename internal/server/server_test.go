package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/draftforge/content-gateway/internal/domain"
)

func TestCorrelationMiddleware_GeneratesID(t *testing.T) {
	var seen string
	handler := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Error("expected a correlation ID in context")
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != seen {
		t.Errorf("header %q does not match context value %q", got, seen)
	}
}

func TestCorrelationMiddleware_HonorsInbound(t *testing.T) {
	handler := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "external-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Correlation-ID"); got != "external-123" {
		t.Errorf("expected inbound ID to be preserved, got %q", got)
	}
}

func TestWriteError_APIError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRequestContext(req.Context(), &RequestContext{
		CorrelationID: "corr-1",
		StartTime:     time.Now(),
	}))
	rec := httptest.NewRecorder()

	WriteError(rec, req, domain.ErrRateLimited("too many requests", 5*time.Second))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "5" {
		t.Errorf("expected Retry-After 5, got %q", got)
	}

	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != string(domain.ErrorCodeRateLimitExceeded) {
		t.Errorf("unexpected code %q", env.Error.Code)
	}
	if env.CorrelationID != "corr-1" {
		t.Errorf("expected correlation id in envelope, got %q", env.CorrelationID)
	}
}

func TestWriteError_MasksUnknownErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	WriteError(rec, req, errors.New("sql: connection refused to db at 10.0.0.5"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	var env errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Message != "internal server error" {
		t.Errorf("internal detail leaked: %q", env.Error.Message)
	}
}

func TestWriteJSON_Envelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRequestContext(req.Context(), &RequestContext{
		CorrelationID: "corr-2",
		StartTime:     time.Now(),
	}))
	rec := httptest.NewRecorder()

	WriteJSON(rec, req, http.StatusCreated, map[string]string{"id": "p1"}, map[string]any{"warnings": []string{"w"}})

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if rec.Header().Get("X-Elapsed-Ms") == "" {
		t.Error("expected X-Elapsed-Ms header")
	}
	var env successEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.CorrelationID != "corr-2" {
		t.Errorf("expected correlation id, got %q", env.CorrelationID)
	}
	if env.Metadata["warnings"] == nil {
		t.Error("expected metadata warnings")
	}
}
