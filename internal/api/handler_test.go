package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"streamgate/internal/settings"
)

type failingProvider struct{}

func (failingProvider) Settings(ctx context.Context) (settings.Settings, error) {
	return settings.Settings{}, errors.New("store offline")
}

func healthPayload(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var payload map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	return payload
}

func TestHealthReportsConfiguredSettings(t *testing.T) {
	handler := newTestHandler(enabledProvider(), &callerStub{})

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := healthPayload(t, rec)
	if payload["status"] != "ok" || payload["settings"] != "ok" {
		t.Fatalf("unexpected health payload %v", payload)
	}
	if payload["auth"] != "disabled" {
		t.Fatalf("expected auth disabled without keyring, got %v", payload)
	}
}

func TestHealthReportsMisconfiguredSettings(t *testing.T) {
	provider := settings.Static{Values: settings.Settings{Enabled: true}}
	handler := newTestHandler(provider, &callerStub{})

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if payload := healthPayload(t, rec); payload["settings"] != "misconfigured" {
		t.Fatalf("unexpected health payload %v", payload)
	}
}

func TestHealthReportsUnreachableSettings(t *testing.T) {
	handler := newTestHandler(failingProvider{}, &callerStub{})

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	payload := healthPayload(t, rec)
	if payload["status"] != "degraded" || payload["settings"] != "unreachable" {
		t.Fatalf("unexpected health payload %v", payload)
	}
}

func TestFeatureDisabledWhenProviderFails(t *testing.T) {
	caller := &callerStub{response: uploadSuccessResponse()}
	handler := newTestHandler(failingProvider{}, caller)

	req := httptest.NewRequest(http.MethodPost, "/video-stream/upload-url", nil)
	req.Header.Set("Upload-Length", "2048")
	rec := httptest.NewRecorder()
	handler.UploadURL(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if caller.calls != 0 {
		t.Fatalf("expected no upstream call, got %d", caller.calls)
	}
}
