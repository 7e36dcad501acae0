package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamgate/internal/api"
	"streamgate/internal/auth"
	"streamgate/internal/settings"
	"streamgate/internal/stream"
)

type callerStub struct {
	calls    int
	response stream.Response
}

func (c *callerStub) Do(ctx context.Context, req stream.Request) (stream.Response, error) {
	c.calls++
	return c.response, nil
}

func uploadResponse() stream.Response {
	header := http.Header{}
	header.Set("Location", "https://upload.test/tus/abc123")
	header.Set(stream.HeaderStreamMediaID, "abc123")
	header.Set(stream.HeaderTusResumable, "1.0.0")
	return stream.Response{Status: http.StatusCreated, Header: header}
}

func testKeyring(t *testing.T) *auth.Keyring {
	t.Helper()
	keys, err := auth.ParseKeyring("ci:supersecret")
	if err != nil {
		t.Fatalf("parse keyring: %v", err)
	}
	return keys
}

func newTestServer(t *testing.T, keys *auth.Keyring, cfg Config) http.Handler {
	t.Helper()
	provider := settings.Static{Values: settings.Settings{
		AccountID: "acct-1",
		APIToken:  "secret",
		Enabled:   true,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway := stream.NewService(stream.Config{
		Settings: provider,
		Caller:   &callerStub{response: uploadResponse()},
		APIBase:  "https://upstream.test/client/v4",
		Logger:   logger,
	})
	handler := api.NewHandler(gateway, provider, keys)
	handler.Logger = logger
	cfg.Logger = logger
	srv, err := New(handler, keys, cfg)
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	return srv.Handler()
}

func authedUpload() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/video-stream/upload-url", nil)
	req.Header.Set("Authorization", "Bearer ci:supersecret")
	req.Header.Set(stream.HeaderUploadLength, "2048")
	return req
}

func TestHealthzSkipsAuthentication(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsSkipsAuthentication(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUploadRequiresAPIKey(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{})

	req := httptest.NewRequest(http.MethodPost, "/video-stream/upload-url", nil)
	req.Header.Set(stream.HeaderUploadLength, "2048")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "errors") {
		t.Fatalf("expected JSON error body, got %q", rec.Body.String())
	}
}

func TestUploadRejectsUnknownKey(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{})

	req := httptest.NewRequest(http.MethodPost, "/video-stream/upload-url", nil)
	req.Header.Set("Authorization", "Bearer ci:wrong")
	req.Header.Set(stream.HeaderUploadLength, "2048")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestUploadWithValidKey(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedUpload())

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got == "" {
		t.Fatal("expected Location header")
	}
}

func TestNilKeyringDisablesAuthentication(t *testing.T) {
	handler := newTestServer(t, nil, Config{})

	req := httptest.NewRequest(http.MethodPost, "/video-stream/upload-url", nil)
	req.Header.Set(stream.HeaderUploadLength, "2048")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
}

func TestNegotiateRateLimit(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{
		RateLimit: RateLimitConfig{NegotiateLimit: 1, NegotiateWindow: time.Minute},
	})

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, authedUpload())
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, authedUpload())
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimitDoesNotThrottleHealth(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{
		RateLimit: RateLimitConfig{NegotiateLimit: 1, NegotiateWindow: time.Minute},
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("health request %d failed with %d", i, rec.Code)
		}
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("unexpected X-Content-Type-Options %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("unexpected X-Frame-Options %q", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("expected Content-Security-Policy header")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("unexpected request id %q", got)
	}
}

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	handler := newTestServer(t, testKeyring(t), Config{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected generated request id")
	}
}
