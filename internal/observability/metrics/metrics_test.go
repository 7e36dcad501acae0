package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestNormalizesPath(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest("post", "/video-stream/upload-url", 201, 5*time.Millisecond)
	recorder.ObserveRequest("GET", "/some/random/probe", 404, time.Millisecond)

	var out strings.Builder
	recorder.Write(&out)
	text := out.String()
	if !strings.Contains(text, `streamgate_http_requests_total{method="POST",path="/video-stream/upload-url",status="201"} 1`) {
		t.Fatalf("missing request counter:\n%s", text)
	}
	if !strings.Contains(text, `path="other"`) {
		t.Fatalf("unknown path not collapsed:\n%s", text)
	}
}

func TestNegotiationAndLiveInputCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveNegotiation("success")
	recorder.ObserveNegotiation("success")
	recorder.ObserveNegotiation("Upstream_Rejected")
	recorder.ObserveLiveInput("")

	negotiations := recorder.NegotiationCounts()
	if negotiations["success"] != 2 {
		t.Fatalf("success count = %d", negotiations["success"])
	}
	if negotiations["upstream_rejected"] != 1 {
		t.Fatalf("outcome not normalized: %v", negotiations)
	}
	if recorder.LiveInputCounts()["unknown"] != 1 {
		t.Fatalf("empty outcome not mapped to unknown: %v", recorder.LiveInputCounts())
	}
}

func TestHandlerServesTextExposition(t *testing.T) {
	recorder := New()
	recorder.ObserveUpstream("direct_upload", 20*time.Millisecond)
	recorder.SetSettingsHealth(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if got := resp.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("content type = %q", got)
	}
	body := resp.Body.String()
	if !strings.Contains(body, `streamgate_upstream_calls_total{operation="direct_upload"} 1`) {
		t.Fatalf("missing upstream counter:\n%s", body)
	}
	if !strings.Contains(body, "streamgate_settings_health 1.0") {
		t.Fatalf("missing settings health gauge:\n%s", body)
	}
}

func TestResetClearsCounters(t *testing.T) {
	recorder := New()
	recorder.ObserveNegotiation("success")
	recorder.Reset()
	if len(recorder.NegotiationCounts()) != 0 {
		t.Fatalf("counters survived reset")
	}
}
