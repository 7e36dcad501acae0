// Package metrics aggregates in-memory counters for the gateway and exposes
// them in Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder accumulates HTTP request counters plus negotiation and live-input
// outcome counts. It coordinates concurrent writers via a RWMutex.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	negotiations    map[string]uint64
	liveInputs      map[string]uint64
	upstreamCount   map[string]uint64
	upstreamLatency map[string]time.Duration
	settingsHealthy float64
}

var defaultRecorder = New()

// New constructs an empty Recorder ready for use.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		negotiations:    make(map[string]uint64),
		liveInputs:      make(map[string]uint64),
		upstreamCount:   make(map[string]uint64),
		upstreamLatency: make(map[string]time.Duration),
	}
}

// Default returns the shared Recorder used when no custom instance is wired.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest accumulates request count and cumulative duration by HTTP
// method, normalized path, and status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveNegotiation records the outcome of an upload negotiation, keyed by
// result ("success" or the gateway error kind).
func (r *Recorder) ObserveNegotiation(outcome string) {
	key := normalizeName(outcome)
	r.mu.Lock()
	r.negotiations[key]++
	r.mu.Unlock()
}

// ObserveLiveInput records the outcome of a live input provisioning call.
func (r *Recorder) ObserveLiveInput(outcome string) {
	key := normalizeName(outcome)
	r.mu.Lock()
	r.liveInputs[key]++
	r.mu.Unlock()
}

// ObserveUpstream records one call to the streaming backend by operation
// name together with its wall-clock latency.
func (r *Recorder) ObserveUpstream(operation string, duration time.Duration) {
	key := normalizeName(operation)
	r.mu.Lock()
	r.upstreamCount[key]++
	r.upstreamLatency[key] += duration
	r.mu.Unlock()
}

// SetSettingsHealth reports whether the settings source currently yields a
// usable configuration (1 healthy, 0 misconfigured, -1 unreachable).
func (r *Recorder) SetSettingsHealth(value float64) {
	r.mu.Lock()
	r.settingsHealthy = value
	r.mu.Unlock()
}

// NegotiationCounts returns a copy of the negotiation outcome counters.
func (r *Recorder) NegotiationCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.negotiations))
	for k, v := range r.negotiations {
		out[k] = v
	}
	return out
}

// LiveInputCounts returns a copy of the live input outcome counters.
func (r *Recorder) LiveInputCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.liveInputs))
	for k, v := range r.liveInputs {
		out[k] = v
	}
	return out
}

// Reset clears all counters. Intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.negotiations = make(map[string]uint64)
	r.liveInputs = make(map[string]uint64)
	r.upstreamCount = make(map[string]uint64)
	r.upstreamLatency = make(map[string]time.Duration)
	r.settingsHealthy = 0
}

// Handler exposes the Recorder as an http.Handler writing Prometheus text
// exposition data.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the metrics in Prometheus text format with sorted label sets
// so scrapes and tests see stable output.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	negotiationKeys := sortedKeys(r.negotiations)
	liveKeys := sortedKeys(r.liveInputs)
	upstreamKeys := sortedKeys(r.upstreamCount)

	fmt.Fprintln(w, "# HELP streamgate_http_requests_total Total number of HTTP requests processed by the gateway")
	fmt.Fprintln(w, "# TYPE streamgate_http_requests_total counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "streamgate_http_requests_total{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, r.requestCount[label])
	}

	fmt.Fprintln(w, "# HELP streamgate_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE streamgate_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		fmt.Fprintf(w, "streamgate_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n", label.method, label.path, label.status, r.requestDuration[label].Seconds())
	}

	fmt.Fprintln(w, "# HELP streamgate_upload_negotiations_total Upload negotiation outcomes by result")
	fmt.Fprintln(w, "# TYPE streamgate_upload_negotiations_total counter")
	for _, key := range negotiationKeys {
		fmt.Fprintf(w, "streamgate_upload_negotiations_total{result=%q} %d\n", key, r.negotiations[key])
	}

	fmt.Fprintln(w, "# HELP streamgate_live_inputs_total Live input provisioning outcomes by result")
	fmt.Fprintln(w, "# TYPE streamgate_live_inputs_total counter")
	for _, key := range liveKeys {
		fmt.Fprintf(w, "streamgate_live_inputs_total{result=%q} %d\n", key, r.liveInputs[key])
	}

	fmt.Fprintln(w, "# HELP streamgate_upstream_calls_total Calls issued to the streaming backend by operation")
	fmt.Fprintln(w, "# TYPE streamgate_upstream_calls_total counter")
	for _, key := range upstreamKeys {
		fmt.Fprintf(w, "streamgate_upstream_calls_total{operation=%q} %d\n", key, r.upstreamCount[key])
	}

	fmt.Fprintln(w, "# HELP streamgate_upstream_latency_seconds_sum Cumulative latency of streaming backend calls in seconds")
	fmt.Fprintln(w, "# TYPE streamgate_upstream_latency_seconds_sum counter")
	for _, key := range upstreamKeys {
		fmt.Fprintf(w, "streamgate_upstream_latency_seconds_sum{operation=%q} %f\n", key, r.upstreamLatency[key].Seconds())
	}

	fmt.Fprintln(w, "# HELP streamgate_settings_health Settings source health (1=ok,0=misconfigured,-1=unreachable)")
	fmt.Fprintln(w, "# TYPE streamgate_settings_health gauge")
	fmt.Fprintf(w, "streamgate_settings_health %f\n", r.settingsHealthy)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// normalizePath collapses unknown paths into a single label so probes cannot
// inflate metric cardinality.
func normalizePath(path string) string {
	switch path {
	case "/healthz", "/metrics", "/video-stream/upload-url", "/video-stream/create-live-stream":
		return path
	default:
		return "other"
	}
}
